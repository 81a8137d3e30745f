package gauges

import (
	"fmt"
	"time"
)

// statusPriority ranks effective member statuses for pair rollup. A pair
// reports the highest-priority status among its members, so a single
// checked-out member makes the whole set checked_out.
var statusPriority = map[string]int{
	string(StatusCheckedOut):         100,
	string(StatusOutOfService):       90,
	PairStatusCalibrationDue:         80,
	string(StatusRetired):            70,
	string(StatusOutForCalibration):  60,
	string(StatusPendingCertificate): 50,
	string(StatusPendingRelease):     40,
	string(StatusPendingQC):          30,
	string(StatusReturned):           20,
	string(StatusAvailable):          10,
}

// PairStatus is the rolled-up view of a GO/NO-GO set.
type PairStatus struct {
	Status      string
	CanCheckout bool
	Reason      string
}

// ComputeStatus derives the pair-level status from both members. Either
// member may be nil (spare or orphaned gauge); at least one must be set.
// The result is deterministic: same inputs, same output.
func ComputeStatus(a, b *Gauge, now time.Time) PairStatus {
	top := ""
	var blocking *Gauge
	for _, g := range []*Gauge{a, b} {
		if g == nil {
			continue
		}
		eff := g.EffectiveStatus(now)
		if top == "" || statusPriority[eff] > statusPriority[top] {
			top = eff
			blocking = g
		}
	}
	if top == "" {
		return PairStatus{Status: string(StatusAvailable), CanCheckout: false, Reason: "no gauges in set"}
	}
	ps := PairStatus{Status: top}
	if top == string(StatusAvailable) {
		ps.CanCheckout = true
		return ps
	}
	ps.Reason = fmt.Sprintf("%s is %s", memberLabel(blocking), top)
	return ps
}

// ComputeSealStatus reports whether the set is sealed. A seal on either
// member seals the pair.
func ComputeSealStatus(a, b *Gauge) bool {
	if a != nil && a.Sealed {
		return true
	}
	if b != nil && b.Sealed {
		return true
	}
	return false
}

// ValidatePairCompatibility decides whether two gauges may be bonded into
// a GO/NO-GO set. Ownership is checked before customer identity so a
// company/customer mix reports OWNERSHIP_MISMATCH rather than the
// narrower customer error. Thread geometry must match exactly and the
// two members must carry opposite functions.
func ValidatePairCompatibility(a, b *Gauge) error {
	const op = "Gauges.ValidatePairCompatibility"
	if a == nil || b == nil {
		return NewError(CodeValidation, op, "both gauges are required", nil)
	}
	if a.OwnershipType != b.OwnershipType {
		return NewError(CodeOwnershipMismatch, op,
			fmt.Sprintf("cannot pair %s-owned %s with %s-owned %s",
				a.OwnershipType, memberLabel(a), b.OwnershipType, memberLabel(b)), nil)
	}
	if a.OwnershipType == OwnershipCustomer {
		if a.CustomerID == nil || b.CustomerID == nil || *a.CustomerID != *b.CustomerID {
			return NewError(CodeCustomerMismatch, op,
				"customer-owned gauges must belong to the same customer", nil)
		}
	}
	if a.EquipmentType != b.EquipmentType {
		return NewError(CodeSpecMismatch, op,
			fmt.Sprintf("equipment type mismatch: %q vs %q", a.EquipmentType, b.EquipmentType), nil)
	}
	if a.ThreadSize != b.ThreadSize {
		return NewError(CodeSpecMismatch, op,
			fmt.Sprintf("thread size mismatch: %q vs %q", a.ThreadSize, b.ThreadSize), nil)
	}
	if a.ThreadClass != b.ThreadClass {
		return NewError(CodeSpecMismatch, op,
			fmt.Sprintf("thread class mismatch: %q vs %q", a.ThreadClass, b.ThreadClass), nil)
	}
	if a.Function == b.Function {
		return NewError(CodeSpecMismatch, op,
			fmt.Sprintf("a set needs one GO and one NO-GO member, got two %s gauges", a.Function), nil)
	}
	return nil
}

// memberLabel names a gauge for error and reason text, preferring the
// human-facing display id.
func memberLabel(g *Gauge) string {
	if g == nil {
		return "unknown gauge"
	}
	if g.DisplayID != nil && *g.DisplayID != "" {
		return *g.DisplayID
	}
	return "serial " + g.SerialNumber
}
