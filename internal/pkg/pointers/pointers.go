package pointers

// Ptr returns a pointer to v. Handy for the optional pairing columns,
// which model absence as nil.
func Ptr[T any](v T) *T { return &v }
