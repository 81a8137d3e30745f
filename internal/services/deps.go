package services

import (
	"gorm.io/gorm"

	"github.com/gaugeworks/gaugetrack-backend/internal/pkg/logger"
)

// BaseDeps carries the shared wiring for every gauge service.
type BaseDeps struct {
	DB     *gorm.DB
	Log    *logger.Logger
	Runner TxRunner
	Hooks  Hooks
}

func (d BaseDeps) withDefaults() BaseDeps {
	if d.Runner == nil {
		d.Runner = NewGormTxRunner(d.DB)
	}
	if d.Hooks == nil {
		d.Hooks = noopHooks{}
	}
	return d
}
