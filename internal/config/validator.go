package config

import (
	"fmt"

	cperrors "github.com/cpscan/engine/internal/errors"
)

// Validator checks a loaded Config for internal consistency and fills in
// any defaults LoadKDL left zero-valued. Ported from
// standardbeagle/lci's internal/config/validator.go, narrowed to ScanSpec's fields.
type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

func (v *Validator) ValidateAndSetDefaults(cfg *Config) error {
	if cfg.Project.Root == "" {
		return cperrors.New(cperrors.KindInvalidElement, "", fmt.Errorf("project root cannot be empty"))
	}

	if cfg.Performance.ParallelWorkers < 0 {
		return cperrors.New(cperrors.KindInvalidElement, "", fmt.Errorf("ParallelWorkers must be >= 0, got %d", cfg.Performance.ParallelWorkers))
	}

	v.setSmartDefaults(cfg)
	return nil
}

// setSmartDefaults fills in Config fields left at their Go zero value.
// ScanSpec's own feature-toggle defaults come from DefaultScanSpec(); once
// a KDL file has been parsed we trust its explicit values.
func (v *Validator) setSmartDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = 1
	}
}
