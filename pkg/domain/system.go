package domain

import (
	"fmt"
	"strings"

	dErrors "infosync/pkg/domain-errors"
)

// System names one of the peer services. A running process plays exactly one.
type System string

const (
	// SystemHR is the origin of insurance information.
	SystemHR System = "hr"
	// SystemEmployee is the employer-side copy holder.
	SystemEmployee System = "employee"
	// SystemInsurance is the insurer-side copy holder.
	SystemInsurance System = "insurance"
)

// ParseSystem validates a configured or received system name.
func ParseSystem(s string) (System, error) {
	switch sys := System(strings.ToLower(strings.TrimSpace(s))); sys {
	case SystemHR, SystemEmployee, SystemInsurance:
		return sys, nil
	default:
		return "", dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("unknown system %q", s))
	}
}

func (s System) String() string { return string(s) }

// ForeignRef identifies an entity by the id another system assigned to it.
type ForeignRef struct {
	System System
	ID     int64
}

// NewForeignRef builds a reference, rejecting non-positive ids.
func NewForeignRef(system System, id int64) (ForeignRef, error) {
	if id <= 0 {
		return ForeignRef{}, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s id must be positive", system))
	}
	return ForeignRef{System: system, ID: id}, nil
}

// IsZero reports whether the reference is unset.
func (r ForeignRef) IsZero() bool { return r.ID == 0 }

func (r ForeignRef) String() string {
	return fmt.Sprintf("%s:%d", r.System, r.ID)
}
