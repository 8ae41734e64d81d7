// Package domain holds the identifier primitives shared by every service role.
//
// Local identifiers are typed integers so a PersonID can never be passed where
// an InformationID is expected. Identifiers issued by another service are never
// stored as bare integers: they travel as a ForeignRef that also names the
// system that issued them.
package domain

import (
	"strconv"
	"strings"

	dErrors "infosync/pkg/domain-errors"
)

type (
	PersonID       int64
	InsurerID      int64
	InformationID  int64
	NotificationID int64
)

// ParseInformationID parses a positive decimal identifier from a trust boundary.
func ParseInformationID(s string) (InformationID, error) {
	v, err := parsePositive(s)
	if err != nil {
		return 0, err
	}
	return InformationID(v), nil
}

func parsePositive(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "identifier is required")
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInvalidInput, "identifier must be an integer")
	}
	if v <= 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "identifier must be positive")
	}
	return v, nil
}
