// Package models holds the entities a service keeps about insurance information.
//
// A downstream copy never links to the origin's rows. It carries an Origin
// reference naming the system and id the origin assigned, which may or may
// not correspond to anything stored locally.
package models

import (
	"strings"
	"time"

	"infosync/pkg/domain"
)

// Person is the identity an InformationRecord is about.
type Person struct {
	ID        domain.PersonID
	FirstName string
	LastName  string
	Email     string
	Role      string
	Origin    domain.ForeignRef
	CreatedAt time.Time
}

func (p Person) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// WireID is the person id peers understand: the origin's id for a copy.
func (p Person) WireID() int64 {
	if !p.Origin.IsZero() {
		return p.Origin.ID
	}
	return int64(p.ID)
}

// PersonPatch carries person fields from a write or an upsert payload. Empty
// strings mean "not supplied".
type PersonPatch struct {
	FirstName string
	LastName  string
	Email     string
	Role      string
}

// Apply overwrites only the supplied fields and reports whether any changed.
func (p *Person) Apply(patch PersonPatch) bool {
	changed := false
	changed = setIfSupplied(&p.FirstName, patch.FirstName) || changed
	changed = setIfSupplied(&p.LastName, patch.LastName) || changed
	changed = setIfSupplied(&p.Email, patch.Email) || changed
	changed = setIfSupplied(&p.Role, patch.Role) || changed
	return changed
}

// Insurer is an insurance company known to the origin.
type Insurer struct {
	ID      domain.InsurerID
	Name    string
	Address string
	Email   string
	// APIURL, when set, replaces the configured insurance destination URL.
	APIURL    string
	CreatedAt time.Time
}

// InformationRecord is the propagated entity.
type InformationRecord struct {
	ID                domain.InformationID
	PersonID          domain.PersonID
	EmployeeNumber    string
	Address           string
	InsuranceNumber   string
	NationalID        string
	Notes             string
	Confirmed         bool
	InsurerID         *domain.InsurerID
	NotificationEmail string
	Origin            domain.ForeignRef
	CreatedAt         time.Time
	ModifiedAt        time.Time
}

// WireID is the information id peers understand: the origin's id for a copy.
func (r InformationRecord) WireID() int64 {
	if !r.Origin.IsZero() {
		return r.Origin.ID
	}
	return int64(r.ID)
}

// RecordPatch carries record fields. Empty strings and nil pointers mean
// "not supplied".
type RecordPatch struct {
	EmployeeNumber    string
	Address           string
	InsuranceNumber   string
	NationalID        string
	Notes             string
	NotificationEmail string
	Confirmed         *bool
	InsurerID         *domain.InsurerID
}

// Apply merges the supplied fields into r and bumps ModifiedAt.
func (r *InformationRecord) Apply(patch RecordPatch, now time.Time) {
	setIfSupplied(&r.EmployeeNumber, patch.EmployeeNumber)
	setIfSupplied(&r.Address, patch.Address)
	setIfSupplied(&r.InsuranceNumber, patch.InsuranceNumber)
	setIfSupplied(&r.NationalID, patch.NationalID)
	setIfSupplied(&r.Notes, patch.Notes)
	setIfSupplied(&r.NotificationEmail, patch.NotificationEmail)
	if patch.Confirmed != nil {
		r.Confirmed = *patch.Confirmed
	}
	if patch.InsurerID != nil {
		id := *patch.InsurerID
		r.InsurerID = &id
	}
	r.ModifiedAt = now
}

// Notification is write-once apart from its delivery state: SentAt,
// Delivered and Acknowledged. SentAt starts at composition time and is moved
// to the moment dispatch resolved when the delivery outcome is recorded.
type Notification struct {
	ID            domain.NotificationID
	InformationID domain.InformationID
	Subject       string
	Body          string
	Sender        string
	Recipient     string
	ComposedAt    time.Time
	SentAt        time.Time
	Delivered     bool
	Acknowledged  bool
	Origin        domain.ForeignRef
}

// WireID is the notification id the origin can resolve feedback against.
func (n Notification) WireID() int64 {
	if !n.Origin.IsZero() {
		return n.Origin.ID
	}
	return int64(n.ID)
}

func setIfSupplied(dst *string, v string) bool {
	v = strings.TrimSpace(v)
	if v == "" || *dst == v {
		return false
	}
	*dst = v
	return true
}
