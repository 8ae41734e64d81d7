// Package wire defines the payloads peers exchange and the GraphQL-shaped
// envelope they travel in. Field names are part of the external contract.
package wire

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"infosync/pkg/domain"
	dErrors "infosync/pkg/domain-errors"
)

const (
	MutationUpdateEmployee  = "updateEmployeeInfo"
	MutationUpdateInsurance = "updateInsuranceInfo"
	MutationFeedback        = "receiveNotificationFeedback"
)

// UpsertMutation returns the upsert mutation served by destination.
func UpsertMutation(destination domain.System) (string, bool) {
	switch destination {
	case domain.SystemEmployee:
		return MutationUpdateEmployee, true
	case domain.SystemInsurance:
		return MutationUpdateInsurance, true
	}
	return "", false
}

// Utilisateur is the person block of an upsert.
type Utilisateur struct {
	ID     int64  `json:"id"`
	Nom    string `json:"nom,omitempty"`
	Prenom string `json:"prenom,omitempty"`
	Email  string `json:"email,omitempty"`
}

// Notification describes the origin notification that caused an upsert.
type Notification struct {
	ID        int64  `json:"id"`
	Objet     string `json:"objet,omitempty"`
	Contenu   string `json:"contenu,omitempty"`
	DateEnvoi string `json:"dateEnvoi,omitempty"`
}

// UpsertInput is the body of updateEmployeeInfo and updateInsuranceInfo.
// Statut is a pointer so an absent value can be told apart from false.
type UpsertInput struct {
	InformationID   int64         `json:"informationId"`
	Utilisateur     Utilisateur   `json:"utilisateur"`
	NumeroEmploye   string        `json:"numeroEmploye,omitempty"`
	Adresse         string        `json:"adresse,omitempty"`
	NumeroAssurance string        `json:"numeroAssurance,omitempty"`
	CIN             string        `json:"cin,omitempty"`
	Statut          *bool         `json:"statut,omitempty"`
	Notification    *Notification `json:"notification,omitempty"`
}

// FeedbackInput is the body of receiveNotificationFeedback.
type FeedbackInput struct {
	NotificationID int64  `json:"notificationId"`
	Status         bool   `json:"status"`
	Message        string `json:"message,omitempty"`
	Source         string `json:"source"`
}

// Result is the answer of every mutation.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func OK(message string) Result {
	return Result{Success: true, Message: message}
}

func Fail(message string) Result {
	return Result{Success: false, Message: message}
}

// FormatTime renders dateEnvoi.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// Request is the POST body sent to /graphql/.
type Request struct {
	Query     string    `json:"query"`
	Variables Variables `json:"variables"`
}

type Variables struct {
	Input json.RawMessage `json:"input"`
}

// NewRequest wraps input in the envelope for mutation.
func NewRequest(mutation string, input any) (Request, error) {
	raw, err := json.Marshal(input)
	if err != nil {
		return Request{}, fmt.Errorf("marshal %s input: %w", mutation, err)
	}
	return Request{
		Query:     fmt.Sprintf("mutation($input: JSON!) { %s(input: $input) { success message } }", mutation),
		Variables: Variables{Input: raw},
	}, nil
}

var mutationField = regexp.MustCompile(`^\s*mutation\b[^{]*\{\s*([A-Za-z_][A-Za-z0-9_]*)`)

// MutationName extracts the top-level field of a mutation document.
func (r Request) MutationName() (string, error) {
	m := mutationField.FindStringSubmatch(r.Query)
	if m == nil {
		return "", dErrors.New(dErrors.CodeBadRequest, "query is not a mutation")
	}
	return m[1], nil
}

// DecodeInput unmarshals the mutation input into dst.
func (r Request) DecodeInput(dst any) error {
	if len(r.Variables.Input) == 0 {
		return dErrors.New(dErrors.CodeBadRequest, "variables.input is required")
	}
	if err := json.Unmarshal(r.Variables.Input, dst); err != nil {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "variables.input is malformed")
	}
	return nil
}

// Response is the body answered by /graphql/.
type Response struct {
	Data   map[string]Result `json:"data,omitempty"`
	Errors []Error           `json:"errors,omitempty"`
}

type Error struct {
	Message string `json:"message"`
}

func NewResponse(field string, result Result) Response {
	return Response{Data: map[string]Result{field: result}}
}

func ErrorResponse(message string) Response {
	return Response{Errors: []Error{{Message: message}}}
}
