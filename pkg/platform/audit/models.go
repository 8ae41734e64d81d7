package audit

import (
	"strings"
	"time"

	"infosync/pkg/domain"
)

// Category groups action kinds for routing on the outbox topic.
type Category string

const (
	// CategoryPropagation covers the origin composing and sending an episode.
	CategoryPropagation Category = "propagation"
	// CategoryDelivery covers side channels such as email.
	CategoryDelivery Category = "delivery"
	// CategoryReception covers a downstream applying an inbound upsert.
	CategoryReception Category = "reception"
	// CategoryFeedback covers acknowledgements travelling back to the origin.
	CategoryFeedback Category = "feedback"
	// CategoryOther is used for custom kinds.
	CategoryOther Category = "other"
)

// ActionKind is the closed set of audit actions. Anything outside the set must
// be built with Custom so reporting can tell the two apart.
type ActionKind string

const (
	ActionCreated           ActionKind = "created"
	ActionCompositionFailed ActionKind = "composition_failed"
	ActionDispatchRetry     ActionKind = "dispatch_retry"
	ActionEmployeeSuccess   ActionKind = "notification_employee_success"
	ActionEmployeeFailed    ActionKind = "notification_employee_failed"
	ActionInsuranceSuccess  ActionKind = "notification_insurance_success"
	ActionInsuranceFailed   ActionKind = "notification_insurance_failed"
	ActionHRSuccess         ActionKind = "notification_hr_success"
	ActionHRFailed          ActionKind = "notification_hr_failed"
	ActionEmailSent         ActionKind = "email_sent"
	ActionEmailFailed       ActionKind = "email_failed"
	ActionReception         ActionKind = "reception_notification"
	ActionFeedbackEmployee  ActionKind = "feedback_employee"
	ActionFeedbackInsurance ActionKind = "feedback_insurance"
)

const customPrefix = "custom:"

var kindCategories = map[ActionKind]Category{
	ActionCreated:           CategoryPropagation,
	ActionCompositionFailed: CategoryPropagation,
	ActionDispatchRetry:     CategoryPropagation,
	ActionEmployeeSuccess:   CategoryPropagation,
	ActionEmployeeFailed:    CategoryPropagation,
	ActionInsuranceSuccess:  CategoryPropagation,
	ActionInsuranceFailed:   CategoryPropagation,
	ActionHRSuccess:         CategoryPropagation,
	ActionHRFailed:          CategoryPropagation,
	ActionEmailSent:         CategoryDelivery,
	ActionEmailFailed:       CategoryDelivery,
	ActionReception:         CategoryReception,
	ActionFeedbackEmployee:  CategoryFeedback,
	ActionFeedbackInsurance: CategoryFeedback,
}

// Custom builds an out-of-set kind. The tag is lowercased and trimmed.
func Custom(tag string) ActionKind {
	return ActionKind(customPrefix + strings.ToLower(strings.TrimSpace(tag)))
}

// IsCustom reports whether k was built with Custom.
func (k ActionKind) IsCustom() bool {
	return strings.HasPrefix(string(k), customPrefix)
}

// Valid reports whether k is in the closed set or a non-empty custom kind.
func (k ActionKind) Valid() bool {
	if _, ok := kindCategories[k]; ok {
		return true
	}
	return k.IsCustom() && len(k) > len(customPrefix)
}

// Category returns the routing category, CategoryOther for custom kinds.
func (k ActionKind) Category() Category {
	if c, ok := kindCategories[k]; ok {
		return c
	}
	return CategoryOther
}

func (k ActionKind) String() string { return string(k) }

// DispatchOutcome returns the per-destination outcome kind.
func DispatchOutcome(destination domain.System, ok bool) ActionKind {
	switch destination {
	case domain.SystemEmployee:
		if ok {
			return ActionEmployeeSuccess
		}
		return ActionEmployeeFailed
	case domain.SystemInsurance:
		if ok {
			return ActionInsuranceSuccess
		}
		return ActionInsuranceFailed
	case domain.SystemHR:
		if ok {
			return ActionHRSuccess
		}
		return ActionHRFailed
	}
	if ok {
		return Custom("notification_" + string(destination) + "_success")
	}
	return Custom("notification_" + string(destination) + "_failed")
}

// FeedbackFrom returns the kind recorded when source acknowledges a notification.
func FeedbackFrom(source string) ActionKind {
	switch domain.System(strings.ToLower(strings.TrimSpace(source))) {
	case domain.SystemEmployee:
		return ActionFeedbackEmployee
	case domain.SystemInsurance:
		return ActionFeedbackInsurance
	}
	return Custom("feedback_" + source)
}

// Entry is one append-only audit record. NotificationID is a weak reference:
// the entry outlives the notification and is never cascaded.
type Entry struct {
	Seq            int64
	Timestamp      time.Time
	Kind           ActionKind
	Description    string
	NotificationID *domain.NotificationID
	Service        domain.System
	RequestID      string
}

// About returns a pointer suitable for Entry.NotificationID.
func About(id domain.NotificationID) *domain.NotificationID {
	return &id
}

// OutboxMessage is a persisted audit entry waiting to be published.
type OutboxMessage struct {
	ID      int64
	Key     string
	Payload []byte
}
