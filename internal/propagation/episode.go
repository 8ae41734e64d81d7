package propagation

import (
	"context"

	"infosync/internal/information/models"
	"infosync/internal/information/store"
	"infosync/pkg/domain"
	audit "infosync/pkg/platform/audit"
)

// Episode is the committed state a propagation episode works from. It is a
// snapshot, so dispatch never re-reads rows that may have moved on.
type Episode struct {
	Record  models.InformationRecord
	Person  models.Person
	Insurer *models.Insurer
	// OriginNotification is the origin's notification a relay hop forwards.
	// It is zero on the origin and for relays that received no notification.
	OriginNotification domain.ForeignRef
}

// Job is an episode whose notification has been composed and persisted.
type Job struct {
	Episode
	Notification models.Notification
	RequestID    string
}

// Auditor appends audit entries. Implementations never fail the caller.
type Auditor interface {
	Record(ctx context.Context, kind audit.ActionKind, description string, notificationID *domain.NotificationID)
}

// LoadEpisode reads the person and the optional insurer of rec.
func LoadEpisode(ctx context.Context, st store.Store, rec models.InformationRecord) (Episode, error) {
	person, err := st.FindPerson(ctx, rec.PersonID)
	if err != nil {
		return Episode{}, err
	}
	ep := Episode{Record: rec, Person: *person}
	if rec.InsurerID != nil {
		insurer, err := st.FindInsurer(ctx, *rec.InsurerID)
		if err != nil {
			return Episode{}, err
		}
		ep.Insurer = insurer
	}
	return ep, nil
}
