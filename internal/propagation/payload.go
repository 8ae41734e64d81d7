package propagation

import (
	"infosync/internal/wire"
)

// BuildUpsert translates a job into the wire payload every destination
// accepts. A relayed copy speaks in the origin's ids.
func BuildUpsert(job Job) wire.UpsertInput {
	rec := job.Record
	statut := rec.Confirmed
	return wire.UpsertInput{
		InformationID: rec.WireID(),
		Utilisateur: wire.Utilisateur{
			ID:     job.Person.WireID(),
			Nom:    job.Person.LastName,
			Prenom: job.Person.FirstName,
			Email:  job.Person.Email,
		},
		NumeroEmploye:   rec.EmployeeNumber,
		Adresse:         rec.Address,
		NumeroAssurance: rec.InsuranceNumber,
		CIN:             rec.NationalID,
		Statut:          &statut,
		Notification:    notificationPayload(job),
	}
}

// notificationPayload carries the notification id the origin can resolve
// feedback against. A relay that forwards no origin notification sends id 0,
// since its local id means nothing to the origin.
func notificationPayload(job Job) *wire.Notification {
	n := job.Notification
	sent := n.SentAt
	if sent.IsZero() {
		sent = n.ComposedAt
	}
	id := n.WireID()
	if !job.Record.Origin.IsZero() && n.Origin.IsZero() {
		id = 0
	}
	return &wire.Notification{
		ID:        id,
		Objet:     n.Subject,
		Contenu:   n.Body,
		DateEnvoi: wire.FormatTime(sent),
	}
}
