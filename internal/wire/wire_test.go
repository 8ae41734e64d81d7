package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"infosync/pkg/domain"
	dErrors "infosync/pkg/domain-errors"
)

func TestUpsertInputUsesWireNames(t *testing.T) {
	statut := true
	raw, err := json.Marshal(UpsertInput{
		InformationID:   7,
		Utilisateur:     Utilisateur{ID: 42, Nom: "Dupont", Prenom: "Jean"},
		NumeroEmploye:   "E100",
		NumeroAssurance: "A-9",
		Statut:          &statut,
		Notification:    &Notification{ID: 3, Objet: "s", Contenu: "b", DateEnvoi: "2026-01-02T03:04:05Z"},
	})
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, float64(7), doc["informationId"])
	assert.Equal(t, "E100", doc["numeroEmploye"])
	assert.Equal(t, "A-9", doc["numeroAssurance"])
	assert.Equal(t, true, doc["statut"])
	assert.NotContains(t, doc, "adresse", "empty fields are omitted")
	assert.Equal(t, "2026-01-02T03:04:05Z", doc["notification"].(map[string]any)["dateEnvoi"])
	assert.Equal(t, "Dupont", doc["utilisateur"].(map[string]any)["nom"])
}

func TestAbsentStatutStaysNil(t *testing.T) {
	var in UpsertInput
	require.NoError(t, json.Unmarshal([]byte(`{"informationId":7,"utilisateur":{"id":42}}`), &in))
	assert.Nil(t, in.Statut)
}

func TestRequestRoundTrip(t *testing.T) {
	req, err := NewRequest(MutationUpdateEmployee, FeedbackInput{NotificationID: 1, Status: true, Source: "employee"})
	require.NoError(t, err)

	name, err := req.MutationName()
	require.NoError(t, err)
	assert.Equal(t, MutationUpdateEmployee, name)

	var in FeedbackInput
	require.NoError(t, req.DecodeInput(&in))
	assert.Equal(t, int64(1), in.NotificationID)
}

func TestMutationName(t *testing.T) {
	tests := []struct {
		query   string
		want    string
		wantErr bool
	}{
		{query: "mutation { receiveNotificationFeedback(input: $input) { success } }", want: MutationFeedback},
		{query: "  mutation Update($input: X!) {\n updateInsuranceInfo(input: $input) { success message } }", want: MutationUpdateInsurance},
		{query: "query { persons { id } }", wantErr: true},
		{query: "", wantErr: true},
	}
	for _, tt := range tests {
		name, err := Request{Query: tt.query}.MutationName()
		if tt.wantErr {
			assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest), tt.query)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, name)
	}
}

func TestUpsertMutation(t *testing.T) {
	m, ok := UpsertMutation(domain.SystemInsurance)
	assert.True(t, ok)
	assert.Equal(t, MutationUpdateInsurance, m)
	_, ok = UpsertMutation(domain.SystemHR)
	assert.False(t, ok)
}

func TestDecodeInputRequiresInput(t *testing.T) {
	var in UpsertInput
	err := Request{Query: "mutation { updateEmployeeInfo }"}.DecodeInput(&in)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
}
