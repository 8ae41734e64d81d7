package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "infosync/pkg/domain-errors"
)

// IDs parsed at trust boundaries must be positive integers.
func TestParseInformationID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    InformationID
		wantErr bool
	}{
		{name: "empty", input: "", wantErr: true},
		{name: "whitespace", input: "   ", wantErr: true},
		{name: "not a number", input: "abc", wantErr: true},
		{name: "zero", input: "0", wantErr: true},
		{name: "negative", input: "-4", wantErr: true},
		{name: "overflow", input: "99999999999999999999", wantErr: true},
		{name: "valid", input: "42", want: 42},
		{name: "valid with padding", input: " 7 ", want: 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseInformationID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSystem(t *testing.T) {
	sys, err := ParseSystem(" Insurance ")
	require.NoError(t, err)
	assert.Equal(t, SystemInsurance, sys)

	_, err = ParseSystem("payroll")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestForeignRef(t *testing.T) {
	t.Run("rejects non-positive ids", func(t *testing.T) {
		_, err := NewForeignRef(SystemHR, 0)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("carries the issuing system", func(t *testing.T) {
		ref, err := NewForeignRef(SystemHR, 42)
		require.NoError(t, err)
		assert.False(t, ref.IsZero())
		assert.Equal(t, "hr:42", ref.String())
	})

	t.Run("same id from different systems is a different ref", func(t *testing.T) {
		a := ForeignRef{System: SystemHR, ID: 1}
		b := ForeignRef{System: SystemEmployee, ID: 1}
		assert.NotEqual(t, a, b)
	})
}
