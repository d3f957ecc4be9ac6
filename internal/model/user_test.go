package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCapitalizeName(t *testing.T) {
	tests := map[string]string{
		"  ada lovelace ": "Ada Lovelace",
		"GRACE hopper":    "Grace Hopper",
		"émile  zola":     "Émile  Zola",
		"":                "",
	}
	for in, want := range tests {
		assert.Equal(t, want, CapitalizeName(in), in)
	}
}

func TestValidatePasswordChange(t *testing.T) {
	assert.ErrorIs(t, ValidatePasswordChange("", "secret1", "secret1"), ErrPasswordFieldsRequired)
	assert.ErrorIs(t, ValidatePasswordChange("old", "short", "short"), ErrPasswordTooShort)
	assert.ErrorIs(t, ValidatePasswordChange("old", "secret1", "secret2"), ErrPasswordMismatch)
	assert.NoError(t, ValidatePasswordChange("old", "secret1", "secret1"))
}
