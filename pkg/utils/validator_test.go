package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/realmkeys/pkg/errors"
)

type sample struct {
	ProviderID string `validate:"required,oneof=rsa rsa-generated"`
	KeySize    int    `validate:"omitempty,min=2048"`
}

func TestValidateStruct(t *testing.T) {
	assert.NoError(t, ValidateStruct(sample{ProviderID: "rsa"}))

	err := ValidateStruct(sample{KeySize: 1024})
	require.Error(t, err)
	cbcErr, ok := errors.AsCBCError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeInvalidRequest, cbcErr.Code())
	assert.Equal(t, "is required", cbcErr.Metadata()["provider_id"])
	assert.Equal(t, "must be at least 2048", cbcErr.Metadata()["key_size"])
	assert.Contains(t, err.Error(), "provider_id is required")
}

func TestToSnakeCase(t *testing.T) {
	assert.Equal(t, "private_key_pem", toSnakeCase("PrivateKeyPEM"))
	assert.Equal(t, "provider_id", toSnakeCase("ProviderID"))
}

func TestValidateNotEmpty(t *testing.T) {
	assert.False(t, ValidateNotEmpty("  "))
	assert.True(t, ValidateNotEmpty("x"))
}
