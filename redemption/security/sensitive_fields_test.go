package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsSensitiveField(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		field     string
		sensitive bool
	}{
		{name: "exact lowercase match", field: "password", sensitive: true},
		{name: "uppercase match", field: "PASSWORD", sensitive: true},
		{name: "camelCase token", field: "sessionToken", sensitive: true},
		{name: "pascal case api key", field: "APIKey", sensitive: true},
		{name: "snake case refresh token", field: "refresh_token", sensitive: true},
		{name: "embedded with boundary", field: "db_password_hash", sensitive: true},
		{name: "authorization header", field: "Authorization", sensitive: true},
		{name: "postgres dsn", field: "POSTGRES_DSN", sensitive: true},
		{name: "camel dsn", field: "replicaDSN", sensitive: true},
		{name: "connection string", field: "MongoConnectionString", sensitive: true},
		{name: "broker credential", field: "rabbitCredentials", sensitive: true},

		{name: "plain holder id", field: "holderId", sensitive: false},
		{name: "amount", field: "amount", sensitive: false},
		{name: "unexchanged balance", field: "unexchangedBalance", sensitive: false},
		{name: "monkey is not key", field: "monkey", sensitive: false},
		{name: "author is not auth", field: "author", sensitive: false},
		{name: "keyboard is not key", field: "keyboard", sensitive: false},
		{name: "empty", field: "", sensitive: false},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.sensitive, IsSensitiveField(tt.field), "field %q", tt.field)
		})
	}
}

func TestDefaultSensitiveFieldsMapIsCloned(t *testing.T) {
	t.Parallel()

	first := DefaultSensitiveFieldsMap()
	first["holderId"] = true

	second := DefaultSensitiveFieldsMap()

	assert.False(t, second["holderId"], "mutating a returned map must not leak into the shared cache")
	assert.True(t, second["password"])
}

func TestNormalizeFieldName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "session_token", normalizeFieldName("sessionToken"))
	assert.Equal(t, "api_key", normalizeFieldName("APIKey"))
	assert.Equal(t, "holder_id", normalizeFieldName("HolderID"))
	assert.Equal(t, "already_snake", normalizeFieldName("already_snake"))
}
