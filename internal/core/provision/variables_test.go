package provision

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// =============================================================================
// SubstituteVariables Tests
// =============================================================================

func TestSubstituteVariables(t *testing.T) {
	tests := []struct {
		name      string
		value     string
		variables map[string]string
		want      string
	}{
		{
			name:      "simple substitution",
			value:     "${DB_HOST}",
			variables: map[string]string{"DB_HOST": "db"},
			want:      "db",
		},
		{
			name:      "default used when missing",
			value:     "${DB_PASS:-changeme}",
			variables: map[string]string{},
			want:      "changeme",
		},
		{
			name:      "value wins over default",
			value:     "${DB_PASS:-changeme}",
			variables: map[string]string{"DB_PASS": "secret"},
			want:      "secret",
		},
		{
			name:      "missing without default kept as-is",
			value:     "${MISSING}",
			variables: map[string]string{},
			want:      "${MISSING}",
		},
		{
			name:      "embedded in connection string",
			value:     "postgres://${DB_USER}:${DB_PASS}@${DB_HOST}/${DB_NAME}",
			variables: map[string]string{"DB_USER": "devuser", "DB_PASS": "pw", "DB_HOST": "db", "DB_NAME": "devdb"},
			want:      "postgres://devuser:pw@db/devdb",
		},
		{
			name:      "nil variables",
			value:     "${VAR:-fallback}",
			variables: nil,
			want:      "fallback",
		},
		{
			name:      "plain text untouched",
			value:     "no placeholders here",
			variables: map[string]string{"VAR": "x"},
			want:      "no placeholders here",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SubstituteVariables(tt.value, tt.variables))
		})
	}
}
