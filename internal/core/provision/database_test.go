package provision

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// =============================================================================
// DatabaseParams Tests
// =============================================================================

func TestExtractDatabaseParams(t *testing.T) {
	env := map[string]string{
		"DB_HOST": "db",
		"DB_NAME": "devdb",
		"DB_USER": "devuser",
		"DB_PASS": "changeme",
		"OTHER":   "ignored",
	}
	params := ExtractDatabaseParams(env)
	assert.Equal(t, "db", params.Host)
	assert.Equal(t, "devdb", params.Name)
	assert.Equal(t, "devuser", params.User)
	assert.Equal(t, "changeme", params.Password)
	assert.True(t, params.Complete())
}

func TestDatabaseParams_Incomplete(t *testing.T) {
	params := ExtractDatabaseParams(map[string]string{"DB_HOST": "db"})
	assert.False(t, params.Complete())

	assert.False(t, DatabaseParams{}.Complete())
}
