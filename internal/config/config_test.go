package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, "rsvp.db", cfg.DatabaseFile)
	assert.Equal(t, "en", cfg.DefaultLanguage)
	assert.Equal(t, "admin", cfg.OperatorRole)
	assert.Equal(t, filepath.Join("data", "rsvp.db"), cfg.DatabasePath())
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("RSVP_DATA_DIR", "/var/lib/wedding")
	t.Setenv("RSVP_DATABASE_FILE", "guests.db")
	t.Setenv("RSVP_OPERATOR_ROLE", "coordinator")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/wedding", cfg.DataDir)
	assert.Equal(t, "coordinator", cfg.OperatorRole)
	assert.Equal(t, filepath.Join("/var/lib/wedding", "guests.db"), cfg.DatabasePath())
}
