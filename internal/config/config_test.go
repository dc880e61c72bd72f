package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, 15*time.Minute, cfg.Escalation.Interval)
	assert.Equal(t, 4, cfg.Escalation.Workers)
	assert.Empty(t, cfg.Redis.Addr)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "propdesk.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9090"
database:
  driver: postgres
  dsn: "postgres://propdesk@localhost/propdesk?sslmode=disable"
escalation:
  interval: 5m
  workers: 8
notifications:
  roles:
    manager: user-17
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 5*time.Minute, cfg.Escalation.Interval)
	assert.Equal(t, 8, cfg.Escalation.Workers)
	assert.Equal(t, "user-17", cfg.Notifications.Roles["manager"])
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("PROPDESK_DATABASE_DRIVER", "mysql")
	t.Setenv("PROPDESK_DATABASE_DSN", "propdesk:pw@tcp(localhost:3306)/propdesk?parseTime=true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Contains(t, cfg.Database.DSN, "parseTime=true")
}

func TestLoad_RejectsBadValues(t *testing.T) {
	t.Setenv("PROPDESK_ESCALATION_WORKERS", "0")
	_, err := Load("")
	assert.Error(t, err)
}
