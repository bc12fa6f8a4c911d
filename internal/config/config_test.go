package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFrom_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
database:
  driver: sqlite
  name: crud6
connections:
  reporting_db:
    name: reports
auth:
  roles:
    editor: ["read.*", "update.products"]
`), 0o644))

	t.Setenv("CRUD6_SCHEMA_NAMESPACE", "tenant")

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "tenant", cfg.Schema.Namespace)
	assert.Equal(t, "./data", cfg.Database.Path)
	assert.Equal(t, "sqlite", cfg.Connections["reporting_db"].Driver)
	assert.Equal(t, []string{"read.*", "update.products"}, cfg.Auth.Roles["editor"])
	assert.Equal(t, "admin", cfg.Auth.AdminRole)
}

func TestLoadFrom_MissingExplicitFile(t *testing.T) {
	_, err := LoadFrom(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	cases := []struct {
		cfg  DatabaseConfig
		want string
	}{
		{DatabaseConfig{Driver: "sqlite", Name: ":memory:"}, ":memory:"},
		{DatabaseConfig{Driver: "sqlite", Path: "data", Name: "app"}, filepath.Join("data", "app.db")},
		{DatabaseConfig{Driver: "mysql", User: "u", Password: "p", Host: "h", Port: 3306, Name: "db"}, "u:p@tcp(h:3306)/db?parseTime=true"},
		{DatabaseConfig{Driver: "postgres", User: "u", Password: "p@ss", Host: "h", Port: 5432, Name: "db"}, "postgres://u:p%40ss@h:5432/db?sslmode=disable"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, c.cfg.DSN(), c.cfg.Driver)
	}
}
