package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.toml"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreDriverMySQL, cfg.Store.Driver)
	assert.Equal(t, int64(5<<20), cfg.Workflow.MaxFileBytes)
	assert.Equal(t, 100, cfg.Workflow.TitleMaxRunes)
	assert.Equal(t, "workflow.run", cfg.RabbitMQ.WorkflowQueue)
	assert.Equal(t, "0.0.0.0:8080", cfg.HTTPAddr())
}

func TestLoadReadsTOMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[app]
port = 9090

[store]
driver = "mongo"

[mongo]
database = "from_file"

[workflow]
max_file_bytes = 1024
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("MONGO_DATABASE", "from_env")
	t.Setenv("CORS_ALLOW_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.App.Port)
	assert.Equal(t, StoreDriverMongo, cfg.Store.Driver)
	assert.Equal(t, "from_env", cfg.Mongo.Database)
	assert.Equal(t, int64(1024), cfg.Workflow.MaxFileBytes)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowOrigins)
}

func TestLoadRejectsUnknownStoreDriver(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.toml"))
	t.Setenv("STORE_DRIVER", "firestore")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "firestore")
}

func TestMySQLDSN(t *testing.T) {
	cfg := defaultConfig()
	cfg.MySQL.Password = "secret"
	assert.Equal(t, "root:secret@tcp(127.0.0.1:3306)/docinsight?parseTime=true&loc=Local&charset=utf8mb4", cfg.MySQLDSN())
}
