package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klubi/rstore/internal/store"
)

const sampleConfig = `
server:
  port: 8080
store:
  backend: memory
  root: "app:res"
  indexLayout: string
log:
  level: debug
  format: json
resourceTypes:
  - name: developer
    required: [email]
    indexes: [email]
    sets: [developers]
    validations:
      - field: email
        kind: pattern
        pattern: "^[^@]+@[^@]+$"
        message: not an email address
  - name: application
    fields: [name, developerId]
    required: ["*"]
    sets: [applications]
    generators:
      - field: consumerKey
        kind: token
    links:
      - field: developerId
        target: developer
        set: applications
    compositeKeys:
      - name: devapp
        fields: [developerId, name]
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rstore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 7117, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1:7117", cfg.ServerAddress())
	assert.Equal(t, "bolt", cfg.Store.Backend)
	assert.Equal(t, "rstore.db", filepath.Base(cfg.DBPath()))
	require.NoError(t, cfg.Validate())
}

func TestLoadFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig), nil)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host, "unset keys keep defaults")
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, "app:res", cfg.Store.Root)
	assert.IsType(t, store.StringLayout{}, cfg.IndexLayout())
	assert.Equal(t, "json", cfg.Log.Format)

	require.Len(t, cfg.ResourceTypes, 2)
	assert.Equal(t, "developerId", cfg.ResourceTypes[1].Links[0].Field, "field names keep their case")
}

func TestLoadEnvAndFlags(t *testing.T) {
	t.Setenv("RSTORE_SERVER_HOST", "0.0.0.0")
	t.Setenv("RSTORE_REDIS_PORT", "6380")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Int("server.port", 7117, "")
	require.NoError(t, fs.Parse([]string{"--server.port=9999"}))

	cfg, err := Load(writeConfig(t, sampleConfig), fs)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 9999, cfg.Server.Port, "changed flags beat the config file")
	assert.Equal(t, 6380, cfg.Redis.Port)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store.Backend = "etcd"
	cfg.Store.IndexLayout = "btree"
	cfg.Log.Format = "xml"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "etcd")
	assert.Contains(t, err.Error(), "btree")
	assert.Contains(t, err.Error(), "xml")

	cfg = DefaultConfig()
	cfg.Store.Backend = "redis"
	cfg.Redis.Database = -1
	require.Error(t, cfg.Validate())
}

func TestBuildResourceTypes(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig), nil)
	require.NoError(t, err)

	types, err := cfg.BuildResourceTypes()
	require.NoError(t, err)
	require.Len(t, types, 2)

	dev := types["developer"]
	assert.Equal(t, []string{"email"}, dev.Indexes)
	assert.Equal(t, "id", dev.Primary)
	require.Contains(t, dev.Validations, "email")
	assert.False(t, dev.Validations["email"].Check.Validate("nope"))

	app := types["application"]
	assert.Len(t, app.Associations, 2)
	assert.Contains(t, app.Generators, "consumerKey")
	assert.Equal(t, "applications", app.ListSet())
}

func TestBuildResourceTypesErrors(t *testing.T) {
	tests := []struct {
		name  string
		types []ResourceTypeConfig
	}{
		{
			name:  "duplicate",
			types: []ResourceTypeConfig{{Name: "a"}, {Name: "a"}},
		},
		{
			name:  "unknown link target",
			types: []ResourceTypeConfig{{Name: "a", Links: []LinkConfig{{Field: "bId", Target: "b", Set: "as"}}}},
		},
		{
			name:  "bad validator",
			types: []ResourceTypeConfig{{Name: "a", Validations: []ValidationConfig{{Field: "x", Kind: "magic"}}}},
		},
		{
			name:  "wildcard without fields",
			types: []ResourceTypeConfig{{Name: "a", Required: []string{"*"}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.ResourceTypes = tt.types
			_, err := cfg.BuildResourceTypes()
			require.ErrorIs(t, err, store.ErrInvalidConfig)
		})
	}
}

func TestNewLogger(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Log.Format = "json"
	logger, err := cfg.NewLogger()
	require.NoError(t, err)
	assert.NotNil(t, logger)
}
