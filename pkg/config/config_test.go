package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/edgeflare/pgcrud/pkg/entity"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
rest:
  listenAddr: ":9090"
  baseURL: /api
  store: memory
  cors: false
collections:
  - name: widgets
    table: widgets
    fillable: [name, price]
    cascade: [tags]
    search: [name]
    required: [name]
    relations:
      - name: tags
        kind: manyToMany
        related: tags
        pivotTable: widget_tags
        pivotForeignKey: widget_id
        pivotRelatedKey: tag_id
  - name: tags
events:
  connector: nats
  config:
    servers: nats://localhost:4222
    subjectPrefix: shop
metrics:
  enabled: true
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pgcrud.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, sample)

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, path, cfg.File)

	assert.Equal(t, ":9090", cfg.REST.ListenAddr)
	assert.Equal(t, "/api", cfg.REST.BaseURL)
	assert.Equal(t, StoreMemory, cfg.REST.Store)
	assert.False(t, cfg.REST.CORS)
	assert.True(t, cfg.REST.Introspect)
	assert.Equal(t, 30*time.Second, cfg.REST.PG.ConnectTimeout)

	require.Len(t, cfg.Collections, 2)
	widgets := cfg.Collections[0]
	assert.Equal(t, "widgets", widgets.Name)
	assert.Equal(t, []string{"name", "price"}, widgets.Fillable)
	assert.Equal(t, []string{"name"}, widgets.Required)
	require.Len(t, widgets.Relations, 1)
	assert.Equal(t, "manyToMany", widgets.Relations[0].Kind)
	assert.Equal(t, "widget_tags", widgets.Relations[0].PivotTable)
	assert.Nil(t, cfg.Collections[1].Fillable)

	assert.Equal(t, "nats", cfg.Events.Connector)
	assert.Equal(t, "nats://localhost:4222", cfg.Events.Config["servers"])

	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, ":9100", cfg.Metrics.Addr)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)

	require.NoError(t, cfg.Validate())
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "collections: [{name: tags}]\n"), nil)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.REST.ListenAddr)
	assert.Equal(t, StorePostgres, cfg.REST.Store)
	assert.True(t, cfg.REST.CORS)
	assert.Equal(t, "none", cfg.Events.Connector)
	assert.False(t, cfg.Metrics.Enabled)

	assert.EqualError(t, cfg.Validate(), "rest.pg.connString is required with the postgres store")
}

func TestLoadPrecedence(t *testing.T) {
	path := writeConfig(t, sample)
	t.Setenv("PGCRUD_REST_LISTENADDR", ":7070")
	t.Setenv("PGCRUD_REST_PG_CONNSTRING", "postgres://env")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("rest.baseURL", "", "")
	flags.String("rest.store", "", "")
	require.NoError(t, flags.Parse([]string{"--rest.baseURL=/v2"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.REST.ListenAddr, "env overrides the file")
	assert.Equal(t, "postgres://env", cfg.REST.PG.ConnString)
	assert.Equal(t, "/v2", cfg.REST.BaseURL, "changed flags override the file")
	assert.Equal(t, StoreMemory, cfg.REST.Store, "unchanged flags do not")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name: "memory",
			cfg:  Config{REST: RESTConfig{Store: StoreMemory}, Collections: sampleCollections()},
		},
		{
			name:    "unknown store",
			cfg:     Config{REST: RESTConfig{Store: "sqlite"}, Collections: sampleCollections()},
			wantErr: `rest.store: unknown store "sqlite" (want postgres or memory)`,
		},
		{
			name:    "no collections",
			cfg:     Config{REST: RESTConfig{Store: StoreMemory}},
			wantErr: "no collections configured",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}

func sampleCollections() []entity.Definition {
	return []entity.Definition{{Name: "tags"}}
}
