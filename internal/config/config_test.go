package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("AIRTABLE_API_KEY", "key")
	t.Setenv("AIRTABLE_BASE_ID", "appXYZ")
	t.Setenv("SUPABASE_DB_URL", "postgres://postgres:pw@db.example.supabase.co:5432/postgres")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "Weight Logs", cfg.AirtableTableName)
	assert.Equal(t, "weight_logs", cfg.SupabaseTableName)
	assert.Equal(t, "auth.users", cfg.AuthUsersTable)
	assert.Equal(t, 100, cfg.SyncBatchSize)
	assert.Equal(t, 10, cfg.MappingBatchSize)
	assert.Equal(t, 500*time.Millisecond, cfg.MappingBatchPause)
	assert.Equal(t, MappingCurated, cfg.FieldMapping)
	assert.Equal(t, CellFormatJSON, cfg.CellFormat)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
}

func TestLoadMissingRequired(t *testing.T) {
	t.Setenv("AIRTABLE_API_KEY", "")
	t.Setenv("AIRTABLE_BASE_ID", "appXYZ")
	t.Setenv("SUPABASE_DB_URL", "")

	_, err := Load()
	require.ErrorIs(t, err, ErrMissingConfig)
	assert.Contains(t, err.Error(), "AIRTABLE_API_KEY")
	assert.Contains(t, err.Error(), "SUPABASE_DB_URL")
	assert.NotContains(t, err.Error(), "AIRTABLE_BASE_ID")
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("AIRTABLE_TABLE_NAME", "Client Logs")
	t.Setenv("SUPABASE_TABLE_NAME", "client_logs")
	t.Setenv("SYNC_BATCH_SIZE", "50")
	t.Setenv("FIELD_MAPPING", "generic")
	t.Setenv("CELL_FORMAT", "string")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "Client Logs", cfg.AirtableTableName)
	assert.Equal(t, "client_logs", cfg.SupabaseTableName)
	assert.Equal(t, 50, cfg.SyncBatchSize)
	assert.Equal(t, MappingGeneric, cfg.FieldMapping)
	assert.Equal(t, CellFormatString, cfg.CellFormat)
}

func TestLoadRejectsBadStrategy(t *testing.T) {
	setRequired(t)
	t.Setenv("FIELD_MAPPING", "clever")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FIELD_MAPPING")
}

func TestLoadRejectsBadBatchSize(t *testing.T) {
	setRequired(t)
	t.Setenv("SYNC_BATCH_SIZE", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SYNC_BATCH_SIZE")
}
