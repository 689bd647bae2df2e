// Package config loads the sync tool's configuration from the
// environment into a single value passed to every component.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Field-mapping strategies. Curated uses the hand-maintained
// human-readable-to-snake_case table; generic transliterates every
// source field name with no curation.
const (
	MappingCurated = "curated"
	MappingGeneric = "generic"
)

// Cell formats for Airtable fetches. String format asks the API to
// render linked records and selects as display strings.
const (
	CellFormatJSON   = "json"
	CellFormatString = "string"
)

var ErrMissingConfig = errors.New("missing required configuration")

// Config is built once at startup; components never read the
// environment directly.
type Config struct {
	AirtableAPIKey    string
	AirtableBaseID    string
	AirtableTableName string

	SupabaseDBURL     string
	SupabaseTableName string
	AuthUsersTable    string

	SyncBatchSize     int
	MappingBatchSize  int
	MappingBatchPause time.Duration

	FieldMapping string
	CellFormat   string
	Timezone     string
	Locale       string

	HTTPTimeout time.Duration
}

// Load reads the environment and validates required values. A missing
// credential or identifier is a startup error, not a runtime one.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("AIRTABLE_TABLE_NAME", "Weight Logs")
	v.SetDefault("SUPABASE_TABLE_NAME", "weight_logs")
	v.SetDefault("AUTH_USERS_TABLE", "auth.users")
	v.SetDefault("SYNC_BATCH_SIZE", 100)
	v.SetDefault("MAPPING_BATCH_SIZE", 10)
	v.SetDefault("MAPPING_BATCH_PAUSE", "500ms")
	v.SetDefault("FIELD_MAPPING", MappingCurated)
	v.SetDefault("CELL_FORMAT", CellFormatJSON)
	v.SetDefault("AIRTABLE_TIMEZONE", "America/New_York")
	v.SetDefault("AIRTABLE_LOCALE", "en-us")
	v.SetDefault("HTTP_TIMEOUT", "30s")

	cfg := &Config{
		AirtableAPIKey:    v.GetString("AIRTABLE_API_KEY"),
		AirtableBaseID:    v.GetString("AIRTABLE_BASE_ID"),
		AirtableTableName: v.GetString("AIRTABLE_TABLE_NAME"),
		SupabaseDBURL:     v.GetString("SUPABASE_DB_URL"),
		SupabaseTableName: v.GetString("SUPABASE_TABLE_NAME"),
		AuthUsersTable:    v.GetString("AUTH_USERS_TABLE"),
		SyncBatchSize:     v.GetInt("SYNC_BATCH_SIZE"),
		MappingBatchSize:  v.GetInt("MAPPING_BATCH_SIZE"),
		MappingBatchPause: v.GetDuration("MAPPING_BATCH_PAUSE"),
		FieldMapping:      strings.ToLower(v.GetString("FIELD_MAPPING")),
		CellFormat:        strings.ToLower(v.GetString("CELL_FORMAT")),
		Timezone:          v.GetString("AIRTABLE_TIMEZONE"),
		Locale:            v.GetString("AIRTABLE_LOCALE"),
		HTTPTimeout:       v.GetDuration("HTTP_TIMEOUT"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DatabaseURL reads only the destination connection string, for
// commands that never touch Airtable.
func DatabaseURL() (string, error) {
	v := viper.New()
	v.AutomaticEnv()
	url := v.GetString("SUPABASE_DB_URL")
	if url == "" {
		return "", fmt.Errorf("%w: SUPABASE_DB_URL", ErrMissingConfig)
	}
	return url, nil
}

func (c *Config) validate() error {
	var missing []string
	if c.AirtableAPIKey == "" {
		missing = append(missing, "AIRTABLE_API_KEY")
	}
	if c.AirtableBaseID == "" {
		missing = append(missing, "AIRTABLE_BASE_ID")
	}
	if c.SupabaseDBURL == "" {
		missing = append(missing, "SUPABASE_DB_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingConfig, strings.Join(missing, ", "))
	}

	switch c.FieldMapping {
	case MappingCurated, MappingGeneric:
	default:
		return fmt.Errorf("FIELD_MAPPING must be %q or %q, got %q",
			MappingCurated, MappingGeneric, c.FieldMapping)
	}
	switch c.CellFormat {
	case CellFormatJSON, CellFormatString:
	default:
		return fmt.Errorf("CELL_FORMAT must be %q or %q, got %q",
			CellFormatJSON, CellFormatString, c.CellFormat)
	}

	if c.SyncBatchSize <= 0 {
		return fmt.Errorf("SYNC_BATCH_SIZE must be positive, got %d", c.SyncBatchSize)
	}
	if c.MappingBatchSize <= 0 {
		return fmt.Errorf("MAPPING_BATCH_SIZE must be positive, got %d", c.MappingBatchSize)
	}
	return nil
}
