// Package supabase is the destination store: the synced table, the
// user_mappings table, and the sync_metadata watermark, all reached
// over a direct Postgres connection to the Supabase database.
package supabase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/genos-program/airtable-supabase-sync/internal/config"
)

// ConflictColumn keys every upsert into the synced table.
const ConflictColumn = "airtable_id"

// FallbackColumns is used when column discovery fails. Carried over
// from the previous deployment; wrong for any table other than
// weight_logs, so discovery failure is always logged loudly.
var FallbackColumns = []string{
	"day_of_program", "deviation", "intolerant_food_items", "chest",
	"food_item_introduced", "phase_of_program", "blood_sugar", "email",
	"last_synced", "bp_systolic", "last_name", "tolerant_food_items",
	"bp_diastolic", "symptoms_observed", "comments", "client_name",
	"waist", "tolerant_intolerant", "supplement_introduced", "airtable_id",
	"first_name", "reason_for_diagnosing_tolerant", "weight_recorded",
	"hips", "body_physiology",
}

var ErrNoRowsToUpsert = errors.New("no rows to upsert")

// Store wraps the connection pool. All methods impose the configured
// timeout; transport expiry surfaces as an ordinary query error.
type Store struct {
	pool           *pgxpool.Pool
	authUsersTable string
	timeout        time.Duration
	logger         *zap.Logger
}

func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, cfg.SupabaseDBURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{
		pool:           pool,
		authUsersTable: cfg.AuthUsersTable,
		timeout:        cfg.HTTPTimeout,
		logger:         logger.With(zap.String("component", "supabase")),
	}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// ident quotes a possibly schema-qualified table name.
func ident(name string) string {
	return pgx.Identifier(strings.Split(name, ".")).Sanitize()
}

// Columns discovers the destination table's column set. Discovery
// failure falls back to the previous deployment's column list; that
// keeps a sync running against the known table but silently loses
// fields on any other, so the warning carries the table name.
func (s *Store) Columns(ctx context.Context, table string) []string {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT column_name FROM information_schema.columns
		 WHERE table_schema = 'public' AND table_name = $1`, table)
	if err != nil {
		s.logger.Warn("column discovery failed, using fallback columns",
			zap.String("table", table), zap.Error(err))
		return append([]string(nil), FallbackColumns...)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			s.logger.Warn("column discovery failed, using fallback columns",
				zap.String("table", table), zap.Error(err))
			return append([]string(nil), FallbackColumns...)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil || len(cols) == 0 {
		s.logger.Warn("column discovery returned nothing, using fallback columns",
			zap.String("table", table), zap.Error(err))
		return append([]string(nil), FallbackColumns...)
	}
	return cols
}

// UpsertRows writes one batch as a single multi-row insert keyed on
// airtable_id, overwriting the supplied columns. Rows may carry
// different column subsets; the statement covers their union with
// nulls for the gaps.
func (s *Store) UpsertRows(ctx context.Context, table string, batch []map[string]any) error {
	sql, args, err := buildUpsert(table, batch)
	if err != nil {
		return err
	}
	if sql == "" {
		// nothing beyond the conflict key, nothing to overwrite
		return nil
	}

	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	if _, err := s.pool.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("upsert into %s: %w", table, err)
	}
	return nil
}

func buildUpsert(table string, batch []map[string]any) (string, []any, error) {
	if len(batch) == 0 {
		return "", nil, ErrNoRowsToUpsert
	}

	colSet := make(map[string]struct{})
	for _, row := range batch {
		for c := range row {
			colSet[c] = struct{}{}
		}
	}
	if _, ok := colSet[ConflictColumn]; !ok {
		return "", nil, fmt.Errorf("batch rows missing %s", ConflictColumn)
	}
	cols := make([]string, 0, len(colSet))
	for c := range colSet {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(ident(table))
	sb.WriteString(" (")
	for i, c := range cols {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(pgx.Identifier{c}.Sanitize())
	}
	sb.WriteString(") VALUES ")

	args := make([]any, 0, len(batch)*len(cols))
	for i, row := range batch {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for j, c := range cols {
			if j > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", len(args)+1)
			args = append(args, row[c])
		}
		sb.WriteString(")")
	}

	sb.WriteString(" ON CONFLICT (")
	sb.WriteString(pgx.Identifier{ConflictColumn}.Sanitize())
	sb.WriteString(") DO UPDATE SET ")
	first := true
	for _, c := range cols {
		if c == ConflictColumn {
			continue
		}
		if !first {
			sb.WriteString(", ")
		}
		first = false
		q := pgx.Identifier{c}.Sanitize()
		sb.WriteString(q)
		sb.WriteString(" = EXCLUDED.")
		sb.WriteString(q)
	}
	if first {
		return "", nil, nil
	}
	return sb.String(), args, nil
}

// LastSync reads the watermark for a table; nil means no previous
// sync and the caller should fetch everything.
func (s *Store) LastSync(ctx context.Context, table string) (*time.Time, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var ts *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT last_sync FROM sync_metadata WHERE table_name = $1`, table).Scan(&ts)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading last sync time for %s: %w", table, err)
	}
	return ts, nil
}

// SetLastSync advances the watermark. Called only after every batch
// of a run has committed.
func (s *Store) SetLastSync(ctx context.Context, table string, ts time.Time) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO sync_metadata (table_name, last_sync, updated_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (table_name)
		 DO UPDATE SET last_sync = EXCLUDED.last_sync, updated_at = NOW()`,
		table, ts.UTC())
	if err != nil {
		return fmt.Errorf("updating last sync time for %s: %w", table, err)
	}
	return nil
}

// MappingTableExists reports whether user_mappings is queryable. A
// missing table skips reconciliation but never blocks the row sync.
func (s *Store) MappingTableExists(ctx context.Context) bool {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `SELECT id FROM user_mappings LIMIT 1`)
	if err != nil {
		s.logger.Warn("user_mappings table check failed", zap.Error(err))
		return false
	}
	rows.Close()
	return rows.Err() == nil
}

// ExistingMappings returns the airtable emails that already have a
// mapping row, with the auth email they map to.
func (s *Store) ExistingMappings(ctx context.Context) (map[string]string, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT airtable_email, auth_email FROM user_mappings ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("reading existing mappings: %w", err)
	}
	defer rows.Close()

	existing := make(map[string]string)
	for rows.Next() {
		var airtableEmail, authEmail string
		if err := rows.Scan(&airtableEmail, &authEmail); err != nil {
			return nil, fmt.Errorf("scanning mapping row: %w", err)
		}
		if _, ok := existing[airtableEmail]; !ok {
			existing[airtableEmail] = authEmail
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading existing mappings: %w", err)
	}
	return existing, nil
}

// LookupAuthEmail checks whether an email exists as an auth account.
func (s *Store) LookupAuthEmail(ctx context.Context, email string) (string, bool, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var found string
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT email FROM %s WHERE email = $1 LIMIT 1`, ident(s.authUsersTable)),
		email).Scan(&found)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("looking up auth account: %w", err)
	}
	return found, true, nil
}

// InsertMapping records an auto-matched identity mapping. The unique
// constraint makes a duplicate insert a no-op.
func (s *Store) InsertMapping(ctx context.Context, airtableEmail, authEmail string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_mappings (airtable_email, auth_email, auto_matched)
		 VALUES ($1, $2, TRUE)
		 ON CONFLICT (airtable_email, auth_email) DO NOTHING`,
		airtableEmail, authEmail)
	if err != nil {
		return fmt.Errorf("inserting mapping for %s: %w", airtableEmail, err)
	}
	return nil
}

// Apply runs the setup DDL directly instead of printing it.
func (s *Store) Apply(ctx context.Context, ddl string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("applying migration SQL: %w", err)
	}
	return nil
}
