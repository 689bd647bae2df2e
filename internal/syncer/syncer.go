// Package syncer orchestrates one sync run: watermark read, fetch,
// email reconciliation, batched upserts, watermark write.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/genos-program/airtable-supabase-sync/internal/airtable"
	"github.com/genos-program/airtable-supabase-sync/internal/transform"
)

var ErrBatchUpsert = errors.New("batch upsert failed")

// Source yields all records, optionally filtered by modification
// time.
type Source interface {
	FetchAll(ctx context.Context, since *time.Time) ([]airtable.Record, error)
}

// Store is the slice of the destination the coordinator needs.
type Store interface {
	Columns(ctx context.Context, table string) []string
	UpsertRows(ctx context.Context, table string, batch []map[string]any) error
	LastSync(ctx context.Context, table string) (*time.Time, error)
	SetLastSync(ctx context.Context, table string, ts time.Time) error
	MappingTableExists(ctx context.Context) bool
}

// Reconciler auto-matches airtable emails to auth accounts.
type Reconciler interface {
	Reconcile(ctx context.Context, emails []string) (int, error)
}

// Syncer runs one sync of one table. Concurrent runs against the
// same table are unsafe; the scheduler must serialize invocations.
type Syncer struct {
	source     Source
	store      Store
	reconciler Reconciler
	mapper     *transform.Mapper
	table      string
	batchSize  int
	logger     *zap.Logger
	now        func() time.Time
}

func New(source Source, store Store, reconciler Reconciler, mapper *transform.Mapper,
	table string, batchSize int, logger *zap.Logger) *Syncer {
	return &Syncer{
		source:     source,
		store:      store,
		reconciler: reconciler,
		mapper:     mapper,
		table:      table,
		batchSize:  batchSize,
		logger:     logger.With(zap.String("component", "syncer"), zap.String("table", table)),
		now:        time.Now,
	}
}

// Run executes one sync. Batches apply in fetch order; a batch
// failure aborts the rest of the run and the watermark stays put, so
// the next run re-fetches everything since the old watermark. Every
// batch upsert is idempotent on airtable_id, making the whole run
// safe to retry.
func (s *Syncer) Run(ctx context.Context) error {
	startedAt := s.now().UTC()
	s.logger.Info("starting sync", zap.Time("started_at", startedAt))

	since, err := s.store.LastSync(ctx, s.table)
	if err != nil {
		return fmt.Errorf("reading watermark: %w", err)
	}
	if since != nil {
		s.logger.Info("incremental sync", zap.Time("last_sync", *since))
	} else {
		s.logger.Info("no previous sync found, will sync all records")
	}

	records, err := s.source.FetchAll(ctx, since)
	if err != nil {
		return fmt.Errorf("fetching records: %w", err)
	}
	s.logger.Info("fetched records", zap.Int("count", len(records)))

	s.reconcileEmails(ctx, records)

	if len(records) > 0 {
		cols := make(map[string]struct{})
		for _, c := range s.store.Columns(ctx, s.table) {
			cols[c] = struct{}{}
		}

		for i, batch := range partition(records, s.batchSize) {
			rows := make([]map[string]any, len(batch))
			for j, rec := range batch {
				rows[j] = s.mapper.Transform(rec, cols, startedAt)
			}
			if err := s.store.UpsertRows(ctx, s.table, rows); err != nil {
				s.logger.Error("batch upsert failed, aborting run",
					zap.Int("batch", i), zap.Int("batch_size", len(batch)), zap.Error(err))
				return fmt.Errorf("%w: batch %d (%d rows): %v", ErrBatchUpsert, i, len(batch), err)
			}
			s.logger.Info("upserted batch", zap.Int("batch", i), zap.Int("rows", len(rows)))
		}
	} else {
		s.logger.Info("no new records to sync")
	}

	// run start time, not completion time: records modified while the
	// run was in flight stay inside the next incremental window
	if err := s.store.SetLastSync(ctx, s.table, startedAt); err != nil {
		return fmt.Errorf("writing watermark: %w", err)
	}
	s.logger.Info("sync completed",
		zap.Duration("elapsed", s.now().Sub(startedAt)), zap.Int("records", len(records)))
	return nil
}

// reconcileEmails is best-effort: a reconciliation failure never
// blocks the row sync that follows.
func (s *Syncer) reconcileEmails(ctx context.Context, records []airtable.Record) {
	if !s.store.MappingTableExists(ctx) {
		s.logger.Warn("user_mappings table missing or unreadable, continuing with sync only")
		return
	}
	emails := airtable.Emails(records)
	s.logger.Info("collected unique airtable emails", zap.Int("count", len(emails)))

	created, err := s.reconciler.Reconcile(ctx, emails)
	if err != nil {
		s.logger.Error("email reconciliation failed, continuing with sync", zap.Error(err))
		return
	}
	if created > 0 {
		s.logger.Info("created automatic email mappings", zap.Int("count", created))
	}
}

// partition splits records into fixed-size batches, preserving fetch
// order; the final batch holds the remainder.
func partition(records []airtable.Record, size int) [][]airtable.Record {
	if size <= 0 {
		size = len(records)
	}
	var out [][]airtable.Record
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		out = append(out, records[start:end])
	}
	return out
}
