// Package mapping auto-matches Airtable email identities against
// existing auth accounts and records the result in user_mappings.
package mapping

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

var ErrReconciliation = errors.New("email reconciliation failed")

// Directory is the slice of the destination store the reconciler
// needs.
type Directory interface {
	ExistingMappings(ctx context.Context) (map[string]string, error)
	LookupAuthEmail(ctx context.Context, email string) (string, bool, error)
	InsertMapping(ctx context.Context, airtableEmail, authEmail string) error
}

// Reconciler looks up unknown emails in bounded batches with a pause
// between batches, keeping under the backend's rate limits.
type Reconciler struct {
	dir       Directory
	batchSize int
	pause     time.Duration
	logger    *zap.Logger
}

func NewReconciler(dir Directory, batchSize int, pause time.Duration, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		dir:       dir,
		batchSize: batchSize,
		pause:     pause,
		logger:    logger.With(zap.String("component", "mapping")),
	}
}

// Reconcile creates auto-matched mappings for emails that exist as
// auth accounts and have no mapping yet. An email with any existing
// mapping row is never touched: first match wins, no merges. Returns
// the number of mappings created.
func (r *Reconciler) Reconcile(ctx context.Context, emails []string) (int, error) {
	if len(emails) == 0 {
		r.logger.Info("no airtable emails to reconcile")
		return 0, nil
	}

	existing, err := r.dir.ExistingMappings(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrReconciliation, err)
	}
	r.logger.Info("loaded existing email mappings", zap.Int("count", len(existing)))

	// stable order so batch boundaries are reproducible
	sorted := append([]string(nil), emails...)
	sort.Strings(sorted)

	created := 0
	for start := 0; start < len(sorted); start += r.batchSize {
		end := start + r.batchSize
		if end > len(sorted) {
			end = len(sorted)
		}
		for _, email := range sorted[start:end] {
			if _, ok := existing[email]; ok {
				continue
			}
			authEmail, found, err := r.dir.LookupAuthEmail(ctx, email)
			if err != nil {
				r.logger.Warn("auth account lookup failed",
					zap.String("email", email), zap.Error(err))
				continue
			}
			if !found {
				// left for manual mapping
				continue
			}
			if err := r.dir.InsertMapping(ctx, email, authEmail); err != nil {
				r.logger.Warn("mapping insert failed",
					zap.String("email", email), zap.Error(err))
				continue
			}
			existing[email] = authEmail
			created++
			r.logger.Info("created automatic mapping", zap.String("email", email))
		}

		if end < len(sorted) {
			if err := sleep(ctx, r.pause); err != nil {
				return created, fmt.Errorf("%w: %v", ErrReconciliation, err)
			}
		}
	}

	r.logger.Info("email mapping update completed",
		zap.Int("processed", len(sorted)), zap.Int("created", created))
	return created, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
