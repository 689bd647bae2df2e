// Package airtable reads records out of an Airtable table, one page
// at a time, until the API stops returning a continuation offset.
package airtable

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	air "github.com/mehanizm/airtable"
	"go.uber.org/zap"

	"github.com/genos-program/airtable-supabase-sync/internal/config"
)

// Airtable allows 5 requests per second per base.
const requestsPerSecond = 4

var ErrSourceUnavailable = errors.New("airtable unavailable")

// Record is one row fetched from Airtable. Fields values are JSON
// scalars or lists of strings; immutable once fetched.
type Record struct {
	ID     string
	Fields map[string]any
}

// pager fetches one page of records. It exists so pagination and the
// filter fallback can be exercised without the network.
type pager interface {
	page(ctx context.Context, formula, offset string) (*air.Records, error)
}

type tablePager struct {
	table        *air.Table
	stringFormat bool
	timezone     string
	locale       string
}

func (p *tablePager) page(ctx context.Context, formula, offset string) (*air.Records, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg := p.table.GetRecords()
	if formula != "" {
		cfg = cfg.WithFilterFormula(formula)
	}
	if offset != "" {
		cfg = cfg.WithOffset(offset)
	}
	if p.stringFormat {
		cfg = cfg.InStringFormat(p.timezone, p.locale)
	}
	return cfg.Do()
}

// Client reads all records from one Airtable table.
type Client struct {
	pager  pager
	logger *zap.Logger
}

func NewClient(cfg *config.Config, logger *zap.Logger) *Client {
	ac := air.NewClient(cfg.AirtableAPIKey)
	ac.SetRateLimit(requestsPerSecond)
	ac.SetCustomClient(&http.Client{Timeout: cfg.HTTPTimeout})

	return &Client{
		pager: &tablePager{
			table:        ac.GetTable(cfg.AirtableBaseID, cfg.AirtableTableName),
			stringFormat: cfg.CellFormat == config.CellFormatString,
			timezone:     cfg.Timezone,
			locale:       cfg.Locale,
		},
		logger: logger.With(zap.String("component", "airtable")),
	}
}

// FetchAll returns every record in the table, materialized. When
// since is non-nil the request is filtered server-side on
// modification time; if that filtered fetch fails the whole table is
// fetched instead, trading precision for availability.
func (c *Client) FetchAll(ctx context.Context, since *time.Time) ([]Record, error) {
	if since != nil {
		formula := fmt.Sprintf("LAST_MODIFIED_TIME() > '%s'", since.UTC().Format(time.RFC3339))
		records, err := c.fetchPages(ctx, formula)
		if err == nil {
			return records, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		c.logger.Warn("filtered fetch failed, falling back to full fetch",
			zap.String("formula", formula), zap.Error(err))
	}
	return c.fetchPages(ctx, "")
}

func (c *Client) fetchPages(ctx context.Context, formula string) ([]Record, error) {
	var all []Record
	offset := ""
	for {
		page, err := c.pager.page(ctx, formula, offset)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
		}
		for _, r := range page.Records {
			if r.Deleted {
				continue
			}
			all = append(all, Record{ID: r.ID, Fields: r.Fields})
		}
		c.logger.Debug("fetched page",
			zap.Int("records", len(page.Records)), zap.Int("total", len(all)))
		if page.Offset == "" {
			return all, nil
		}
		offset = page.Offset
	}
}

// Emails returns the unique email-like values across records,
// flattening list-valued Email fields (a row can hold several).
func Emails(records []Record) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(v string) {
		if v == "" {
			return
		}
		if _, ok := seen[v]; ok {
			return
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	for _, r := range records {
		switch v := r.Fields["Email"].(type) {
		case string:
			add(v)
		case []string:
			for _, e := range v {
				add(e)
			}
		case []any:
			for _, e := range v {
				if s, ok := e.(string); ok {
					add(s)
				}
			}
		}
	}
	return out
}
