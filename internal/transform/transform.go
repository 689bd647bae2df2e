// Package transform converts Airtable records into rows for the
// destination table.
package transform

import (
	"strconv"
	"strings"
	"time"

	"github.com/genos-program/airtable-supabase-sync/internal/airtable"
	"github.com/genos-program/airtable-supabase-sync/internal/config"
)

type kind int

const (
	kindText kind = iota
	kindFloat
	kindInt
)

// rule maps one destination column to the Airtable field names that
// feed it. Older table layouts used different field names for the
// same column; the first source present on a record wins.
type rule struct {
	column  string
	kind    kind
	sources []string
}

var curatedRules = []rule{
	{column: "email", sources: []string{"Email"}},
	{column: "day_of_program", sources: []string{"Day of the Program"}},
	{column: "weight_recorded", kind: kindFloat, sources: []string{"Weight Recorded", "Weight"}},
	{column: "bp_systolic", kind: kindInt, sources: []string{"BP Systolic"}},
	{column: "bp_diastolic", kind: kindInt, sources: []string{"BP Diastolic"}},
	{column: "blood_sugar", kind: kindFloat, sources: []string{"Blood Sugar"}},
	{column: "deviation", sources: []string{"Deviation"}},
	{column: "supplement_introduced", sources: []string{"Supplement Introduced"}},
	{column: "body_physiology", sources: []string{"Body Physiology"}},
	{column: "symptoms_observed", sources: []string{"Symptoms Observed"}},
	{column: "tolerant_intolerant", sources: []string{"Tolerant/Intolerant", "Tolerance Status"}},
	{column: "chest", kind: kindFloat, sources: []string{"Chest"}},
	{column: "waist", kind: kindFloat, sources: []string{"Waist"}},
	{column: "hips", kind: kindFloat, sources: []string{"Hips"}},
	{column: "tolerant_food_items", sources: []string{"Tolerant Food Items", "Tolerant Foods"}},
	{column: "intolerant_food_items", sources: []string{"Intolerant Food Items"}},
	{column: "comments", sources: []string{"Comments"}},
	{column: "phase_of_program", sources: []string{"Phase of the Program"}},
	{column: "reason_for_diagnosing_tolerant", sources: []string{"Reason For Diagnosing Tolerant"}},
	{column: "client_name", sources: []string{"Client Name"}},
	{column: "food_item_introduced", sources: []string{"Food Item Introduced (Genos)", "Food Item"}},
	{column: "first_name", sources: []string{"First Name"}},
	{column: "last_name", sources: []string{"Last Name"}},
}

// Mapper applies one of the two field-naming strategies. The
// strategy is fixed by configuration, never inferred from data.
type Mapper struct {
	generic bool
}

func NewMapper(strategy string) *Mapper {
	return &Mapper{generic: strategy == config.MappingGeneric}
}

// Transform builds the destination row for one record. Columns
// absent from cols are dropped so a narrower destination table never
// causes an insert error. It never fails: unparseable numeric values
// become nulls.
func (m *Mapper) Transform(rec airtable.Record, cols map[string]struct{}, syncedAt time.Time) map[string]any {
	row := make(map[string]any)

	if m.generic {
		for name, value := range rec.Fields {
			col := snakeCase(name)
			if _, ok := cols[col]; !ok {
				continue
			}
			row[col] = scalar(value)
		}
	} else {
		for _, r := range curatedRules {
			if _, ok := cols[r.column]; !ok {
				continue
			}
			var value any
			for _, src := range r.sources {
				if v, ok := rec.Fields[src]; ok {
					value = v
					break
				}
			}
			row[r.column] = coerce(scalar(value), r.kind)
		}
	}

	if _, ok := cols["airtable_id"]; ok {
		row["airtable_id"] = rec.ID
	}
	if _, ok := cols["last_synced"]; ok {
		row["last_synced"] = syncedAt.UTC()
	}
	return row
}

// scalar collapses list values to their first element; every
// destination column is scalar.
func scalar(v any) any {
	switch list := v.(type) {
	case []string:
		if len(list) == 0 {
			return nil
		}
		return list[0]
	case []any:
		if len(list) == 0 {
			return nil
		}
		return list[0]
	}
	return v
}

// coerce parses numeric columns best-effort; anything unparseable or
// absent becomes null rather than an error.
func coerce(v any, k kind) any {
	if v == nil {
		return nil
	}
	switch k {
	case kindFloat:
		switch n := v.(type) {
		case float64:
			return n
		case int:
			return float64(n)
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
			if err != nil {
				return nil
			}
			return f
		default:
			return nil
		}
	case kindInt:
		switch n := v.(type) {
		case float64:
			return int64(n)
		case int:
			return int64(n)
		case string:
			i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
			if err != nil {
				return nil
			}
			return i
		default:
			return nil
		}
	}
	return v
}

// snakeCase is the generic transliteration: lowercase with spaces
// and dashes turned into underscores.
func snakeCase(name string) string {
	s := strings.ToLower(name)
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "-", "_")
	return s
}
