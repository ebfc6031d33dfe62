package filter

import (
	"strings"

	"rnav-scraper/config"
	"rnav-scraper/models"
)

// Filter applies filter criteria to records before they are persisted
type Filter struct {
	cfg config.FilterConfig
}

// NewFilter creates a new Filter instance
func NewFilter(cfg config.FilterConfig) *Filter {
	return &Filter{
		cfg: cfg,
	}
}

// ApplyFilters returns the records that pass every enabled criterion, in order.
// A record with a pending email rejection still counts as having contact
// data, so a later correction has a record to land on.
func (f *Filter) ApplyFilters(records []models.Record, pending ...models.RejectedEmail) []models.Record {
	var filtered []models.Record
	seen := make(map[string]bool)
	rejected := make(map[string]bool, len(pending))
	for _, p := range pending {
		rejected[p.RecordID] = true
	}

	for _, r := range records {
		if f.cfg.RequireContact && r.Phone == "" && r.Email == "" && !rejected[r.ID] {
			continue
		}
		if f.cfg.Dedupe {
			key := dedupeKey(r)
			if seen[key] {
				continue
			}
			seen[key] = true
		}
		filtered = append(filtered, r)
	}

	return filtered
}

// dedupeKey identifies a listing regardless of its generated id.
// The directory repeats an agency when it has several branches on one page.
func dedupeKey(r models.Record) string {
	return strings.Join([]string{
		strings.ToLower(strings.TrimSpace(r.Name)),
		strings.TrimSpace(r.Phone),
		r.Email,
		strings.ToLower(strings.TrimSpace(r.Locality)),
	}, "\x1f")
}
