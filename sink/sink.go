// Package sink persists record collections keyed by group key
package sink

import (
	"context"
	"errors"
	"fmt"

	"rnav-scraper/models"
)

// Sink is durable storage for the records of each group
type Sink interface {
	AppendRecords(ctx context.Context, groupKey string, records []models.Record) error
	// LoadLatest returns the stored records of a group; an unknown group yields none
	LoadLatest(ctx context.Context, groupKey string) ([]models.Record, error)
	Overwrite(ctx context.Context, groupKey string, records []models.Record) error
}

// Fanout writes to every sink and reads from the first one
type Fanout struct {
	sinks []Sink
}

// NewFanout combines sinks; the first is authoritative for LoadLatest
func NewFanout(primary Sink, others ...Sink) *Fanout {
	return &Fanout{sinks: append([]Sink{primary}, others...)}
}

func (f *Fanout) AppendRecords(ctx context.Context, groupKey string, records []models.Record) error {
	var errs []error
	for i, s := range f.sinks {
		if err := s.AppendRecords(ctx, groupKey, records); err != nil {
			errs = append(errs, fmt.Errorf("sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

func (f *Fanout) LoadLatest(ctx context.Context, groupKey string) ([]models.Record, error) {
	return f.sinks[0].LoadLatest(ctx, groupKey)
}

func (f *Fanout) Overwrite(ctx context.Context, groupKey string, records []models.Record) error {
	var errs []error
	for i, s := range f.sinks {
		if err := s.Overwrite(ctx, groupKey, records); err != nil {
			errs = append(errs, fmt.Errorf("sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
