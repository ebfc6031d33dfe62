// Package correction lets an operator repair email addresses the normalizer
// rejected, after the records have been persisted.
package correction

import (
	"context"
	"fmt"

	"rnav-scraper/models"
	"rnav-scraper/sink"

	"go.uber.org/zap"
)

// JoinKey selects how a rejection is matched to persisted records
type JoinKey string

const (
	// JoinByName matches every persisted record with the same name
	JoinByName JoinKey = "name"
	// JoinByID matches the single record the rejection came from
	JoinByID JoinKey = "id"
)

// ParseJoinKey validates a configured join key
func ParseJoinKey(s string) (JoinKey, error) {
	switch JoinKey(s) {
	case JoinByName, JoinByID:
		return JoinKey(s), nil
	case "":
		return JoinByName, nil
	default:
		return "", fmt.Errorf("unknown join key %q (want %q or %q)", s, JoinByName, JoinByID)
	}
}

func (k JoinKey) ofRejection(r models.RejectedEmail) string {
	if k == JoinByID {
		return r.RecordID
	}
	return r.RecordName
}

func (k JoinKey) ofRecord(r models.Record) string {
	if k == JoinByID {
		return r.ID
	}
	return r.Name
}

// Result is the outcome of one reconciliation
type Result struct {
	Records    []models.Record
	Corrected  int // persisted records whose email changed
	Resolved   []models.RejectedEmail
	Unresolved []models.RejectedEmail
}

// Reconcile asks once per distinct join key for a replacement and writes
// accepted answers, unvalidated, into every matching persisted record.
// The input slice is not modified.
func Reconcile(ctx context.Context, rejections []models.RejectedEmail, persisted []models.Record, joinBy JoinKey, p Prompter) (*Result, error) {
	res := &Result{Records: append([]models.Record(nil), persisted...)}

	var order []string
	byKey := make(map[string][]models.RejectedEmail)
	for _, r := range rejections {
		key := joinBy.ofRejection(r)
		if _, ok := byKey[key]; !ok {
			order = append(order, key)
		}
		byKey[key] = append(byKey[key], r)
	}

	for i, key := range order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		group := byKey[key]
		first := group[0]

		answer, err := p.Prompt(ctx, Question{
			Index:      i + 1,
			Total:      len(order),
			RecordName: first.RecordName,
			RawValue:   first.RawValue,
		})
		if err != nil {
			return nil, fmt.Errorf("prompt for %q: %w", first.RecordName, err)
		}
		if answer == "" {
			res.Unresolved = append(res.Unresolved, group...)
			continue
		}

		matched := false
		for j := range res.Records {
			if joinBy.ofRecord(res.Records[j]) != key {
				continue
			}
			matched = true
			if res.Records[j].Email != answer {
				res.Records[j].Email = answer
				res.Corrected++
			}
		}
		if !matched {
			res.Unresolved = append(res.Unresolved, group...)
			continue
		}
		res.Resolved = append(res.Resolved, group...)
	}
	return res, nil
}

// Workflow applies a run's rejections to the group's persisted dataset
type Workflow struct {
	sink     sink.Sink
	prompter Prompter
	joinBy   JoinKey
	logger   *zap.SugaredLogger
}

func NewWorkflow(s sink.Sink, p Prompter, joinBy JoinKey, logger *zap.SugaredLogger) *Workflow {
	return &Workflow{sink: s, prompter: p, joinBy: joinBy, logger: logger}
}

// Run reloads the group, reconciles and overwrites it when anything changed
func (w *Workflow) Run(ctx context.Context, groupKey string, rejections []models.RejectedEmail) (*Result, error) {
	if len(rejections) == 0 {
		w.logger.Info("No invalid emails to correct")
		return &Result{}, nil
	}

	persisted, err := w.sink.LoadLatest(ctx, groupKey)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", groupKey, err)
	}
	if len(persisted) == 0 {
		w.logger.Warnf("No persisted dataset for %s, nothing to update", groupKey)
		return &Result{Unresolved: rejections}, nil
	}

	res, err := Reconcile(ctx, rejections, persisted, w.joinBy, w.prompter)
	if err != nil {
		return nil, err
	}

	if res.Corrected == 0 {
		w.logger.Info("No corrections applied")
		return res, nil
	}
	if err := w.sink.Overwrite(ctx, groupKey, res.Records); err != nil {
		return nil, fmt.Errorf("save corrections for %s: %w", groupKey, err)
	}
	w.logger.Infof("Updated %d records in %s", res.Corrected, groupKey)
	return res, nil
}
