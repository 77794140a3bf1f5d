// Package ingestion orchestrates one run of the pipeline: fetch raw records
// from sources, screen them, transform the survivors, and append to the
// ledger. A run is idempotent; re-ingesting the same extract changes nothing.
package ingestion

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"finrep/internal/amqp"
	"finrep/internal/core"
	"finrep/internal/log"
	"finrep/internal/normalize"
	"finrep/internal/source"
	"finrep/internal/validation"
)

// Store is the persistence surface the service needs.
type Store interface {
	AppendEntries(ctx context.Context, entries []core.LedgerEntry) (int, error)
	InsertQuarantine(ctx context.Context, recs []core.QuarantineRecord) error
	ListQuarantine(ctx context.Context, p *core.Period) ([]core.QuarantineRecord, error)
}

// Publisher emits pipeline events. Both methods tolerate a nil *amqp.Client.
type Publisher interface {
	PublishQuarantineAlert(ctx context.Context, msg *amqp.QuarantineAlertMessage) error
	PublishIngestCompleted(ctx context.Context, msg *amqp.IngestCompletedMessage) error
}

// Result summarizes one ingestion run for a single source.
type Result struct {
	Source         string
	AcceptedCount  int
	DuplicateCount int
	Quarantined    []core.QuarantineRecord
}

type Service struct {
	store       Store
	screen      *validation.Engine
	transform   *normalize.Transformer
	publisher   Publisher
	concurrency int
	logger      *log.Logger
}

func NewService(store Store, screen *validation.Engine, transform *normalize.Transformer,
	publisher Publisher, concurrency int, logger *log.Logger) *Service {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Service{
		store:       store,
		screen:      screen,
		transform:   transform,
		publisher:   publisher,
		concurrency: concurrency,
		logger:      logger.WithComponent(log.ComponentIngestion),
	}
}

// Ingest runs one batch of raw records from a single source through the
// pipeline. Every input record ends up either appended, counted as a
// duplicate, or quarantined; the three counts always sum to the input size.
func (s *Service) Ingest(ctx context.Context, sourceName string, records []core.RawRecord) (*Result, error) {
	start := time.Now()

	accepted, quarantined, err := s.screen.Screen(ctx, records)
	if err != nil {
		return nil, err
	}

	var entries []core.LedgerEntry
	for _, rec := range accepted {
		entry, err := s.transform.Transform(rec)
		if err != nil {
			quarantined = append(quarantined, validation.Quarantine(rec, transformDiagnostic(err)))
			continue
		}
		entries = append(entries, entry)
	}

	inserted, err := s.store.AppendEntries(ctx, entries)
	if err != nil {
		return nil, err
	}

	if err := s.store.InsertQuarantine(ctx, quarantined); err != nil {
		return nil, err
	}

	result := &Result{
		Source:         sourceName,
		AcceptedCount:  inserted,
		DuplicateCount: len(entries) - inserted,
		Quarantined:    quarantined,
	}

	s.publishEvents(ctx, result)

	s.logger.InfoContext(ctx, "Ingestion run completed",
		log.FieldSource, sourceName,
		log.FieldRecordCount, len(records),
		log.FieldAcceptedCount, result.AcceptedCount,
		log.FieldDuplicateCount, result.DuplicateCount,
		log.FieldQuarantinedCount, len(result.Quarantined),
		log.FieldDuration, time.Since(start).Milliseconds())

	return result, nil
}

// IngestAll fetches from every source concurrently, then ingests the batches
// one at a time so in-batch duplicate screening sees a stable ledger. A
// source whose fetch fails is reported in the returned map and does not stop
// the other sources.
func (s *Service) IngestAll(ctx context.Context, sources []source.Source) ([]*Result, map[string]error) {
	batches := make([][]core.RawRecord, len(sources))
	errs := make([]error, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			batches[i], errs[i] = src.Fetch(gctx)
			return nil
		})
	}
	g.Wait()

	fetchErrs := make(map[string]error)
	for i, src := range sources {
		if errs[i] != nil {
			fetchErrs[src.Name()] = errs[i]
			s.logger.ErrorContext(ctx, "Source fetch failed",
				log.FieldSource, src.Name(),
				log.FieldOperation, log.OpFetch,
				log.FieldError, errs[i])
		}
	}

	var results []*Result
	for i, src := range sources {
		if _, failed := fetchErrs[src.Name()]; failed {
			continue
		}
		result, err := s.Ingest(ctx, src.Name(), batches[i])
		if err != nil {
			fetchErrs[src.Name()] = err
			continue
		}
		results = append(results, result)
	}
	return results, fetchErrs
}

// ListQuarantine returns quarantined records, optionally limited to a period.
func (s *Service) ListQuarantine(ctx context.Context, p *core.Period) ([]core.QuarantineRecord, error) {
	return s.store.ListQuarantine(ctx, p)
}

func (s *Service) publishEvents(ctx context.Context, result *Result) {
	if s.publisher == nil {
		return
	}
	if len(result.Quarantined) > 0 {
		msg := amqp.NewQuarantineAlertMessage(result.Source, result.Quarantined)
		if err := s.publisher.PublishQuarantineAlert(ctx, msg); err != nil {
			s.logger.WarnContext(ctx, "Quarantine alert publish failed",
				log.FieldSource, result.Source,
				log.FieldError, err)
		}
	}
	msg := amqp.NewIngestCompletedMessage(result.Source,
		result.AcceptedCount, result.DuplicateCount, len(result.Quarantined))
	if err := s.publisher.PublishIngestCompleted(ctx, msg); err != nil {
		s.logger.WarnContext(ctx, "Ingest summary publish failed",
			log.FieldSource, result.Source,
			log.FieldError, err)
	}
}

// transformDiagnostic maps a transformation failure onto the rule it
// represents. Missing exchange rates are the expected case here; structural
// and referential failures indicate screening and transformation disagree.
func transformDiagnostic(err error) core.Diagnostic {
	rule := core.RuleStructural
	switch {
	case errors.Is(err, core.ErrRateUnavailable):
		rule = core.RuleMissingRate
	case errors.Is(err, core.ErrReferential):
		rule = core.RuleReferential
	}
	return core.Diagnostic{Rule: rule, Severity: core.SeverityError, Detail: err.Error()}
}
