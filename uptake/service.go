package uptake

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Row outcomes reported to a RowRecorder.
const (
	OutcomeScored = "scored"
	OutcomeGated  = "gated"
	OutcomeFailed = "failed"
)

const previewRows = 5

// RowRecorder receives one notification per processed row.
type RowRecorder interface {
	RecordRow(ctx context.Context, outcome string)
}

// RowError ties a scoring failure to the input row that caused it.
type RowError struct {
	Row int
	Err error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// Summary counts the outcomes of a batch.
type Summary struct {
	Total   int
	Scored  int
	Gated   int
	Failed  int
	Elapsed time.Duration
}

// Service runs a Scorer over a batch of pairs, keeping output order aligned
// with input order.
type Service struct {
	scorer          *Scorer
	workers         int
	continueOnError bool
	logger          zerolog.Logger
	recorder        RowRecorder
}

// NewService constructs a service with the given scorer and configuration.
// recorder may be nil.
func NewService(scorer *Scorer, cfg Config, logger zerolog.Logger, recorder RowRecorder) (*Service, error) {
	if scorer == nil {
		return nil, errors.New("scorer is required")
	}
	cfg.ApplyDefaults()
	return &Service{
		scorer:          scorer,
		workers:         cfg.Workers,
		continueOnError: cfg.ContinueOnError,
		logger:          logger,
		recorder:        recorder,
	}, nil
}

// ScoreAll scores every pair. The first failing row aborts the batch unless
// the service was configured to continue on error, in which case the row is
// logged and left NotScored. progress may be nil.
func (s *Service) ScoreAll(ctx context.Context, pairs []Pair, progress func(done, total int)) ([]Score, Summary, error) {
	start := time.Now()
	s.preview(pairs)
	s.logger.Info().Int("rows", len(pairs)).Int("workers", s.workers).Msg("running inference")

	scores := make([]Score, len(pairs))
	outcomes := make([]string, len(pairs))
	tracker := &progressTracker{total: len(pairs), fn: progress}

	scoreRow := func(ctx context.Context, i int) error {
		score, err := s.scorer.ScorePair(ctx, pairs[i].SpeakerA, pairs[i].SpeakerB)
		outcome := outcomeOf(score, err)
		outcomes[i] = outcome
		s.record(ctx, outcome)
		if err != nil {
			rowErr := &RowError{Row: pairs[i].Row, Err: err}
			if !s.continueOnError {
				return rowErr
			}
			s.logger.Error().Err(err).Int("row", pairs[i].Row).Msg("scoring failed; row left empty")
		}
		scores[i] = score
		tracker.step()
		return nil
	}

	var err error
	if s.workers <= 1 {
		for i := range pairs {
			if err = ctx.Err(); err != nil {
				break
			}
			if err = scoreRow(ctx, i); err != nil {
				break
			}
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.workers)
		for i := range pairs {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				return scoreRow(gctx, i)
			})
		}
		err = g.Wait()
	}

	summary := summarize(outcomes, time.Since(start))
	if err != nil {
		return nil, summary, err
	}
	s.logger.Info().
		Int("total", summary.Total).
		Int("scored", summary.Scored).
		Int("gated", summary.Gated).
		Int("failed", summary.Failed).
		Dur("elapsed", summary.Elapsed).
		Msg("inference finished")
	return scores, summary, nil
}

func (s *Service) preview(pairs []Pair) {
	for _, p := range pairs[:min(previewRows, len(pairs))] {
		s.logger.Debug().Int("row", p.Row).Str("speakerA", p.SpeakerA).Str("speakerB", p.SpeakerB).Msg("example")
	}
}

func (s *Service) record(ctx context.Context, outcome string) {
	if s.recorder != nil {
		s.recorder.RecordRow(ctx, outcome)
	}
}

func outcomeOf(score Score, err error) string {
	switch {
	case err != nil:
		return OutcomeFailed
	case score.Scored:
		return OutcomeScored
	default:
		return OutcomeGated
	}
}

func summarize(outcomes []string, elapsed time.Duration) Summary {
	sum := Summary{Elapsed: elapsed}
	for _, o := range outcomes {
		switch o {
		case OutcomeScored:
			sum.Scored++
		case OutcomeGated:
			sum.Gated++
		case OutcomeFailed:
			sum.Failed++
		default:
			continue
		}
		sum.Total++
	}
	return sum
}

type progressTracker struct {
	mu    sync.Mutex
	done  int
	total int
	fn    func(done, total int)
}

func (p *progressTracker) step() {
	if p.fn == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done++
	p.fn(p.done, p.total)
}
