package uptake

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

// Scorer gates, encodes and scores utterance pairs against a classifier head.
type Scorer struct {
	enc       *Encoder
	model     Model
	minWords  int
	maxLength int
	head      string
	logger    zerolog.Logger
}

// NewScorer constructs a scorer from the model settings in cfg.
func NewScorer(tok Tokenizer, model Model, cfg Config, logger zerolog.Logger) (*Scorer, error) {
	if tok == nil {
		return nil, errors.New("tokenizer is required")
	}
	if model == nil {
		return nil, errors.New("model is required")
	}
	cfg.ApplyDefaults()
	return &Scorer{
		enc:       NewEncoder(tok),
		model:     model,
		minWords:  cfg.MinWordCount(),
		maxLength: cfg.MaxLength,
		head:      cfg.Model.Head,
		logger:    logger,
	}, nil
}

// Passes reports whether an utterance has enough words to be scored.
func (s *Scorer) Passes(text string) bool {
	return s.passes(s.sanitize(text, "speakerA"))
}

func (s *Scorer) passes(text string) bool {
	return CountWords(text) >= s.minWords
}

// ScorePair returns the probability that textB takes up textA. Pairs whose
// textA is shorter than the minimum word count are NotScored without
// touching the model.
func (s *Scorer) ScorePair(ctx context.Context, textA, textB string) (Score, error) {
	return s.ScoreHistory(ctx, []string{textA}, textB)
}

// ScoreHistory scores reply against a multi-turn history. The gate applies
// to the last history turn.
func (s *Scorer) ScoreHistory(ctx context.Context, history []string, reply string) (Score, error) {
	if len(history) == 0 {
		return NotScored, errors.New("history must hold at least one utterance")
	}
	turns := make([]string, len(history))
	for i, h := range history {
		turns[i] = s.sanitize(h, "speakerA")
	}
	if !s.passes(turns[len(turns)-1]) {
		return NotScored, nil
	}
	for i, h := range turns {
		turns[i] = Normalize(h, false)
	}
	enc, err := s.enc.Build(turns, Normalize(s.sanitize(reply, "speakerB"), false), s.maxLength)
	if err != nil {
		return NotScored, fmt.Errorf("encode: %w", err)
	}
	out, err := s.model.Predict(ctx, enc, s.head)
	if err != nil {
		return NotScored, fmt.Errorf("predict: %w", err)
	}
	logits, ok := out[s.head]
	if !ok {
		return NotScored, fmt.Errorf("%w: %q", ErrMissingHead, s.head)
	}
	return probability(logits)
}

func probability(logits []float32) (Score, error) {
	if len(logits) != 2 {
		return NotScored, fmt.Errorf("%w, got %d", ErrBadLogits, len(logits))
	}
	for _, l := range logits {
		if math.IsNaN(float64(l)) || math.IsInf(float64(l), 0) {
			return NotScored, fmt.Errorf("%w, got non-finite %v", ErrBadLogits, logits)
		}
	}
	return ScoreOf(Softmax(logits)[1]), nil
}

// sanitize flags and repairs text that is not valid UTF-8.
func (s *Scorer) sanitize(text, role string) string {
	if utf8.ValidString(text) {
		return text
	}
	s.logger.Warn().Str("speaker", role).Msg("utterance is not valid UTF-8; invalid bytes replaced")
	return strings.ToValidUTF8(text, " ")
}
