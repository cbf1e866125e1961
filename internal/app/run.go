package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"yashubustudio/uptake/bert"
	"yashubustudio/uptake/internal/logger"
	"yashubustudio/uptake/internal/telemetry"
	"yashubustudio/uptake/uptake"
)

const progressEvery = 100

// Backend bundles the tokenizer and classifier a run scores with.
type Backend struct {
	Tokenizer uptake.Tokenizer
	Model     uptake.Model
	Close     func() error
}

// LoadBackend builds a Backend from model settings.
type LoadBackend func(cfg uptake.ModelConfig, log zerolog.Logger) (*Backend, error)

// Result describes a finished run.
type Result struct {
	RunID      string
	OutputPath string
	Summary    uptake.Summary
	Table      *uptake.Table
	Scores     []uptake.Score
}

// LoadBERT loads tokenizer.json and the ONNX classifier.
func LoadBERT(cfg uptake.ModelConfig, log zerolog.Logger) (*Backend, error) {
	tok, err := bert.LoadTokenizer(cfg.TokenizerPath)
	if err != nil {
		return nil, err
	}
	sess, err := bert.Open(cfg, logger.Named(log, "bert"))
	if err != nil {
		return nil, err
	}
	return &Backend{Tokenizer: tok, Model: sess, Close: sess.Close}, nil
}

// Run scores every row of cfg.DataFile and writes the input table with the
// score column added. load defaults to LoadBERT.
func Run(ctx context.Context, cfg uptake.Config, load LoadBackend, log zerolog.Logger) (Result, error) {
	cfg.ApplyDefaults()
	if load == nil {
		load = LoadBERT
	}
	res := Result{RunID: uuid.NewString()}
	log = log.With().Str("run_id", res.RunID).Logger()

	if strings.TrimSpace(cfg.DataFile) == "" {
		return res, errors.New("data file is required")
	}
	if err := ensureDir(cfg.Model.CacheDir); err != nil {
		return res, err
	}

	tel, err := telemetry.Init(ctx, cfg.OTLPEndpoint)
	if err != nil {
		return res, err
	}
	defer tel.Shutdown(context.WithoutCancel(ctx))

	table, err := uptake.ReadTable(cfg.DataFile)
	if err != nil {
		return res, err
	}
	pairs, err := table.Pairs(uptake.ColumnOptions{SpeakerA: cfg.SpeakerA, SpeakerB: cfg.SpeakerB}, logger.Named(log, "io"))
	if err != nil {
		return res, fmt.Errorf("resolve columns: %w", err)
	}

	backend, err := load(cfg.Model, log)
	if err != nil {
		return res, fmt.Errorf("init model: %w", err)
	}
	if backend.Close != nil {
		defer backend.Close()
	}
	model, err := uptake.NewCachedModel(backend.Model, cfg.Model.CacheDir, tel.Metrics, logger.Named(log, "cache"))
	if err != nil {
		return res, err
	}
	scorer, err := uptake.NewScorer(backend.Tokenizer, model, cfg, logger.Named(log, "scorer"))
	if err != nil {
		return res, err
	}
	svc, err := uptake.NewService(scorer, cfg, logger.Named(log, "service"), tel.Metrics)
	if err != nil {
		return res, err
	}

	scores, summary, err := svc.ScoreAll(ctx, pairs, progressLogger(log))
	res.Summary = summary
	if err != nil {
		return res, fmt.Errorf("score: %w", err)
	}
	if err := table.SetScores(cfg.OutputCol, scores); err != nil {
		return res, err
	}

	out, err := resolveOutputPath(cfg.Output, cfg.DataFile)
	if err != nil {
		return res, err
	}
	if err := uptake.WriteTable(out, table); err != nil {
		return res, err
	}
	log.Info().Str("output", out).Str("column", cfg.OutputCol).Msg("results written")

	res.OutputPath = out
	res.Table = table
	res.Scores = scores
	return res, nil
}

func progressLogger(log zerolog.Logger) func(done, total int) {
	return func(done, total int) {
		if done%progressEvery == 0 || done == total {
			log.Debug().Int("done", done).Int("total", total).Msg("progress")
		}
	}
}

func resolveOutputPath(path, input string) (string, error) {
	if path == "" {
		path = uptake.DefaultOutputPath(input)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve output path: %w", err)
	}
	return abs, nil
}

func ensureDir(dir string) error {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	return nil
}
