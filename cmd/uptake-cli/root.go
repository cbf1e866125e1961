package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"yashubustudio/uptake/internal/app"
	"yashubustudio/uptake/internal/logger"
	"yashubustudio/uptake/internal/telemetry"
	"yashubustudio/uptake/uptake"
)

type scoreFlags struct {
	configPath string
	cfg        uptake.Config
	minWords   int
	stdout     bool
}

func newRootCmd() *cobra.Command {
	telemetry.Version = Version
	var flags scoreFlags
	root := &cobra.Command{
		Use:   "uptake-cli",
		Short: "Score conversational uptake between utterance pairs",
		Long: `uptake-cli reads a CSV or TSV file of utterance pairs and scores how
strongly each speakerB reply takes up the preceding speakerA utterance.

Pairs whose speakerA utterance is shorter than the minimum word count are
left unscored. The input columns are written back unchanged with one score
column added.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	score := newScoreCmd(&flags)
	root.AddCommand(score, newConfigCmd())
	// Invoking the root without a subcommand scores, matching the flag set
	// of the score command.
	bindScoreFlags(root.Flags(), &flags)
	root.RunE = score.RunE
	return root
}

func newScoreCmd(flags *scoreFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score every row of a data file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd.Flags(), flags, os.LookupEnv)
			if err != nil {
				return err
			}
			log := logger.New(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Writer: cmd.ErrOrStderr()})
			res, err := app.Run(cmd.Context(), cfg, nil, log)
			if err != nil {
				log.Error().Err(err).Str("run_id", res.RunID).Msg("run failed")
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "uptake scores saved to %s\n", res.OutputPath)
			if flags.stdout {
				printSummary(cmd.OutOrStdout(), res)
			}
			return nil
		},
	}
	bindScoreFlags(cmd.Flags(), flags)
	return cmd
}

func bindScoreFlags(fs *pflag.FlagSet, flags *scoreFlags) {
	cfg := &flags.cfg
	fs.StringVar(&flags.configPath, "config", "", "Path to config.json or config.yaml (default: ./config.json)")
	fs.StringVar(&cfg.DataFile, "data-file", "", "CSV/TSV file holding the utterance pairs")
	fs.StringVar(&cfg.SpeakerA, "speakerA", "", "Column name or #index of the utterance being taken up (default: auto-detect)")
	fs.StringVar(&cfg.SpeakerB, "speakerB", "", "Column name or #index of the response (default: auto-detect)")
	fs.StringVar(&cfg.Model.ModelPath, "model-checkpoint", "", "Path to the exported ONNX classifier")
	fs.StringVar(&cfg.Model.TokenizerPath, "tokenizer", "", "Path to tokenizer.json")
	fs.StringVar(&cfg.Model.OrtDLL, "ort-lib", "", "Path to the ONNX Runtime shared library")
	fs.StringVar(&cfg.Model.Head, "head", uptake.DefaultHead, "Model output holding the uptake logits")
	fs.StringVar(&cfg.Model.Device, "device", uptake.DeviceAuto, "Execution device: auto, cpu or cuda")
	fs.StringVar(&cfg.Model.CacheDir, "cache-dir", "", "Directory for cached logits (default: in memory only)")
	fs.StringVar(&cfg.OutputCol, "output-col", uptake.DefaultOutputCol, "Name of the score column")
	fs.StringVar(&cfg.Output, "output", "", "Result file (default: <input>_uptake.csv)")
	fs.IntVar(&cfg.MaxLength, "max-length", uptake.DefaultMaxLength, "Maximum encoded sequence length")
	fs.IntVar(&flags.minWords, "student-min-words", uptake.DefaultMinWords, "Minimum speakerA word count; 0 or negative disables the gate")
	fs.IntVar(&cfg.Workers, "workers", 1, "Rows scored concurrently")
	fs.BoolVar(&cfg.ContinueOnError, "continue-on-error", false, "Leave failing rows empty instead of aborting")
	fs.StringVar(&cfg.Log.Level, "log-level", "info", "Log level: trace, debug, info, warn, error")
	fs.StringVar(&cfg.Log.Format, "log-format", "console", "Log format: console or json")
	fs.StringVar(&cfg.OTLPEndpoint, "otlp-endpoint", "", "OTLP HTTP endpoint for metrics")
	fs.BoolVar(&flags.stdout, "stdout", false, "Print the scored rows to STDOUT")
}

// resolveConfig layers the config file, UPTAKE_* env and explicitly set
// flags, in that order of precedence from lowest to highest.
func resolveConfig(fs *pflag.FlagSet, flags *scoreFlags, lookup func(string) (string, bool)) (uptake.Config, error) {
	cfg, err := uptake.LoadConfig(flags.configPath)
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return cfg, err
	}
	f := flags.cfg
	overrides := []struct {
		name  string
		apply func()
	}{
		{"data-file", func() { cfg.DataFile = f.DataFile }},
		{"speakerA", func() { cfg.SpeakerA = f.SpeakerA }},
		{"speakerB", func() { cfg.SpeakerB = f.SpeakerB }},
		{"model-checkpoint", func() { cfg.Model.ModelPath = f.Model.ModelPath }},
		{"tokenizer", func() { cfg.Model.TokenizerPath = f.Model.TokenizerPath }},
		{"ort-lib", func() { cfg.Model.OrtDLL = f.Model.OrtDLL }},
		{"head", func() { cfg.Model.Head = f.Model.Head }},
		{"device", func() { cfg.Model.Device = f.Model.Device }},
		{"cache-dir", func() { cfg.Model.CacheDir = f.Model.CacheDir }},
		{"output-col", func() { cfg.OutputCol = f.OutputCol }},
		{"output", func() { cfg.Output = f.Output }},
		{"max-length", func() { cfg.MaxLength = f.MaxLength }},
		{"student-min-words", func() { cfg.MinWords = uptake.IntOf(flags.minWords) }},
		{"workers", func() { cfg.Workers = f.Workers }},
		{"continue-on-error", func() { cfg.ContinueOnError = f.ContinueOnError }},
		{"log-level", func() { cfg.Log.Level = f.Log.Level }},
		{"log-format", func() { cfg.Log.Format = f.Log.Format }},
		{"otlp-endpoint", func() { cfg.OTLPEndpoint = f.OTLPEndpoint }},
	}
	for _, o := range overrides {
		if fs.Changed(o.name) {
			o.apply()
		}
	}
	cfg.ApplyDefaults()
	if cfg.DataFile == "" {
		return cfg, fmt.Errorf("missing required --data-file")
	}
	return cfg, nil
}

func printSummary(w io.Writer, res app.Result) {
	s := res.Summary
	fmt.Fprintf(w, "rows=%d scored=%d gated=%d failed=%d elapsed=%s\n", s.Total, s.Scored, s.Gated, s.Failed, s.Elapsed)
	if res.Table != nil {
		_ = res.Table.Write(w)
	}
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	var force bool
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a configuration file with default values",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := uptake.DefaultConfigFile
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			cfg := uptake.Config{
				Model: uptake.ModelConfig{
					ModelPath:     "./models/uptake/model.onnx",
					TokenizerPath: "./models/uptake/tokenizer.json",
				},
			}
			if err := uptake.SaveConfig(path, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	cmd.AddCommand(initCmd)
	return cmd
}
