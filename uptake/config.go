package uptake

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is used when no config path is given.
const DefaultConfigFile = "config.json"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "UPTAKE_"

// LoadConfig loads configuration from path, decoding YAML for .yaml/.yml
// files and JSON otherwise. A missing file yields the defaults.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		path = DefaultConfigFile
	}
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg.ApplyDefaults()
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if isYAML(path) {
		err = yaml.Unmarshal(data, &cfg)
	} else {
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return cfg, fmt.Errorf("decode config %s: %w", filepath.Base(path), err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// SaveConfig persists configuration to disk in the format implied by path.
func SaveConfig(path string, cfg Config) error {
	if path == "" {
		path = DefaultConfigFile
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	cfg.ApplyDefaults()
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// ApplyEnv overlays UPTAKE_* environment variables onto c. Env wins over
// file values; command line flags are applied after it by the caller.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(key string) (string, bool) {
		v, ok := lookup(EnvPrefix + key)
		if !ok || strings.TrimSpace(v) == "" {
			return "", false
		}
		return strings.TrimSpace(v), true
	}
	strs := map[string]*string{
		"DATA_FILE":      &c.DataFile,
		"SPEAKER_A":      &c.SpeakerA,
		"SPEAKER_B":      &c.SpeakerB,
		"OUTPUT_COL":     &c.OutputCol,
		"OUTPUT":         &c.Output,
		"ORT_DLL":        &c.Model.OrtDLL,
		"MODEL_PATH":     &c.Model.ModelPath,
		"TOKENIZER_PATH": &c.Model.TokenizerPath,
		"HEAD":           &c.Model.Head,
		"DEVICE":         &c.Model.Device,
		"CACHE_DIR":      &c.Model.CacheDir,
		"MODEL_ID":       &c.Model.ModelID,
		"LOG_LEVEL":      &c.Log.Level,
		"LOG_FORMAT":     &c.Log.Format,
		"OTLP_ENDPOINT":  &c.OTLPEndpoint,
	}
	for key, dst := range strs {
		if v, ok := get(key); ok {
			*dst = v
		}
	}
	ints := map[string]*int{
		"MAX_LENGTH": &c.MaxLength,
		"WORKERS":    &c.Workers,
	}
	for key, dst := range ints {
		v, ok := get(key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = n
	}
	if v, ok := get("MIN_WORDS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sMIN_WORDS: %w", EnvPrefix, err)
		}
		c.MinWords = IntOf(n)
	}
	if v, ok := get("CONTINUE_ON_ERROR"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sCONTINUE_ON_ERROR: %w", EnvPrefix, err)
		}
		c.ContinueOnError = b
	}
	// OTLP exporters conventionally read this one.
	if c.OTLPEndpoint == "" {
		if v, ok := lookup("OTEL_EXPORTER_OTLP_ENDPOINT"); ok {
			c.OTLPEndpoint = strings.TrimSpace(v)
		}
	}
	return nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
