package uptake

import (
	"encoding/json"
	"strconv"
)

// Default option values mirroring the published uptake checkpoint setup.
const (
	DefaultMaxLength = 120
	DefaultMinWords  = 5
	DefaultHead      = "nsp_logits"
	DefaultOutputCol = "uptake_predictions"
	DefaultSpeakerA  = "speakerA"
	DefaultSpeakerB  = "speakerB"
)

// Device names accepted by ModelConfig.Device.
const (
	DeviceAuto = "auto"
	DeviceCPU  = "cpu"
	DeviceCUDA = "cuda"
)

// Pair is one utterance pair read from an input row. SpeakerA is the
// utterance being taken up, SpeakerB the response that is scored.
type Pair struct {
	Row      int    `json:"row"`
	SpeakerA string `json:"speakerA"`
	SpeakerB string `json:"speakerB"`
}

// Score is an uptake probability or the absence of one. The zero value is
// NotScored, which is distinct from a probability of 0.
type Score struct {
	Value  float64
	Scored bool
}

// NotScored marks a pair that failed the minimum word gate.
var NotScored = Score{}

// ScoreOf wraps a probability.
func ScoreOf(p float64) Score {
	return Score{Value: p, Scored: true}
}

// Float returns the probability and whether the pair was scored.
func (s Score) Float() (float64, bool) {
	return s.Value, s.Scored
}

// String formats the score for a table cell; unscored pairs render empty.
func (s Score) String() string {
	if !s.Scored {
		return ""
	}
	return strconv.FormatFloat(s.Value, 'g', -1, 64)
}

// MarshalJSON encodes unscored pairs as null.
func (s Score) MarshalJSON() ([]byte, error) {
	if !s.Scored {
		return []byte("null"), nil
	}
	return json.Marshal(s.Value)
}

// UnmarshalJSON accepts a number or null.
func (s *Score) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = NotScored
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = ScoreOf(v)
	return nil
}

// ModelConfig wraps the configuration for the tokenizer, ONNX session and
// logits cache.
type ModelConfig struct {
	OrtDLL        string `json:"ortDll" yaml:"ort_dll"`
	ModelPath     string `json:"modelPath" yaml:"model_path"`
	TokenizerPath string `json:"tokenizerPath" yaml:"tokenizer_path"`
	Head          string `json:"head" yaml:"head"`
	Device        string `json:"device" yaml:"device"`
	CacheDir      string `json:"cacheDir" yaml:"cache_dir"`
	ModelID       string `json:"modelId" yaml:"model_id"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// Config aggregates runtime settings persisted to config.json or config.yaml.
// SpeakerA and SpeakerB name the utterance columns by header or "#n" and are
// auto-detected when empty. A nil MinWords takes DefaultMinWords; zero or a
// negative value disables the gate.
type Config struct {
	DataFile        string      `json:"dataFile" yaml:"data_file"`
	SpeakerA        string      `json:"speakerA" yaml:"speaker_a"`
	SpeakerB        string      `json:"speakerB" yaml:"speaker_b"`
	OutputCol       string      `json:"outputCol" yaml:"output_col"`
	Output          string      `json:"output" yaml:"output"`
	MaxLength       int         `json:"maxLength" yaml:"max_length"`
	MinWords        *int        `json:"minWords,omitempty" yaml:"min_words,omitempty"`
	Workers         int         `json:"workers" yaml:"workers"`
	ContinueOnError bool        `json:"continueOnError" yaml:"continue_on_error"`
	Model           ModelConfig `json:"model" yaml:"model"`
	Log             LogConfig   `json:"log" yaml:"log"`
	OTLPEndpoint    string      `json:"otlpEndpoint" yaml:"otlp_endpoint"`
}

// Clone creates a deep copy of the configuration so callers can mutate safely.
func (c Config) Clone() Config {
	buf, _ := json.Marshal(c)
	var out Config
	_ = json.Unmarshal(buf, &out)
	return out
}

// IntOf returns a pointer to n for optional integer settings.
func IntOf(n int) *int {
	return &n
}

// MinWordCount returns the speakerA word threshold, or DefaultMinWords when
// none was set.
func (c Config) MinWordCount() int {
	if c.MinWords == nil {
		return DefaultMinWords
	}
	return *c.MinWords
}

// ApplyDefaults populates zero values with sensible defaults.
func (c *Config) ApplyDefaults() {
	if c.OutputCol == "" {
		c.OutputCol = DefaultOutputCol
	}
	if c.MaxLength <= 0 {
		c.MaxLength = DefaultMaxLength
	}
	if c.MinWords == nil {
		c.MinWords = IntOf(DefaultMinWords)
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.Model.Head == "" {
		c.Model.Head = DefaultHead
	}
	if c.Model.Device == "" {
		c.Model.Device = DeviceAuto
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
}
