// Package config loads the StoryPlated YAML configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/hammamikhairi/storyplated/internal/logger"
)

// Env var names for secrets. They never live in the YAML file.
const (
	EnvAzureSpeechKey    = "AZURE_SPEECH_KEY"
	EnvAzureSpeechRegion = "AZURE_SPEECH_REGION"
	EnvGPTKey            = "GPT_CHAT_KEY"
	EnvGPTEndpoint       = "GPT_CHAT_ENDPOINT"
	EnvGPTModel          = "GPT_CHAT_MODEL"
	EnvGPTAPIVersion     = "GPT_CHAT_API_VERSION"
)

// Config is the root configuration.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Recipes   RecipesConfig   `yaml:"recipes"`
	Speech    SpeechConfig    `yaml:"speech"`
	Narration NarrationConfig `yaml:"narration"`
	Assistant AssistantConfig `yaml:"assistant"`
	Wakeword  WakewordConfig  `yaml:"wakeword"`
	Watcher   WatcherConfig   `yaml:"watcher"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// LogConfig controls the logger. File "stderr" logs to the console.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// RecipesConfig selects the recipe source. An empty File uses the
// built-in recipes, served after Latency (zero keeps the built-in delay).
type RecipesConfig struct {
	File    string        `yaml:"file"`
	Latency time.Duration `yaml:"latency"`
}

// SpeechConfig configures voice input.
type SpeechConfig struct {
	Enabled       bool          `yaml:"enabled"`
	WhisperBin    string        `yaml:"whisper_bin"`
	WhisperModel  string        `yaml:"whisper_model"`
	Chunk         time.Duration `yaml:"chunk"`
	SilenceWindow time.Duration `yaml:"silence_window"`
	TempDir       string        `yaml:"temp_dir"`
}

// NarrationConfig configures text-to-speech. Voices maps a character's
// voice ID to an Azure voice name.
type NarrationConfig struct {
	Enabled      *bool             `yaml:"enabled"`
	CacheDir     string            `yaml:"cache_dir"`
	DiskCache    *bool             `yaml:"disk_cache"`
	DefaultVoice string            `yaml:"default_voice"`
	Voices       map[string]string `yaml:"voices"`
}

// AssistantConfig configures character Q&A.
type AssistantConfig struct {
	Enabled *bool         `yaml:"enabled"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// WakewordConfig configures the wake-word detector that re-arms listening.
type WakewordConfig struct {
	Enabled        bool    `yaml:"enabled"`
	Model          string  `yaml:"model"`
	MelspecModel   string  `yaml:"melspec_model"`
	EmbeddingModel string  `yaml:"embedding_model"`
	OnnxLib        string  `yaml:"onnx_lib"`
	Threshold      float64 `yaml:"threshold"`
}

// WatcherConfig configures the idle-step watcher.
type WatcherConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// MetricsConfig configures the Prometheus endpoint. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration used for every field the file leaves
// unset.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "normal", File: ".storyplated-logs/storyplated.log"},
		Speech: SpeechConfig{
			WhisperBin:    "whisper-cli",
			WhisperModel:  "bin/ggml-small.bin",
			Chunk:         time.Second,
			SilenceWindow: 2 * time.Second,
			TempDir:       ".storyplated-stt",
		},
		Narration: NarrationConfig{
			Enabled:      boolPtr(true),
			CacheDir:     ".storyplated-cache",
			DiskCache:    boolPtr(true),
			DefaultVoice: "en-US-AvaNeural",
			Voices: map[string]string{
				"sam_voice":       "en-GB-RyanNeural",
				"gandalf_voice":   "en-GB-ThomasNeural",
				"galadriel_voice": "en-GB-SoniaNeural",
			},
		},
		Assistant: AssistantConfig{
			Enabled: boolPtr(true),
			Model:   "gpt-4o-mini",
			Timeout: 30 * time.Second,
		},
		Wakeword: WakewordConfig{
			Model:          "models/hey_chef.onnx",
			MelspecModel:   "models/melspectrogram.onnx",
			EmbeddingModel: "models/embedding_model.onnx",
			OnnxLib:        "lib/libonnxruntime.so",
			Threshold:      0.3,
		},
		Watcher: WatcherConfig{Interval: time.Minute},
	}
}

// Load reads the YAML file at path, fills unset fields from [Default] and
// validates the result.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r. Unknown keys are errors.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() error {
	// Voices merge key by key with the file winning. Pointers are not
	// dereferenced so an explicit false survives.
	if err := mergo.Merge(c, Default(), mergo.WithoutDereference); err != nil {
		return fmt.Errorf("config: defaults: %w", err)
	}
	return nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if _, err := logger.ParseLevel(cfg.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if cfg.Recipes.Latency < 0 {
		errs = append(errs, fmt.Errorf("recipes.latency %s must not be negative", cfg.Recipes.Latency))
	}

	if cfg.Speech.Chunk <= 0 {
		errs = append(errs, fmt.Errorf("speech.chunk %s must be positive", cfg.Speech.Chunk))
	}
	if cfg.Speech.SilenceWindow < cfg.Speech.Chunk {
		errs = append(errs, fmt.Errorf("speech.silence_window %s is shorter than speech.chunk %s", cfg.Speech.SilenceWindow, cfg.Speech.Chunk))
	}
	if cfg.Speech.Enabled && (cfg.Speech.WhisperBin == "" || cfg.Speech.WhisperModel == "") {
		errs = append(errs, errors.New("speech.enabled requires speech.whisper_bin and speech.whisper_model"))
	}

	for id, voice := range cfg.Narration.Voices {
		if voice == "" {
			errs = append(errs, fmt.Errorf("narration.voices[%q] is empty", id))
		}
	}

	if cfg.Assistant.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("assistant.timeout %s must be positive", cfg.Assistant.Timeout))
	}

	if cfg.Wakeword.Threshold <= 0 || cfg.Wakeword.Threshold > 1 {
		errs = append(errs, fmt.Errorf("wakeword.threshold %.2f is out of range (0, 1]", cfg.Wakeword.Threshold))
	}
	if cfg.Wakeword.Enabled && !cfg.Speech.Enabled {
		errs = append(errs, errors.New("wakeword.enabled requires speech.enabled"))
	}

	if cfg.Watcher.Interval <= 0 {
		errs = append(errs, fmt.Errorf("watcher.interval %s must be positive", cfg.Watcher.Interval))
	}

	return errors.Join(errs...)
}

// NarrationEnabled reports whether narration.enabled is on.
func (c *Config) NarrationEnabled() bool { return c.Narration.Enabled == nil || *c.Narration.Enabled }

// DiskCache reports whether synthesized audio is written to disk.
func (c *Config) DiskCache() bool { return c.Narration.DiskCache == nil || *c.Narration.DiskCache }

// AssistantEnabled reports whether character Q&A may use the chat API.
func (c *Config) AssistantEnabled() bool { return c.Assistant.Enabled == nil || *c.Assistant.Enabled }

// Secrets are the credentials read from the environment.
type Secrets struct {
	AzureSpeechKey    string
	AzureSpeechRegion string
	GPTKey            string
	GPTEndpoint       string
	GPTModel          string
	GPTAPIVersion     string
}

// SecretsFromEnv reads secrets through getenv, usually os.Getenv.
func SecretsFromEnv(getenv func(string) string) Secrets {
	return Secrets{
		AzureSpeechKey:    getenv(EnvAzureSpeechKey),
		AzureSpeechRegion: getenv(EnvAzureSpeechRegion),
		GPTKey:            getenv(EnvGPTKey),
		GPTEndpoint:       getenv(EnvGPTEndpoint),
		GPTModel:          getenv(EnvGPTModel),
		GPTAPIVersion:     getenv(EnvGPTAPIVersion),
	}
}

// HasSpeech reports whether Azure Speech credentials are present.
func (s Secrets) HasSpeech() bool { return s.AzureSpeechKey != "" && s.AzureSpeechRegion != "" }

// HasGPT reports whether chat credentials are present.
func (s Secrets) HasGPT() bool { return s.GPTKey != "" && s.GPTEndpoint != "" }

func boolPtr(b bool) *bool { return &b }
