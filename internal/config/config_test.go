package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadFromReaderDefaults(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Speech.SilenceWindow != 2*time.Second || cfg.Speech.Chunk != time.Second {
		t.Fatalf("speech defaults not applied: %+v", cfg.Speech)
	}
	if !cfg.NarrationEnabled() || !cfg.DiskCache() || !cfg.AssistantEnabled() {
		t.Fatal("narration, disk cache and assistant should default to on")
	}
	if cfg.Speech.Enabled || cfg.Wakeword.Enabled {
		t.Fatal("voice input should default to off")
	}
	if cfg.Narration.Voices["sam_voice"] != "en-GB-RyanNeural" {
		t.Fatalf("default voices missing: %v", cfg.Narration.Voices)
	}
}

func TestLoadFromReaderOverrides(t *testing.T) {
	const doc = `
log:
  level: verbose
recipes:
  latency: 250ms
speech:
  enabled: true
  silence_window: 5s
narration:
  enabled: false
  disk_cache: false
  voices:
    gandalf_voice: en-US-GuyNeural
assistant:
  model: gpt-4o
wakeword:
  enabled: true
  threshold: 0.6
metrics:
  addr: ":9464"
`
	cfg, err := LoadFromReader(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Log.Level != "verbose" {
		t.Fatalf("log.level = %q", cfg.Log.Level)
	}
	if cfg.Recipes.Latency != 250*time.Millisecond {
		t.Fatalf("recipes.latency = %s", cfg.Recipes.Latency)
	}
	if !cfg.Speech.Enabled || cfg.Speech.SilenceWindow != 5*time.Second {
		t.Fatalf("speech = %+v", cfg.Speech)
	}
	if cfg.Speech.WhisperBin != "whisper-cli" {
		t.Fatalf("unset speech fields should keep defaults, got %q", cfg.Speech.WhisperBin)
	}
	if cfg.NarrationEnabled() || cfg.DiskCache() {
		t.Fatal("explicit false must survive defaulting")
	}
	if cfg.Narration.Voices["gandalf_voice"] != "en-US-GuyNeural" {
		t.Fatalf("file voice lost: %v", cfg.Narration.Voices)
	}
	if cfg.Assistant.Model != "gpt-4o" || cfg.Assistant.Timeout != 30*time.Second {
		t.Fatalf("assistant = %+v", cfg.Assistant)
	}
	if cfg.Wakeword.Threshold != 0.6 {
		t.Fatalf("wakeword.threshold = %v", cfg.Wakeword.Threshold)
	}
	if cfg.Metrics.Addr != ":9464" {
		t.Fatalf("metrics.addr = %q", cfg.Metrics.Addr)
	}
}

func TestLoadFromReaderRejectsUnknownFields(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("speech:\n  engine: vosk\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		edit    func(*Config)
		wantSub string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"silence shorter than chunk", func(c *Config) { c.Speech.SilenceWindow = 500 * time.Millisecond }, "speech.silence_window"},
		{"threshold", func(c *Config) { c.Wakeword.Threshold = 1.5 }, "wakeword.threshold"},
		{"wakeword without speech", func(c *Config) { c.Wakeword.Enabled = true }, "requires speech.enabled"},
		{"empty voice", func(c *Config) { c.Narration.Voices["x"] = "" }, "narration.voices"},
		{"negative latency", func(c *Config) { c.Recipes.Latency = -time.Second }, "recipes.latency"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.edit(cfg)
			err := Validate(cfg)
			if tt.wantSub == "" {
				if err != nil {
					t.Fatalf("Validate() = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantSub) {
				t.Fatalf("Validate() = %v, want mention of %q", err, tt.wantSub)
			}
		})
	}
}

func TestValidateJoinsErrors(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "loud"
	cfg.Watcher.Interval = 0
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected errors")
	}
	if !strings.Contains(err.Error(), "log.level") || !strings.Contains(err.Error(), "watcher.interval") {
		t.Fatalf("expected both failures, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("Load() = %v, want ErrNotExist", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storyplated.yaml")
	if err := os.WriteFile(path, []byte("watcher:\n  interval: 30s\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Watcher.Interval != 30*time.Second {
		t.Fatalf("watcher.interval = %s", cfg.Watcher.Interval)
	}
}

func TestSecretsFromEnv(t *testing.T) {
	env := map[string]string{
		EnvAzureSpeechKey:    "k",
		EnvAzureSpeechRegion: "westeurope",
		EnvGPTKey:            "g",
	}
	s := SecretsFromEnv(func(k string) string { return env[k] })
	if !s.HasSpeech() {
		t.Fatal("speech credentials should be complete")
	}
	if s.HasGPT() {
		t.Fatal("GPT credentials lack an endpoint")
	}
}
