package wakeword

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hammamikhairi/storyplated/internal/logger"
)

func TestTriggerWindowAndCooldown(t *testing.T) {
	tr := newTrigger(0.5, time.Second)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	if tr.observe(0.2, now) {
		t.Fatal("fired below threshold")
	}
	if !tr.observe(0.7, now.Add(80*time.Millisecond)) {
		t.Fatal("did not fire above threshold")
	}
	// Window was cleared; a low score right after does not re-fire.
	if tr.observe(0.1, now.Add(160*time.Millisecond)) {
		t.Fatal("re-fired on the same peak")
	}
	// A new peak inside the cooldown is ignored.
	if tr.observe(0.9, now.Add(500*time.Millisecond)) {
		t.Fatal("fired inside cooldown")
	}
	// The peak is still in the window once the cooldown has passed.
	if !tr.observe(0.1, now.Add(1100*time.Millisecond)) {
		t.Fatal("did not fire on windowed peak after cooldown")
	}
}

func TestTriggerReset(t *testing.T) {
	tr := newTrigger(0.5, 0)
	now := time.Now()
	tr.observe(0.4, now)
	if p := tr.takePeak(); p != 0.4 {
		t.Fatalf("peak = %v", p)
	}
	if p := tr.takePeak(); p != 0 {
		t.Fatalf("peak not cleared: %v", p)
	}
	tr.reset()
	for _, s := range tr.window {
		if s != 0 {
			t.Fatal("window not cleared")
		}
	}
}

func TestDecodePCM(t *testing.T) {
	got := decodePCM([]byte{0x01, 0x00, 0xff, 0xff, 0x00, 0x80, 0x7f})
	want := []int16{1, -1, -32768}
	if len(got) != len(want) {
		t.Fatalf("decoded %d samples, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestPauseResume(t *testing.T) {
	d := New(Config{}, logger.New(logger.LevelOff, nil), nil)
	if d.cfg.Threshold != 0.3 || d.cfg.Cooldown != 1500*time.Millisecond {
		t.Fatalf("defaults not applied: %+v", d.cfg)
	}

	d.Pause()
	if !d.Paused() {
		t.Fatal("not paused")
	}
	if d.checkReset() {
		t.Fatal("reset requested while paused")
	}
	d.Resume()
	if d.Paused() || !d.checkReset() {
		t.Fatal("resume did not request a reset")
	}
	if d.checkReset() {
		t.Fatal("reset requested twice")
	}
}

func TestConfigValidate(t *testing.T) {
	dir := t.TempDir()
	touch := func(name string) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, nil, 0o644); err != nil {
			t.Fatal(err)
		}
		return p
	}

	cfg := Config{
		WakewordModel:  touch("hey_chef.onnx"),
		MelspecModel:   touch("melspectrogram.onnx"),
		EmbeddingModel: touch("embedding_model.onnx"),
		OnnxLib:        touch("libonnxruntime.so"),
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	cfg.OnnxLib = filepath.Join(dir, "missing.so")
	cfg.WakewordModel = ""
	err := cfg.Validate()
	if err == nil || !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected missing-file error, got %v", err)
	}
}
