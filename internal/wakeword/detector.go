// Package wakeword re-arms voice control hands-free. It runs the
// openWakeWord ONNX pipeline (melspectrogram, embedding, wakeword) over a
// miniaudio capture stream and calls back when the phrase is heard.
//
// All model files and the ONNX Runtime shared library must be provided
// in the Config.
package wakeword

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/hammamikhairi/storyplated/internal/logger"
)

// Constants matching the openWakeWord pipeline.
const (
	sampleRate    = 16000
	chunkSamples  = 1280 // 80 ms @ 16 kHz
	audioQueueCap = 32
	melWindowSize = 76 // embedding model needs 76 mel frames
	melStepSize   = 8  // step between embedding windows
	embeddingDim  = 96 // output dim per embedding frame
	nEmbedFrames  = 16 // wakeword model needs 16 embedding frames
	melBins       = 32 // melspectrogram output bands
	nMelFrames    = 5  // 1280 samples -> 5 mel frames

	// scoreWindowSize is how many recent scores the trigger looks at.
	// 5 frames is about 400 ms.
	scoreWindowSize = 5

	// recentWindow is how many of the newest embedding slots are passed
	// to the wakeword model; older slots are zeroed.
	recentWindow = 5
)

// Config holds the paths and tuning knobs for a Detector.
type Config struct {
	WakewordModel  string // e.g. "models/hey_chef.onnx"
	MelspecModel   string // e.g. "bin/melspectrogram.onnx"
	EmbeddingModel string // e.g. "bin/embedding_model.onnx"
	OnnxLib        string // e.g. "bin/libonnxruntime.so"

	Threshold float64       // window max score >= threshold means detected
	Cooldown  time.Duration // min time between detections
}

func (c *Config) defaults() {
	if c.Threshold <= 0 {
		c.Threshold = 0.3
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 1500 * time.Millisecond
	}
}

// Validate checks that every model file exists.
func (c Config) Validate() error {
	var errs []error
	for name, path := range map[string]string{
		"wakeword model":  c.WakewordModel,
		"melspec model":   c.MelspecModel,
		"embedding model": c.EmbeddingModel,
		"onnx runtime":    c.OnnxLib,
	} {
		if path == "" {
			errs = append(errs, fmt.Errorf("%s: path not set", name))
			continue
		}
		if _, err := os.Stat(path); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Detector listens for the wake phrase continuously.
type Detector struct {
	cfg        Config
	log        *logger.Logger
	onDetected func()

	mu         sync.Mutex
	paused     bool
	needsReset bool // set on Resume to flush stale pipeline state
}

// New creates a Detector that calls onDetected (from the processing
// goroutine) on each detection. Call Run to begin listening.
func New(cfg Config, log *logger.Logger, onDetected func()) *Detector {
	cfg.defaults()
	return &Detector{cfg: cfg, log: log, onDetected: onDetected}
}

// Pause stops detecting, e.g. while the session's recognizer owns the
// microphone.
func (d *Detector) Pause() {
	d.mu.Lock()
	if !d.paused {
		d.log.Debug("wakeword: paused")
	}
	d.paused = true
	d.mu.Unlock()
}

// Resume re-enables detection after a Pause.
func (d *Detector) Resume() {
	d.mu.Lock()
	if d.paused {
		d.log.Debug("wakeword: resumed")
		d.needsReset = true
	}
	d.paused = false
	d.mu.Unlock()
}

// Paused reports whether detection is paused.
func (d *Detector) Paused() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.paused
}

// checkReset returns true (once) after Resume, telling the processing
// loop to flush its buffers.
func (d *Detector) checkReset() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.needsReset {
		d.needsReset = false
		return true
	}
	return false
}

// Run initialises the models and the capture device, then processes audio
// until ctx is cancelled. It returns nil on cancellation.
func (d *Detector) Run(ctx context.Context) error {
	d.log.Debug("wakeword: initializing ONNX runtime (lib=%s)", d.cfg.OnnxLib)
	ort.SetSharedLibraryPath(d.cfg.OnnxLib)
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("wakeword: onnx init: %w", err)
	}
	defer func() { _ = ort.DestroyEnvironment() }()

	p, err := newPipeline(d.cfg)
	if err != nil {
		return fmt.Errorf("wakeword: %w", err)
	}
	defer p.close()

	mCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(_ string) {})
	if err != nil {
		return fmt.Errorf("wakeword: audio context: %w", err)
	}
	defer func() { _ = mCtx.Uninit(); mCtx.Free() }()

	devCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	devCfg.SampleRate = sampleRate
	devCfg.Capture.Format = malgo.FormatS16
	devCfg.Capture.Channels = 1
	devCfg.Alsa.NoMMap = 1

	audioCh := make(chan []int16, audioQueueCap)
	var drops atomic.Int64

	device, err := malgo.InitDevice(mCtx.Context, devCfg, malgo.DeviceCallbacks{
		Data: func(_ []byte, raw []byte, _ uint32) {
			if len(raw) == 0 {
				return
			}
			select {
			case audioCh <- decodePCM(raw):
			default:
				drops.Add(1)
			}
		},
	})
	if err != nil {
		return fmt.Errorf("wakeword: capture device: %w", err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return fmt.Errorf("wakeword: capture start: %w", err)
	}
	defer func() { _ = device.Stop() }()
	d.log.Info("wakeword: listening (rate=%d, threshold=%.2f)", sampleRate, d.cfg.Threshold)

	trig := newTrigger(d.cfg.Threshold, d.cfg.Cooldown)
	lastStats := time.Now()

	for {
		select {
		case <-ctx.Done():
			d.log.Info("wakeword: stopped")
			return nil

		case frame := <-audioCh:
			if d.Paused() {
				continue
			}
			if d.checkReset() {
				p.reset()
				trig.reset()
			}

			if now := time.Now(); now.Sub(lastStats) >= 5*time.Second {
				d.log.Debug("wakeword: embeds=%d drops=%d peak=%.4f", p.embeds, drops.Load(), trig.takePeak())
				lastStats = now
			}

			err := p.feed(frame, func(score float32) {
				if trig.observe(score, time.Now()) {
					d.log.Info("wakeword: detected (score=%.4f)", score)
					if d.onDetected != nil {
						d.onDetected()
					}
				}
			})
			if err != nil {
				d.log.Error("wakeword: %v", err)
			}
		}
	}
}
