package speech

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
	audiotranscriber "github.com/sklyt/whisper/pkg"

	"github.com/hammamikhairi/storyplated/internal/domain"
	"github.com/hammamikhairi/storyplated/internal/logger"
)

var _ Recorder = (*WhisperRecorder)(nil)

// WhisperRecorder records from the default microphone and transcribes
// each clip with a local whisper.cpp model.
type WhisperRecorder struct {
	whisperBin string
	modelPath  string
	tempDir    string
	log        *logger.Logger
}

// NewWhisperRecorder creates a recorder.
//
//   - whisperBin: path to the whisper-cli executable
//   - modelPath:  path to the GGML model file
//   - tempDir:    where the temporary WAV clips go
func NewWhisperRecorder(whisperBin, modelPath, tempDir string, log *logger.Logger) *WhisperRecorder {
	if tempDir == "" {
		tempDir = ".storyplated-stt"
	}
	return &WhisperRecorder{
		whisperBin: whisperBin,
		modelPath:  modelPath,
		tempDir:    tempDir,
		log:        log,
	}
}

// Record does one recording cycle of duration d and returns the
// transcribed text. Cancelling ctx cuts the clip short and returns "".
func (w *WhisperRecorder) Record(ctx context.Context, d time.Duration) (string, error) {
	var result string
	var wg sync.WaitGroup
	wg.Add(1)

	callback := func(text string) {
		result = text
		wg.Done()
	}

	verbose := w.log.GetLevel() >= logger.LevelVerbose
	t, err := audiotranscriber.NewTranscriber(
		w.whisperBin,
		w.modelPath,
		w.tempDir,
		"wav",
		callback,
		verbose,
	)
	if err != nil {
		return "", fmt.Errorf("transcriber init: %w", err)
	}
	if err := t.Start(); err != nil {
		return "", fmt.Errorf("recording start: %w", err)
	}

	select {
	case <-time.After(d):
	case <-ctx.Done():
		t.Stop()
		wg.Wait()
		return "", nil
	}

	t.Stop()
	wg.Wait()
	return result, nil
}

// CheckWhisper returns a preflight that fails with ErrEngineStart when the
// whisper binary or model is missing.
func CheckWhisper(whisperBin, modelPath string) Preflight {
	return func(context.Context) error {
		if _, err := exec.LookPath(whisperBin); err != nil {
			return fmt.Errorf("%w: whisper binary %q: %w", domain.ErrEngineStart, whisperBin, err)
		}
		if _, err := os.Stat(modelPath); err != nil {
			return fmt.Errorf("%w: whisper model: %w", domain.ErrEngineStart, err)
		}
		return nil
	}
}

// ProbeCapture opens and immediately closes the default capture device so
// a denied microphone fails Start instead of the first recording.
func ProbeCapture(log *logger.Logger) Preflight {
	return func(context.Context) error {
		mCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(_ string) {})
		if err != nil {
			return fmt.Errorf("%w: audio context: %w", domain.ErrEngineStart, err)
		}
		defer func() {
			_ = mCtx.Uninit()
			mCtx.Free()
		}()

		devices, err := mCtx.Devices(malgo.Capture)
		if err != nil {
			return classifyCaptureError(err)
		}
		if len(devices) == 0 {
			return fmt.Errorf("%w: no capture device", domain.ErrEngineStart)
		}

		devCfg := malgo.DefaultDeviceConfig(malgo.Capture)
		devCfg.SampleRate = 16000
		devCfg.Capture.Format = malgo.FormatS16
		devCfg.Capture.Channels = 1
		devCfg.Alsa.NoMMap = 1

		device, err := malgo.InitDevice(mCtx.Context, devCfg, malgo.DeviceCallbacks{})
		if err != nil {
			return classifyCaptureError(err)
		}
		device.Uninit()

		log.Debug("ear: capture device ok (%d found)", len(devices))
		return nil
	}
}

// classifyCaptureError maps a miniaudio failure to the permission errors
// where the message allows it.
func classifyCaptureError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "denied"):
		return fmt.Errorf("%w: %w", domain.ErrPermissionDenied, err)
	case strings.Contains(msg, "not permitted"):
		return fmt.Errorf("%w: %w", domain.ErrRestricted, err)
	case strings.Contains(msg, "permission"):
		return fmt.Errorf("%w: %w", domain.ErrNotAuthorized, err)
	default:
		return fmt.Errorf("%w: %w", domain.ErrEngineStart, err)
	}
}
