package speech

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/hammamikhairi/storyplated/internal/logger"
)

// AudioOutput plays WAV audio. Play blocks until the clip finishes, ctx is
// cancelled or Stop is called; a paused clip keeps Play blocked until it is
// resumed or stopped. A clip whose ctx is already cancelled never starts.
type AudioOutput interface {
	Play(ctx context.Context, wav []byte) error
	Pause()
	Resume()
	Stop()
}

var _ AudioOutput = (*Player)(nil)

// Player handles audio playback of WAV/PCM data via oto. oto allows a single
// context per process, so one Player is shared by every narrator.
type Player struct {
	ctx *oto.Context
	log *logger.Logger

	mu      sync.Mutex
	active  *oto.Player // currently playing, nil when idle
	paused  bool
	stopped bool
}

// NewPlayer creates an audio player. Initializes the system audio context.
// Returns an error if the audio device is unavailable.
func NewPlayer(log *logger.Logger) (*Player, error) {
	op := &oto.NewContextOptions{
		SampleRate:   SampleRate,
		ChannelCount: ChannelCount,
		Format:       oto.FormatSignedInt16LE,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, err
	}
	<-readyChan

	log.Debug("audio player initialized (rate=%d, channels=%d)", SampleRate, ChannelCount)
	return &Player{ctx: ctx, log: log}, nil
}

// Play plays WAV audio data synchronously.
func (p *Player) Play(ctx context.Context, wavData []byte) error {
	pcm, err := extractPCM(wavData)
	if err != nil {
		return err
	}

	player := p.ctx.NewPlayer(bytes.NewReader(pcm))

	p.mu.Lock()
	if ctx.Err() != nil {
		p.mu.Unlock()
		return player.Close()
	}
	p.active = player
	p.stopped = false
	paused := p.paused
	p.mu.Unlock()

	if !paused {
		player.Play()
	}
	p.log.Debug("audio player: playing %d bytes of PCM", len(pcm))

	for {
		p.mu.Lock()
		done := p.stopped || ctx.Err() != nil || (!p.paused && !player.IsPlaying())
		p.mu.Unlock()
		if done {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	p.mu.Lock()
	if p.active == player {
		p.active = nil
	}
	p.mu.Unlock()

	return player.Close()
}

// Pause holds the current clip. Clips started while paused wait too.
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = true
	if p.active != nil {
		p.active.Pause()
	}
}

// Resume continues a paused clip.
func (p *Player) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = false
	if p.active != nil {
		p.active.Play()
	}
}

// Stop interrupts the currently playing audio, if any. Safe to call
// concurrently and when nothing is playing.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopped = true
	if p.active != nil {
		p.active.Pause()
		p.log.Debug("audio player: interrupted")
	}
}

// extractPCM strips the WAV/RIFF header and returns raw PCM data.
func extractPCM(wav []byte) ([]byte, error) {
	if len(wav) < 44 {
		return nil, errors.New("wav data too short")
	}

	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return nil, errors.New("not a valid WAV file")
	}

	// Walk chunks to find the "data" chunk.
	pos := 12
	for pos < len(wav)-8 {
		chunkID := string(wav[pos : pos+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[pos+4 : pos+8]))

		if chunkID == "data" {
			start := pos + 8
			end := start + chunkSize
			if end > len(wav) {
				end = len(wav)
			}
			return wav[start:end], nil
		}

		pos += 8 + chunkSize
		// Chunks are word-aligned.
		if chunkSize%2 != 0 {
			pos++
		}
	}

	return nil, errors.New("data chunk not found in WAV")
}
