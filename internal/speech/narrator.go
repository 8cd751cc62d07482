package speech

import (
	"context"
	"errors"
	"strings"
	"sync"
	"unicode"

	"github.com/hammamikhairi/storyplated/internal/domain"
	"github.com/hammamikhairi/storyplated/internal/logger"
)

// ErrNarratorClosed is returned by Play after Close.
var ErrNarratorClosed = errors.New("narrator is closed")

var _ domain.NarrationSink = (*Narrator)(nil)

// NarratorOption configures the Narrator.
type NarratorOption func(*Narrator)

// WithChunkSize sets the approximate max character count per TTS chunk.
// Text longer than this is split at sentence boundaries and synthesized
// in parallel so playback doesn't stall between sentences.
func WithChunkSize(n int) NarratorOption {
	return func(m *Narrator) {
		m.chunkSize = n
	}
}

// Narrator speaks step text in one character's voice. It is the session's
// narration sink: synthesize (cached, parallel per chunk) then play
// (sequential). Only the latest Play matters: each Play cancels the context
// of the narration before it, so a superseded clip is cut off or never
// starts.
type Narrator struct {
	synth     Synthesizer
	out       AudioOutput
	cache     *AudioCache
	voice     string
	log       *logger.Logger
	chunkSize int

	mu         sync.Mutex
	pending    string
	queued     bool
	playCtx    context.Context // current narration; cancelled by the next Play
	playCancel context.CancelFunc
	speaking   bool
	paused     bool
	closed     bool

	base      context.Context
	notify    chan struct{}
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// NewNarrator creates a narrator for the given voice and starts its
// playback goroutine. cache may be shared between narrators.
func NewNarrator(synth Synthesizer, out AudioOutput, cache *AudioCache, voice string, log *logger.Logger, opts ...NarratorOption) *Narrator {
	ctx, cancel := context.WithCancel(context.Background())
	n := &Narrator{
		synth:     synth,
		out:       out,
		cache:     cache,
		voice:     voice,
		log:       log,
		chunkSize: 200, // roughly 2 sentences
		base:      ctx,
		notify:    make(chan struct{}, 1),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(n)
	}
	go n.processLoop(ctx)
	log.Debug("narrator started (voice=%s)", voice)
	return n
}

// Voice returns the Azure voice this narrator speaks with.
func (n *Narrator) Voice() string { return n.voice }

// Play replaces whatever is being narrated with text. Non-blocking.
func (n *Narrator) Play(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return errors.New("nothing to narrate")
	}

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return ErrNarratorClosed
	}
	n.pending = text
	n.queued = true
	n.supersedeLocked()
	n.paused = false
	n.mu.Unlock()

	// The output may be holding a paused clip; the next one must start.
	n.out.Resume()

	n.log.Debug("narrator: queued: %s", truncate(text, 60))
	select {
	case n.notify <- struct{}{}:
	default: // already signaled
	}
	return nil
}

// Pause holds narration where it is.
func (n *Narrator) Pause() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return ErrNarratorClosed
	}
	n.paused = true
	n.mu.Unlock()
	n.out.Pause()
	return nil
}

// Resume continues paused narration.
func (n *Narrator) Resume() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return ErrNarratorClosed
	}
	n.paused = false
	n.mu.Unlock()
	n.out.Resume()
	return nil
}

// IsSpeaking reports whether audio is being synthesized or played right
// now. Paused narration is silent and does not count.
func (n *Narrator) IsSpeaking() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.speaking && !n.paused
}

// Close stops playback and the processing goroutine. The shared audio
// output is left open.
func (n *Narrator) Close() error {
	n.closeOnce.Do(func() {
		n.mu.Lock()
		n.closed = true
		if n.playCancel != nil {
			n.playCancel()
		}
		n.mu.Unlock()

		n.cancel()
		n.out.Stop()
		<-n.done
		n.log.Debug("narrator stopped (voice=%s)", n.voice)
	})
	return nil
}

func (n *Narrator) processLoop(ctx context.Context) {
	defer close(n.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-n.notify:
			n.drain()
		}
	}
}

func (n *Narrator) drain() {
	for {
		n.mu.Lock()
		if !n.queued || n.closed {
			n.mu.Unlock()
			return
		}
		text, playCtx := n.pending, n.playCtx
		n.queued = false
		n.speaking = true
		n.mu.Unlock()

		n.speak(playCtx, text)

		n.mu.Lock()
		n.speaking = false
		n.mu.Unlock()
	}
}

// supersedeLocked cancels the narration in flight and opens the context for
// the next one.
func (n *Narrator) supersedeLocked() {
	if n.playCancel != nil {
		n.playCancel()
	}
	n.playCtx, n.playCancel = context.WithCancel(n.base)
}

// speak synthesizes and plays one narration, using chunked parallel
// synthesis for long text. ctx is cancelled once a newer Play arrives; the
// output refuses to start a clip after that.
func (n *Narrator) speak(ctx context.Context, text string) {
	chunks := splitChunks(text, n.chunkSize)

	type result struct {
		idx   int
		audio []byte
		err   error
	}
	results := make(chan result, len(chunks))
	for i, chunk := range chunks {
		go func(idx int, t string) {
			audio, err := n.synthesizeWithCache(ctx, t)
			results <- result{idx: idx, audio: audio, err: err}
		}(i, chunk)
	}

	audioSlots := make([][]byte, len(chunks))
	for range chunks {
		r := <-results
		if r.err != nil {
			if ctx.Err() == nil {
				n.log.Error("narrator: chunk %d synthesis failed: %v", r.idx, r.err)
			}
			continue
		}
		audioSlots[r.idx] = r.audio
	}

	for i, audio := range audioSlots {
		if audio == nil {
			continue
		}
		if ctx.Err() != nil {
			n.log.Debug("narrator: dropping stale narration")
			return
		}
		if err := n.out.Play(ctx, audio); err != nil {
			n.log.Error("narrator: chunk %d playback failed: %v", i, err)
		}
	}
}

func (n *Narrator) synthesizeWithCache(ctx context.Context, text string) ([]byte, error) {
	if n.cache != nil {
		if audio, ok := n.cache.Get(n.voice, text); ok {
			return audio, nil
		}
	}
	audio, err := n.synth.Synthesize(ctx, n.voice, text)
	if err != nil {
		return nil, err
	}
	if n.cache != nil {
		n.cache.Put(n.voice, text, audio)
	}
	return audio, nil
}

// Prefetch pre-synthesizes texts into the cache in the background so the
// first Play of each starts instantly. Already-cached text is skipped.
func (n *Narrator) Prefetch(ctx context.Context, texts ...string) {
	if n.cache == nil {
		return
	}
	for _, text := range texts {
		for _, chunk := range splitChunks(strings.TrimSpace(text), n.chunkSize) {
			if chunk == "" || n.cache.Has(n.voice, chunk) {
				continue
			}
			go func(t string) {
				audio, err := n.synth.Synthesize(ctx, n.voice, t)
				if err != nil {
					n.log.Warn("prefetch: synthesis failed: %v", err)
					return
				}
				n.cache.Put(n.voice, t, audio)
			}(chunk)
		}
	}
}

// splitChunks breaks text into sentence-boundary chunks of approximately
// size characters. Short text (or size <= 0) comes back as one chunk.
func splitChunks(text string, size int) []string {
	if size <= 0 || len(text) <= size {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder
	for _, s := range splitSentences(text) {
		if current.Len() > 0 && current.Len()+len(s) > size {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
		}
		current.WriteString(s)
	}
	if current.Len() > 0 {
		chunks = append(chunks, strings.TrimSpace(current.String()))
	}

	out := chunks[:0]
	for _, c := range chunks {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

// splitSentences splits text at sentence boundaries (. ! ?) keeping the
// punctuation attached to the preceding sentence.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		current.WriteRune(runes[i])
		if isSentenceEnd(runes[i]) {
			for i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
				i++
				current.WriteRune(runes[i])
			}
			sentences = append(sentences, current.String())
			current.Reset()
		}
	}
	if current.Len() > 0 {
		sentences = append(sentences, current.String())
	}
	return sentences
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
