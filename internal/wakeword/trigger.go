package wakeword

import (
	"encoding/binary"
	"time"
)

// trigger decides when a run of model scores is a detection. It fires on
// the max score within a trailing window, which absorbs frame-alignment
// jitter (the peak may land one frame early or late), and then holds off
// for the cooldown.
type trigger struct {
	threshold  float64
	cooldown   time.Duration
	window     []float32
	idx        int
	lastDetect time.Time
	peak       float32 // highest score since the last stats dump
}

func newTrigger(threshold float64, cooldown time.Duration) *trigger {
	return &trigger{
		threshold: threshold,
		cooldown:  cooldown,
		window:    make([]float32, scoreWindowSize),
	}
}

// observe records a score and reports whether it completes a detection.
func (t *trigger) observe(score float32, now time.Time) bool {
	if score > t.peak {
		t.peak = score
	}
	t.window[t.idx%len(t.window)] = score
	t.idx++

	var maxScore float32
	for _, s := range t.window {
		if s > maxScore {
			maxScore = s
		}
	}
	if float64(maxScore) < t.threshold || now.Sub(t.lastDetect) <= t.cooldown {
		return false
	}

	t.lastDetect = now
	// Clear the window so the same peak doesn't fire again.
	for i := range t.window {
		t.window[i] = 0
	}
	return true
}

// reset forgets buffered scores but keeps the cooldown.
func (t *trigger) reset() {
	for i := range t.window {
		t.window[i] = 0
	}
	t.idx = 0
	t.peak = 0
}

// takePeak returns and clears the peak score.
func (t *trigger) takePeak() float32 {
	p := t.peak
	t.peak = 0
	return p
}

// decodePCM converts little-endian signed 16-bit samples.
func decodePCM(raw []byte) []int16 {
	n := len(raw) / 2
	pcm := make([]int16, n)
	for i := 0; i < n; i++ {
		pcm[i] = int16(binary.LittleEndian.Uint16(raw[i*2 : i*2+2]))
	}
	return pcm
}
