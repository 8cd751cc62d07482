package speech

import (
	"context"
	"encoding/binary"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hammamikhairi/storyplated/internal/logger"
)

func TestAzureSynthesize(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Ocp-Apim-Subscription-Key") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Header.Get("X-Microsoft-OutputFormat") != DefaultAudioFormat {
			t.Errorf("format header = %q", r.Header.Get("X-Microsoft-OutputFormat"))
		}
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		_, _ = w.Write([]byte("RIFF-audio"))
	}))
	defer srv.Close()

	c := NewAzureClient("secret", "westeurope", logger.New(logger.LevelOff, nil), WithEndpoint(srv.URL))
	audio, err := c.Synthesize(context.Background(), "en-GB-RyanNeural", "Eggs & bacon")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if string(audio) != "RIFF-audio" {
		t.Fatalf("audio = %q", audio)
	}
	if !strings.Contains(gotBody, "name='en-GB-RyanNeural'") || !strings.Contains(gotBody, "Eggs &amp; bacon") {
		t.Fatalf("unexpected SSML %s", gotBody)
	}
}

func TestAzureSynthesizeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad voice", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewAzureClient("secret", "westeurope", logger.New(logger.LevelOff, nil), WithEndpoint(srv.URL))
	_, err := c.Synthesize(context.Background(), "nope", "hi")
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestVoiceMapResolve(t *testing.T) {
	m := DefaultVoices()
	if got := m.Resolve("gandalf_voice"); got != "en-GB-ThomasNeural" {
		t.Fatalf("Resolve(gandalf_voice) = %q", got)
	}
	if got := m.Resolve("unknown"); got != DefaultVoice {
		t.Fatalf("Resolve(unknown) = %q", got)
	}
	if got := m.ResolveOr("unknown", "en-US-GuyNeural"); got != "en-US-GuyNeural" {
		t.Fatalf("ResolveOr(unknown) = %q", got)
	}
	if got := m.ResolveOr("sam_voice", "en-US-GuyNeural"); got != "en-GB-RyanNeural" {
		t.Fatalf("ResolveOr(sam_voice) = %q", got)
	}
}

func TestExtractPCM(t *testing.T) {
	pcm := []byte{1, 2, 3, 4}
	wav := make([]byte, 0, 44+len(pcm))
	wav = append(wav, "RIFF"...)
	wav = binary.LittleEndian.AppendUint32(wav, uint32(36+len(pcm)))
	wav = append(wav, "WAVE"...)
	wav = append(wav, "fmt "...)
	wav = binary.LittleEndian.AppendUint32(wav, 16)
	wav = append(wav, make([]byte, 16)...)
	wav = append(wav, "data"...)
	wav = binary.LittleEndian.AppendUint32(wav, uint32(len(pcm)))
	wav = append(wav, pcm...)

	got, err := extractPCM(wav)
	if err != nil {
		t.Fatalf("extractPCM: %v", err)
	}
	if string(got) != string(pcm) {
		t.Fatalf("pcm = %v", got)
	}

	if _, err := extractPCM([]byte("short")); err == nil {
		t.Fatal("expected error for short data")
	}
	bad := append([]byte("RIFX"), wav[4:]...)
	if _, err := extractPCM(bad); err == nil {
		t.Fatal("expected error for non-RIFF data")
	}
}
