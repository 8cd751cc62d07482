package speech

import "time"

// Default voice for TTS, used when a character's voice ID has no mapping.
// Full list: https://learn.microsoft.com/en-us/azure/ai-services/speech-service/language-support
const DefaultVoice = "en-US-AvaNeural"

// Audio format returned by Azure and expected by the player.
const DefaultAudioFormat = "riff-24khz-16bit-mono-pcm"

// Audio parameters matching the default format.
const (
	SampleRate   = 24000
	ChannelCount = 1
	BitDepth     = 16
)

// Env var names for Azure Speech credentials.
const (
	EnvAzureSpeechKey    = "AZURE_SPEECH_KEY"
	EnvAzureSpeechRegion = "AZURE_SPEECH_REGION"
)

// Recognition defaults.
const (
	// DefaultSilenceWindow is how long the ear waits for speech before
	// giving up with ErrNoSpeechDetected.
	DefaultSilenceWindow = 2 * time.Second
	// DefaultChunkDuration is the length of each recorded clip.
	DefaultChunkDuration = time.Second
)

// VoiceMap resolves a character's opaque voice ID to an Azure voice name.
type VoiceMap map[string]string

// Resolve returns the mapped voice, or DefaultVoice.
func (m VoiceMap) Resolve(voiceID string) string {
	return m.ResolveOr(voiceID, "")
}

// ResolveOr returns the mapped voice, or fallback when voiceID has no
// mapping. An empty fallback means DefaultVoice.
func (m VoiceMap) ResolveOr(voiceID, fallback string) string {
	if v, ok := m[voiceID]; ok && v != "" {
		return v
	}
	if fallback != "" {
		return fallback
	}
	return DefaultVoice
}

// DefaultVoices maps the built-in characters' voice IDs.
func DefaultVoices() VoiceMap {
	return VoiceMap{
		"sam_voice":       "en-GB-RyanNeural",
		"gandalf_voice":   "en-GB-ThomasNeural",
		"galadriel_voice": "en-GB-SoniaNeural",
	}
}
