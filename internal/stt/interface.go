package stt

// Provider defines the interface for speech-to-text providers
type Provider interface {
	// Transcribe transcribes the audio track of a media file and returns
	// the result
	Transcribe(mediaPath string) (*Result, error)

	// Name returns the name of the provider (e.g., "openai", "whispercpp")
	Name() string
}
