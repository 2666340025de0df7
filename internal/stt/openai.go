package stt

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements STT using the OpenAI audio transcription API.
// The API accepts the stored video containers (webm, mp4, ...) directly.
type OpenAIProvider struct {
	client  *openai.Client
	timeout time.Duration
}

// NewOpenAIProvider creates a new OpenAI STT provider
func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	return &OpenAIProvider{
		client:  openai.NewClient(apiKey),
		timeout: 90 * time.Second,
	}
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Transcribe sends the media file to the OpenAI transcription endpoint and
// returns the transcript. Decoding is deterministic: temperature 0 and a
// fixed priming prompt, no state carried between calls.
func (p *OpenAIProvider) Transcribe(mediaPath string) (*Result, error) {
	info, err := os.Stat(mediaPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat media file: %w", err)
	}

	log.Printf("[OpenAI STT] Processing media file: %s, size: %d bytes, extension: %s",
		mediaPath, info.Size(), filepath.Ext(mediaPath))

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	startTime := time.Now()
	resp, err := p.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:       openai.Whisper1,
		FilePath:    mediaPath,
		Prompt:      initialPrompt,
		Temperature: 0,
		Format:      openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI transcription failed: %w", err)
	}

	transcript := strings.TrimSpace(resp.Text)
	log.Printf("[OpenAI STT] Transcription finished: length=%d, duration=%v",
		len(transcript), time.Since(startTime))

	return &Result{
		Transcript:  transcript,
		Provider:    p.Name(),
		RawResponse: resp.Text,
	}, nil
}
