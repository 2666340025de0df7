package stt

import (
	"fmt"
	"log"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// WhisperCppProvider implements STT by invoking a local whisper.cpp binary.
// No API key and no network; the binary decodes the media file's audio
// track itself.
type WhisperCppProvider struct {
	bin       string
	modelPath string
}

// NewWhisperCppProvider creates a new whisper.cpp STT provider
func NewWhisperCppProvider(bin, modelPath string) *WhisperCppProvider {
	return &WhisperCppProvider{
		bin:       bin,
		modelPath: modelPath,
	}
}

// Name returns the provider name
func (p *WhisperCppProvider) Name() string {
	return "whispercpp"
}

// Transcribe runs the whisper.cpp binary with deterministic decoding
// parameters: temperature 0, a small beam search instead of greedy decode,
// no carry-over of previous output as context, and the fixed priming
// prompt.
func (p *WhisperCppProvider) Transcribe(mediaPath string) (*Result, error) {
	startTime := time.Now()

	cmd := exec.Command(p.bin,
		"-m", p.modelPath,
		"-f", mediaPath,
		"--beam-size", strconv.Itoa(beamSize),
		"--temperature", "0",
		"--no-context",
		"--no-timestamps",
		"--prompt", initialPrompt,
	)

	out, err := cmd.Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("whisper.cpp failed: %s", strings.TrimSpace(string(ee.Stderr)))
		}
		return nil, fmt.Errorf("failed to run whisper.cpp: %w", err)
	}

	transcript := strings.TrimSpace(string(out))
	log.Printf("[Whisper STT] Transcription finished: length=%d, duration=%v",
		len(transcript), time.Since(startTime))

	return &Result{
		Transcript:  transcript,
		Provider:    p.Name(),
		RawResponse: string(out),
	}, nil
}
