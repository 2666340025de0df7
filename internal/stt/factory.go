package stt

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// initialPrompt biases decoding toward the expected register of answers.
// Every question is transcribed independently with this same prompt, so
// repetition artifacts never bleed across segments.
const initialPrompt = "Interview context. The candidate answers in English. " +
	"Keywords: IT, programming, teamwork, development, project."

// beamSize trades a small amount of extra compute for better accuracy than
// a purely greedy decode.
const beamSize = 2

// CreateProvider creates an STT provider based on environment configuration
func CreateProvider() (Provider, error) {
	providerName := strings.ToLower(os.Getenv("STT_PROVIDER"))

	// Default to OpenAI if not specified
	if providerName == "" {
		providerName = "openai"
		log.Printf("[STT Factory] STT_PROVIDER not set, defaulting to 'openai'")
	}

	switch providerName {
	case "openai":
		return createOpenAIProvider()
	case "whispercpp":
		return createWhisperCppProvider()
	default:
		return nil, fmt.Errorf("unsupported STT provider: %s. Supported: openai, whispercpp", providerName)
	}
}

func createOpenAIProvider() (Provider, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable is not set")
	}

	log.Printf("[STT Factory] Creating OpenAI STT provider")
	return NewOpenAIProvider(apiKey), nil
}

func createWhisperCppProvider() (Provider, error) {
	bin := os.Getenv("WHISPER_BIN")
	if bin == "" {
		bin = "whisper-cli"
		log.Printf("[STT Factory] WHISPER_BIN not set, using default: %s", bin)
	}

	modelPath := os.Getenv("WHISPER_MODEL")
	if modelPath == "" {
		return nil, fmt.Errorf("WHISPER_MODEL environment variable is not set (path to a ggml model file)")
	}

	log.Printf("[STT Factory] Creating whisper.cpp STT provider with model %s", modelPath)
	return NewWhisperCppProvider(bin, modelPath), nil
}
