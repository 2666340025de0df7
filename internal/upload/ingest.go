package upload

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"tresgo/internal/session"
)

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrTooLarge          = errors.New("file too large")
)

// chunkSize is the streaming copy buffer: 1 MiB, so the size ceiling is
// enforced mid-stream without buffering the body.
const chunkSize = 1024 * 1024

// Scheduler schedules background transcription for a stored file. The
// worker satisfies it; tests substitute their own.
type Scheduler interface {
	Enqueue(sessionID string, questionIndex int, mediaPath string)
}

// Ingestor streams one answer's upload to disk under the session folder,
// enforcing the extension allow-list and the byte-size ceiling as it goes.
type Ingestor struct {
	store     *session.Store
	scheduler Scheduler
	maxBytes  int64
	allowed   map[string]bool
}

// NewIngestor creates an ingestor. allowed maps lowercase extensions
// (".webm") to true; maxBytes is the hard ceiling on stored size.
func NewIngestor(store *session.Store, scheduler Scheduler, maxBytes int64, allowed map[string]bool) *Ingestor {
	return &Ingestor{
		store:     store,
		scheduler: scheduler,
		maxBytes:  maxBytes,
		allowed:   allowed,
	}
}

// Ingest stores the byte stream for one (session, question) pair and
// returns the stored file name. The destination name is derived from the
// question index and the validated extension, never from the raw client
// filename. On any failure no partial file remains. On success the session
// metadata gains an upload record and transcription is scheduled; the
// caller does not wait for it.
func (ing *Ingestor) Ingest(sessionID string, questionIndex int, fileNameHint string, body io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(fileNameHint))
	if !ing.allowed[ext] {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}

	if !ing.store.Exists(sessionID) {
		return "", ErrSessionNotFound
	}

	storedName := fmt.Sprintf("Q%d%s", questionIndex, ext)
	dest := ing.store.MediaPath(sessionID, storedName)

	written, err := ing.streamToFile(dest, body)
	if err != nil {
		return "", err
	}

	log.Printf("[Upload] Stored %s for session %s (%d bytes)", storedName, sessionID, written)

	if err := ing.store.AppendUploadRecord(sessionID, questionIndex, storedName, written); err != nil {
		return "", fmt.Errorf("failed to record upload: %w", err)
	}

	ing.scheduler.Enqueue(sessionID, questionIndex, dest)

	return storedName, nil
}

// streamToFile copies body to dest in fixed-size chunks, tracking the
// cumulative size. The moment the ceiling is exceeded it stops reading,
// removes the partial file and fails; an oversized or truncated file is
// never left behind.
func (ing *Ingestor) streamToFile(dest string, body io.Reader) (int64, error) {
	out, err := os.Create(dest)
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}

	var written int64
	buf := make([]byte, chunkSize)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			written += int64(n)
			if written > ing.maxBytes {
				out.Close()
				os.Remove(dest)
				return 0, fmt.Errorf("%w: limit is %d MB", ErrTooLarge, ing.maxBytes/(1024*1024))
			}
			if _, err := out.Write(buf[:n]); err != nil {
				out.Close()
				os.Remove(dest)
				return 0, fmt.Errorf("file write error: %w", err)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			out.Close()
			os.Remove(dest)
			return 0, fmt.Errorf("stream read error: %w", readErr)
		}
	}

	if err := out.Close(); err != nil {
		os.Remove(dest)
		return 0, fmt.Errorf("failed to close file: %w", err)
	}

	return written, nil
}
