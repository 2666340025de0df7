package transcribe

import (
	"context"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"

	"tresgo/internal/session"
	"tresgo/internal/stt"
)

// SentinelNoSpeech is stored instead of engine noise when a question has no
// discernible speech.
const SentinelNoSpeech = "[Audio unclear / No speech detected]"

// minPlausibleSize is the size below which a stored file is treated as
// empty or corrupt and skipped without a transcript entry.
const minPlausibleSize = 1000

// shortArtifactLen bounds how long an output can be and still count as a
// silence hallucination rather than real speech.
const shortArtifactLen = 30

// artifactPhrases are boilerplate outputs the engine sometimes hallucinates
// on silent audio.
var artifactPhrases = []string{
	"Subtitles by",
	"Amara.org",
	"Thank you",
	"Watching",
}

// Job is one transcription request for an uploaded answer.
type Job struct {
	ID            uuid.UUID
	SessionID     string
	QuestionIndex int
	MediaPath     string
}

// Worker consumes transcription jobs off a bounded queue with a small pool
// of goroutines. It runs entirely out of band: enqueueing never blocks the
// upload path, and every failure is logged and absorbed rather than
// surfaced to the caller, who has already been answered.
type Worker struct {
	store    *session.Store
	provider stt.Provider

	jobs      chan Job
	wg        sync.WaitGroup
	closeOnce sync.Once

	mu     sync.Mutex
	closed bool
}

// NewWorker creates the worker and starts its pool.
func NewWorker(store *session.Store, provider stt.Provider, workers, queueSize int) *Worker {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}

	w := &Worker{
		store:    store,
		provider: provider,
		jobs:     make(chan Job, queueSize),
	}

	for i := 0; i < workers; i++ {
		w.wg.Add(1)
		go w.run()
	}

	return w
}

// Enqueue schedules transcription for an uploaded file and returns
// immediately. If the queue is full, or the worker is already shutting
// down, the job is dropped and logged; the interview flow must never
// stall on transcription backlog.
func (w *Worker) Enqueue(sessionID string, questionIndex int, mediaPath string) {
	job := Job{
		ID:            uuid.New(),
		SessionID:     sessionID,
		QuestionIndex: questionIndex,
		MediaPath:     mediaPath,
	}

	// The mutex pairs the closed check with the send, so a request that
	// straggles in during shutdown cannot hit a closed channel.
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		log.Printf("[Worker] Shutting down, dropping job for session=%s question=%d", sessionID, questionIndex)
		return
	}

	select {
	case w.jobs <- job:
		log.Printf("[Worker] Job %s queued: session=%s question=%d", job.ID, sessionID, questionIndex)
	default:
		log.Printf("[Worker] Queue full, dropping job for session=%s question=%d", sessionID, questionIndex)
	}
}

// Shutdown stops intake and drains in-flight jobs until ctx expires. Jobs
// still queued when the deadline hits are lost; that loss window is a
// documented property of the platform.
func (w *Worker) Shutdown(ctx context.Context) {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		w.closed = true
		close(w.jobs)
		w.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Printf("[Worker] Drained")
	case <-ctx.Done():
		log.Printf("[Worker] Shutdown deadline reached, pending transcriptions dropped")
	}
}

func (w *Worker) run() {
	defer w.wg.Done()
	for job := range w.jobs {
		w.process(job)
	}
}

// process runs one job end to end. Nothing escapes: errors and panics are
// logged and the job simply ends, leaving no partial transcript entry.
func (w *Worker) process(job Job) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Worker] Job %s panicked: %v", job.ID, r)
		}
	}()

	if w.provider == nil {
		log.Printf("[Worker] Job %s: no STT provider configured, skipping Q%d", job.ID, job.QuestionIndex)
		return
	}

	info, err := os.Stat(job.MediaPath)
	if err != nil {
		log.Printf("[Worker] Job %s: cannot stat %s: %v", job.ID, job.MediaPath, err)
		return
	}
	if info.Size() < minPlausibleSize {
		log.Printf("[Worker] Job %s: Q%d file too small (%d bytes), skipping", job.ID, job.QuestionIndex, info.Size())
		return
	}

	log.Printf("[Worker] Job %s: transcribing Q%d via %s", job.ID, job.QuestionIndex, w.provider.Name())

	result, err := w.provider.Transcribe(job.MediaPath)
	if err != nil {
		log.Printf("[Worker] Job %s: transcription failed for Q%d: %v", job.ID, job.QuestionIndex, err)
		return
	}

	text := FilterTranscript(result.Transcript)

	if err := w.store.AppendTranscript(job.SessionID, job.QuestionIndex, text); err != nil {
		log.Printf("[Worker] Job %s: failed to append transcript for Q%d: %v", job.ID, job.QuestionIndex, err)
		return
	}

	log.Printf("[Worker] Job %s: finished Q%d", job.ID, job.QuestionIndex)
}

// FilterTranscript replaces low-signal engine output with the no-speech
// sentinel: empty text, or a very short output matching a known silence
// hallucination. Anything longer is kept verbatim.
func FilterTranscript(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return SentinelNoSpeech
	}
	if len(text) < shortArtifactLen {
		for _, phrase := range artifactPhrases {
			if strings.Contains(text, phrase) {
				return SentinelNoSpeech
			}
		}
	}
	return text
}
