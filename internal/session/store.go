package session

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

const (
	metadataFile   = "meta.json"
	transcriptFile = "transcript.txt"

	StatusStarted  = "started"
	StatusFinished = "finished"
)

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9]`)

// Store owns the directory-per-session layout: each session is one folder
// under baseDir holding a meta.json record, the stored media files and an
// append-only transcript.txt. All metadata writes for a session go through
// a per-session mutex, so concurrent read-merge-write updates cannot lose
// each other.
type Store struct {
	baseDir string
	loc     *time.Location

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates a store rooted at baseDir. Timestamps in metadata and
// transcript entries use loc.
func NewStore(baseDir string, loc *time.Location) *Store {
	if loc == nil {
		loc = time.Local
	}
	return &Store{
		baseDir: baseDir,
		loc:     loc,
		locks:   make(map[string]*sync.Mutex),
	}
}

// FolderName generates a session folder name from the creation time and a
// sanitized display name: DD_MM_YYYY_HH_MM_user_name.
func FolderName(displayName string, now time.Time) string {
	safeName := unsafeChars.ReplaceAllString(displayName, "_")
	return now.Format("02_01_2006_15_04") + "_" + safeName
}

// Now returns the current time in the store's configured timezone.
func (s *Store) Now() time.Time {
	return time.Now().In(s.loc)
}

// Create ensures the session directory exists and returns its path.
// Creating an existing session is not an error.
func (s *Store) Create(id string) (string, error) {
	if !validID(id) {
		return "", fmt.Errorf("invalid session id: %q", id)
	}
	dir := s.Dir(id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create session directory: %w", err)
	}
	return dir, nil
}

// Exists reports whether the session directory exists.
func (s *Store) Exists(id string) bool {
	if !validID(id) {
		return false
	}
	info, err := os.Stat(s.Dir(id))
	return err == nil && info.IsDir()
}

// Dir returns the session directory path.
func (s *Store) Dir(id string) string {
	return filepath.Join(s.baseDir, id)
}

// MediaPath returns the on-disk path for a stored media file.
func (s *Store) MediaPath(id, fileName string) string {
	return filepath.Join(s.baseDir, id, fileName)
}

// UpdateMetadata shallow-merges fields over the session's existing
// metadata record and rewrites the file in full. A missing or corrupt
// record is treated as empty, so the first update creates the file. Keys
// absent from fields are preserved.
func (s *Store) UpdateMetadata(id string, fields map[string]any) error {
	lock := s.lock(id)
	lock.Lock()
	defer lock.Unlock()

	meta := s.readMeta(id)
	for k, v := range fields {
		meta[k] = v
	}
	return s.writeMeta(id, meta)
}

// ReadMetadata returns the session's metadata record. A missing or corrupt
// file yields an empty record, not an error: callers treat that as "not
// yet initialized".
func (s *Store) ReadMetadata(id string) map[string]any {
	lock := s.lock(id)
	lock.Lock()
	defer lock.Unlock()

	return s.readMeta(id)
}

// AppendUploadRecord appends one upload record to the metadata files list.
// Records are immutable once written and ordered by arrival.
func (s *Store) AppendUploadRecord(id string, questionIndex int, fileName string, size int64) error {
	lock := s.lock(id)
	lock.Lock()
	defer lock.Unlock()

	meta := s.readMeta(id)
	files, _ := meta["files"].([]any)
	files = append(files, map[string]any{
		"questionIndex": questionIndex,
		"fileName":      fileName,
		"fileSize":      humanSize(size),
		"uploadedAt":    s.Now().Format(time.RFC3339),
	})
	meta["files"] = files

	return s.writeMeta(id, meta)
}

// AppendTranscript appends one timestamped transcript block for a question.
// The transcript is a log: re-transcribing the same question appends a new
// block, prior blocks are never touched.
func (s *Store) AppendTranscript(id string, questionIndex int, text string) error {
	lock := s.lock(id)
	lock.Lock()
	defer lock.Unlock()

	path := filepath.Join(s.Dir(id), transcriptFile)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open transcript: %w", err)
	}
	defer f.Close()

	block := fmt.Sprintf("[%s] Question %d:\n%s\n%s\n",
		s.Now().Format("15:04:05"), questionIndex, text, strings.Repeat("-", 30))
	if _, err := f.WriteString(block); err != nil {
		return fmt.Errorf("failed to append transcript: %w", err)
	}
	return nil
}

// lock returns the mutex serializing writes for one session.
func (s *Store) lock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

func (s *Store) readMeta(id string) map[string]any {
	meta := make(map[string]any)
	data, err := os.ReadFile(filepath.Join(s.Dir(id), metadataFile))
	if err != nil {
		return meta
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		log.Printf("[Session] Corrupt metadata for %s, starting fresh: %v", id, err)
		return make(map[string]any)
	}
	return meta
}

func (s *Store) writeMeta(id string, meta map[string]any) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.Dir(id), metadataFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

// validID rejects ids that would escape the base directory.
func validID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, `/\`)
}

// humanSize formats a byte count the way the metadata record reports it.
func humanSize(size int64) string {
	return fmt.Sprintf("%.2f KB", float64(size)/1024)
}
