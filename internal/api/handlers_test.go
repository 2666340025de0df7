package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"tresgo/internal/auth"
	"tresgo/internal/session"
	"tresgo/internal/upload"
)

var allowedExts = map[string]bool{".webm": true, ".mp4": true, ".mov": true, ".mkv": true}

type stubScheduler struct {
	mu   sync.Mutex
	jobs int
}

func (s *stubScheduler) Enqueue(sessionID string, questionIndex int, mediaPath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs++
}

func newTestServer(t *testing.T) (*gin.Engine, *session.Store, *stubScheduler) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	roster := auth.NewRoster(map[string]string{
		"11247188": "Nguyen Thi Thuy Linh",
		"11247205": "Vu Kim Minh",
	})
	store := session.NewStore(t.TempDir(), time.UTC)
	sched := &stubScheduler{}
	ingestor := upload.NewIngestor(store, sched, 50*1024*1024, allowedExts)

	r := gin.New()
	NewHandlers(roster, store, ingestor).RegisterRoutes(r)
	return r, store, sched
}

func postJSON(t *testing.T, r *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var envelope struct {
		Success bool           `json:"success"`
		Data    map[string]any `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
	if !envelope.Success {
		t.Fatalf("expected success envelope, got %s", w.Body.String())
	}
	return envelope.Data
}

func startSessionHelper(t *testing.T, r *gin.Engine) string {
	t.Helper()
	w := postJSON(t, r, "/api/session/start", gin.H{
		"token":    "11247188",
		"userName": "Nguyen Thi Thuy Linh",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("start returned %d: %s", w.Code, w.Body.String())
	}
	folder, _ := decodeData(t, w)["folder"].(string)
	if folder == "" {
		t.Fatal("start response missing folder")
	}
	return folder
}

func uploadAnswer(t *testing.T, r *gin.Engine, token, folder string, question int, fileName string, payload []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("token", token); err != nil {
		t.Fatalf("failed to write field: %v", err)
	}
	if err := mw.WriteField("folder", folder); err != nil {
		t.Fatalf("failed to write field: %v", err)
	}
	if err := mw.WriteField("questionIndex", fmt.Sprintf("%d", question)); err != nil {
		t.Fatalf("failed to write field: %v", err)
	}
	fw, err := mw.CreateFormFile("video", fileName)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := fw.Write(payload); err != nil {
		t.Fatalf("failed to write payload: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/upload-one", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestVerifyToken(t *testing.T) {
	r, _, _ := newTestServer(t)

	if w := postJSON(t, r, "/api/verify-token", gin.H{"token": "11247188"}); w.Code != http.StatusOK {
		t.Errorf("valid token returned %d", w.Code)
	}
	if w := postJSON(t, r, "/api/verify-token", gin.H{"token": "bogus"}); w.Code != http.StatusUnauthorized {
		t.Errorf("unknown token returned %d, want 401", w.Code)
	}
}

func TestStartSession(t *testing.T) {
	r, store, _ := newTestServer(t)

	folder := startSessionHelper(t, r)
	if !store.Exists(folder) {
		t.Fatalf("session folder %s was not created", folder)
	}
	if !strings.HasSuffix(folder, "_Nguyen_Thi_Thuy_Linh") {
		t.Errorf("folder %q should end with the sanitized name", folder)
	}

	meta := store.ReadMetadata(folder)
	if meta["status"] != session.StatusStarted {
		t.Errorf("status = %v, want %s", meta["status"], session.StatusStarted)
	}
	if meta["tokenOwner"] != "Nguyen Thi Thuy Linh" {
		t.Errorf("tokenOwner = %v", meta["tokenOwner"])
	}
}

func TestStartSessionNameMismatch(t *testing.T) {
	r, _, _ := newTestServer(t)

	w := postJSON(t, r, "/api/session/start", gin.H{
		"token":    "11247188",
		"userName": "Vu Kim Minh",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("name mismatch returned %d, want 401", w.Code)
	}
}

func TestUploadFlow(t *testing.T) {
	r, store, sched := newTestServer(t)
	folder := startSessionHelper(t, r)

	w := uploadAnswer(t, r, "11247188", folder, 3, "answer.mp4", make([]byte, 2*1024*1024))
	if w.Code != http.StatusOK {
		t.Fatalf("upload returned %d: %s", w.Code, w.Body.String())
	}
	if saved, _ := decodeData(t, w)["savedAs"].(string); saved != "Q3.mp4" {
		t.Errorf("savedAs = %q, want Q3.mp4", saved)
	}

	files, _ := store.ReadMetadata(folder)["files"].([]any)
	if len(files) != 1 {
		t.Fatalf("expected 1 upload record, got %v", files)
	}
	rec := files[0].(map[string]any)
	if idx, _ := rec["questionIndex"].(float64); idx != 3 {
		t.Errorf("questionIndex = %v, want 3", rec["questionIndex"])
	}

	if sched.jobs != 1 {
		t.Errorf("expected 1 transcription job scheduled, got %d", sched.jobs)
	}
}

func TestUploadErrors(t *testing.T) {
	r, _, _ := newTestServer(t)
	folder := startSessionHelper(t, r)

	tests := []struct {
		name     string
		token    string
		folder   string
		fileName string
		wantCode int
	}{
		{name: "bad token", token: "bogus", folder: folder, fileName: "a.webm", wantCode: http.StatusUnauthorized},
		{name: "unknown session", token: "11247188", folder: "no_such_session", fileName: "a.webm", wantCode: http.StatusNotFound},
		{name: "bad extension", token: "11247188", folder: folder, fileName: "a.txt", wantCode: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := uploadAnswer(t, r, tt.token, tt.folder, 1, tt.fileName, []byte("data"))
			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.wantCode, w.Body.String())
			}
		})
	}
}

func TestUploadTooLarge(t *testing.T) {
	gin.SetMode(gin.TestMode)
	roster := auth.NewRoster(map[string]string{"tok": "Alice"})
	store := session.NewStore(t.TempDir(), time.UTC)
	sched := &stubScheduler{}
	// 1 MB ceiling for the test
	ingestor := upload.NewIngestor(store, sched, 1024*1024, allowedExts)

	r := gin.New()
	NewHandlers(roster, store, ingestor).RegisterRoutes(r)

	w := postJSON(t, r, "/api/session/start", gin.H{"token": "tok", "userName": "Alice"})
	folder, _ := decodeData(t, w)["folder"].(string)

	resp := uploadAnswer(t, r, "tok", folder, 1, "big.webm", make([]byte, 2*1024*1024))
	if resp.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413: %s", resp.Code, resp.Body.String())
	}
	// Start wrote an empty files list; the failed upload must not grow it.
	if files, ok := store.ReadMetadata(folder)["files"].([]any); ok && len(files) != 0 {
		t.Errorf("oversized upload must not add an upload record, got %v", files)
	}
}

func TestFinishSession(t *testing.T) {
	r, store, _ := newTestServer(t)
	folder := startSessionHelper(t, r)

	w := postJSON(t, r, "/api/session/finish", gin.H{
		"token":          "11247188",
		"folder":         folder,
		"questionsCount": 5,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("finish returned %d: %s", w.Code, w.Body.String())
	}

	meta := store.ReadMetadata(folder)
	if meta["status"] != session.StatusFinished {
		t.Errorf("status = %v, want %s", meta["status"], session.StatusFinished)
	}
	if n, _ := meta["totalQuestions"].(float64); n != 5 {
		t.Errorf("totalQuestions = %v, want 5", meta["totalQuestions"])
	}
	// Start-time fields must survive the finish merge.
	if meta["userName"] != "Nguyen Thi Thuy Linh" {
		t.Errorf("userName lost on finish: %v", meta["userName"])
	}
	if meta["endTime"] == nil {
		t.Error("endTime missing")
	}
}

func TestFinishWithoutStart(t *testing.T) {
	r, store, _ := newTestServer(t)

	w := postJSON(t, r, "/api/session/finish", gin.H{
		"folder":         "orphan_session",
		"questionsCount": 2,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("finish without start returned %d: %s", w.Code, w.Body.String())
	}

	meta := store.ReadMetadata("orphan_session")
	if meta["status"] != session.StatusFinished {
		t.Errorf("status = %v, want %s", meta["status"], session.StatusFinished)
	}
	if meta["userName"] != nil {
		t.Errorf("unexpected start fields: %v", meta)
	}
}

func TestHealth(t *testing.T) {
	r, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("health returned %d", w.Code)
	}
}
