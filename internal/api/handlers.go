package api

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"tresgo/internal/auth"
	"tresgo/internal/session"
	"tresgo/internal/upload"
	"tresgo/internal/utils"
)

// Handlers wires the session lifecycle to the HTTP layer: start creates
// the session folder and initial metadata, each upload goes through the
// ingestor, finish seals the metadata record. Question-index ordering and
// uniqueness are the client's business; indices are stored as given.
type Handlers struct {
	roster   *auth.Roster
	store    *session.Store
	ingestor *upload.Ingestor
}

func NewHandlers(roster *auth.Roster, store *session.Store, ingestor *upload.Ingestor) *Handlers {
	return &Handlers{
		roster:   roster,
		store:    store,
		ingestor: ingestor,
	}
}

func (h *Handlers) RegisterRoutes(r *gin.Engine) {
	// Health check
	r.GET("/health", h.healthCheck)

	api := r.Group("/api")
	{
		api.POST("/verify-token", h.verifyToken)
		api.POST("/session/start", h.startSession)
		api.POST("/upload-one", h.uploadOne)
		api.POST("/session/finish", h.finishSession)
	}
}

// healthCheck returns server health status
func (h *Handlers) healthCheck(c *gin.Context) {
	utils.Success(c, gin.H{
		"status":  "ok",
		"service": "tresgo-backend",
	})
}

// TokenCheckRequest is the body of POST /api/verify-token
type TokenCheckRequest struct {
	Token string `json:"token" binding:"required"`
}

// verifyToken validates a token against the roster
func (h *Handlers) verifyToken(c *gin.Context) {
	var req TokenCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, http.StatusBadRequest, "token is required")
		return
	}

	if _, err := h.roster.Verify(req.Token); err != nil {
		utils.Error(c, http.StatusUnauthorized, "invalid token")
		return
	}

	utils.Success(c, gin.H{"ok": true})
}

// SessionStartRequest is the body of POST /api/session/start
type SessionStartRequest struct {
	Token    string `json:"token" binding:"required"`
	UserName string `json:"userName" binding:"required"`
}

// startSession validates identity, creates the session folder and writes
// the initial metadata record
func (h *Handlers) startSession(c *gin.Context) {
	var req SessionStartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, http.StatusBadRequest, "token and userName are required")
		return
	}

	owner, err := h.roster.VerifyName(req.Token, req.UserName)
	if err != nil {
		utils.Error(c, http.StatusUnauthorized, err.Error())
		return
	}

	sessionID := session.FolderName(req.UserName, h.store.Now())
	if _, err := h.store.Create(sessionID); err != nil {
		log.Printf("[API] Failed to create session %s: %v", sessionID, err)
		utils.Error(c, http.StatusInternalServerError, "failed to create session")
		return
	}

	err = h.store.UpdateMetadata(sessionID, map[string]any{
		"userName":   req.UserName,
		"tokenOwner": owner,
		"startTime":  h.store.Now().Format(time.RFC3339),
		"status":     session.StatusStarted,
		"files":      []any{},
	})
	if err != nil {
		log.Printf("[API] Failed to write initial metadata for %s: %v", sessionID, err)
		utils.Error(c, http.StatusInternalServerError, "failed to initialize session")
		return
	}

	log.Printf("[API] Session started: %s (owner: %s)", sessionID, owner)
	utils.Success(c, gin.H{"folder": sessionID})
}

// uploadOne receives the video file for one question, stores it and
// schedules background transcription
func (h *Handlers) uploadOne(c *gin.Context) {
	token := c.PostForm("token")
	if _, err := h.roster.Verify(token); err != nil {
		utils.Error(c, http.StatusUnauthorized, "invalid token")
		return
	}

	folder := c.PostForm("folder")
	if folder == "" {
		utils.Error(c, http.StatusBadRequest, "folder is required")
		return
	}

	questionIndex, err := strconv.Atoi(c.PostForm("questionIndex"))
	if err != nil {
		utils.Error(c, http.StatusBadRequest, "questionIndex must be an integer")
		return
	}

	file, err := c.FormFile("video")
	if err != nil {
		utils.Error(c, http.StatusBadRequest, "video file is required")
		return
	}

	src, err := file.Open()
	if err != nil {
		log.Printf("[API] Failed to open uploaded file: %v", err)
		utils.Error(c, http.StatusInternalServerError, "failed to read upload")
		return
	}
	defer src.Close()

	storedName, err := h.ingestor.Ingest(folder, questionIndex, file.Filename, src)
	if err != nil {
		switch {
		case errors.Is(err, upload.ErrUnsupportedFormat):
			utils.Error(c, http.StatusBadRequest, err.Error())
		case errors.Is(err, upload.ErrSessionNotFound):
			utils.Error(c, http.StatusNotFound, "session folder not found")
		case errors.Is(err, upload.ErrTooLarge):
			utils.Error(c, http.StatusRequestEntityTooLarge, err.Error())
		default:
			log.Printf("[API] Upload failed for %s Q%d: %v", folder, questionIndex, err)
			utils.Error(c, http.StatusInternalServerError, "file write error")
		}
		return
	}

	utils.Success(c, gin.H{"savedAs": storedName})
}

// SessionFinishRequest is the body of POST /api/session/finish
type SessionFinishRequest struct {
	Token          string `json:"token"`
	Folder         string `json:"folder" binding:"required"`
	QuestionsCount int    `json:"questionsCount"`
}

// finishSession seals the session metadata. Finishing a session that was
// never started still produces a metadata record with the finish fields.
func (h *Handlers) finishSession(c *gin.Context) {
	var req SessionFinishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, http.StatusBadRequest, "folder is required")
		return
	}

	if _, err := h.store.Create(req.Folder); err != nil {
		utils.Error(c, http.StatusBadRequest, "invalid session folder")
		return
	}

	err := h.store.UpdateMetadata(req.Folder, map[string]any{
		"status":         session.StatusFinished,
		"totalQuestions": req.QuestionsCount,
		"endTime":        h.store.Now().Format(time.RFC3339),
	})
	if err != nil {
		log.Printf("[API] Failed to finish session %s: %v", req.Folder, err)
		utils.Error(c, http.StatusInternalServerError, "failed to finish session")
		return
	}

	log.Printf("[API] Session finished: %s (%d questions declared)", req.Folder, req.QuestionsCount)
	utils.Success(c, gin.H{"ok": true})
}
