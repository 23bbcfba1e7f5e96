package api

import (
	"database/sql"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"revizo/internal/models"
	"revizo/internal/services"
	"revizo/internal/store"
)

const maxMultipartMemory = 16 << 20 // 16 MB

// Server is the thin HTTP shell over the assembly pipeline. Routing, auth
// and JSON mapping only; all behavior lives in the services layer.
type Server struct {
	mux       *http.ServeMux
	assembly  *services.AssemblyService
	store     *store.Store
	validate  *validator.Validate
	jwtSecret []byte
	log       *zap.Logger
}

func NewServer(assembly *services.AssemblyService, st *store.Store, jwtSecret string, log *zap.Logger) *Server {
	s := &Server{
		mux:       http.NewServeMux(),
		assembly:  assembly,
		store:     st,
		validate:  validator.New(),
		jwtSecret: []byte(jwtSecret),
		log:       log,
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/sessions", s.requireAuth(s.handleCreateSession))
	s.mux.HandleFunc("/api/sessions/", s.requireAuth(s.handleSessionActions))
	s.mux.HandleFunc("/api/themes", s.requireAuth(s.handleListThemes))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createSessionForm struct {
	SessionType    string `validate:"required"`
	QuestionsCount int    `validate:"min=1,max=50"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	form := createSessionForm{
		SessionType:    r.FormValue("session_type"),
		QuestionsCount: 10,
	}
	if raw := r.FormValue("questions_count"); raw != "" {
		count, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "questions_count must be an integer")
			return
		}
		form.QuestionsCount = count
	}
	if err := s.validate.Struct(form); err != nil {
		writeError(w, http.StatusBadRequest, "session_type is required and questions_count must be between 1 and 50")
		return
	}
	kind, err := models.ParseSessionKind(form.SessionType)
	if err != nil {
		writeError(w, http.StatusBadRequest, "session_type must be quiz or flashcard")
		return
	}

	file, header, err := r.FormFile("pdf_file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing pdf_file")
		return
	}
	defer file.Close()
	if !strings.HasSuffix(strings.ToLower(header.Filename), ".pdf") {
		writeError(w, http.StatusBadRequest, "file must be a PDF")
		return
	}
	pdfData, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read upload")
		return
	}

	result, err := s.assembly.CreateSessionFromPDF(r.Context(), userID, pdfData, kind, form.QuestionsCount)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"session": sessionPayload(result.Session),
		"theme": map[string]any{
			"id":           result.Theme.ID,
			"name":         result.Theme.Name,
			"was_existing": result.ThemeWasExisting,
		},
		"pooled_count":    result.PooledCount,
		"generated_count": result.GeneratedCount,
	})
}

func (s *Server) handleSessionActions(w http.ResponseWriter, r *http.Request, userID string) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	switch {
	case strings.HasSuffix(rest, "/complete"):
		s.handleCompleteSession(w, r, userID, strings.TrimSuffix(rest, "/complete"))
	case rest != "" && !strings.Contains(rest, "/"):
		s.handleGetSession(w, r, userID, rest)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request, userID, sessionID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	session, err := s.store.GetSession(r.Context(), sessionID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if session.UserID != userID {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": sessionPayload(session)})
}

type completeSessionRequest struct {
	Score    int `json:"score" validate:"min=0"`
	MaxScore int `json:"max_score" validate:"min=1"`
}

func (s *Server) handleCompleteSession(w http.ResponseWriter, r *http.Request, userID, sessionID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	session, err := s.store.GetSession(r.Context(), sessionID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if session.UserID != userID {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	var req completeSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "score must be >= 0 and max_score >= 1")
		return
	}

	rate, err := s.assembly.CompleteSession(r.Context(), sessionID, req.Score, req.MaxScore)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":   sessionID,
		"success_rate": rate,
	})
}

func (s *Server) handleListThemes(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	themes, err := s.store.ListThemesByUser(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	payload := make([]map[string]any, 0, len(themes))
	for _, theme := range themes {
		payload = append(payload, map[string]any{
			"id":              theme.ID,
			"name":            theme.Name,
			"description":     nullStringValue(theme.Description),
			"keywords":        theme.Keywords,
			"questions_count": theme.QuestionsCount,
			"times_used":      theme.TimesUsed,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"themes": payload})
}

// writeServiceError maps pipeline errors onto HTTP statuses. Collaborator
// failures surface as a generic processing failure so provider detail never
// leaks to clients.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	var (
		validationErr *services.ValidationError
		extractionErr *services.ExtractionError
		generationErr *services.GenerationError
	)
	switch {
	case errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, validationErr.Msg)
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrAlreadyCompleted):
		writeError(w, http.StatusConflict, "session already completed")
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, "conflicting write, please retry")
	case errors.Is(err, services.ErrAIUnavailable):
		writeError(w, http.StatusServiceUnavailable, "content generation is not configured")
	case errors.As(err, &extractionErr), errors.As(err, &generationErr):
		s.log.Error("pipeline processing failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "processing failed")
	default:
		s.log.Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

const timeLayout = time.RFC3339

func sessionPayload(session *models.Session) map[string]any {
	return map[string]any{
		"id":              session.ID,
		"theme_id":        nullStringValue(session.ThemeID),
		"kind":            string(session.Kind),
		"questions_count": session.QuestionsCount,
		"question_ids":    session.QuestionIDs,
		"score":           nullInt64Value(session.Score),
		"max_score":       nullInt64Value(session.MaxScore),
		"started_at":      session.StartedAt.Format(timeLayout),
		"completed_at":    nullTimeToString(session.CompletedAt),
		"success_rate":    session.SuccessRate(),
	}
}

func nullTimeToString(t sql.NullTime) *string {
	if t.Valid {
		str := t.Time.Format(timeLayout)
		return &str
	}
	return nil
}

func nullStringValue(v sql.NullString) *string {
	if v.Valid {
		return &v.String
	}
	return nil
}

func nullInt64Value(v sql.NullInt64) *int64 {
	if v.Valid {
		return &v.Int64
	}
	return nil
}
