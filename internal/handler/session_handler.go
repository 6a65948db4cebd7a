package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/validator"
)

// SessionHandler serves the session REST endpoints.
type SessionHandler struct {
	proctor    *service.ProctorService
	catalogURL string
	log        zerolog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(proctor *service.ProctorService, catalogURL string, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		proctor:    proctor,
		catalogURL: catalogURL,
		log:        log.With().Str("component", "session_handler").Logger(),
	}
}

// CreateSessionResponse is returned when a session opens.
type CreateSessionResponse struct {
	SessionID    uuid.UUID                `json:"session_id"`
	State        model.SessionState       `json:"state"`
	Title        string                   `json:"title"`
	Duration     int                      `json:"duration"`
	Instructions []string                 `json:"instructions"`
	Questions    []model.QuestionForTaker `json:"questions"`
	Policy       config.Policy            `json:"policy"`
}

// CreateSession godoc
// POST /api/v1/sessions
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req model.CreateSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	m, instructions, err := h.proctor.Create(c.Request.Context(), req.QuizID)
	if err != nil {
		status, code := mapError(err)
		if code == response.ErrQuizNotFound {
			response.FailWithRedirect(c, status, code, h.catalogURL)
			return
		}
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Str("quiz_id", req.QuizID).Msg("Create session failed")
		response.Fail(c, status, code)
		return
	}

	quiz := m.Quiz()
	response.Success(c, http.StatusCreated, CreateSessionResponse{
		SessionID:    m.ID(),
		State:        m.State(),
		Title:        quiz.Title,
		Duration:     quiz.DurationMinutes,
		Instructions: instructions,
		Questions:    quiz.PaperForTaker(),
		Policy:       m.Policy(),
	})
}

// GetSession godoc
// GET /api/v1/sessions/:id
func (h *SessionHandler) GetSession(c *gin.Context) {
	id, ok := parseSessionID(c)
	if !ok {
		return
	}
	m, err := h.proctor.Get(id)
	if err != nil {
		status, code := mapError(err)
		response.Fail(c, status, code)
		return
	}
	response.Success(c, http.StatusOK, m.Snapshot())
}

// GetReport godoc
// GET /api/v1/sessions/:id/report
func (h *SessionHandler) GetReport(c *gin.Context) {
	id, ok := parseSessionID(c)
	if !ok {
		return
	}
	r, err := h.proctor.Report(c.Request.Context(), id)
	if err != nil {
		status, code := mapError(err)
		response.Fail(c, status, code)
		return
	}
	response.Success(c, http.StatusOK, r)
}

// GetPolicy godoc
// GET /api/v1/policy
func (h *SessionHandler) GetPolicy(c *gin.Context) {
	response.Success(c, http.StatusOK, h.proctor.Policy())
}

func parseSessionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}
