package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/session"
	"github.com/stemsi/exstem-proctor/internal/validator"
	ws "github.com/stemsi/exstem-proctor/internal/websocket"
)

const (
	noticeBuffer = 64
	// startTimeout bounds how long a start waits for the fullscreen reply.
	startTimeout = 30 * time.Second
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams one proctored session over a WebSocket.
type WSHandler struct {
	proctor  *service.ProctorService
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(proctor *service.ProctorService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		proctor:  proctor,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// conn serialises writes; gorilla allows one concurrent writer.
type conn struct {
	c   *websocket.Conn
	out chan any
}

func (w *conn) send(v any) {
	select {
	case w.out <- v:
	default:
	}
}

// SessionStream godoc
// WS /ws/v1/sessions/:id/stream
func (h *WSHandler) SessionStream(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}
	m, err := h.proctor.Get(id)
	if err != nil {
		status, code := mapError(err)
		response.Fail(c, status, code)
		return
	}
	hub, err := h.proctor.Hub(id)
	if err != nil {
		status, code := mapError(err)
		response.Fail(c, status, code)
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer raw.Close()

	wsLog := h.log.With().
		Str("session_id", id.String()).
		Str("quiz_id", m.Quiz().QuizID).
		Logger()
	wsLog.Info().Msg("Client connected")

	notices, unsubscribe := hub.Subscribe(noticeBuffer)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := &conn{c: raw, out: make(chan any, noticeBuffer)}
	go h.writeLoop(ctx, w, notices, wsLog)

	w.send(ws.FromNotice(model.Notice{
		Kind:      model.NoticeState,
		Data:      map[string]any{"state": m.State()},
		Timestamp: time.Now(),
	}))

	for {
		data, err := ws.ReadMessage(raw)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}
		h.handleMessage(ctx, w, m, hub, data, wsLog)
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, w *conn, notices <-chan model.Notice, log zerolog.Logger) {
	for {
		var v any
		select {
		case <-ctx.Done():
			return
		case n, ok := <-notices:
			if !ok {
				return
			}
			v = ws.FromNotice(n)
		case v = <-w.out:
		}
		if err := ws.WriteTyped(w.c, v); err != nil {
			log.Debug().Err(err).Msg("Write failed")
			return
		}
	}
}

func (h *WSHandler) handleMessage(ctx context.Context, w *conn, m *session.Manager, hub *service.Hub, data []byte, log zerolog.Logger) {
	var env ws.RequestEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		w.send(errorFrame(response.ErrInvalidPayload))
		return
	}

	switch env.Action {
	case ws.ActionPing:
		w.send(ws.PongResponse{Event: ws.EventPong, Timestamp: time.Now()})

	case ws.ActionStart:
		go h.start(ctx, w, m.ID(), log)

	case ws.ActionFullscreenResult:
		var req ws.FullscreenResultRequest
		if !decode(w, data, &req) {
			return
		}
		if !hub.FullscreenResult(req.Granted) {
			log.Debug().Msg("Fullscreen result with no pending request")
		}

	case ws.ActionSignal:
		var req ws.SignalRequest
		if !decode(w, data, &req) {
			return
		}
		m.Signal(req.Signal)

	case ws.ActionAnswer:
		var req ws.AnswerRequest
		if !decode(w, data, &req) {
			return
		}
		m.SetAnswer(req.QuestionID, req.Value)

	case ws.ActionMark:
		var req ws.MarkRequest
		if !decode(w, data, &req) {
			return
		}
		m.ToggleMark(req.QuestionID)

	case ws.ActionVisit:
		var req ws.VisitRequest
		if !decode(w, data, &req) {
			return
		}
		m.Visit(req.Index)

	case ws.ActionSubmit:
		m.Submit()

	case ws.ActionAbort:
		var req ws.AbortRequest
		if !decode(w, data, &req) {
			return
		}
		if req.Reason == "" {
			req.Reason = "Cancelled by test-taker"
		}
		if err := h.proctor.Abort(m.ID(), req.Reason); err != nil {
			_, code := mapError(err)
			w.send(errorFrame(code))
		}

	default:
		log.Warn().Str("action", string(env.Action)).Msg("Unknown action")
		w.send(errorFrame(response.ErrUnknownAction))
	}
}

// start blocks on the fullscreen round trip, so it runs off the read loop.
func (h *WSHandler) start(ctx context.Context, w *conn, id uuid.UUID, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(ctx, startTimeout)
	defer cancel()
	err := h.proctor.Start(ctx, id)
	if err == nil {
		return
	}
	// The session already pushed its own notice for a denial.
	if errors.Is(err, session.ErrFullscreenDenied) {
		log.Info().Err(err).Msg("Start denied")
		return
	}
	_, code := mapError(err)
	w.send(errorFrame(code))
}

func decode(w *conn, data []byte, dst any) bool {
	if err := json.Unmarshal(data, dst); err != nil {
		w.send(errorFrame(response.ErrInvalidPayload))
		return false
	}
	if err := validator.Struct(dst); err != nil {
		w.send(ws.ErrorResponse{
			Event: ws.EventError,
			Code:  string(response.ErrValidation),
			Error: err.Error(),
		})
		return false
	}
	return true
}

func errorFrame(code response.ErrCode) ws.ErrorResponse {
	return ws.ErrorResponse{
		Event: ws.EventError,
		Code:  string(code),
		Error: response.GetMessage(code),
	}
}
