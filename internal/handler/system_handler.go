package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/service"
)

const healthTimeout = 2 * time.Second

// SystemHandler reports service health.
type SystemHandler struct {
	pool      *pgxpool.Pool
	rdb       *redis.Client
	proctor   *service.ProctorService
	startTime time.Time
	log       zerolog.Logger
}

func NewSystemHandler(pool *pgxpool.Pool, rdb *redis.Client, proctor *service.ProctorService, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		pool:      pool,
		rdb:       rdb,
		proctor:   proctor,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
}

type healthStatus struct {
	Status       string `json:"status"`
	Postgres     string `json:"postgres"`
	Redis        string `json:"redis"`
	LiveSessions int    `json:"live_sessions"`
	Goroutines   int    `json:"goroutines"`
	Uptime       string `json:"uptime"`
}

// Health godoc
// GET /healthz
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	st := healthStatus{
		Status:       "ok",
		Postgres:     "ok",
		Redis:        "ok",
		LiveSessions: h.proctor.Len(),
		Goroutines:   runtime.NumGoroutine(),
		Uptime:       time.Since(h.startTime).Truncate(time.Second).String(),
	}
	if err := h.pool.Ping(ctx); err != nil {
		h.log.Warn().Err(err).Msg("Postgres health check failed")
		st.Postgres, st.Status = "down", "degraded"
	}
	if err := h.rdb.Ping(ctx).Err(); err != nil {
		h.log.Warn().Err(err).Msg("Redis health check failed")
		st.Redis, st.Status = "down", "degraded"
	}

	code := http.StatusOK
	if st.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, st)
}
