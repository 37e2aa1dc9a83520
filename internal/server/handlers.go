package server

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/riskline/riskline/internal/event"
	"github.com/riskline/riskline/internal/feature"
	"github.com/riskline/riskline/internal/idgen"
	"github.com/riskline/riskline/internal/ingest"
	"github.com/riskline/riskline/internal/logging"
	"github.com/riskline/riskline/internal/metrics"
	"github.com/riskline/riskline/internal/pagination"
	"github.com/riskline/riskline/internal/scoring"
	"github.com/riskline/riskline/internal/traces"
)

// -----------------------------------------------------------------------------
// Scoring Pipeline
// -----------------------------------------------------------------------------

// processEvent runs one transaction through the full pipeline: record it
// into the feature store, score the resulting vector, then fan out to
// metrics, alerting, the realtime stream and the scores topic.
func (s *Server) processEvent(ctx context.Context, ev event.Event, source string) (feature.Vector, float64) {
	ctx, span := traces.StartSpan(ctx, "engine.score",
		traces.UserID(ev.UserID),
		traces.TransactionID(ev.TransactionID),
		traces.Amount(ev.Amount),
		traces.Source(source),
	)
	defer span.End()

	vec := s.store.Record(ev)
	score := s.scorer.Score(vec)
	span.SetAttributes(traces.Score(score))

	metrics.ObserveScore(source, score, s.cfg.AlertThreshold)

	s.notifier.Notify(ev.UserID, ev.TransactionID, score, vec)

	payload := map[string]interface{}{
		"user_id":        ev.UserID,
		"transaction_id": ev.TransactionID,
		"amount":         ev.Amount,
		"score":          score,
		"risk_level":     scoring.RiskLevel(score),
		"model_version":  scoring.ModelVersion,
	}
	s.realtimeHub.BroadcastScore(payload)
	if score >= s.cfg.AlertThreshold {
		s.realtimeHub.BroadcastAlert(payload)
	}

	if s.publisher != nil {
		se := ingest.ScoredEvent{
			UserID:        ev.UserID,
			TransactionID: ev.TransactionID,
			Score:         score,
			RiskLevel:     scoring.RiskLevel(score),
			ModelVersion:  scoring.ModelVersion,
			Features:      vec,
			ScoredAt:      s.now(),
		}
		// Publishing must not add broker latency to the scoring path.
		go func() {
			pubCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := s.publisher.Publish(pubCtx, se); err != nil {
				s.logger.Error("score publish failed",
					"user", se.UserID, "transaction", se.TransactionID, "error", err)
			}
		}()
	}

	return vec, score
}

// HandleTransaction implements ingest.Handler for the Kafka path.
func (s *Server) HandleTransaction(ctx context.Context, ev event.Event) error {
	s.processEvent(ctx, ev, "kafka")
	return nil
}

// -----------------------------------------------------------------------------
// V1 Handlers
// -----------------------------------------------------------------------------

// ScoreResponse is the POST /v1/score reply.
type ScoreResponse struct {
	UserID           string         `json:"user_id"`
	TransactionID    string         `json:"transaction_id"`
	Score            float64        `json:"score"`
	RiskLevel        string         `json:"risk_level"`
	Features         feature.Vector `json:"features"`
	ModelVersion     string         `json:"model_version"`
	ProcessingTimeMS float64        `json:"processing_time_ms"`
}

// scoreHandler ingests one transaction and returns its risk score. The
// request body matches the Kafka message shape, so producers can switch
// between paths without re-encoding.
func (s *Server) scoreHandler(c *gin.Context) {
	start := time.Now()

	var req ingest.Message
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Request body must be valid JSON",
		})
		return
	}
	if req.TransactionID == "" {
		req.TransactionID = idgen.WithPrefix("txn_")
	}

	ev, err := req.Event(s.now())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"message": err.Error(),
		})
		return
	}

	vec, score := s.processEvent(c.Request.Context(), ev, "api")

	c.JSON(http.StatusOK, ScoreResponse{
		UserID:           ev.UserID,
		TransactionID:    ev.TransactionID,
		Score:            score,
		RiskLevel:        scoring.RiskLevel(score),
		Features:         vec,
		ModelVersion:     scoring.ModelVersion,
		ProcessingTimeMS: float64(time.Since(start).Microseconds()) / 1000.0,
	})
}

// FeaturesResponse is the GET /v1/users/:id/features reply.
type FeaturesResponse struct {
	UserID    string         `json:"user_id"`
	Features  feature.Vector `json:"features"`
	Timestamp string         `json:"timestamp"`
}

func (s *Server) userFeaturesHandler(c *gin.Context) {
	id := c.Param("id")

	vec, err := s.store.Features(id)
	if err != nil {
		if errors.Is(err, feature.ErrUnknownUser) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "unknown_user",
				"message": "No live state for user",
			})
			return
		}
		logging.L(c.Request.Context()).Error("feature query failed", "user", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	c.JSON(http.StatusOK, FeaturesResponse{
		UserID:    id,
		Features:  vec,
		Timestamp: s.now().UTC().Format(time.RFC3339),
	})
}

// UserSummaryResponse is one entry in the GET /v1/users listing.
type UserSummaryResponse struct {
	UserID          string `json:"user_id"`
	FirstSeen       string `json:"first_seen"`
	LastSeen        string `json:"last_seen"`
	BufferedSamples int    `json:"buffered_samples"`
}

func (s *Server) listUsersHandler(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 200 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_limit",
				"message": "limit must be between 1 and 200",
			})
			return
		}
		limit = n
	}

	resumeID, err := pagination.Decode(c.Query("cursor"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_cursor",
			"message": "Malformed pagination cursor",
		})
		return
	}

	// Users() is sorted by ID, so the cursor is just a resume point.
	users := s.store.Users()
	if resumeID != "" {
		idx := sort.Search(len(users), func(i int) bool { return users[i].ID > resumeID })
		users = users[idx:]
	}

	page, next, more := pagination.Page(users, limit,
		func(u feature.UserSummary) string { return u.ID })

	out := make([]UserSummaryResponse, len(page))
	for i, u := range page {
		out[i] = UserSummaryResponse{
			UserID:          u.ID,
			FirstSeen:       u.FirstSeen.UTC().Format(time.RFC3339),
			LastSeen:        u.LastSeen.UTC().Format(time.RFC3339),
			BufferedSamples: u.Buffered,
		}
	}

	resp := gin.H{
		"users":    out,
		"count":    len(out),
		"has_more": more,
	}
	if more {
		resp["next_cursor"] = next
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) statsHandler(c *gin.Context) {
	st := s.store.Stats()

	buffered := make(map[string]int, len(st.Buffered))
	for h, n := range st.Buffered {
		buffered[h.String()] = n
	}

	resp := gin.H{
		"users":          st.Users,
		"buffered":       buffered,
		"ingested":       st.Ingested,
		"created":        st.Created,
		"reclaimed":      st.Reclaimed,
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
		"realtime":       s.realtimeHub.Stats(),
	}
	if !st.LastSweep.IsZero() {
		resp["last_sweep"] = st.LastSweep.UTC().Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, resp)
}

// -----------------------------------------------------------------------------
// Admin Handlers
// -----------------------------------------------------------------------------

func (s *Server) reclaimHandler(c *gin.Context) {
	start := time.Now()
	removed := s.store.Reclaim(s.now())

	logging.L(c.Request.Context()).Info("manual reclamation sweep",
		"removed", removed,
		"took_ms", time.Since(start).Milliseconds(),
	)

	c.JSON(http.StatusOK, gin.H{
		"reclaimed": removed,
		"users":     s.store.Stats().Users,
	})
}

func (s *Server) engineConfigHandler(c *gin.Context) {
	engCfg := s.store.Config()

	horizons := make([]string, len(engCfg.Horizons))
	capacities := make(map[string]int, len(engCfg.Horizons))
	for i, h := range engCfg.Horizons {
		horizons[i] = h.String()
		capacities[h.String()] = engCfg.Capacities[h]
	}

	c.JSON(http.StatusOK, gin.H{
		"horizons":          horizons,
		"window_capacities": capacities,
		"velocity_horizon":  engCfg.VelocityHorizon.String(),
		"profile_horizon":   engCfg.ProfileHorizon.String(),
		"state_ttl":         engCfg.TTL.String(),
		"sweep_interval":    s.cfg.SweepInterval.String(),
		"alert_threshold":   s.cfg.AlertThreshold,
		"weights":           s.cfg.Weights,
		"model_version":     scoring.ModelVersion,
	})
}
