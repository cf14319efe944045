package api

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/strata/pkg/facade"
	"github.com/papercomputeco/strata/pkg/memory"
)

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// AppendTurnRequest is the body for POST /sessions/:id/turns.
type AppendTurnRequest struct {
	TurnID    string    `json:"turn_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// AppendTurnResponse reports the new window length.
type AppendTurnResponse struct {
	WindowLength int64 `json:"window_length"`
}

// RetrieveRequest is the body for POST /sessions/:id/retrieve. An empty
// Tiers list queries all four tiers.
type RetrieveRequest struct {
	Query        string   `json:"query"`
	MaxTurns     int      `json:"max_turns,omitempty"`
	MaxFacts     int      `json:"max_facts,omitempty"`
	MaxEpisodes  int      `json:"max_episodes,omitempty"`
	MaxDocuments int      `json:"max_documents,omitempty"`
	MinScore     float64  `json:"min_score,omitempty"`
	Tiers        []string `json:"tiers,omitempty"`
}

// UpdateWorkspaceRequest is the body for PUT /sessions/:id/workspace.
type UpdateWorkspaceRequest struct {
	Data            map[string]any `json:"data"`
	ExpectedVersion int64          `json:"expected_version"`
}

// RunEngineRequest is the body for POST /engines/:name/run.
type RunEngineRequest struct {
	SessionID string `json:"session_id"`
}

// AnswerRequest is the body for POST /answers.
type AnswerRequest struct {
	Query      string `json:"query"`
	Topic      string `json:"topic,omitempty"`
	MaxSources int    `json:"max_sources,omitempty"`
}

// handlePing returns a simple liveness response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleHealth probes every tier and reports per-tier status. Any
// unhealthy tier turns the whole response into a 503.
func (s *Server) handleHealth(c *fiber.Ctx) error {
	health := s.memory.HealthCheck(c.Context())

	status := fiber.StatusOK
	tiers := make(map[string]string, len(health))
	for tier, err := range health {
		if err != nil {
			status = fiber.StatusServiceUnavailable
			tiers[tier] = err.Error()
			continue
		}
		tiers[tier] = "ok"
	}

	return c.Status(status).JSON(fiber.Map{"tiers": tiers})
}

func (s *Server) handleAppendTurn(c *fiber.Ctx) error {
	sessionID := c.Params("id")

	var req AppendTurnRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "malformed request body"})
	}
	if req.TurnID == "" || req.Content == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "turn_id and content are required"})
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now().UTC()
	}

	length, err := s.memory.StoreTurn(c.Context(), sessionID, memory.Turn{
		TurnID:    req.TurnID,
		Role:      req.Role,
		Content:   req.Content,
		Timestamp: req.Timestamp,
	})
	if err != nil {
		s.logger.Error("append turn failed", "session_id", sessionID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to store turn"})
	}

	if s.tracker != nil {
		s.tracker.Track(sessionID)
	}

	return c.Status(fiber.StatusCreated).JSON(AppendTurnResponse{WindowLength: length})
}

func (s *Server) handleContextBlock(c *fiber.Ctx) error {
	sessionID := c.Params("id")

	minScore := c.QueryFloat("min_score", 0)
	maxTurns := c.QueryInt("max_turns", 0)
	maxFacts := c.QueryInt("max_facts", 0)

	block, err := s.memory.ContextBlock(c.Context(), sessionID, minScore, maxTurns, maxFacts)
	if err != nil {
		s.logger.Error("context block failed", "session_id", sessionID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to build context"})
	}

	return c.JSON(fiber.Map{"context": block})
}

func (s *Server) handleRetrieve(c *fiber.Ctx) error {
	sessionID := c.Params("id")

	var req RetrieveRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "malformed request body"})
	}

	result, err := s.memory.Retrieve(c.Context(), sessionID, req.Query, facade.RetrieveOptions{
		MaxTurns:     req.MaxTurns,
		MaxFacts:     req.MaxFacts,
		MaxEpisodes:  req.MaxEpisodes,
		MaxDocuments: req.MaxDocuments,
		MinScore:     req.MinScore,
		Tiers:        req.Tiers,
	})
	if err != nil {
		if errors.Is(err, facade.ErrUnknownTier) {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
		}
		s.logger.Error("retrieve failed", "session_id", sessionID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "retrieval failed"})
	}

	degraded := make(map[string]string, len(result.Errors))
	for tier, tierErr := range result.Errors {
		degraded[tier] = tierErr.Error()
	}

	return c.JSON(fiber.Map{
		"turns":     result.Turns,
		"facts":     result.Facts,
		"episodes":  result.Episodes,
		"documents": result.Documents,
		"degraded":  degraded,
	})
}

func (s *Server) handleGetWorkspace(c *fiber.Ctx) error {
	sessionID := c.Params("id")

	ws, err := s.memory.Workspace(c.Context(), sessionID)
	if err != nil {
		s.logger.Error("workspace read failed", "session_id", sessionID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to read workspace"})
	}

	return c.JSON(ws)
}

func (s *Server) handleUpdateWorkspace(c *fiber.Ctx) error {
	sessionID := c.Params("id")

	var req UpdateWorkspaceRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "malformed request body"})
	}

	ws, err := s.memory.UpdateWorkspace(c.Context(), sessionID, req.Data, req.ExpectedVersion)
	if err != nil {
		if errors.Is(err, memory.ErrVersionConflict) {
			return c.Status(fiber.StatusConflict).JSON(ErrorResponse{Error: "version conflict"})
		}
		s.logger.Error("workspace update failed", "session_id", sessionID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to update workspace"})
	}

	return c.JSON(ws)
}

func (s *Server) handleRunEngine(c *fiber.Ctx) error {
	name := c.Params("name")

	var req RunEngineRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "malformed request body"})
	}
	if req.SessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "session_id is required"})
	}

	var (
		result any
		err    error
	)
	switch name {
	case "promotion":
		result, err = s.memory.RunPromotion(c.Context(), req.SessionID)
	case "consolidation":
		result, err = s.memory.RunConsolidation(c.Context(), req.SessionID)
	case "distillation":
		result, err = s.memory.RunDistillation(c.Context(), req.SessionID)
	default:
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "unknown engine: " + name})
	}

	if err != nil {
		if errors.Is(err, facade.ErrEngineDisabled) {
			return c.Status(fiber.StatusForbidden).JSON(ErrorResponse{Error: err.Error()})
		}
		s.logger.Error("engine run failed", "engine", name, "session_id", req.SessionID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "engine run failed"})
	}

	return c.JSON(result)
}

func (s *Server) handleAnswer(c *fiber.Ctx) error {
	var req AnswerRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "malformed request body"})
	}
	if req.Query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "query is required"})
	}

	answer, err := s.memory.Answer(c.Context(), req.Query, req.Topic, req.MaxSources)
	if err != nil {
		s.logger.Error("answer failed", "query", req.Query, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "answer synthesis failed"})
	}

	return c.JSON(answer)
}
