package api

import (
	"bytes"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/reveriehq/reverie/pkg/consistency"
	"github.com/reveriehq/reverie/pkg/engine"
	"github.com/reveriehq/reverie/pkg/model"
	"github.com/reveriehq/reverie/pkg/recall"
	"github.com/reveriehq/reverie/pkg/utils"
)

// ErrorResponse is the JSON error body for failed requests.
type ErrorResponse struct {
	Error string `json:"error"`
}

// IngestRequest carries one transcript floor for ingestion.
type IngestRequest struct {
	Floor   int          `json:"floor"`
	Speaker string       `json:"speaker"`
	IsUser  bool         `json:"is_user"`
	Text    string       `json:"text"`
	Atoms   []model.Atom `json:"atoms,omitempty"`
}

// LifecycleRequest reports a host transcript mutation.
type LifecycleRequest struct {
	Kind  string `json:"kind"`
	Floor int    `json:"floor"`
}

// SummarizeRequest asks for a summarization run toward the target floor.
type SummarizeRequest struct {
	TargetFloor int `json:"target_floor"`
}

// SummarizeResponse reports the outcome of a summarization run.
type SummarizeResponse struct {
	NoOp        bool `json:"no_op"`
	StartFloor  int  `json:"start_floor,omitempty"`
	EndFloor    int  `json:"end_floor,omitempty"`
	NewEvents   int  `json:"new_events"`
	FactUpdates int  `json:"fact_updates"`
}

// QueryRequest carries a recall or memory-build query.
type QueryRequest struct {
	Query    string   `json:"query"`
	Entities []string `json:"entities,omitempty"`
}

// AnchorsRequest carries one floor's exchange for anchor extraction.
type AnchorsRequest struct {
	Floor    int    `json:"floor"`
	UserText string `json:"user_text"`
	AIText   string `json:"ai_text"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleIngest stores one floor's chunks and atoms and queues vectorization.
func (s *Server) handleIngest(c *fiber.Ctx) error {
	chatID := c.Params("chat_id")

	var req IngestRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}
	if req.Text == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "text is required"})
	}

	err := s.engine.Ingest(c.Context(), chatID, engine.Message{
		Floor:   req.Floor,
		Speaker: req.Speaker,
		IsUser:  req.IsUser,
		Text:    req.Text,
		Atoms:   req.Atoms,
	})
	if err != nil {
		s.logger.Warn("ingest failed",
			zap.String("chat_id", chatID),
			zap.Int("floor", req.Floor),
			zap.Error(err),
		)
		return c.Status(fiber.StatusConflict).JSON(ErrorResponse{Error: err.Error()})
	}

	return c.SendStatus(fiber.StatusAccepted)
}

// handleLifecycle applies one host mutation event.
func (s *Server) handleLifecycle(c *fiber.Ctx) error {
	chatID := c.Params("chat_id")

	var req LifecycleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}
	if req.Kind == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "kind is required"})
	}

	if err := s.engine.OnMessage(c.Context(), chatID, consistency.MessageKind(req.Kind), req.Floor); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// handleSummarize runs one summarization slice toward the target floor.
func (s *Server) handleSummarize(c *fiber.Ctx) error {
	chatID := c.Params("chat_id")

	var req SummarizeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	result, err := s.engine.Summarize(c.Context(), chatID, req.TargetFloor)
	if err != nil {
		s.logger.Warn("summarization failed",
			zap.String("chat_id", chatID),
			zap.Int("target_floor", req.TargetFloor),
			zap.Error(err),
		)
		return c.Status(fiber.StatusConflict).JSON(ErrorResponse{Error: err.Error()})
	}

	return c.JSON(SummarizeResponse{
		NoOp:        result.NoOp,
		StartFloor:  result.StartFloor,
		EndFloor:    result.EndFloor,
		NewEvents:   len(result.Events),
		FactUpdates: len(result.FactUpdates),
	})
}

// handleRecall ranks stored memory against the query.
func (s *Server) handleRecall(c *fiber.Ctx) error {
	chatID := c.Params("chat_id")

	var req QueryRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}
	if req.Query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "query is required"})
	}

	result, err := s.engine.Recall(c.Context(), chatID, req.Query, recall.Focus{Entities: req.Entities})
	if err != nil {
		s.logger.Warn("recall failed",
			zap.String("chat_id", chatID),
			zap.String("query", utils.Truncate(req.Query, 80)),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "recall failed"})
	}

	return c.JSON(result)
}

// handleBuildMemory recalls against the query and assembles the
// token-budgeted memory block.
func (s *Server) handleBuildMemory(c *fiber.Ctx) error {
	chatID := c.Params("chat_id")

	var req QueryRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}
	if req.Query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "query is required"})
	}

	out, err := s.engine.BuildMemory(c.Context(), chatID, req.Query, recall.Focus{Entities: req.Entities})
	if err != nil {
		s.logger.Warn("memory build failed",
			zap.String("chat_id", chatID),
			zap.String("query", utils.Truncate(req.Query, 80)),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "memory build failed"})
	}

	return c.JSON(out)
}

// handleExtractAnchors extracts anchor atoms from one floor's exchange.
func (s *Server) handleExtractAnchors(c *fiber.Ctx) error {
	chatID := c.Params("chat_id")

	var req AnchorsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	atoms, err := s.engine.ExtractAnchors(c.Context(), chatID, req.Floor, req.UserText, req.AIText)
	if err != nil {
		return c.Status(fiber.StatusConflict).JSON(ErrorResponse{Error: err.Error()})
	}

	if atoms == nil {
		atoms = []model.Atom{}
	}

	return c.JSON(map[string]any{
		"floor": req.Floor,
		"atoms": atoms,
	})
}

// handleStatus returns the chat's memory status.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	chatID := c.Params("chat_id")

	status, err := s.engine.Status(c.Context(), chatID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to load status"})
	}

	return c.JSON(status)
}

// handleRebuildVectors drops and regenerates the chat's vectors.
func (s *Server) handleRebuildVectors(c *fiber.Ctx) error {
	chatID := c.Params("chat_id")

	if err := s.engine.RebuildVectors(c.Context(), chatID); err != nil {
		return c.Status(fiber.StatusConflict).JSON(ErrorResponse{Error: err.Error()})
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// handleExport streams the chat's memory as a tar.gz archive.
func (s *Server) handleExport(c *fiber.Ctx) error {
	chatID := c.Params("chat_id")

	var buf bytes.Buffer
	if err := s.engine.Export(c.Context(), chatID, &buf); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "export failed"})
	}

	c.Set(fiber.HeaderContentType, "application/gzip")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+chatID+`.tar.gz"`)
	return c.Send(buf.Bytes())
}

// handleImport restores the chat's memory from a tar.gz archive body.
func (s *Server) handleImport(c *fiber.Ctx) error {
	chatID := c.Params("chat_id")

	body := c.Body()
	if len(body) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "archive body is required"})
	}

	if err := s.engine.Import(c.Context(), chatID, bytes.NewReader(body)); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
	}

	return c.SendStatus(fiber.StatusNoContent)
}
