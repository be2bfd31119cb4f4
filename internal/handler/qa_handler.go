package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/notewise/notewise/internal/model"
	"github.com/notewise/notewise/internal/pkg/errcode"
	"github.com/notewise/notewise/internal/pkg/response"
	"github.com/notewise/notewise/internal/service"
)

// Answerer is the Q&A pipeline surface, satisfied by *service.Pipeline.
type Answerer interface {
	Answer(ctx context.Context, userID, noteID, question string) *model.AnswerResult
	AnswerStream(ctx context.Context, userID, noteID, question string, onChunk service.StreamHandler) *model.AnswerResult
}

type QAHandler struct {
	pipeline Answerer
}

func NewQAHandler(pipeline Answerer) *QAHandler {
	return &QAHandler{pipeline: pipeline}
}

type askRequest struct {
	NoteID   string `json:"note_id"`
	Question string `json:"question"`
}

func (r *askRequest) valid() bool {
	return r.NoteID != "" && r.Question != ""
}

func (h *QAHandler) Ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil || !req.valid() {
		response.Error(c, errcode.ErrInvalid, "note_id and question are required")
		return
	}
	result := h.pipeline.Answer(c.Request.Context(), getUserID(c), req.NoteID, req.Question)
	response.Success(c, result)
}

// AskStream answers over SSE. Event order: status, zero or more chunk events,
// one metadata event, one complete event. Only request validation produces an
// error event; pipeline failures arrive as a degraded answer.
func (h *QAHandler) AskStream(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil || !req.valid() {
		c.Header("Content-Type", "text/event-stream")
		c.SSEvent("error", gin.H{"message": "note_id and question are required"})
		return
	}
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	writer := c.Writer
	c.SSEvent("status", gin.H{"state": "processing"})
	writer.Flush()

	result := h.pipeline.AnswerStream(c.Request.Context(), getUserID(c), req.NoteID, req.Question,
		func(text string, isComplete bool) {
			if isComplete {
				return
			}
			c.SSEvent("chunk", gin.H{"text": text})
			writer.Flush()
		})

	c.SSEvent("metadata", gin.H{
		"pipeline_used": result.PipelineUsed,
		"confidence":    result.Confidence,
		"sources":       result.Sources,
		"intent":        result.Intent,
	})
	c.SSEvent("complete", gin.H{"answer": result.Answer})
	writer.Flush()
}
