package handler

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/notewise/notewise/internal/model"
	"github.com/notewise/notewise/internal/service"
)

type fakeAnswerer struct {
	result *model.AnswerResult
	tokens []string
}

func (f *fakeAnswerer) Answer(ctx context.Context, userID, noteID, question string) *model.AnswerResult {
	return f.result
}

func (f *fakeAnswerer) AnswerStream(ctx context.Context, userID, noteID, question string, onChunk service.StreamHandler) *model.AnswerResult {
	for _, token := range f.tokens {
		onChunk(token, false)
	}
	onChunk("", true)
	return f.result
}

func newQARouter(pipeline Answerer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	h := NewQAHandler(pipeline)
	router.POST("/qa/ask", h.Ask)
	router.POST("/qa/ask/stream", h.AskStream)
	return router
}

func TestAskReturnsAnswer(t *testing.T) {
	pipeline := &fakeAnswerer{result: &model.AnswerResult{
		Answer:       "Paris is the capital of France.",
		PipelineUsed: model.PipelineExternalOnly,
		Confidence:   0.7,
	}}
	router := newQARouter(pipeline)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/qa/ask", strings.NewReader(`{"note_id":"n1","question":"capital of France?"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	require.Contains(t, rec.Body.String(), "Paris is the capital of France.")
	require.Contains(t, rec.Body.String(), "external_only")
}

func TestAskRejectsMissingFields(t *testing.T) {
	router := newQARouter(&fakeAnswerer{result: &model.AnswerResult{}})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/qa/ask", strings.NewReader(`{"question":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	require.Contains(t, rec.Body.String(), "note_id and question are required")
}

func TestAskStreamEmitsChunkAndCompleteEvents(t *testing.T) {
	pipeline := &fakeAnswerer{
		result: &model.AnswerResult{
			Answer:       "streamed answer",
			PipelineUsed: model.PipelineRAGOnly,
			Confidence:   0.8,
		},
		tokens: []string{"streamed ", "answer"},
	}
	router := newQARouter(pipeline)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/qa/ask/stream", strings.NewReader(`{"note_id":"n1","question":"q"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	body := rec.Body.String()
	require.Contains(t, rec.Header().Get("Content-Type"), "text/event-stream")
	require.Contains(t, body, "event:status")
	require.Contains(t, body, "event:chunk")
	require.Contains(t, body, "event:metadata")
	require.Contains(t, body, "event:complete")
	require.Equal(t, 2, strings.Count(body, "event:chunk"))
	require.Less(t, strings.Index(body, "event:chunk"), strings.Index(body, "event:complete"))
}
