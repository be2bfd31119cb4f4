package service

import (
	"context"
	"fmt"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/notewise/notewise/internal/ai"
	"github.com/notewise/notewise/internal/model"
	appErr "github.com/notewise/notewise/internal/pkg/errors"
	"github.com/notewise/notewise/internal/vectorindex"
)

const DefaultTopK = 5

// Retriever performs similarity search with a mandatory tenant filter. Every
// query carries the (note_id, user_id, project_id) triple; a scope that cannot
// be fully resolved returns zero results, never an unfiltered search.
type Retriever struct {
	units UnitStore
	index VectorIndex
	ai    AIClient
}

func NewRetriever(units UnitStore, index VectorIndex, aiClient AIClient) *Retriever {
	return &Retriever{units: units, index: index, ai: aiClient}
}

// SearchForQA embeds the question and returns the top matches inside the
// note's scope. Matches from detached library items are dropped after the
// fact, since index metadata can lag behind attachment changes.
func (r *Retriever) SearchForQA(ctx context.Context, userID, noteID, question string, topK int) ([]model.RetrievedChunk, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("note_id", noteID))
	if userID == "" || noteID == "" {
		logger.Warn("incomplete retrieval scope, failing closed")
		return nil, nil
	}
	note, err := r.units.GetNote(ctx, noteID)
	if err != nil {
		if appErr.IsNotFound(err) {
			logger.Warn("note not found, failing closed")
			return nil, nil
		}
		return nil, err
	}
	if note.UserID != userID || note.ProjectID == "" {
		logger.Warn("retrieval scope mismatch, failing closed")
		return nil, nil
	}

	vector, err := r.ai.Embed(ctx, question, ai.TaskTypeQuery)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", appErr.ErrEmbedding, err)
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	matches, err := r.index.Query(ctx, vector, topK, vectorindex.Filter{
		metaNoteID:    noteID,
		metaUserID:    userID,
		metaProjectID: note.ProjectID,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", appErr.ErrVectorIndex, err)
	}

	attached := make(map[string]bool, len(note.AttachedItemIDs))
	for _, id := range note.AttachedItemIDs {
		attached[id] = true
	}
	results := make([]model.RetrievedChunk, 0, len(matches))
	for _, match := range matches {
		chunk := chunkFromMatch(match)
		if chunk.LibraryItemID != "" && !attached[chunk.LibraryItemID] {
			logger.Debug("dropping match from detached item",
				zap.String("item_id", chunk.LibraryItemID), zap.String("vector_id", chunk.VectorID))
			continue
		}
		results = append(results, chunk)
	}
	logger.Debug("retrieval done", zap.Int("matched", len(matches)), zap.Int("kept", len(results)))
	return results, nil
}

func chunkFromMatch(match vectorindex.Match) model.RetrievedChunk {
	return model.RetrievedChunk{
		VectorID:      match.ID,
		Score:         match.Score,
		Content:       match.Text,
		NoteID:        metaString(match.Metadata, metaNoteID),
		LibraryItemID: metaString(match.Metadata, metaLibraryItemID),
		ContentType:   model.ContentType(metaString(match.Metadata, metaContentType)),
		ChunkIndex:    metaInt(match.Metadata, metaChunkIndex),
		Citation: model.Citation{
			Author:     metaString(match.Metadata, metaCiteAuthor),
			Title:      metaString(match.Metadata, metaCiteTitle),
			SourceFile: metaString(match.Metadata, metaCiteSourceFile),
			Year:       metaString(match.Metadata, metaCiteYear),
		},
	}
}

func metaString(metadata map[string]interface{}, key string) string {
	if value, ok := metadata[key].(string); ok {
		return value
	}
	return ""
}

func metaInt(metadata map[string]interface{}, key string) int {
	switch value := metadata[key].(type) {
	case float64:
		return int(value)
	case int:
		return value
	default:
		return 0
	}
}
