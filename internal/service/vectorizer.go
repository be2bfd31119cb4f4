package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/notewise/notewise/internal/ai"
	"github.com/notewise/notewise/internal/chunker"
	"github.com/notewise/notewise/internal/citation"
	"github.com/notewise/notewise/internal/filestore"
	"github.com/notewise/notewise/internal/model"
	appErr "github.com/notewise/notewise/internal/pkg/errors"
	"github.com/notewise/notewise/internal/vectorindex"
)

// Vectorizer turns a document unit into indexed chunks. Re-running it on the
// same unit is idempotent: previous chunks are always wiped first.
type Vectorizer struct {
	units    UnitStore
	chunks   ChunkStore
	index    VectorIndex
	ai       AIClient
	files    filestore.Store
	splitter *chunker.Chunker
}

func NewVectorizer(units UnitStore, chunks ChunkStore, index VectorIndex, aiClient AIClient,
	files filestore.Store, splitter *chunker.Chunker) *Vectorizer {
	return &Vectorizer{
		units:    units,
		chunks:   chunks,
		index:    index,
		ai:       aiClient,
		files:    files,
		splitter: splitter,
	}
}

// Vectorize runs the full lifecycle for one unit: processing, delete old
// chunks, split, embed in one batch, upsert, mirror, completed. Any failure
// after the processing mark lands the unit in failed with the error recorded.
func (v *Vectorizer) Vectorize(ctx context.Context, kind model.UnitKind, unitID string) error {
	logger := logutil.GetLogger(ctx).With(zap.String("kind", string(kind)), zap.String("unit_id", unitID))
	unit, err := v.units.GetUnit(ctx, kind, unitID)
	if err != nil {
		return err
	}
	if err := v.units.SetVectorStatus(ctx, kind, unitID, model.VectorStatusProcessing, ""); err != nil {
		return err
	}
	count, err := v.run(ctx, unit)
	if err != nil {
		logger.Error("vectorization failed", zap.Error(err))
		if stErr := v.units.SetVectorStatus(ctx, kind, unitID, model.VectorStatusFailed, err.Error()); stErr != nil {
			logger.Error("unable to record failed status", zap.Error(stErr))
		}
		return err
	}
	logger.Info("vectorization completed", zap.Int("chunks", count))
	return v.units.SetVectorStatus(ctx, kind, unitID, model.VectorStatusCompleted, "")
}

func (v *Vectorizer) run(ctx context.Context, unit *model.DocumentUnit) (int, error) {
	if err := v.clearUnit(ctx, unit.ID); err != nil {
		return 0, err
	}
	content, err := v.loadContent(ctx, unit)
	if err != nil {
		return 0, err
	}
	text := chunker.FlattenMarkdown(content)
	if strings.TrimSpace(text) == "" {
		// Empty units complete with zero chunks and never reach the embedder.
		return 0, nil
	}
	if max := v.ai.MaxInputChars(); max > 0 {
		if runes := []rune(text); len(runes) > max {
			text = string(runes[:max])
		}
	}
	noteID, err := v.resolveNoteScope(ctx, unit)
	if err != nil {
		return 0, err
	}
	cite := v.extractCitation(unit, text)
	pieces := v.splitter.Split(text)
	texts := make([]string, 0, len(pieces))
	for _, piece := range pieces {
		texts = append(texts, piece.Text)
	}
	vectors, err := v.ai.EmbedBatch(ctx, texts, ai.TaskTypeDocument)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", appErr.ErrEmbedding, err)
	}
	if len(vectors) != len(pieces) {
		return 0, fmt.Errorf("%w: got %d embeddings for %d chunks", appErr.ErrEmbedding, len(vectors), len(pieces))
	}

	contentType := model.ContentTypeNote
	libraryItemID := ""
	if unit.Kind == model.UnitKindLibraryItem {
		contentType = model.ContentTypeLibraryItem
		libraryItemID = unit.ID
	}
	modelName := v.ai.EmbeddingModelName()
	records := make([]vectorindex.Record, 0, len(pieces))
	mirror := make([]*model.Chunk, 0, len(pieces))
	for i, piece := range pieces {
		vectorID := newVectorID()
		records = append(records, vectorindex.Record{
			ID:     vectorID,
			Vector: vectors[i],
			Metadata: map[string]interface{}{
				metaText:           piece.Text,
				metaNoteID:         noteID,
				metaUserID:         unit.UserID,
				metaProjectID:      unit.ProjectID,
				metaUnitID:         unit.ID,
				metaLibraryItemID:  libraryItemID,
				metaContentType:    string(contentType),
				metaChunkIndex:     piece.Index,
				metaChunkSize:      len([]rune(piece.Text)),
				metaEmbeddingModel: modelName,
				metaCiteAuthor:     cite.Author,
				metaCiteTitle:      cite.Title,
				metaCiteSourceFile: cite.SourceFile,
				metaCiteYear:       cite.Year,
			},
		})
		mirror = append(mirror, &model.Chunk{
			ID:             newID(),
			UnitID:         unit.ID,
			NoteID:         noteID,
			LibraryItemID:  libraryItemID,
			UserID:         unit.UserID,
			ContentType:    contentType,
			Content:        piece.Text,
			ChunkIndex:     piece.Index,
			ChunkSize:      len([]rune(piece.Text)),
			VectorID:       vectorID,
			EmbeddingModel: modelName,
			Citation:       cite,
		})
	}
	if err := v.index.Upsert(ctx, records); err != nil {
		return 0, fmt.Errorf("%w: %v", appErr.ErrVectorIndex, err)
	}
	if err := v.chunks.ReplaceForUnit(ctx, unit.ID, mirror); err != nil {
		return 0, err
	}
	return len(pieces), nil
}

// clearUnit wipes both sides of the previous run: the indexed vectors via a
// filtered delete and the mirror rows. Blank units end here with zero chunks.
func (v *Vectorizer) clearUnit(ctx context.Context, unitID string) error {
	if err := v.index.DeleteByFilter(ctx, vectorindex.Filter{metaUnitID: unitID}); err != nil {
		return fmt.Errorf("%w: %v", appErr.ErrVectorIndex, err)
	}
	return v.chunks.DeleteByUnit(ctx, unitID)
}

func (v *Vectorizer) loadContent(ctx context.Context, unit *model.DocumentUnit) (string, error) {
	if unit.Kind == model.UnitKindNote {
		return unit.Content, nil
	}
	if unit.FileKey == "" {
		return unit.Content, nil
	}
	return filestore.ReadAllText(ctx, v.files, unit.FileKey)
}

// resolveNoteScope guarantees every chunk carries a note id. Library items
// without a real note get the per-project placeholder note.
func (v *Vectorizer) resolveNoteScope(ctx context.Context, unit *model.DocumentUnit) (string, error) {
	if unit.Kind == model.UnitKindNote {
		return unit.ID, nil
	}
	if unit.NoteID != "" {
		return unit.NoteID, nil
	}
	return v.units.ResolvePlaceholderNote(ctx, unit.UserID, unit.ProjectID)
}

func (v *Vectorizer) extractCitation(unit *model.DocumentUnit, text string) model.Citation {
	if unit.Kind == model.UnitKindNote {
		return model.Citation{Title: unit.Title}
	}
	cite := citation.Extract(unit.FileName, text)
	if cite.Title == "" {
		cite.Title = unit.Title
	}
	return cite
}

// Reassociate moves a library item's chunks to another note by patching
// metadata only; vectors are never re-embedded. Index-side patching is
// best-effort, the relational mirror is always rewritten.
func (v *Vectorizer) Reassociate(ctx context.Context, userID, itemID, noteID string) (int, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("item_id", itemID), zap.String("note_id", noteID))
	unit, err := v.units.GetUnit(ctx, model.UnitKindLibraryItem, itemID)
	if err != nil {
		return 0, err
	}
	if unit.UserID != userID {
		return 0, appErr.ErrForbidden
	}
	target, err := v.units.GetNote(ctx, noteID)
	if err != nil {
		return 0, err
	}
	if target.UserID != userID || target.ProjectID != unit.ProjectID {
		return 0, appErr.ErrForbidden
	}
	vectorIDs, err := v.chunks.ListVectorIDsByUnit(ctx, itemID)
	if err != nil {
		return 0, err
	}
	updated, err := v.index.UpdateMetadataByIDs(ctx, vectorIDs, map[string]interface{}{metaNoteID: noteID})
	if err != nil {
		logger.Warn("index metadata patch incomplete", zap.Error(err))
	}
	if err := v.chunks.UpdateNoteIDForUnit(ctx, itemID, noteID); err != nil {
		return updated, err
	}
	if err := v.units.SetLibraryItemNote(ctx, itemID, noteID); err != nil {
		return updated, err
	}
	logger.Info("item reassociated", zap.Int("patched", updated), zap.Int("total", len(vectorIDs)))
	return updated, nil
}
