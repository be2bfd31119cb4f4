package service

import (
	"context"

	"github.com/notewise/notewise/internal/ai"
	"github.com/notewise/notewise/internal/model"
	"github.com/notewise/notewise/internal/vectorindex"
)

// UnitStore is the persistence surface the vectorization and Q&A services
// need from document units and notes.
type UnitStore interface {
	GetUnit(ctx context.Context, kind model.UnitKind, id string) (*model.DocumentUnit, error)
	SetVectorStatus(ctx context.Context, kind model.UnitKind, id string, status model.VectorStatus, errText string) error
	SetLibraryItemNote(ctx context.Context, itemID, noteID string) error
	GetNote(ctx context.Context, noteID string) (*model.Note, error)
	AttachedItemTitles(ctx context.Context, itemIDs []string) ([]string, error)
	ResolvePlaceholderNote(ctx context.Context, userID, projectID string) (string, error)
	ListPendingUnits(ctx context.Context, delaySeconds int64, limit int) ([]model.DocumentUnit, error)
}

// ChunkStore mirrors indexed vectors in the relational store.
type ChunkStore interface {
	ReplaceForUnit(ctx context.Context, unitID string, chunks []*model.Chunk) error
	DeleteByUnit(ctx context.Context, unitID string) error
	ListByUnit(ctx context.Context, unitID string) ([]model.Chunk, error)
	ListVectorIDsByUnit(ctx context.Context, unitID string) ([]string, error)
	UpdateNoteIDForUnit(ctx context.Context, unitID, noteID string) error
}

// VectorIndex is the similarity store surface.
type VectorIndex interface {
	Upsert(ctx context.Context, records []vectorindex.Record) error
	Query(ctx context.Context, vector []float32, topK int, filter vectorindex.Filter) ([]vectorindex.Match, error)
	DeleteByIDs(ctx context.Context, ids []string) error
	DeleteByFilter(ctx context.Context, filter vectorindex.Filter) error
	UpdateMetadataByIDs(ctx context.Context, ids []string, patch map[string]interface{}) (int, error)
}

// AIClient is the model-call surface, satisfied by *ai.Manager.
type AIClient interface {
	EmbedBatch(ctx context.Context, texts []string, taskType string) ([][]float32, error)
	Embed(ctx context.Context, text string, taskType string) ([]float32, error)
	Complete(ctx context.Context, prompt string, opts ai.GenerateOptions) (string, error)
	CompleteJSON(ctx context.Context, prompt string) (string, error)
	CompleteStream(ctx context.Context, prompt string, opts ai.GenerateOptions, onToken func(string)) (string, error)
	MaxInputChars() int
	EmbeddingModelName() string
}

// Payload keys stored alongside every vector. The security triple
// (note_id, user_id, project_id) must be present on every record.
const (
	metaText           = "text"
	metaNoteID         = "note_id"
	metaUserID         = "user_id"
	metaProjectID      = "project_id"
	metaUnitID         = "unit_id"
	metaLibraryItemID  = "library_item_id"
	metaContentType    = "content_type"
	metaChunkIndex     = "chunk_index"
	metaChunkSize      = "chunk_size"
	metaEmbeddingModel = "embedding_model"
	metaCiteAuthor     = "cite_author"
	metaCiteTitle      = "cite_title"
	metaCiteSourceFile = "cite_source_file"
	metaCiteYear       = "cite_year"
)
