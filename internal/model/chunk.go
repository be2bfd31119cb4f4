package model

type ContentType string

const (
	ContentTypeNote        ContentType = "note"
	ContentTypeLibraryItem ContentType = "library_item"
)

// Citation is best-effort metadata extracted from a file name and leading
// content. Empty fields are normal.
type Citation struct {
	Author     string `json:"author,omitempty"`
	Title      string `json:"title,omitempty"`
	SourceFile string `json:"source_file,omitempty"`
	Year       string `json:"year,omitempty"`
}

func (c Citation) Empty() bool {
	return c.Author == "" && c.Title == "" && c.SourceFile == "" && c.Year == ""
}

// Chunk mirrors one vector index record for reverse lookup. ChunkIndex is
// unique within (NoteID, LibraryItemID); VectorID is globally unique.
type Chunk struct {
	ID             string      `json:"id"`
	UnitID         string      `json:"unit_id"`
	NoteID         string      `json:"note_id"`
	LibraryItemID  string      `json:"library_item_id,omitempty"`
	UserID         string      `json:"user_id"`
	ContentType    ContentType `json:"content_type"`
	Content        string      `json:"content"`
	ChunkIndex     int         `json:"chunk_index"`
	ChunkSize      int         `json:"chunk_size"`
	VectorID       string      `json:"vector_id"`
	EmbeddingModel string      `json:"embedding_model"`
	Citation       Citation    `json:"citation,omitempty"`
	Ctime          int64       `json:"ctime"`
}
