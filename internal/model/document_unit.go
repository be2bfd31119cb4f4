package model

type UnitKind string

const (
	UnitKindNote        UnitKind = "note"
	UnitKindLibraryItem UnitKind = "library_item"
)

type VectorStatus string

const (
	VectorStatusPending    VectorStatus = "pending"
	VectorStatusProcessing VectorStatus = "processing"
	VectorStatusCompleted  VectorStatus = "completed"
	VectorStatusFailed     VectorStatus = "failed"
)

// DocumentUnit is a vectorizable content source: either a user note or an
// uploaded library item. Every library item carries a note association so its
// chunks stay note-scoped; items without a real note get the per-project
// placeholder note.
type DocumentUnit struct {
	ID           string       `json:"id"`
	UserID       string       `json:"user_id"`
	ProjectID    string       `json:"project_id"`
	Kind         UnitKind     `json:"kind"`
	Title        string       `json:"title"`
	FileName     string       `json:"file_name,omitempty"`
	FileKey      string       `json:"file_key,omitempty"`
	Content      string       `json:"content"`
	NoteID       string       `json:"note_id,omitempty"`
	VectorStatus VectorStatus `json:"vector_status"`
	VectorError  string       `json:"vector_error,omitempty"`
	VectorMtime  int64        `json:"vector_mtime"`
}

// Note is the retrieval anchor resolved on every Q&A call. AttachedItemIDs is
// the live attachment set used for post-filtering.
type Note struct {
	ID              string   `json:"id"`
	UserID          string   `json:"user_id"`
	ProjectID       string   `json:"project_id"`
	Title           string   `json:"title"`
	HasContent      bool     `json:"has_content"`
	AttachedItemIDs []string `json:"attached_item_ids,omitempty"`
	Placeholder     bool     `json:"placeholder,omitempty"`
}
