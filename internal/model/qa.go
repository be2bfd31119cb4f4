package model

// SecurityScope is the mandatory tenant triple carried on every retrieval.
// It is rebuilt per request and never cached.
type SecurityScope struct {
	UserID    string `json:"user_id"`
	ProjectID string `json:"project_id"`
	NoteID    string `json:"note_id"`
}

type Intent string

const (
	IntentInDomain    Intent = "in_domain"
	IntentOutOfDomain Intent = "out_of_domain"
	IntentHybrid      Intent = "hybrid"
)

type Pipeline string

const (
	PipelineRAGOnly      Pipeline = "rag_only"
	PipelineExternalOnly Pipeline = "external_only"
	PipelineHybrid       Pipeline = "hybrid"
)

type IntentClassification struct {
	Intent            Intent   `json:"intent"`
	Confidence        float64  `json:"confidence"`
	DomainTopics      []string `json:"domain_topics,omitempty"`
	SuggestedPipeline Pipeline `json:"suggested_pipeline"`
	Reasoning         string   `json:"reasoning,omitempty"`
}

// QueryContext describes what the classifier may ground on.
type QueryContext struct {
	AttachedDocuments []string `json:"attached_documents,omitempty"`
	NoteHasContent    bool     `json:"note_has_content"`
	ProjectDomain     string   `json:"project_domain,omitempty"`
}

type SourceType string

const (
	SourceTypeDocument SourceType = "document"
	SourceTypeExternal SourceType = "external"
)

type AnswerSource struct {
	Type     SourceType             `json:"type"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

type AnswerResult struct {
	Answer       string                `json:"answer"`
	Sources      []AnswerSource        `json:"sources,omitempty"`
	PipelineUsed Pipeline              `json:"pipeline_used"`
	Confidence   float64               `json:"confidence"`
	Intent       *IntentClassification `json:"intent,omitempty"`
}

// RetrievedChunk is one ranked similarity match, already security-filtered.
type RetrievedChunk struct {
	VectorID      string      `json:"vector_id"`
	Score         float32     `json:"score"`
	Content       string      `json:"content"`
	NoteID        string      `json:"note_id"`
	LibraryItemID string      `json:"library_item_id,omitempty"`
	ContentType   ContentType `json:"content_type"`
	ChunkIndex    int         `json:"chunk_index"`
	Citation      Citation    `json:"citation,omitempty"`
}
