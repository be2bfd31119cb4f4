package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/notewise/notewise/internal/ai"
	"github.com/notewise/notewise/internal/citation"
	"github.com/notewise/notewise/internal/model"
	appErr "github.com/notewise/notewise/internal/pkg/errors"
)

// SynthesisResult is one synthesizer's output before the orchestrator attaches
// pipeline metadata.
type SynthesisResult struct {
	Answer     string
	Sources    []model.AnswerSource
	Confidence float64
}

const (
	documentConfidence = 0.8
	externalConfidence = 0.7
	hedgedConfidence   = 0.4

	sourceSnippetLen = 200
)

// Synthesizer turns retrieved context and general knowledge into answers. The
// streaming variants forward tokens through emit and return the same result as
// the blocking ones.
type Synthesizer struct {
	ai AIClient
}

func NewSynthesizer(aiClient AIClient) *Synthesizer {
	return &Synthesizer{ai: aiClient}
}

func (s *Synthesizer) FromDocuments(ctx context.Context, question string, chunks []model.RetrievedChunk) (*SynthesisResult, error) {
	answer, err := s.ai.Complete(ctx, buildDocumentPrompt(question, chunks), ai.GenerateOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", appErr.ErrCompletion, err)
	}
	return documentResult(answer, chunks), nil
}

func (s *Synthesizer) FromDocumentsStream(ctx context.Context, question string, chunks []model.RetrievedChunk, emit func(string)) (*SynthesisResult, error) {
	answer, err := s.ai.CompleteStream(ctx, buildDocumentPrompt(question, chunks), ai.GenerateOptions{}, emit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", appErr.ErrCompletion, err)
	}
	return documentResult(answer, chunks), nil
}

func (s *Synthesizer) External(ctx context.Context, question string) (*SynthesisResult, error) {
	answer, err := s.ai.Complete(ctx, buildExternalPrompt(question), ai.GenerateOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", appErr.ErrCompletion, err)
	}
	return externalResult(answer), nil
}

func (s *Synthesizer) ExternalStream(ctx context.Context, question string, emit func(string)) (*SynthesisResult, error) {
	answer, err := s.ai.CompleteStream(ctx, buildExternalPrompt(question), ai.GenerateOptions{}, emit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", appErr.ErrCompletion, err)
	}
	return externalResult(answer), nil
}

// Hybrid merges document context with an already-generated external draft into
// one combined answer.
func (s *Synthesizer) Hybrid(ctx context.Context, question string, chunks []model.RetrievedChunk, externalDraft string) (*SynthesisResult, error) {
	answer, err := s.ai.Complete(ctx, buildHybridPrompt(question, chunks, externalDraft), ai.GenerateOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", appErr.ErrCompletion, err)
	}
	return hybridResult(answer, chunks), nil
}

func (s *Synthesizer) HybridStream(ctx context.Context, question string, chunks []model.RetrievedChunk, externalDraft string, emit func(string)) (*SynthesisResult, error) {
	answer, err := s.ai.CompleteStream(ctx, buildHybridPrompt(question, chunks, externalDraft), ai.GenerateOptions{}, emit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", appErr.ErrCompletion, err)
	}
	return hybridResult(answer, chunks), nil
}

func documentResult(answer string, chunks []model.RetrievedChunk) *SynthesisResult {
	return &SynthesisResult{
		Answer:     strings.TrimSpace(answer),
		Sources:    documentSources(chunks),
		Confidence: documentConfidence,
	}
}

func externalResult(answer string) *SynthesisResult {
	answer = strings.TrimSpace(answer)
	confidence := externalConfidence
	if hedged(answer) {
		confidence = hedgedConfidence
	}
	return &SynthesisResult{
		Answer:     answer,
		Confidence: confidence,
		Sources: []model.AnswerSource{{
			Type:    model.SourceTypeExternal,
			Content: "General knowledge",
		}},
	}
}

func hybridResult(answer string, chunks []model.RetrievedChunk) *SynthesisResult {
	sources := documentSources(chunks)
	sources = append(sources, model.AnswerSource{
		Type:    model.SourceTypeExternal,
		Content: "General knowledge",
	})
	return &SynthesisResult{
		Answer:     strings.TrimSpace(answer),
		Sources:    sources,
		Confidence: documentConfidence,
	}
}

func hedged(answer string) bool {
	lowered := strings.ToLower(answer)
	return strings.Contains(lowered, "i don't know") ||
		strings.Contains(lowered, "i do not know") ||
		strings.Contains(lowered, "i'm not sure") ||
		strings.Contains(lowered, "i am not sure")
}

func buildDocumentPrompt(question string, chunks []model.RetrievedChunk) string {
	var sb strings.Builder
	sb.WriteString("Answer the question using ONLY the context sections below.\n")
	sb.WriteString("If the context does not contain the answer, say so plainly.\n")
	sb.WriteString("Where a section carries an author and year, cite it inline as (Author, Year).\n")
	sb.WriteString("Keep the answer to a few sentences.\n\n")
	sb.WriteString(buildContextBlock(chunks))
	fmt.Fprintf(&sb, "\nQuestion: %s\nAnswer:", question)
	return sb.String()
}

func buildExternalPrompt(question string) string {
	var sb strings.Builder
	sb.WriteString("Answer the question from general knowledge in a few sentences.\n")
	sb.WriteString("Do not invent citations or refer to any user documents.\n")
	sb.WriteString("If you are unsure, say so instead of guessing.\n\n")
	fmt.Fprintf(&sb, "Question: %s\nAnswer:", question)
	return sb.String()
}

func buildHybridPrompt(question string, chunks []model.RetrievedChunk, externalDraft string) string {
	var sb strings.Builder
	sb.WriteString("Combine the user's document context with the general knowledge draft ")
	sb.WriteString("into one coherent answer. Prefer the documents where they speak to the ")
	sb.WriteString("question and make clear which parts come from the documents. Cite ")
	sb.WriteString("document sections inline as (Author, Year) where available.\n\n")
	sb.WriteString(buildContextBlock(chunks))
	if externalDraft != "" {
		fmt.Fprintf(&sb, "\nGeneral knowledge draft:\n%s\n", externalDraft)
	}
	fmt.Fprintf(&sb, "\nQuestion: %s\nAnswer:", question)
	return sb.String()
}

func buildContextBlock(chunks []model.RetrievedChunk) string {
	if len(chunks) == 0 {
		return "Context sections: none\n"
	}
	var sb strings.Builder
	sb.WriteString("Context sections:\n")
	for i, chunk := range chunks {
		label := citationLabel(chunk.Citation)
		if label != "" {
			fmt.Fprintf(&sb, "[%d] %s\n%s\n\n", i+1, label, chunk.Content)
			continue
		}
		fmt.Fprintf(&sb, "[%d]\n%s\n\n", i+1, chunk.Content)
	}
	return sb.String()
}

func citationLabel(cite model.Citation) string {
	var parts []string
	if cite.Title != "" {
		parts = append(parts, cite.Title)
	}
	if cite.Author != "" {
		year := cite.Year
		if year == "" {
			year = citation.YearFromText(cite.Title)
		}
		if year != "" {
			parts = append(parts, fmt.Sprintf("(%s, %s)", cite.Author, year))
		} else {
			parts = append(parts, fmt.Sprintf("(%s)", cite.Author))
		}
	} else if cite.Year != "" {
		parts = append(parts, fmt.Sprintf("(%s)", cite.Year))
	}
	return strings.Join(parts, " ")
}

// documentSources dedupes retrieved chunks into one source entry per origin
// document, keeping the highest-ranked snippet.
func documentSources(chunks []model.RetrievedChunk) []model.AnswerSource {
	seen := make(map[string]bool, len(chunks))
	sources := make([]model.AnswerSource, 0, len(chunks))
	for _, chunk := range chunks {
		key := chunk.LibraryItemID
		if key == "" {
			key = chunk.NoteID
		}
		if chunk.Citation.SourceFile != "" {
			key = chunk.Citation.SourceFile
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		metadata := map[string]interface{}{
			"vector_id":   chunk.VectorID,
			"score":       chunk.Score,
			"chunk_index": chunk.ChunkIndex,
		}
		if chunk.LibraryItemID != "" {
			metadata["library_item_id"] = chunk.LibraryItemID
		}
		if !chunk.Citation.Empty() {
			metadata["citation"] = chunk.Citation
		}
		sources = append(sources, model.AnswerSource{
			Type:     model.SourceTypeDocument,
			Content:  snippet(chunk.Content),
			Metadata: metadata,
		})
	}
	return sources
}

func snippet(text string) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= sourceSnippetLen {
		return string(runes)
	}
	return string(runes[:sourceSnippetLen]) + "..."
}
