package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/notewise/notewise/internal/model"
	"github.com/notewise/notewise/internal/vectorindex"
)

func newTestPipeline(units *fakeUnitStore, index *fakeIndex, aiClient *fakeAI) *Pipeline {
	retriever := NewRetriever(units, index, aiClient)
	intents := NewIntentClassifier(aiClient)
	synth := NewSynthesizer(aiClient)
	return NewPipeline(units, retriever, intents, synth)
}

func ragIntentJSON() string {
	return `{"intent": "in_domain", "confidence": 0.9, "suggested_pipeline": "rag_only"}`
}

func TestAnswerRAGOnly(t *testing.T) {
	units := newFakeUnitStore()
	units.notes["note-1"] = &model.Note{
		ID: "note-1", UserID: "user-1", ProjectID: "proj-1", HasContent: true,
		AttachedItemIDs: []string{"item-1"},
	}
	units.itemTitles["item-1"] = "plant-biology.pdf"
	index := newFakeIndex()
	index.matches = []vectorindex.Match{
		{ID: "v1", Score: 0.88, Text: "chlorophyll absorbs light", Metadata: map[string]interface{}{
			metaNoteID: "note-1", metaLibraryItemID: "item-1", metaContentType: "library_item",
			metaCiteAuthor: "Jane Doe", metaCiteYear: "2021",
		}},
	}
	aiClient := &fakeAI{
		jsonResponse: ragIntentJSON(),
		completeText: "Chlorophyll absorbs light for photosynthesis (Jane Doe, 2021).",
	}
	p := newTestPipeline(units, index, aiClient)

	result := p.Answer(context.Background(), "user-1", "note-1", "What does this document say about chlorophyll?")
	if result.PipelineUsed != model.PipelineRAGOnly {
		t.Fatalf("expected rag_only, got %s", result.PipelineUsed)
	}
	if result.Confidence != documentConfidence {
		t.Fatalf("expected confidence %v, got %v", documentConfidence, result.Confidence)
	}
	if !strings.Contains(result.Answer, "Chlorophyll") {
		t.Fatalf("unexpected answer: %q", result.Answer)
	}
	if len(result.Sources) != 1 || result.Sources[0].Type != model.SourceTypeDocument {
		t.Fatalf("expected one document source, got %+v", result.Sources)
	}
	if result.Intent == nil || result.Intent.Intent != model.IntentInDomain {
		t.Fatalf("classification not attached: %+v", result.Intent)
	}
}

func TestAnswerRAGWithNoMatchesReportsLowConfidence(t *testing.T) {
	units := newFakeUnitStore()
	units.notes["note-1"] = &model.Note{ID: "note-1", UserID: "user-1", ProjectID: "proj-1", HasContent: true}
	index := newFakeIndex()
	aiClient := &fakeAI{jsonResponse: ragIntentJSON()}
	p := newTestPipeline(units, index, aiClient)

	result := p.Answer(context.Background(), "user-1", "note-1", "What does this document say about dragons?")
	if result.Confidence != noChunksConfidence {
		t.Fatalf("expected confidence %v, got %v", noChunksConfidence, result.Confidence)
	}
	if result.Answer != noContextAnswer {
		t.Fatalf("unexpected answer: %q", result.Answer)
	}
	if len(result.Sources) != 0 {
		t.Fatalf("no sources expected without matches")
	}
}

func TestAnswerExternalOnly(t *testing.T) {
	units := newFakeUnitStore()
	aiClient := &fakeAI{
		jsonErr:      errors.New("classifier down"),
		completeText: "Paris is the capital of France.",
	}
	p := newTestPipeline(units, newFakeIndex(), aiClient)

	result := p.Answer(context.Background(), "user-1", "note-missing", "What is the capital of France?")
	if result.PipelineUsed != model.PipelineExternalOnly {
		t.Fatalf("expected external_only, got %s", result.PipelineUsed)
	}
	if result.Confidence != externalConfidence {
		t.Fatalf("expected confidence %v, got %v", externalConfidence, result.Confidence)
	}
	if len(result.Sources) != 1 || result.Sources[0].Type != model.SourceTypeExternal {
		t.Fatalf("expected one external source, got %+v", result.Sources)
	}
}

func TestAnswerHybridMergesBothSides(t *testing.T) {
	units := newFakeUnitStore()
	units.notes["note-1"] = &model.Note{
		ID: "note-1", UserID: "user-1", ProjectID: "proj-1", HasContent: true,
		AttachedItemIDs: []string{"item-1"},
	}
	units.itemTitles["item-1"] = "plant-biology.pdf"
	index := newFakeIndex()
	index.matches = []vectorindex.Match{
		{ID: "v1", Score: 0.8, Text: "the paper describes light reactions", Metadata: map[string]interface{}{
			metaNoteID: "note-1", metaLibraryItemID: "item-1", metaContentType: "library_item",
		}},
	}
	aiClient := &fakeAI{
		jsonResponse: `{"intent": "hybrid", "confidence": 0.8, "suggested_pipeline": "hybrid"}`,
		completeText: "Photosynthesis converts light to energy; your paper covers the light reactions.",
	}
	p := newTestPipeline(units, index, aiClient)

	result := p.Answer(context.Background(), "user-1", "note-1", "Explain photosynthesis")
	if result.PipelineUsed != model.PipelineHybrid {
		t.Fatalf("expected hybrid, got %s", result.PipelineUsed)
	}
	wantConfidence := hybridDocWeight*documentConfidence + (1-hybridDocWeight)*externalConfidence
	if result.Confidence != wantConfidence {
		t.Fatalf("expected confidence %v, got %v", wantConfidence, result.Confidence)
	}
	var docs, external int
	for _, source := range result.Sources {
		switch source.Type {
		case model.SourceTypeDocument:
			docs++
		case model.SourceTypeExternal:
			external++
		}
	}
	if docs != 1 || external != 1 {
		t.Fatalf("expected document and external sources, got %+v", result.Sources)
	}
}

func TestAnswerDegradesInsteadOfFailing(t *testing.T) {
	units := newFakeUnitStore()
	units.notes["note-1"] = &model.Note{ID: "note-1", UserID: "user-1", ProjectID: "proj-1", HasContent: true}
	index := newFakeIndex()
	index.matches = []vectorindex.Match{
		{ID: "v1", Score: 0.8, Text: "some context", Metadata: map[string]interface{}{metaNoteID: "note-1"}},
	}
	aiClient := &fakeAI{
		jsonResponse: ragIntentJSON(),
		completeErr:  errors.New("model overloaded"),
	}
	p := newTestPipeline(units, index, aiClient)

	result := p.Answer(context.Background(), "user-1", "note-1", "What does this document say?")
	if result.Answer != degradedAnswer {
		t.Fatalf("expected degraded answer, got %q", result.Answer)
	}
	if result.Confidence != 0 {
		t.Fatalf("degraded answers carry zero confidence, got %v", result.Confidence)
	}
}

func TestAnswerStreamForwardsTokensAndTerminatesOnce(t *testing.T) {
	units := newFakeUnitStore()
	units.notes["note-1"] = &model.Note{ID: "note-1", UserID: "user-1", ProjectID: "proj-1", HasContent: true}
	index := newFakeIndex()
	index.matches = []vectorindex.Match{
		{ID: "v1", Score: 0.8, Text: "ctx", Metadata: map[string]interface{}{metaNoteID: "note-1"}},
	}
	aiClient := &fakeAI{
		jsonResponse: ragIntentJSON(),
		streamTokens: []string{"The answer ", "is ", "here."},
	}
	p := newTestPipeline(units, index, aiClient)

	var texts []string
	terminals := 0
	result := p.AnswerStream(context.Background(), "user-1", "note-1", "What does this document say?",
		func(text string, isComplete bool) {
			if isComplete {
				terminals++
				return
			}
			texts = append(texts, text)
		})
	if terminals != 1 {
		t.Fatalf("expected exactly one terminal callback, got %d", terminals)
	}
	if got := strings.Join(texts, ""); got != "The answer is here." {
		t.Fatalf("streamed text mismatch: %q", got)
	}
	if result.Answer != "The answer is here." {
		t.Fatalf("result answer mismatch: %q", result.Answer)
	}
}

func TestAnswerStreamTerminatesOnceOnFailure(t *testing.T) {
	units := newFakeUnitStore()
	aiClient := &fakeAI{
		jsonErr:     errors.New("classifier down"),
		completeErr: errors.New("model down"),
	}
	p := newTestPipeline(units, newFakeIndex(), aiClient)

	var calls []bool
	result := p.AnswerStream(context.Background(), "user-1", "note-1", "anything",
		func(text string, isComplete bool) {
			calls = append(calls, isComplete)
		})
	if result.Answer != degradedAnswer {
		t.Fatalf("expected degraded answer, got %q", result.Answer)
	}
	terminals := 0
	for _, isComplete := range calls {
		if isComplete {
			terminals++
		}
	}
	if terminals != 1 {
		t.Fatalf("expected exactly one terminal, got %d in %v", terminals, calls)
	}
	if !calls[len(calls)-1] {
		t.Fatalf("terminal must be the last callback: %v", calls)
	}
}
