package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/notewise/notewise/internal/chunker"
	"github.com/notewise/notewise/internal/model"
	appErr "github.com/notewise/notewise/internal/pkg/errors"
	"github.com/notewise/notewise/internal/vectorindex"
)

func newTestVectorizer(units *fakeUnitStore, chunks *fakeChunkStore, index *fakeIndex, aiClient *fakeAI) *Vectorizer {
	splitter, err := chunker.New(50, 10)
	if err != nil {
		panic(err)
	}
	return NewVectorizer(units, chunks, index, aiClient, nil, splitter)
}

func TestVectorizeNoteLifecycle(t *testing.T) {
	units := newFakeUnitStore()
	units.addUnit(&model.DocumentUnit{
		ID:        "note-1",
		UserID:    "user-1",
		ProjectID: "proj-1",
		Kind:      model.UnitKindNote,
		NoteID:    "note-1",
		Title:     "Research log",
		Content:   strings.Repeat("photosynthesis converts light into chemical energy. ", 5),
	})
	chunks := newFakeChunkStore()
	index := newFakeIndex()
	aiClient := &fakeAI{}
	v := newTestVectorizer(units, chunks, index, aiClient)

	if err := v.Vectorize(context.Background(), model.UnitKindNote, "note-1"); err != nil {
		t.Fatalf("vectorize: %v", err)
	}
	if got := len(units.statuses); got != 2 {
		t.Fatalf("expected processing+completed, got %d transitions", got)
	}
	if units.statuses[0].status != model.VectorStatusProcessing {
		t.Fatalf("first transition should be processing, got %s", units.statuses[0].status)
	}
	if last := units.lastStatus(); last.status != model.VectorStatusCompleted || last.errTxt != "" {
		t.Fatalf("unexpected final status: %+v", last)
	}
	if aiClient.embedCalls != 1 {
		t.Fatalf("all chunks must embed in one batch, got %d calls", aiClient.embedCalls)
	}
	mirror := chunks.byUnit["note-1"]
	if len(mirror) == 0 || len(mirror) != len(index.records) {
		t.Fatalf("mirror (%d) and index (%d) out of sync", len(mirror), len(index.records))
	}
	for _, rec := range index.records {
		if rec.Metadata[metaUserID] != "user-1" || rec.Metadata[metaProjectID] != "proj-1" || rec.Metadata[metaNoteID] != "note-1" {
			t.Fatalf("record missing security triple: %+v", rec.Metadata)
		}
		if !strings.Contains(rec.ID, "-") {
			t.Fatalf("vector id %q is not UUID-formatted", rec.ID)
		}
	}
	for _, chunk := range mirror {
		if _, ok := index.records[chunk.VectorID]; !ok {
			t.Fatalf("mirror row %s points at unknown vector %s", chunk.ID, chunk.VectorID)
		}
	}
}

func TestVectorizeEmptyContentCompletesWithZeroChunks(t *testing.T) {
	units := newFakeUnitStore()
	units.addUnit(&model.DocumentUnit{
		ID:        "note-1",
		UserID:    "user-1",
		ProjectID: "proj-1",
		Kind:      model.UnitKindNote,
		Content:   "   \n\t ",
	})
	chunks := newFakeChunkStore()
	chunks.byUnit["note-1"] = []*model.Chunk{{ID: "old", VectorID: "old-vec", UnitID: "note-1"}}
	index := newFakeIndex()
	index.records["old-vec"] = vectorindex.Record{ID: "old-vec", Metadata: map[string]interface{}{metaUnitID: "note-1"}}
	aiClient := &fakeAI{}
	v := newTestVectorizer(units, chunks, index, aiClient)

	if err := v.Vectorize(context.Background(), model.UnitKindNote, "note-1"); err != nil {
		t.Fatalf("vectorize: %v", err)
	}
	if last := units.lastStatus(); last.status != model.VectorStatusCompleted {
		t.Fatalf("blank unit must complete, got %s", last.status)
	}
	if aiClient.embedCalls != 0 {
		t.Fatalf("blank unit must not reach embedder, got %d calls", aiClient.embedCalls)
	}
	if len(chunks.byUnit["note-1"]) != 0 {
		t.Fatalf("old mirror rows survived: %d", len(chunks.byUnit["note-1"]))
	}
	if _, ok := index.records["old-vec"]; ok {
		t.Fatalf("old vector survived the wipe")
	}
}

func TestVectorizeReplacesPreviousRun(t *testing.T) {
	units := newFakeUnitStore()
	units.addUnit(&model.DocumentUnit{
		ID:        "note-1",
		UserID:    "user-1",
		ProjectID: "proj-1",
		Kind:      model.UnitKindNote,
		Content:   "fresh content for the second run of the vectorizer",
	})
	chunks := newFakeChunkStore()
	index := newFakeIndex()
	index.records["stale-vec"] = vectorindex.Record{ID: "stale-vec", Metadata: map[string]interface{}{metaUnitID: "note-1"}}
	index.records["other-vec"] = vectorindex.Record{ID: "other-vec", Metadata: map[string]interface{}{metaUnitID: "note-9"}}
	v := newTestVectorizer(units, chunks, index, &fakeAI{})

	if err := v.Vectorize(context.Background(), model.UnitKindNote, "note-1"); err != nil {
		t.Fatalf("vectorize: %v", err)
	}
	if _, ok := index.records["stale-vec"]; ok {
		t.Fatalf("previous run's vector not deleted")
	}
	if _, ok := index.records["other-vec"]; !ok {
		t.Fatalf("unrelated unit's vector was deleted")
	}
}

func TestVectorizeEmbedFailureMarksFailed(t *testing.T) {
	units := newFakeUnitStore()
	units.addUnit(&model.DocumentUnit{
		ID:        "note-1",
		UserID:    "user-1",
		ProjectID: "proj-1",
		Kind:      model.UnitKindNote,
		Content:   "content that will fail to embed",
	})
	index := newFakeIndex()
	aiClient := &fakeAI{embedErr: errors.New("quota exceeded")}
	v := newTestVectorizer(units, newFakeChunkStore(), index, aiClient)

	err := v.Vectorize(context.Background(), model.UnitKindNote, "note-1")
	if !errors.Is(err, appErr.ErrEmbedding) {
		t.Fatalf("expected embedding error, got %v", err)
	}
	last := units.lastStatus()
	if last.status != model.VectorStatusFailed {
		t.Fatalf("expected failed status, got %s", last.status)
	}
	if !strings.Contains(last.errTxt, "quota exceeded") {
		t.Fatalf("error text not recorded: %q", last.errTxt)
	}
	if index.upsertCalls != 0 {
		t.Fatalf("nothing may be upserted after embed failure")
	}
}

func TestVectorizeUnattachedItemGetsPlaceholderNote(t *testing.T) {
	units := newFakeUnitStore()
	units.addUnit(&model.DocumentUnit{
		ID:        "item-1",
		UserID:    "user-1",
		ProjectID: "proj-1",
		Kind:      model.UnitKindLibraryItem,
		FileName:  "Jane Doe - Field Notes (2021).md",
		Content:   "field observations from the northern site",
	})
	index := newFakeIndex()
	v := newTestVectorizer(units, newFakeChunkStore(), index, &fakeAI{})

	if err := v.Vectorize(context.Background(), model.UnitKindLibraryItem, "item-1"); err != nil {
		t.Fatalf("vectorize: %v", err)
	}
	if units.placeholderID == "" {
		t.Fatalf("placeholder note was never resolved")
	}
	for _, rec := range index.records {
		if rec.Metadata[metaNoteID] != units.placeholderID {
			t.Fatalf("chunk not scoped to placeholder note: %v", rec.Metadata[metaNoteID])
		}
		if rec.Metadata[metaLibraryItemID] != "item-1" {
			t.Fatalf("chunk missing item id: %v", rec.Metadata[metaLibraryItemID])
		}
	}
}

func TestReassociatePatchesMetadataWithoutReembedding(t *testing.T) {
	units := newFakeUnitStore()
	units.addUnit(&model.DocumentUnit{
		ID:        "item-1",
		UserID:    "user-1",
		ProjectID: "proj-1",
		Kind:      model.UnitKindLibraryItem,
		NoteID:    "note-old",
	})
	units.notes["note-new"] = &model.Note{ID: "note-new", UserID: "user-1", ProjectID: "proj-1"}
	chunks := newFakeChunkStore()
	chunks.byUnit["item-1"] = []*model.Chunk{
		{ID: "c1", UnitID: "item-1", NoteID: "note-old", VectorID: "v1"},
		{ID: "c2", UnitID: "item-1", NoteID: "note-old", VectorID: "v2"},
	}
	index := newFakeIndex()
	index.records["v1"] = vectorindex.Record{ID: "v1", Vector: []float32{1, 2}, Metadata: map[string]interface{}{metaNoteID: "note-old"}}
	index.records["v2"] = vectorindex.Record{ID: "v2", Vector: []float32{3, 4}, Metadata: map[string]interface{}{metaNoteID: "note-old"}}
	aiClient := &fakeAI{}
	v := newTestVectorizer(units, chunks, index, aiClient)

	updated, err := v.Reassociate(context.Background(), "user-1", "item-1", "note-new")
	if err != nil {
		t.Fatalf("reassociate: %v", err)
	}
	if updated != 2 {
		t.Fatalf("expected 2 patched vectors, got %d", updated)
	}
	if aiClient.embedCalls != 0 {
		t.Fatalf("reassociation must never re-embed")
	}
	for id, rec := range index.records {
		if rec.Metadata[metaNoteID] != "note-new" {
			t.Fatalf("vector %s not repointed: %v", id, rec.Metadata[metaNoteID])
		}
		if len(rec.Vector) == 0 {
			t.Fatalf("vector %s lost its embedding", id)
		}
	}
	for _, chunk := range chunks.byUnit["item-1"] {
		if chunk.NoteID != "note-new" {
			t.Fatalf("mirror row %s not repointed", chunk.ID)
		}
	}
	if units.itemNotes["item-1"] != "note-new" {
		t.Fatalf("item row association not updated")
	}
}

func TestReassociateRejectsForeignNote(t *testing.T) {
	units := newFakeUnitStore()
	units.addUnit(&model.DocumentUnit{
		ID:        "item-1",
		UserID:    "user-1",
		ProjectID: "proj-1",
		Kind:      model.UnitKindLibraryItem,
	})
	units.notes["note-x"] = &model.Note{ID: "note-x", UserID: "user-2", ProjectID: "proj-1"}
	v := newTestVectorizer(units, newFakeChunkStore(), newFakeIndex(), &fakeAI{})

	if _, err := v.Reassociate(context.Background(), "user-1", "item-1", "note-x"); !errors.Is(err, appErr.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}
