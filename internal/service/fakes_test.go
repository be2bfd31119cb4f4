package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/notewise/notewise/internal/ai"
	"github.com/notewise/notewise/internal/model"
	appErr "github.com/notewise/notewise/internal/pkg/errors"
	"github.com/notewise/notewise/internal/vectorindex"
)

type statusChange struct {
	kind   model.UnitKind
	id     string
	status model.VectorStatus
	errTxt string
}

type fakeUnitStore struct {
	units         map[string]*model.DocumentUnit
	notes         map[string]*model.Note
	itemTitles    map[string]string
	statuses      []statusChange
	placeholderID string
	itemNotes     map[string]string
}

func newFakeUnitStore() *fakeUnitStore {
	return &fakeUnitStore{
		units:      map[string]*model.DocumentUnit{},
		notes:      map[string]*model.Note{},
		itemTitles: map[string]string{},
		itemNotes:  map[string]string{},
	}
}

func unitKey(kind model.UnitKind, id string) string {
	return string(kind) + ":" + id
}

func (f *fakeUnitStore) addUnit(unit *model.DocumentUnit) {
	f.units[unitKey(unit.Kind, unit.ID)] = unit
}

func (f *fakeUnitStore) GetUnit(ctx context.Context, kind model.UnitKind, id string) (*model.DocumentUnit, error) {
	unit, ok := f.units[unitKey(kind, id)]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	clone := *unit
	return &clone, nil
}

func (f *fakeUnitStore) SetVectorStatus(ctx context.Context, kind model.UnitKind, id string, status model.VectorStatus, errText string) error {
	f.statuses = append(f.statuses, statusChange{kind: kind, id: id, status: status, errTxt: errText})
	return nil
}

func (f *fakeUnitStore) SetLibraryItemNote(ctx context.Context, itemID, noteID string) error {
	f.itemNotes[itemID] = noteID
	return nil
}

func (f *fakeUnitStore) GetNote(ctx context.Context, noteID string) (*model.Note, error) {
	note, ok := f.notes[noteID]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	clone := *note
	return &clone, nil
}

func (f *fakeUnitStore) AttachedItemTitles(ctx context.Context, itemIDs []string) ([]string, error) {
	var titles []string
	for _, id := range itemIDs {
		if title, ok := f.itemTitles[id]; ok {
			titles = append(titles, title)
		}
	}
	return titles, nil
}

func (f *fakeUnitStore) ResolvePlaceholderNote(ctx context.Context, userID, projectID string) (string, error) {
	if f.placeholderID == "" {
		f.placeholderID = "placeholder-" + projectID
	}
	return f.placeholderID, nil
}

func (f *fakeUnitStore) ListPendingUnits(ctx context.Context, delaySeconds int64, limit int) ([]model.DocumentUnit, error) {
	var pending []model.DocumentUnit
	for _, unit := range f.units {
		if unit.VectorStatus == model.VectorStatusPending {
			pending = append(pending, *unit)
		}
	}
	return pending, nil
}

func (f *fakeUnitStore) lastStatus() statusChange {
	if len(f.statuses) == 0 {
		return statusChange{}
	}
	return f.statuses[len(f.statuses)-1]
}

type fakeChunkStore struct {
	byUnit map[string][]*model.Chunk
}

func newFakeChunkStore() *fakeChunkStore {
	return &fakeChunkStore{byUnit: map[string][]*model.Chunk{}}
}

func (f *fakeChunkStore) ReplaceForUnit(ctx context.Context, unitID string, chunks []*model.Chunk) error {
	f.byUnit[unitID] = chunks
	return nil
}

func (f *fakeChunkStore) DeleteByUnit(ctx context.Context, unitID string) error {
	delete(f.byUnit, unitID)
	return nil
}

func (f *fakeChunkStore) ListByUnit(ctx context.Context, unitID string) ([]model.Chunk, error) {
	var out []model.Chunk
	for _, chunk := range f.byUnit[unitID] {
		out = append(out, *chunk)
	}
	return out, nil
}

func (f *fakeChunkStore) ListVectorIDsByUnit(ctx context.Context, unitID string) ([]string, error) {
	var ids []string
	for _, chunk := range f.byUnit[unitID] {
		ids = append(ids, chunk.VectorID)
	}
	return ids, nil
}

func (f *fakeChunkStore) UpdateNoteIDForUnit(ctx context.Context, unitID, noteID string) error {
	for _, chunk := range f.byUnit[unitID] {
		chunk.NoteID = noteID
	}
	return nil
}

type fakeIndex struct {
	records     map[string]vectorindex.Record
	matches     []vectorindex.Match
	lastFilter  vectorindex.Filter
	lastTopK    int
	queryErr    error
	upsertErr   error
	upsertCalls int
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{records: map[string]vectorindex.Record{}}
}

func (f *fakeIndex) Upsert(ctx context.Context, records []vectorindex.Record) error {
	f.upsertCalls++
	if f.upsertErr != nil {
		return f.upsertErr
	}
	for _, rec := range records {
		f.records[rec.ID] = rec
	}
	return nil
}

func (f *fakeIndex) Query(ctx context.Context, vector []float32, topK int, filter vectorindex.Filter) ([]vectorindex.Match, error) {
	f.lastFilter = filter
	f.lastTopK = topK
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.matches, nil
}

func (f *fakeIndex) DeleteByIDs(ctx context.Context, ids []string) error {
	for _, id := range ids {
		delete(f.records, id)
	}
	return nil
}

func (f *fakeIndex) DeleteByFilter(ctx context.Context, filter vectorindex.Filter) error {
	if len(filter) == 0 {
		return fmt.Errorf("refusing unfiltered delete")
	}
	for id, rec := range f.records {
		keep := false
		for key, want := range filter {
			if rec.Metadata[key] != want {
				keep = true
				break
			}
		}
		if !keep {
			delete(f.records, id)
		}
	}
	return nil
}

func (f *fakeIndex) UpdateMetadataByIDs(ctx context.Context, ids []string, patch map[string]interface{}) (int, error) {
	updated := 0
	for _, id := range ids {
		rec, ok := f.records[id]
		if !ok {
			continue
		}
		for key, value := range patch {
			rec.Metadata[key] = value
		}
		f.records[id] = rec
		updated++
	}
	return updated, nil
}

type fakeAI struct {
	embedCalls    int
	embedErr      error
	jsonResponse  string
	jsonErr       error
	completeText  string
	completeErr   error
	streamTokens  []string
	lastPrompts   []string
	maxInputChars int
}

func (f *fakeAI) EmbedBatch(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	f.embedCalls++
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i])), 1}
	}
	return out, nil
}

func (f *fakeAI) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	res, err := f.EmbedBatch(ctx, []string{text}, taskType)
	if err != nil {
		return nil, err
	}
	return res[0], nil
}

func (f *fakeAI) Complete(ctx context.Context, prompt string, opts ai.GenerateOptions) (string, error) {
	f.lastPrompts = append(f.lastPrompts, prompt)
	if f.completeErr != nil {
		return "", f.completeErr
	}
	return f.completeText, nil
}

func (f *fakeAI) CompleteJSON(ctx context.Context, prompt string) (string, error) {
	f.lastPrompts = append(f.lastPrompts, prompt)
	if f.jsonErr != nil {
		return "", f.jsonErr
	}
	return f.jsonResponse, nil
}

func (f *fakeAI) CompleteStream(ctx context.Context, prompt string, opts ai.GenerateOptions, onToken func(string)) (string, error) {
	f.lastPrompts = append(f.lastPrompts, prompt)
	if f.completeErr != nil {
		return "", f.completeErr
	}
	if len(f.streamTokens) > 0 {
		for _, token := range f.streamTokens {
			onToken(token)
		}
		return strings.Join(f.streamTokens, ""), nil
	}
	onToken(f.completeText)
	return f.completeText, nil
}

func (f *fakeAI) MaxInputChars() int {
	return f.maxInputChars
}

func (f *fakeAI) EmbeddingModelName() string {
	return "fake-embed-001"
}
