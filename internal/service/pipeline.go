package service

import (
	"context"
	"sync"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/notewise/notewise/internal/model"
)

const (
	noChunksConfidence = 0.2

	hybridDocWeight      = 0.7
	hybridFallbackWeight = 0.3

	degradedAnswer  = "I'm sorry, I wasn't able to answer that right now. Please try again in a moment."
	noContextAnswer = "I couldn't find anything relevant to that question in this note's documents."
)

// StreamHandler receives answer text as it is produced. The final call has
// isComplete true and empty text; it fires exactly once per request, even when
// the pipeline fails.
type StreamHandler func(text string, isComplete bool)

// Pipeline routes a question through intent classification to one of the
// three answer paths. It never returns an error: failures degrade to an
// apology answer with zero confidence.
type Pipeline struct {
	units     UnitStore
	retriever *Retriever
	intents   *IntentClassifier
	synth     *Synthesizer
	topK      int
}

func NewPipeline(units UnitStore, retriever *Retriever, intents *IntentClassifier, synth *Synthesizer) *Pipeline {
	return &Pipeline{
		units:     units,
		retriever: retriever,
		intents:   intents,
		synth:     synth,
		topK:      DefaultTopK,
	}
}

func (p *Pipeline) Answer(ctx context.Context, userID, noteID, question string) *model.AnswerResult {
	return p.answer(ctx, userID, noteID, question, nil)
}

// AnswerStream behaves like Answer but forwards text through onChunk as it is
// generated. The terminal callback is guaranteed on every path.
func (p *Pipeline) AnswerStream(ctx context.Context, userID, noteID, question string, onChunk StreamHandler) *model.AnswerResult {
	guard := &streamGuard{onChunk: onChunk}
	result := p.answer(ctx, userID, noteID, question, guard)
	guard.finish()
	return result
}

func (p *Pipeline) answer(ctx context.Context, userID, noteID, question string, guard *streamGuard) *model.AnswerResult {
	logger := logutil.GetLogger(ctx).With(zap.String("note_id", noteID))
	qctx := p.buildQueryContext(ctx, userID, noteID)
	cls := p.intents.Classify(ctx, question, qctx)
	logger.Debug("question classified",
		zap.String("intent", string(cls.Intent)),
		zap.String("pipeline", string(cls.SuggestedPipeline)),
		zap.Float64("confidence", cls.Confidence))

	var result *model.AnswerResult
	var err error
	switch cls.SuggestedPipeline {
	case model.PipelineExternalOnly:
		result, err = p.runExternal(ctx, question, guard)
	case model.PipelineHybrid:
		result, err = p.runHybrid(ctx, userID, noteID, question, guard)
	default:
		result, err = p.runRAG(ctx, userID, noteID, question, guard)
	}
	if err != nil {
		logger.Error("pipeline failed, answering degraded", zap.String("pipeline", string(cls.SuggestedPipeline)), zap.Error(err))
		result = &model.AnswerResult{
			Answer:       degradedAnswer,
			PipelineUsed: cls.SuggestedPipeline,
			Confidence:   0,
		}
		guard.emit(result.Answer)
	}
	result.Intent = &cls
	return result
}

func (p *Pipeline) buildQueryContext(ctx context.Context, userID, noteID string) model.QueryContext {
	logger := logutil.GetLogger(ctx)
	note, err := p.units.GetNote(ctx, noteID)
	if err != nil || note.UserID != userID {
		if err != nil {
			logger.Warn("note lookup failed for query context", zap.Error(err))
		}
		return model.QueryContext{}
	}
	titles, err := p.units.AttachedItemTitles(ctx, note.AttachedItemIDs)
	if err != nil {
		logger.Warn("attachment titles lookup failed", zap.Error(err))
	}
	return model.QueryContext{
		AttachedDocuments: titles,
		NoteHasContent:    note.HasContent,
	}
}

func (p *Pipeline) runRAG(ctx context.Context, userID, noteID, question string, guard *streamGuard) (*model.AnswerResult, error) {
	chunks, err := p.retriever.SearchForQA(ctx, userID, noteID, question, p.topK)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		guard.emit(noContextAnswer)
		return &model.AnswerResult{
			Answer:       noContextAnswer,
			PipelineUsed: model.PipelineRAGOnly,
			Confidence:   noChunksConfidence,
		}, nil
	}
	var res *SynthesisResult
	if guard != nil {
		res, err = p.synth.FromDocumentsStream(ctx, question, chunks, guard.emit)
	} else {
		res, err = p.synth.FromDocuments(ctx, question, chunks)
	}
	if err != nil {
		return nil, err
	}
	return &model.AnswerResult{
		Answer:       res.Answer,
		Sources:      res.Sources,
		PipelineUsed: model.PipelineRAGOnly,
		Confidence:   res.Confidence,
	}, nil
}

func (p *Pipeline) runExternal(ctx context.Context, question string, guard *streamGuard) (*model.AnswerResult, error) {
	var res *SynthesisResult
	var err error
	if guard != nil {
		res, err = p.synth.ExternalStream(ctx, question, guard.emit)
	} else {
		res, err = p.synth.External(ctx, question)
	}
	if err != nil {
		return nil, err
	}
	return &model.AnswerResult{
		Answer:       res.Answer,
		Sources:      res.Sources,
		PipelineUsed: model.PipelineExternalOnly,
		Confidence:   res.Confidence,
	}, nil
}

// runHybrid fans retrieval and the external draft out concurrently, then
// merges. Retrieval failure degrades to the external part alone; only a
// failure of both paths surfaces as an error.
func (p *Pipeline) runHybrid(ctx context.Context, userID, noteID, question string, guard *streamGuard) (*model.AnswerResult, error) {
	logger := logutil.GetLogger(ctx)
	var wg sync.WaitGroup
	var chunks []model.RetrievedChunk
	var retErr error
	var draft *SynthesisResult
	var draftErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		chunks, retErr = p.retriever.SearchForQA(ctx, userID, noteID, question, p.topK)
	}()
	go func() {
		defer wg.Done()
		draft, draftErr = p.synth.External(ctx, question)
	}()
	wg.Wait()

	if retErr != nil {
		logger.Warn("hybrid retrieval failed, document side dropped", zap.Error(retErr))
		chunks = nil
	}
	docConfidence := documentConfidence
	docWeight := hybridDocWeight
	if len(chunks) == 0 {
		docConfidence = noChunksConfidence
		docWeight = hybridFallbackWeight
	}

	if len(chunks) == 0 {
		// Nothing to merge; the draft is the answer.
		if draftErr != nil {
			return nil, draftErr
		}
		guard.emit(draft.Answer)
		return &model.AnswerResult{
			Answer:       draft.Answer,
			Sources:      draft.Sources,
			PipelineUsed: model.PipelineHybrid,
			Confidence:   docWeight*docConfidence + (1-docWeight)*draft.Confidence,
		}, nil
	}

	externalDraft := ""
	draftConfidence := externalConfidence
	if draftErr != nil {
		logger.Warn("hybrid external draft failed, documents alone", zap.Error(draftErr))
		draftConfidence = 0
	} else {
		externalDraft = draft.Answer
		draftConfidence = draft.Confidence
	}

	var res *SynthesisResult
	var err error
	if guard != nil {
		res, err = p.synth.HybridStream(ctx, question, chunks, externalDraft, guard.emit)
	} else {
		res, err = p.synth.Hybrid(ctx, question, chunks, externalDraft)
	}
	if err != nil {
		return nil, err
	}
	sources := res.Sources
	if draftErr != nil {
		sources = documentSources(chunks)
	}
	return &model.AnswerResult{
		Answer:       res.Answer,
		Sources:      sources,
		PipelineUsed: model.PipelineHybrid,
		Confidence:   docWeight*docConfidence + (1-docWeight)*draftConfidence,
	}, nil
}

// streamGuard serializes emissions and enforces the single-terminal contract.
// A nil guard (blocking mode) swallows every call.
type streamGuard struct {
	onChunk StreamHandler
	mu      sync.Mutex
	done    bool
}

func (g *streamGuard) emit(text string) {
	if g == nil || text == "" {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.done {
		return
	}
	g.onChunk(text, false)
}

func (g *streamGuard) finish() {
	if g == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.done {
		return
	}
	g.done = true
	g.onChunk("", true)
}
