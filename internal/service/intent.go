package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/notewise/notewise/internal/model"
)

const (
	intentCacheSize = 512
	intentCacheTTL  = 10 * time.Minute
)

// IntentClassifier decides which answer pipeline a question should take. It
// never fails: a broken model call falls back to keyword heuristics, and the
// result is always sanity-checked against what the note actually holds.
type IntentClassifier struct {
	ai    AIClient
	cache *expirable.LRU[string, model.IntentClassification]
}

func NewIntentClassifier(aiClient AIClient) *IntentClassifier {
	return &IntentClassifier{
		ai:    aiClient,
		cache: expirable.NewLRU[string, model.IntentClassification](intentCacheSize, nil, intentCacheTTL),
	}
}

func (s *IntentClassifier) Classify(ctx context.Context, query string, qctx model.QueryContext) model.IntentClassification {
	query = strings.TrimSpace(query)
	key := intentCacheKey(query, qctx)
	if cached, ok := s.cache.Get(key); ok {
		return cached
	}
	cls := s.classifyByModel(ctx, query, qctx)
	if cls == nil {
		fallback := classifyByKeywords(query, qctx)
		cls = &fallback
	}
	result := sanitizeClassification(*cls, qctx)
	s.cache.Add(key, result)
	return result
}

func intentCacheKey(query string, qctx model.QueryContext) string {
	digest := fmt.Sprintf("%s|%v|%t|%s", query, qctx.AttachedDocuments, qctx.NoteHasContent, qctx.ProjectDomain)
	sum := sha256.Sum256([]byte(digest))
	return hex.EncodeToString(sum[:])
}

func (s *IntentClassifier) classifyByModel(ctx context.Context, query string, qctx model.QueryContext) *model.IntentClassification {
	logger := logutil.GetLogger(ctx)
	raw, err := s.ai.CompleteJSON(ctx, buildIntentPrompt(query, qctx))
	if err != nil {
		logger.Warn("intent model call failed, using keyword fallback", zap.Error(err))
		return nil
	}
	var cls model.IntentClassification
	if err := json.Unmarshal([]byte(raw), &cls); err != nil {
		logger.Warn("intent response unparseable, using keyword fallback", zap.Error(err))
		return nil
	}
	switch cls.Intent {
	case model.IntentInDomain, model.IntentOutOfDomain, model.IntentHybrid:
	default:
		logger.Warn("intent response invalid, using keyword fallback", zap.String("intent", string(cls.Intent)))
		return nil
	}
	switch cls.SuggestedPipeline {
	case model.PipelineRAGOnly, model.PipelineExternalOnly, model.PipelineHybrid:
	default:
		logger.Warn("pipeline suggestion invalid, using keyword fallback", zap.String("pipeline", string(cls.SuggestedPipeline)))
		return nil
	}
	return &cls
}

func buildIntentPrompt(query string, qctx model.QueryContext) string {
	var sb strings.Builder
	sb.WriteString("Classify the user question for a note-taking assistant that can answer ")
	sb.WriteString("from the user's documents, from general knowledge, or both.\n\n")
	if len(qctx.AttachedDocuments) > 0 {
		sb.WriteString("Attached documents: ")
		sb.WriteString(strings.Join(qctx.AttachedDocuments, ", "))
		sb.WriteString("\n")
	} else {
		sb.WriteString("Attached documents: none\n")
	}
	fmt.Fprintf(&sb, "Note has its own content: %t\n", qctx.NoteHasContent)
	if qctx.ProjectDomain != "" {
		fmt.Fprintf(&sb, "Project domain: %s\n", qctx.ProjectDomain)
	}
	fmt.Fprintf(&sb, "\nQuestion: %s\n\n", query)
	sb.WriteString(`Respond with a single JSON object:
{
  "intent": "in_domain" | "out_of_domain" | "hybrid",
  "confidence": 0.0-1.0,
  "domain_topics": ["..."],
  "suggested_pipeline": "rag_only" | "external_only" | "hybrid",
  "reasoning": "one sentence"
}
"in_domain" means the documents likely answer it, "out_of_domain" means they cannot, "hybrid" means both help.`)
	return sb.String()
}

var documentPhrases = []string{
	"this document", "the document", "these documents", "this file", "the file",
	"my notes", "my note", "the attached", "this attachment", "according to",
	"in the text", "summarize", "summarise", "this paper", "the pdf",
}

var externalPhrases = []string{
	"what is the capital", "who invented", "when was", "who was", "define",
	"what year", "how many people", "world record",
}

// classifyByKeywords is the deterministic fallback used when the model is
// unavailable or returns garbage.
func classifyByKeywords(query string, qctx model.QueryContext) model.IntentClassification {
	lowered := strings.ToLower(query)
	hasDocs := len(qctx.AttachedDocuments) > 0 || qctx.NoteHasContent
	for _, phrase := range documentPhrases {
		if strings.Contains(lowered, phrase) {
			return model.IntentClassification{
				Intent:            model.IntentInDomain,
				Confidence:        0.6,
				SuggestedPipeline: model.PipelineRAGOnly,
				Reasoning:         "keyword fallback: question references the user's documents",
			}
		}
	}
	for _, phrase := range externalPhrases {
		if strings.Contains(lowered, phrase) {
			return model.IntentClassification{
				Intent:            model.IntentOutOfDomain,
				Confidence:        0.6,
				SuggestedPipeline: model.PipelineExternalOnly,
				Reasoning:         "keyword fallback: general knowledge question",
			}
		}
	}
	if !hasDocs {
		return model.IntentClassification{
			Intent:            model.IntentOutOfDomain,
			Confidence:        0.5,
			SuggestedPipeline: model.PipelineExternalOnly,
			Reasoning:         "keyword fallback: no documents available",
		}
	}
	return model.IntentClassification{
		Intent:            model.IntentHybrid,
		Confidence:        0.5,
		SuggestedPipeline: model.PipelineHybrid,
		Reasoning:         "keyword fallback: ambiguous question with documents present",
	}
}

// sanitizeClassification corrects suggestions that contradict reality: no
// pipeline may read documents that do not exist, and documents that do exist
// are never ignored unless the question is explicitly out of domain.
func sanitizeClassification(cls model.IntentClassification, qctx model.QueryContext) model.IntentClassification {
	if cls.Confidence < 0 {
		cls.Confidence = 0
	}
	if cls.Confidence > 1 {
		cls.Confidence = 1
	}
	hasDocs := len(qctx.AttachedDocuments) > 0 || qctx.NoteHasContent
	if !hasDocs && cls.SuggestedPipeline != model.PipelineExternalOnly {
		cls.SuggestedPipeline = model.PipelineExternalOnly
	}
	if hasDocs && cls.SuggestedPipeline == model.PipelineExternalOnly && cls.Intent != model.IntentOutOfDomain {
		cls.SuggestedPipeline = model.PipelineHybrid
	}
	return cls
}
