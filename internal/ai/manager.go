package ai

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Embedding task types forwarded to providers that distinguish document and
// query embeddings.
const (
	TaskTypeDocument = "RETRIEVAL_DOCUMENT"
	TaskTypeQuery    = "RETRIEVAL_QUERY"
)

type ManagerConfig struct {
	Timeout       int
	MaxInputChars int
}

// Manager is the single entry point the services use for model calls.
type Manager struct {
	generator IGenerator
	embedder  IEmbedder
	cfg       ManagerConfig
}

func NewManager(generator IGenerator, embedder IEmbedder, cfg ManagerConfig) *Manager {
	return &Manager{
		generator: generator,
		embedder:  embedder,
		cfg:       cfg,
	}
}

func (m *Manager) EmbedBatch(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	if m.embedder == nil {
		return nil, fmt.Errorf("embedder not configured")
	}
	if len(texts) == 0 {
		return nil, nil
	}
	return m.embedder.EmbedBatch(ctx, texts, taskType)
}

func (m *Manager) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	if m.embedder == nil {
		return nil, fmt.Errorf("embedder not configured")
	}
	return m.embedder.Embed(ctx, text, taskType)
}

// Complete runs one blocking completion.
func (m *Manager) Complete(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	if m.generator == nil {
		return "", fmt.Errorf("generator not configured")
	}
	if m.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(m.cfg.Timeout)*time.Second)
		defer cancel()
	}
	resp, err := m.generator.Generate(ctx, prompt, opts)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp)
	if text == "" {
		return "", fmt.Errorf("empty ai response")
	}
	return text, nil
}

// CompleteJSON runs one low-temperature completion in JSON mode and strips
// any code fencing the model wraps around the payload.
func (m *Manager) CompleteJSON(ctx context.Context, prompt string) (string, error) {
	temperature := float32(0.1)
	raw, err := m.Complete(ctx, prompt, GenerateOptions{Temperature: &temperature, JSONOutput: true})
	if err != nil {
		return "", err
	}
	return StripJSONFences(raw), nil
}

// CompleteStream forwards tokens as they arrive and returns the full text.
func (m *Manager) CompleteStream(ctx context.Context, prompt string, opts GenerateOptions, onToken func(text string)) (string, error) {
	if m.generator == nil {
		return "", fmt.Errorf("generator not configured")
	}
	if m.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(m.cfg.Timeout)*time.Second)
		defer cancel()
	}
	return m.generator.GenerateStream(ctx, prompt, opts, onToken)
}

func (m *Manager) MaxInputChars() int {
	return m.cfg.MaxInputChars
}

func (m *Manager) EmbeddingModelName() string {
	if m.embedder == nil {
		return ""
	}
	return m.embedder.ModelName()
}

// StripJSONFences removes markdown code fences and leading/trailing noise
// around a JSON object or array.
func StripJSONFences(output string) string {
	clean := strings.TrimSpace(output)
	clean = strings.TrimPrefix(clean, "```json")
	clean = strings.TrimPrefix(clean, "```")
	clean = strings.TrimSuffix(clean, "```")
	clean = strings.TrimSpace(clean)
	objStart := strings.Index(clean, "{")
	objEnd := strings.LastIndex(clean, "}")
	if objStart >= 0 && objEnd > objStart {
		return clean[objStart : objEnd+1]
	}
	arrStart := strings.Index(clean, "[")
	arrEnd := strings.LastIndex(clean, "]")
	if arrStart >= 0 && arrEnd > arrStart {
		return clean[arrStart : arrEnd+1]
	}
	return clean
}
