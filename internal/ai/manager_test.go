package ai

import (
	"context"
	"errors"
	"testing"
)

func TestStripJSONFences(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   string
	}{
		{
			name:  "plain object",
			input: `{"intent":"in_domain"}`,
			want:  `{"intent":"in_domain"}`,
		},
		{
			name:  "fenced object",
			input: "```json\n{\"a\":1}\n```",
			want:  `{"a":1}`,
		},
		{
			name:  "prose around object",
			input: "Here you go: {\"a\":1} hope that helps",
			want:  `{"a":1}`,
		},
		{
			name:  "array",
			input: "```\n[1,2]\n```",
			want:  `[1,2]`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripJSONFences(tt.input); got != tt.want {
				t.Errorf("StripJSONFences() = %q, want %q", got, tt.want)
			}
		})
	}
}

type fakeGenerator struct {
	text string
	err  error
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	return f.text, f.err
}

func (f *fakeGenerator) GenerateStream(ctx context.Context, prompt string, opts GenerateOptions, onToken func(string)) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if onToken != nil {
		onToken(f.text)
	}
	return f.text, nil
}

func TestGroupGeneratorFallsBack(t *testing.T) {
	group := NewGroupGenerator([]GeneratorEntry{
		{Name: "broken", Generator: &fakeGenerator{err: errors.New("boom")}},
		{Name: "works", Generator: &fakeGenerator{text: "ok"}},
	})
	got, err := group.Generate(context.Background(), "hi", GenerateOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" {
		t.Errorf("unexpected result: %q", got)
	}
}

func TestGroupGeneratorAllFail(t *testing.T) {
	group := NewGroupGenerator([]GeneratorEntry{
		{Name: "broken", Generator: &fakeGenerator{err: errors.New("boom")}},
	})
	if _, err := group.Generate(context.Background(), "hi", GenerateOptions{}); err == nil {
		t.Fatal("expected error")
	}
}
