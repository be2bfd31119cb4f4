package chunker

import (
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 200
)

// Chunk is one overlapping window of document text, ordered by Index.
type Chunk struct {
	Index int
	Text  string
}

type Chunker struct {
	size    int
	overlap int
}

// New validates the window configuration up front. An overlap that is not
// strictly smaller than the chunk size would make the stride non-positive,
// so it is rejected here instead of being corrected mid-loop.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("chunk overlap must not be negative, got %d", overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("chunk overlap (%d) must be strictly less than chunk size (%d)", overlap, size)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

func (c *Chunker) ChunkSize() int {
	return c.size
}

func (c *Chunker) Overlap() int {
	return c.overlap
}

// Split cuts text into overlapping fixed-size character windows. Adjacent
// chunks share exactly the configured overlap while enough text remains.
// Empty or blank input yields zero chunks.
func (c *Chunker) Split(input string) []Chunk {
	if strings.TrimSpace(input) == "" {
		return nil
	}
	runes := []rune(input)
	stride := c.size - c.overlap
	var chunks []Chunk
	for start := 0; start < len(runes); start += stride {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, Chunk{
			Index: len(chunks),
			Text:  string(runes[start:end]),
		})
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// FlattenMarkdown strips markdown structure down to embeddable plain text.
// Fenced code keeps its literal content; everything else contributes its
// text segments, block by block.
func FlattenMarkdown(markdown string) string {
	md := goldmark.New()
	reader := text.NewReader([]byte(markdown))
	doc := md.Parser().Parse(reader)

	var blocks []string
	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		switch n := node.(type) {
		case *ast.FencedCodeBlock:
			var code strings.Builder
			for i := 0; i < n.Lines().Len(); i++ {
				line := n.Lines().At(i)
				code.Write(line.Value(reader.Source()))
			}
			if block := strings.TrimSpace(code.String()); block != "" {
				blocks = append(blocks, block)
			}
		default:
			if block := extractText(node, reader.Source()); block != "" {
				blocks = append(blocks, block)
			}
		}
	}
	if len(blocks) == 0 {
		// Not markdown goldmark recognizes; fall back to the raw text.
		return strings.TrimSpace(markdown)
	}
	return strings.Join(blocks, "\n\n")
}

func extractText(n ast.Node, source []byte) string {
	var sb strings.Builder
	ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if node.Type() == ast.TypeBlock || node.Type() == ast.TypeInline {
			if node.Kind() == ast.KindText {
				sb.Write(node.(*ast.Text).Segment.Value(source))
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}
