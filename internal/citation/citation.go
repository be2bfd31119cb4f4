package citation

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/notewise/notewise/internal/model"
)

// Extraction is best-effort: every field may stay empty and callers must not
// depend on any of them.

var (
	yearRegex       = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	authorLineRegex = regexp.MustCompile(`(?im)^\s*(?:by|author[s]?\s*[:\-])\s+([A-Z][\w.\- ]{2,60})\s*$`)
	titleLineRegex  = regexp.MustCompile(`(?im)^\s*title\s*[:\-]\s+(.{3,120})\s*$`)
	// "Lastname, F." or "F. Lastname" at the very start of a document.
	leadingAuthorRegex = regexp.MustCompile(`^([A-Z][a-z]+,\s+[A-Z]\.(?:\s*[A-Z]\.)?)`)
	fileSplitRegex     = regexp.MustCompile(`\s+[-–]\s+`)
)

const leadingWindow = 2000

// Extract derives citation metadata from a file name plus the leading content
// of the document.
func Extract(fileName, content string) model.Citation {
	cite := model.Citation{SourceFile: fileName}

	head := content
	if len(head) > leadingWindow {
		head = head[:leadingWindow]
	}

	if author := matchFirst(authorLineRegex, head); author != "" {
		cite.Author = author
	} else if author := matchFirst(leadingAuthorRegex, strings.TrimSpace(head)); author != "" {
		cite.Author = author
	}

	if title := matchFirst(titleLineRegex, head); title != "" {
		cite.Title = title
	} else if title := firstHeading(head); title != "" {
		cite.Title = title
	}

	if fileName != "" {
		author, title, year := parseFileName(fileName)
		if cite.Author == "" {
			cite.Author = author
		}
		if cite.Title == "" {
			cite.Title = title
		}
		if year != "" {
			cite.Year = year
		}
	}

	if cite.Year == "" {
		cite.Year = yearRegex.FindString(head)
	}
	return cite
}

// YearFromText pulls the first plausible publication year out of a chunk.
func YearFromText(text string) string {
	return yearRegex.FindString(text)
}

// parseFileName understands the common "Author - Title (2020).ext" shapes.
func parseFileName(fileName string) (author, title, year string) {
	base := strings.TrimSuffix(filepath.Base(fileName), filepath.Ext(fileName))
	base = strings.NewReplacer("_", " ", "  ", " ").Replace(base)
	year = yearRegex.FindString(base)
	if year != "" {
		base = strings.TrimSpace(strings.NewReplacer("("+year+")", "", "["+year+"]", "", year, "").Replace(base))
	}
	base = strings.Trim(base, " -–")
	if base == "" {
		return "", "", year
	}
	parts := fileSplitRegex.Split(base, 2)
	if len(parts) == 2 {
		return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), year
	}
	return "", base, year
}

func firstHeading(markdown string) string {
	md := goldmark.New()
	reader := text.NewReader([]byte(markdown))
	doc := md.Parser().Parse(reader)
	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		if heading, ok := node.(*ast.Heading); ok {
			return strings.TrimSpace(string(heading.Text(reader.Source())))
		}
	}
	return ""
}

func matchFirst(re *regexp.Regexp, s string) string {
	match := re.FindStringSubmatch(s)
	if len(match) < 2 {
		return ""
	}
	return strings.TrimSpace(match[1])
}
