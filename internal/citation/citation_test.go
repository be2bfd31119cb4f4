package citation

import "testing"

func TestExtractFromFileName(t *testing.T) {
	tests := []struct {
		name       string
		fileName   string
		wantAuthor string
		wantTitle  string
		wantYear   string
	}{
		{
			name:       "author dash title with year",
			fileName:   "Jane Doe - Intro to Biology (2019).pdf",
			wantAuthor: "Jane Doe",
			wantTitle:  "Intro to Biology",
			wantYear:   "2019",
		},
		{
			name:      "title only",
			fileName:  "lecture_notes.txt",
			wantTitle: "lecture notes",
		},
		{
			name:      "title with bracket year",
			fileName:  "Thermodynamics [2021].pdf",
			wantTitle: "Thermodynamics",
			wantYear:  "2021",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Extract(tt.fileName, "")
			if got.Author != tt.wantAuthor {
				t.Errorf("author = %q, want %q", got.Author, tt.wantAuthor)
			}
			if got.Title != tt.wantTitle {
				t.Errorf("title = %q, want %q", got.Title, tt.wantTitle)
			}
			if got.Year != tt.wantYear {
				t.Errorf("year = %q, want %q", got.Year, tt.wantYear)
			}
			if got.SourceFile != tt.fileName {
				t.Errorf("source file = %q, want %q", got.SourceFile, tt.fileName)
			}
		})
	}
}

func TestExtractFromContent(t *testing.T) {
	content := "# Photosynthesis Explained\n\nby Maria Santos\n\nPublished 2020. Light becomes chemical energy."
	got := Extract("", content)
	if got.Title != "Photosynthesis Explained" {
		t.Errorf("title = %q", got.Title)
	}
	if got.Author != "Maria Santos" {
		t.Errorf("author = %q", got.Author)
	}
	if got.Year != "2020" {
		t.Errorf("year = %q", got.Year)
	}
}

func TestExtractNothing(t *testing.T) {
	got := Extract("", "no metadata here at all")
	if !got.Empty() {
		t.Errorf("expected empty citation, got %+v", got)
	}
}

func TestYearFromText(t *testing.T) {
	if got := YearFromText("as shown in the 1998 study"); got != "1998" {
		t.Errorf("year = %q", got)
	}
	if got := YearFromText("no year in sight"); got != "" {
		t.Errorf("year = %q", got)
	}
}
