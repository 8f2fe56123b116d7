package stage

import (
	"testing"

	"github.com/evidentia-hq/evidentia/internal/evidence"
)

func TestSplitPapersCeilDivision(t *testing.T) {
	papers := make([]evidence.ContactPaper, 5)
	batches := SplitPapers(papers, 2)
	if len(batches) != 3 {
		t.Fatalf("expected 3 batches for 5 papers, got %d", len(batches))
	}
	total := 0
	for _, b := range batches {
		total += len(b)
	}
	if total != 5 {
		t.Fatalf("batches lost papers: %d", total)
	}
	if len(SplitPapers(nil, 2)) != 0 {
		t.Fatal("empty input should yield no batches")
	}
}

func TestBuildContactPapersSourceFirstAndDeduplicated(t *testing.T) {
	paper := evidence.PaperMetadata{Title: "Source Paper", DOI: "10.1/src", Authors: []string{"A", "B", "C", "D"}}
	similar := []evidence.SimilarPaperEntry{
		{Identifier: "10.2/a", Title: "Other A", Authors: "X. One, Y. Two"},
		{Identifier: "https://doi.org/10.2/A", Title: "Other A duplicate"},
		{Identifier: "10.1/SRC", Title: "Sneaky source copy"},
		{Identifier: "10.3/b", Title: "Other B"},
	}
	got := BuildContactPapers(paper, similar)
	if len(got) != 3 {
		t.Fatalf("expected source + 2 unique papers, got %d: %+v", len(got), got)
	}
	if got[0].Title != "Source Paper" {
		t.Fatal("source paper must come first")
	}
	if len(got[0].Authors) != 3 {
		t.Fatalf("expected 3 selected authors, got %v", got[0].Authors)
	}
	if got[1].Title != "Other A" || got[2].Title != "Other B" {
		t.Fatalf("unexpected order: %+v", got)
	}
}
