package merge

import (
	"fmt"
	"testing"

	"github.com/Raunak-cloud/pocket-dev/internal/app/domain/project"
)

func paths(files []project.File) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Path
	}
	return out
}

func TestFiles(t *testing.T) {
	existing := []project.File{{Path: "fileA", Content: "1"}, {Path: "fileB", Content: "2"}}
	returned := []project.File{{Path: "fileB", Content: "2b"}, {Path: "fileC", Content: "3"}}

	merged := Files(existing, returned)

	want := []project.File{{Path: "fileA", Content: "1"}, {Path: "fileB", Content: "2b"}, {Path: "fileC", Content: "3"}}
	if len(merged) != len(want) {
		t.Fatalf("merged length: got %d, want %d", len(merged), len(want))
	}
	for i := range want {
		if merged[i] != want[i] {
			t.Fatalf("merged[%d]: got %+v, want %+v", i, merged[i], want[i])
		}
	}
}

func TestFilesNeverDropsExistingPaths(t *testing.T) {
	var existing, returned []project.File
	for i := 0; i < 20; i++ {
		existing = append(existing, project.File{Path: fmt.Sprintf("e%d", i), Content: "old"})
	}
	// Overlap with half of existing plus new paths.
	for i := 0; i < 10; i++ {
		returned = append(returned, project.File{Path: fmt.Sprintf("e%d", i*2), Content: "new"})
	}
	for i := 0; i < 5; i++ {
		returned = append(returned, project.File{Path: fmt.Sprintf("n%d", i), Content: "new"})
	}

	merged := Files(existing, returned)

	if len(merged) < len(existing) {
		t.Fatalf("merged shrank: %d < %d", len(merged), len(existing))
	}
	seen := make(map[string]int)
	for _, p := range paths(merged) {
		seen[p]++
	}
	for _, f := range existing {
		if seen[f.Path] != 1 {
			t.Fatalf("existing path %s appears %d times", f.Path, seen[f.Path])
		}
	}
	// Existing paths keep their relative order as the prefix of merged.
	for i, f := range existing {
		if merged[i].Path != f.Path {
			t.Fatalf("existing order broken at %d: got %s, want %s", i, merged[i].Path, f.Path)
		}
	}
	// New paths follow, in returned order.
	for i := 0; i < 5; i++ {
		if merged[len(existing)+i].Path != fmt.Sprintf("n%d", i) {
			t.Fatalf("new path order broken at %d: got %s", i, merged[len(existing)+i].Path)
		}
	}
}

func TestFilesDuplicateReturnedLastWins(t *testing.T) {
	existing := []project.File{{Path: "a", Content: "old"}}
	returned := []project.File{
		{Path: "a", Content: "first"},
		{Path: "b", Content: "first"},
		{Path: "a", Content: "second"},
		{Path: "b", Content: "second"},
	}

	merged := Files(existing, returned)

	if len(merged) != 2 {
		t.Fatalf("merged length: got %d, want 2", len(merged))
	}
	if merged[0].Content != "second" || merged[1].Content != "second" {
		t.Fatalf("last occurrence should win: %+v", merged)
	}
}

func TestDependencies(t *testing.T) {
	existing := map[string]string{"react": "18.0.0", "axios": "1.0.0"}
	returned := map[string]string{"react": "18.2.0", "zod": "3.0.0"}

	merged := Dependencies(existing, returned)

	if len(merged) != 3 {
		t.Fatalf("merged size: got %d, want 3", len(merged))
	}
	if merged["react"] != "18.2.0" {
		t.Fatalf("returned version should win: %s", merged["react"])
	}
	if merged["axios"] != "1.0.0" {
		t.Fatalf("existing dependency dropped: %v", merged)
	}
}
