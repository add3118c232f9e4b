package gemini

import "testing"

func TestParseResult(t *testing.T) {
	text := `{
		"files": [
			{"path": "index.html", "content": "<html></html>"},
			{"path": "app.js", "content": "console.log(1)"}
		],
		"dependencies": {"react": "18.2.0"},
		"lint_report": "clean"
	}`

	result, err := parseResult(text)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(result.Files) != 2 {
		t.Fatalf("files: got %d, want 2", len(result.Files))
	}
	if result.Files[0].Path != "index.html" || result.Files[1].Content != "console.log(1)" {
		t.Fatalf("unexpected files: %+v", result.Files)
	}
	if result.Dependencies["react"] != "18.2.0" {
		t.Fatalf("dependencies: %v", result.Dependencies)
	}
	if result.LintReport != "clean" {
		t.Fatalf("lint report: %q", result.LintReport)
	}
}

func TestParseResultFencedJSON(t *testing.T) {
	text := "```json\n{\"files\":[{\"path\":\"a.js\",\"content\":\"x\"}]}\n```"
	result, err := parseResult(text)
	if err != nil {
		t.Fatalf("parse fenced: %v", err)
	}
	if len(result.Files) != 1 || result.Files[0].Path != "a.js" {
		t.Fatalf("unexpected files: %+v", result.Files)
	}
}

func TestParseResultRejectsGarbage(t *testing.T) {
	if _, err := parseResult("not json at all"); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
	if _, err := parseResult(`{"files": []}`); err == nil {
		t.Fatal("expected error for empty files")
	}
}

func TestParseResultSkipsPathlessEntries(t *testing.T) {
	text := `{"files":[{"content":"orphan"},{"path":"ok.js","content":"x"}]}`
	result, err := parseResult(text)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(result.Files) != 1 || result.Files[0].Path != "ok.js" {
		t.Fatalf("unexpected files: %+v", result.Files)
	}
}
