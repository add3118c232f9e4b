package gemini

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/Raunak-cloud/pocket-dev/internal/app/domain/project"
	"github.com/Raunak-cloud/pocket-dev/internal/app/services/generation"
)

// parseResult extracts files, dependencies and the lint report from the
// model's JSON response. Models occasionally wrap the JSON in a markdown
// fence; strip it before parsing.
func parseResult(text string) (generation.Result, error) {
	text = stripFence(text)
	if !gjson.Valid(text) {
		return generation.Result{}, fmt.Errorf("backend returned invalid JSON")
	}

	root := gjson.Parse(text)
	filesNode := root.Get("files")
	if !filesNode.IsArray() {
		return generation.Result{}, fmt.Errorf("backend response has no files array")
	}

	var result generation.Result
	filesNode.ForEach(func(_, value gjson.Result) bool {
		path := value.Get("path").String()
		if path == "" {
			return true
		}
		result.Files = append(result.Files, project.File{
			Path:    path,
			Content: value.Get("content").String(),
		})
		return true
	})
	if len(result.Files) == 0 {
		return generation.Result{}, fmt.Errorf("backend returned no usable files")
	}

	result.Dependencies = make(map[string]string)
	root.Get("dependencies").ForEach(func(key, value gjson.Result) bool {
		result.Dependencies[key.String()] = value.String()
		return true
	})
	result.LintReport = root.Get("lint_report").String()
	return result, nil
}

func stripFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
