package gemini

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"github.com/tidwall/gjson"
)

// RegenerateImage asks the model for a replacement image URL matching the
// description. The model is instructed to pick a royalty-free source so the
// URL is directly embeddable.
func (b *Backend) RegenerateImage(ctx context.Context, description string) (string, error) {
	prompt := fmt.Sprintf(
		"Suggest a single royalty-free stock image URL matching this description: %s\n"+
			`Respond with a JSON object of the form {"url":"..."} and nothing else.`,
		description,
	)
	resp, err := b.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("regenerate image: %w", err)
	}
	url := gjson.Get(stripFence(responseText(resp)), "url").String()
	if url == "" {
		return "", fmt.Errorf("regenerate image: model returned no url")
	}
	return url, nil
}
