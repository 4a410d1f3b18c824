package ai

import (
	"context"
	"fmt"
	"log"
	"strings"

	"comment-responder/shared/config"

	"google.golang.org/genai"
)

const (
	maxContextChars  = 2000
	maxCommentChars  = 500
	maxResponseChars = 500
)

// completer sends a conversation to a language model and returns its text.
type completer interface {
	Complete(ctx context.Context, contents []*genai.Content) (string, error)
}

type geminiCompleter struct {
	client *genai.Client
	model  string
}

func (g *geminiCompleter) Complete(ctx context.Context, contents []*genai.Content) (string, error) {
	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", err
	}
	return result.Text(), nil
}

// ReplyGenerator writes replies to viewer comments in a configured tone.
type ReplyGenerator struct {
	completer completer
	tone      string
}

func NewReplyGenerator(cfg *config.Config) (*ReplyGenerator, error) {
	ctx := context.Background()

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.AI.GeminiAPIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &ReplyGenerator{
		completer: &geminiCompleter{client: client, model: cfg.AI.Model},
		tone:      cfg.Responder.Tone,
	}, nil
}

// GenerateResponse returns a reply of at most 500 characters, or "" when the
// model fails or has nothing to say. Callers treat "" as "skip this comment".
func (g *ReplyGenerator) GenerateResponse(ctx context.Context, comment, videoContext string) string {
	prompt := g.buildPrompt(comment, videoContext)

	parts := []*genai.Part{
		genai.NewPartFromText(prompt),
	}

	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	text, err := g.completer.Complete(ctx, contents)
	if err != nil {
		log.Printf("Response generation failed: %v", err)
		return ""
	}

	text = strings.TrimSpace(text)
	if text == "" {
		log.Println("Warning: Model returned an empty response")
		return ""
	}
	return truncate(text, maxResponseChars)
}

func (g *ReplyGenerator) buildPrompt(comment, videoContext string) string {
	return fmt.Sprintf("Respond to this YouTube comment in a %s tone. Video context: %s\n\nComment: %s\n\nResponse:",
		g.tone,
		truncate(videoContext, maxContextChars),
		truncate(comment, maxCommentChars),
	)
}

// truncate cuts s to at most n characters without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
