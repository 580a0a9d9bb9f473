package ai

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"

	"github.com/local/sheetify/internal/conversation"
	"github.com/local/sheetify/internal/metrics"
)

// GeminiClient implements Client against the Google generative AI backend.
// Constructed once per process and passed to every consumer; tests substitute
// a fake Client instead.
type GeminiClient struct {
	client *genai.Client
	model  string
}

func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	c, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiClient{client: c, model: model}, nil
}

func (g *GeminiClient) Close() error { return g.client.Close() }

// Upload pushes image bytes to the model's file store and returns the remote
// URI. The remote side owns the file's lifetime; it expires on its own.
func (g *GeminiClient) Upload(ctx context.Context, data []byte, mimeType string) (string, error) {
	start := time.Now()
	f, err := g.client.UploadFile(ctx, "", bytes.NewReader(data), &genai.UploadFileOptions{MIMEType: mimeType})
	if err != nil {
		metrics.ObserveModel("upload", "error", time.Since(start))
		return "", fmt.Errorf("upload image: %w", err)
	}
	metrics.ObserveModel("upload", "ok", time.Since(start))
	log.Debug().Str("uri", f.URI).Int("size", len(data)).Msg("uploaded image to file store")
	return f.URI, nil
}

// Generate runs a structured-generation call. The trailing turn of the
// conversation must be a user turn; a dangling model turn (left over from
// window trimming) is excluded from the outbound batch, not sent.
func (g *GeminiClient) Generate(ctx context.Context, req Request) (Response, error) {
	turns := req.History
	if n := len(turns); n > 0 && turns[n-1].Role == conversation.RoleModel {
		turns = turns[:n-1]
	}
	if len(turns) == 0 {
		return Response{}, ErrNoUserTurn
	}

	model := g.client.GenerativeModel(g.model)
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = rowSchema(req.Columns)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}

	chat := model.StartChat()
	for _, t := range turns[:len(turns)-1] {
		chat.History = append(chat.History, toContent(t))
	}

	start := time.Now()
	resp, err := chat.SendMessage(ctx, toParts(turns[len(turns)-1])...)
	if err != nil {
		metrics.ObserveModel("generate", "error", time.Since(start))
		return Response{}, fmt.Errorf("generate content: %w", err)
	}
	metrics.ObserveModel("generate", "ok", time.Since(start))

	text := collectText(resp)
	if text == "" {
		return Response{}, ErrEmptyResponse
	}
	return Response{Text: text}, nil
}

// Transcribe asks the model for a freeform text rendition of one page image,
// no response schema attached.
func (g *GeminiClient) Transcribe(ctx context.Context, prompt string, image []byte, mimeType string) (string, error) {
	model := g.client.GenerativeModel(g.model)

	start := time.Now()
	resp, err := model.GenerateContent(ctx, genai.Text(prompt), genai.Blob{MIMEType: mimeType, Data: image})
	if err != nil {
		metrics.ObserveModel("transcribe", "error", time.Since(start))
		return "", fmt.Errorf("transcribe page: %w", err)
	}
	metrics.ObserveModel("transcribe", "ok", time.Since(start))

	text := collectText(resp)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// rowSchema builds the fixed response schema: an array of objects whose
// required string properties are the mode's columns.
func rowSchema(columns []string) *genai.Schema {
	props := make(map[string]*genai.Schema, len(columns))
	for _, c := range columns {
		props[c] = &genai.Schema{Type: genai.TypeString}
	}
	return &genai.Schema{
		Type: genai.TypeArray,
		Items: &genai.Schema{
			Type:       genai.TypeObject,
			Properties: props,
			Required:   columns,
		},
	}
}

func toContent(t conversation.Turn) *genai.Content {
	return &genai.Content{Role: string(t.Role), Parts: toParts(t)}
}

func toParts(t conversation.Turn) []genai.Part {
	parts := make([]genai.Part, 0, len(t.Parts))
	for _, p := range t.Parts {
		if p.FileURI != "" {
			parts = append(parts, genai.FileData{MIMEType: p.MIMEType, URI: p.FileURI})
			continue
		}
		parts = append(parts, genai.Text(p.Text))
	}
	return parts
}

func collectText(resp *genai.GenerateContentResponse) string {
	var out string
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				out += string(text)
			}
		}
	}
	return out
}
