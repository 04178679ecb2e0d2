package llm

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// GeminiClient calls the Gemini API through the official genai SDK.
type GeminiClient struct {
	client *genai.Client
}

// NewGeminiClient creates the Gemini provider. A missing API key is reported
// as not_configured so the engine's stub fallback can take over.
func NewGeminiClient(ctx context.Context, apiKey string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, &ProviderError{
			Code:     CodeNotConfigured,
			Provider: "gemini",
			Message:  "GEMINI_API_KEY is not set",
		}
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiClient{client: client}, nil
}

func (g *GeminiClient) Name() string { return "gemini" }

// geminiRole maps gateway message roles onto the SDK's typed role.
func geminiRole(role string) genai.Role {
	if role == "assistant" {
		return genai.RoleModel
	}
	return genai.RoleUser
}

// Complete issues one generation call and maps SDK failures onto the typed
// provider error taxonomy.
func (g *GeminiClient) Complete(ctx context.Context, req Request) (Response, error) {
	var contents []*genai.Content
	for _, m := range req.Messages {
		contents = append(contents, genai.NewContentFromText(m.Content, geminiRole(m.Role)))
	}

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}

	result, err := g.client.Models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		return Response{}, g.mapError(ctx, err)
	}

	text := result.Text()
	if text == "" {
		return Response{}, &ProviderError{
			Code:     CodeUpstreamError,
			Provider: "gemini",
			Message:  "empty completion",
		}
	}
	return Response{Text: text}, nil
}

func (g *GeminiClient) mapError(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return &ProviderError{Code: CodeUpstreamTimeout, Provider: "gemini", Message: err.Error()}
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		code := CodeUpstreamError
		switch apiErr.Code {
		case 400:
			code = CodeInvalidRequest
		case 401:
			code = CodeUnauthorized
		case 403:
			code = CodeForbidden
		case 429:
			code = CodeRateLimited
		case 408, 504:
			code = CodeUpstreamTimeout
		}
		return &ProviderError{Code: code, Provider: "gemini", Message: apiErr.Message}
	}
	return &ProviderError{Code: CodeUpstreamError, Provider: "gemini", Message: err.Error()}
}
