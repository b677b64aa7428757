package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	"geargrid/listing"
)

const DefaultModel = "gemini-2.5-flash"

var ErrEmptyResponse = errors.New("empty response from model")

type options struct {
	model      string
	baseURL    string
	httpClient *http.Client
}

type Option func(*options)

// WithModel 設置使用的模型名稱
func WithModel(model string) Option {
	return func(o *options) {
		o.model = model
	}
}

// WithBaseURL 覆寫 API 位址，主要用於測試
func WithBaseURL(baseURL string) Option {
	return func(o *options) {
		o.baseURL = baseURL
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// Generator 以 Gemini generateContent 實作 listing.Generator
type Generator struct {
	client *genai.Client
	model  string
}

var _ listing.Generator = (*Generator)(nil)

func NewGenerator(ctx context.Context, apiKey string, opts ...Option) (*Generator, error) {
	const op = "NewGenerator"
	if apiKey == "" {
		return nil, &listing.ConfigurationError{Setting: "Gemini API key"}
	}
	o := options{model: DefaultModel}
	for _, opt := range opts {
		opt(&o)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  o.httpClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: o.baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create genai client, err=%w", op, err)
	}
	return &Generator{client: client, model: o.model}, nil
}

// GenerateFromImage 送出單次請求，不做重試
func (g *Generator) GenerateFromImage(ctx context.Context, image listing.Image, prompt string) (string, error) {
	const op = "GenerateFromImage"
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(image.Data, image.MediaType),
			genai.NewPartFromText(prompt),
		}, genai.RoleUser),
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("[%s] Fail to generate content, err=%w", op, err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("[%s] %w", op, ErrEmptyResponse)
	}
	return text, nil
}
