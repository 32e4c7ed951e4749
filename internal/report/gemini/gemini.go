// Package gemini provides a [report.Refiner] backed by the Gemini
// GenerateContent API. The response is constrained by a JSON schema that
// requires the formal report text and the list of agreements.
package gemini

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/genai"

	"github.com/MrWong99/soelive/internal/report"
)

// Compile-time interface assertion.
var _ report.Refiner = (*Refiner)(nil)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash"

// Refiner implements report.Refiner using google.golang.org/genai.
type Refiner struct {
	client *genai.Client
	model  string
}

type config struct {
	model   string
	baseURL string
	timeout time.Duration
}

// Option is a functional option for [New].
type Option func(*config)

// WithModel selects the model. Default [DefaultModel].
func WithModel(model string) Option {
	return func(c *config) {
		if model != "" {
			c.model = model
		}
	}
}

// WithBaseURL overrides the API endpoint. Used by tests and proxies.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// New constructs a Refiner.
func New(ctx context.Context, apiKey string, opts ...Option) (*Refiner, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: apiKey must not be empty")
	}
	cfg := &config{model: DefaultModel}
	for _, o := range opts {
		o(cfg)
	}

	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.baseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.baseURL
	}
	if cfg.timeout > 0 {
		cc.HTTPClient = &http.Client{Timeout: cfg.timeout}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	return &Refiner{client: client, model: cfg.model}, nil
}

// Model returns the configured model name.
func (r *Refiner) Model() string { return r.model }

// Refine implements report.Refiner.
func (r *Refiner) Refine(ctx context.Context, a report.AttendanceData) (*report.RefinedContent, error) {
	resp, err := r.client.Models.GenerateContent(ctx, r.model, genai.Text(report.Prompt(a)), &genai.GenerateContentConfig{
		ResponseMIMEType:  "application/json",
		ResponseSchema:    responseSchema(),
		SystemInstruction: genai.NewContentFromText(report.SystemInstruction, genai.RoleUser),
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: generate content: %w", err)
	}
	rc, err := report.ParseRefined(resp.Text())
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	return rc, nil
}

func responseSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"formalReport": {
				Type:        genai.TypeString,
				Description: "O texto completo do relatório reescrito em linguagem formal, culta e pedagógica.",
			},
			"agreements": {
				Type:        genai.TypeArray,
				Items:       &genai.Schema{Type: genai.TypeString},
				Description: "Uma lista de encaminhamentos e combinados práticos extraídos do texto.",
			},
		},
		Required: []string{"formalReport", "agreements"},
	}
}
