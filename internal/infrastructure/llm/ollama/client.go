// Package ollama talks to an Ollama server for embeddings, answers and document description.
package ollama

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/polis-rag/internal/core/domain"
	"github.com/kirillkom/polis-rag/internal/infrastructure/resilience"
)

type Options struct {
	GenModel    string
	EmbedModel  string
	VisionModel string
	Timeout     time.Duration
}

type Client struct {
	baseURL    string
	opts       Options
	httpClient *http.Client
	executor   *resilience.Executor
}

// New builds a client. A nil executor means calls are made once without throttling.
func New(baseURL string, opts Options, executor *resilience.Executor) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		opts:       opts,
		httpClient: &http.Client{Timeout: opts.Timeout},
		executor:   executor,
	}
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Model() string {
	return e.client.opts.EmbedModel
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.opts.EmbedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.call(ctx, "/api/embed", request, &response, "embed"); err != nil {
		return nil, err
	}
	if len(response.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed returned %d vectors for %d inputs", len(response.Embeddings), len(texts))
	}
	return response.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) GenerateAnswer(ctx context.Context, question string, passages []domain.RankedPassage) (string, error) {
	return g.client.generate(ctx, map[string]any{
		"model":  g.client.opts.GenModel,
		"prompt": buildAnswerPrompt(question, passages),
		"stream": false,
	}, "generate")
}

// Describer sends one PNG or JPEG page to a vision model and returns its transcription.
type Describer struct {
	client *Client
}

func NewDescriber(client *Client) *Describer {
	return &Describer{client: client}
}

func (d *Describer) Describe(ctx context.Context, prompt string, data []byte) (string, error) {
	if d.client.opts.VisionModel == "" {
		return "", errors.New("no vision model configured")
	}
	if !domain.IsRasterImage(data) {
		return "", domain.WrapError(domain.ErrInvalidInput, "ollama describe", errors.New("vision input must be a PNG or JPEG image"))
	}
	return d.client.generate(ctx, map[string]any{
		"model":  d.client.opts.VisionModel,
		"prompt": prompt,
		"images": []string{base64.StdEncoding.EncodeToString(data)},
		"stream": false,
	}, "describe")
}

func (c *Client) generate(ctx context.Context, reqBody map[string]any, operation string) (string, error) {
	var response struct {
		Response string `json:"response"`
	}
	if err := c.call(ctx, "/api/generate", reqBody, &response, operation); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}

// call runs postJSON through the executor. Retryable failures surface as domain.ErrTemporary.
func (c *Client) call(ctx context.Context, path string, payload any, out any, operation string) error {
	if c.executor == nil {
		return c.postJSON(ctx, path, payload, out, operation)
	}
	err := c.executor.Execute(ctx, "ollama."+operation, func(ctx context.Context) error {
		return c.postJSON(ctx, path, payload, out, operation)
	}, classifyOllamaError)
	return wrapTemporaryIfNeeded("ollama "+operation, err)
}
