// Package google implements the Generator interface against the Google
// Generative Language REST API.
package google

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/clidram/medrag/pkg/llm"
)

const (
	// DefaultBaseURL is the Generative Language API endpoint.
	DefaultBaseURL = "https://generativelanguage.googleapis.com"

	// DefaultModel is used when none is configured.
	DefaultModel = "gemini-1.5-flash"

	// DefaultFallbackFamily selects the preferred substitute family when
	// the configured model is unavailable.
	DefaultFallbackFamily = "gemini-1.5"

	defaultTimeout = 30 * time.Second
)

var _ llm.Generator = (*Client)(nil)

// Config holds the Google client settings.
type Config struct {
	// APIKey authenticates against the API. May be empty at startup and
	// set later via Reconfigure.
	APIKey string

	// Model is the generation model name (defaults to gemini-1.5-flash).
	Model string

	// FallbackFamily is the preferred substring when auto-switching away
	// from an unavailable model (defaults to "gemini-1.5").
	FallbackFamily string

	// BaseURL overrides the API endpoint, mainly for tests.
	BaseURL string

	// Timeout bounds each API call (defaults to 30s).
	Timeout time.Duration

	// Logger is the provided zap logger.
	Logger *zap.Logger
}

// Client calls the Generative Language REST API. The API key and model may
// be swapped at runtime; a mutex guards them so in-flight calls see a
// consistent pair.
type Client struct {
	mu             sync.RWMutex
	apiKey         string
	model          string
	fallbackFamily string
	baseURL        string
	httpClient     *http.Client
	logger         *zap.Logger
}

// NewClient creates a Google generation client.
func NewClient(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.FallbackFamily == "" {
		cfg.FallbackFamily = DefaultFallbackFamily
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Client{
		apiKey:         cfg.APIKey,
		model:          cfg.Model,
		fallbackFamily: cfg.FallbackFamily,
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		logger:         cfg.Logger,
	}
}

// wire types for the generateContent endpoint

type generatePart struct {
	Text string `json:"text"`
}

type generateContent struct {
	Role  string         `json:"role,omitempty"`
	Parts []generatePart `json:"parts"`
}

type generateRequest struct {
	SystemInstruction *generateContent  `json:"system_instruction,omitempty"`
	Contents          []generateContent `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []generatePart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

type listModelsResponse struct {
	Models []struct {
		Name                       string   `json:"name"`
		SupportedGenerationMethods []string `json:"supportedGenerationMethods"`
	} `json:"models"`
	Error *apiError `json:"error,omitempty"`
}

// Answer generates a one-shot answer.
func (c *Client) Answer(ctx context.Context, prompt, contextBlock, systemInstruction string) (string, error) {
	full := llm.BuildPrompt(prompt, contextBlock, systemInstruction)
	contents := []generateContent{{Role: llm.RoleUser, Parts: []generatePart{{Text: full}}}}
	return c.generateWithFallback(ctx, contents)
}

// Chat generates an answer over the given history and returns the extended
// history. The context-bearing prompt is what gets recorded as the user
// turn, matching what the provider actually saw.
func (c *Client) Chat(ctx context.Context, history []llm.Turn, prompt, contextBlock, systemInstruction string) (string, []llm.Turn, error) {
	full := llm.BuildPrompt(prompt, contextBlock, systemInstruction)

	contents := make([]generateContent, 0, len(history)+1)
	for _, turn := range history {
		contents = append(contents, generateContent{
			Role:  turn.Role,
			Parts: []generatePart{{Text: turn.Text}},
		})
	}
	contents = append(contents, generateContent{Role: llm.RoleUser, Parts: []generatePart{{Text: full}}})

	answer, err := c.generateWithFallback(ctx, contents)
	if err != nil {
		return "", history, err
	}

	updated := append(append([]llm.Turn{}, history...),
		llm.Turn{Role: llm.RoleUser, Text: full},
		llm.Turn{Role: llm.RoleModel, Text: answer},
	)
	return answer, updated, nil
}

// generateWithFallback calls generateContent, and on a model-not-found
// response auto-switches to an available model and retries once.
func (c *Client) generateWithFallback(ctx context.Context, contents []generateContent) (string, error) {
	answer, err := c.generate(ctx, contents)
	if err == nil {
		return answer, nil
	}
	if !isModelNotFound(err) {
		return "", err
	}

	fallback, ferr := c.pickFallbackModel(ctx)
	if ferr != nil {
		c.logger.Error("fallback model discovery failed", zap.Error(ferr))
		return "", err
	}

	c.mu.Lock()
	previous := c.model
	c.model = fallback
	c.mu.Unlock()

	c.logger.Warn("model unavailable, auto-switching",
		zap.String("from", previous),
		zap.String("to", fallback),
	)

	return c.generate(ctx, contents)
}

// pickFallbackModel lists available models and prefers the first whose name
// contains the configured family substring, else the first listed.
func (c *Client) pickFallbackModel(ctx context.Context) (string, error) {
	models, err := c.ListModels(ctx)
	if err != nil {
		return "", err
	}
	if len(models) == 0 {
		return "", fmt.Errorf("%w: no models available", llm.ErrModelNotFound)
	}

	c.mu.RLock()
	family := c.fallbackFamily
	c.mu.RUnlock()

	for _, m := range models {
		if strings.Contains(m, family) {
			return m, nil
		}
	}
	return models[0], nil
}

func (c *Client) generate(ctx context.Context, contents []generateContent) (string, error) {
	c.mu.RLock()
	apiKey, model := c.apiKey, c.model
	c.mu.RUnlock()

	if apiKey == "" {
		return "", llm.ErrNoAPIKey
	}

	body := generateRequest{Contents: contents}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.baseURL, model, apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", llm.ErrGeneration, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var result generateResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("%w: %s (status 404)", llm.ErrModelNotFound, model)
	}
	if result.Error != nil {
		if strings.Contains(strings.ToLower(result.Error.Message), "not found") {
			return "", fmt.Errorf("%w: %s: %s", llm.ErrModelNotFound, model, result.Error.Message)
		}
		return "", fmt.Errorf("%w: %s", llm.ErrGeneration, result.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d: %s", llm.ErrGeneration, resp.StatusCode, string(raw))
	}

	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: empty response", llm.ErrGeneration)
	}

	var sb strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}

// ListModels returns the models that support generateContent, with the
// "models/" prefix stripped.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	c.mu.RLock()
	apiKey := c.apiKey
	c.mu.RUnlock()

	if apiKey == "" {
		return nil, llm.ErrNoAPIKey
	}

	url := fmt.Sprintf("%s/v1beta/models?key=%s", c.baseURL, apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var result listModelsResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if result.Error != nil {
		return nil, fmt.Errorf("list models: %s", result.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list models: status %d", resp.StatusCode)
	}

	var models []string
	for _, m := range result.Models {
		if !supportsGeneration(m.SupportedGenerationMethods) {
			continue
		}
		models = append(models, strings.TrimPrefix(m.Name, "models/"))
	}
	return models, nil
}

func supportsGeneration(methods []string) bool {
	for _, m := range methods {
		if m == "generateContent" {
			return true
		}
	}
	return false
}

// Reconfigure swaps the API key and/or model. Empty values leave the
// current setting unchanged.
func (c *Client) Reconfigure(apiKey, model string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if apiKey != "" {
		c.apiKey = apiKey
	}
	if model != "" {
		c.model = model
	}

	c.logger.Info("generation client reconfigured", zap.String("model", c.model))
	return nil
}

// ActiveModel reports the model currently in use.
func (c *Client) ActiveModel() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.model
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func isModelNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, llm.ErrModelNotFound) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "404")
}
