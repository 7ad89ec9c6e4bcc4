// Package llm defines the generation client interface and prompt assembly
// for answering questions over retrieved clinical context.
package llm

import (
	"context"
	"errors"
)

var (
	// ErrNoAPIKey indicates no generation API key is configured.
	ErrNoAPIKey = errors.New("no API key configured")

	// ErrModelNotFound indicates the configured model is not available.
	ErrModelNotFound = errors.New("model not found")

	// ErrGeneration indicates the provider failed to generate a response.
	ErrGeneration = errors.New("generation failed")
)

// Turn is one message in a conversation history.
type Turn struct {
	// Role is "user" or "model".
	Role string `json:"role"`

	// Text is the message content as sent to or received from the provider.
	Text string `json:"text"`
}

const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Generator produces answers from a prompt and retrieved context.
type Generator interface {
	// Answer generates a one-shot answer. contextBlock and
	// systemInstruction may be empty.
	Answer(ctx context.Context, prompt, contextBlock, systemInstruction string) (string, error)

	// Chat generates an answer over an existing conversation history and
	// returns the history extended with this exchange.
	Chat(ctx context.Context, history []Turn, prompt, contextBlock, systemInstruction string) (string, []Turn, error)

	// Reconfigure swaps the API key and/or model at runtime. Empty values
	// leave the current setting unchanged.
	Reconfigure(apiKey, model string) error

	// ListModels returns the model names the provider offers for generation.
	ListModels(ctx context.Context) ([]string, error)

	// ActiveModel reports the model currently in use.
	ActiveModel() string

	// Close releases any resources held by the generator.
	Close() error
}
