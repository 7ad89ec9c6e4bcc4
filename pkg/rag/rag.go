// Package rag orchestrates retrieval-augmented generation over the indexed
// clinical records: embed the question, search the vector store, assemble a
// context block, and hand it to the generation client. Generation failures
// degrade to a context-only response instead of failing the call.
package rag

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/clidram/medrag/pkg/embeddings"
	"github.com/clidram/medrag/pkg/llm"
	"github.com/clidram/medrag/pkg/session"
	"github.com/clidram/medrag/pkg/vector"
)

const defaultTopK = 5

// patientScopedInstruction replaces the default system instruction whenever
// retrieval is scoped to a single patient.
const patientScopedInstruction = "You are a medical AI assistant tailored to analyze a specific patient's context. " +
	"The provided context contains the known medical history for this patient. " +
	"If the user asks about a symptom or condition that is NOT explicitly mentioned " +
	"in the records, DO NOT simply say it's not present. Instead, analyze the patient's " +
	"existing medical history (e.g., past diseases, medications, chief complaints like heart issues) " +
	"and provide medical guidance on how the new symptom might be related to their known underlying conditions. " +
	"Offer plausible connections based on medical knowledge and strongly advise seeking immediate care " +
	"if their history warrants it."

// resetAcknowledgement is returned for a reset request with no prompt.
const resetAcknowledgement = "Conversation history cleared successfully."

// QueryRequest is a single-turn question.
type QueryRequest struct {
	Prompt     string `json:"prompt"`
	PatientSeq string `json:"patient_seq,omitempty"`
	TopK       int    `json:"top_k,omitempty"`
}

// ChatRequest is a conversational turn. SessionID threads the conversation;
// History, when set, is a caller-owned transcript replayed instead of the
// server-side session memory.
type ChatRequest struct {
	Prompt     string     `json:"prompt"`
	SessionID  string     `json:"session_id,omitempty"`
	PatientSeq string     `json:"patient_seq,omitempty"`
	Reset      bool       `json:"reset,omitempty"`
	History    []llm.Turn `json:"history,omitempty"`
	TopK       int        `json:"top_k,omitempty"`
}

// RecordsRequest asks for raw recent chunks without ranking.
type RecordsRequest struct {
	PatientSeq string `json:"patient_seq,omitempty"`
	SourceKind string `json:"source_kind,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

// Source is one retrieved chunk attached to an answer.
type Source struct {
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Similarity float64        `json:"similarity"`
}

// Answer is the orchestrator's response for both query and chat.
type Answer struct {
	Response string         `json:"response"`
	Sources  []Source       `json:"sources"`
	Metadata map[string]any `json:"metadata"`
}

// Config is the configuration options for the engine.
type Config struct {
	// Embedder embeds the user's question.
	Embedder embeddings.Embedder

	// Store is the vector store searched for context.
	Store vector.Driver

	// Generator produces answers. Optional at the type level but every
	// generation attempt degrades when it is nil or failing.
	Generator llm.Generator

	// Sessions holds chat state. Required for Chat.
	Sessions *session.Store

	// TopK is the default retrieval depth (defaults to 5).
	TopK int

	// Logger is the provided zap logger.
	Logger *zap.Logger
}

// Engine wires retrieval and generation together.
type Engine struct {
	embedder  embeddings.Embedder
	store     vector.Driver
	generator llm.Generator
	sessions  *session.Store
	topK      int
	logger    *zap.Logger
}

// NewEngine validates the configuration and creates an engine.
func NewEngine(c *Config) (*Engine, error) {
	if c.Embedder == nil {
		return nil, fmt.Errorf("rag: embedder is required")
	}
	if c.Store == nil {
		return nil, fmt.Errorf("rag: vector store is required")
	}
	if c.Sessions == nil {
		c.Sessions = session.NewStore(session.DefaultTTL)
	}
	if c.TopK <= 0 {
		c.TopK = defaultTopK
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return &Engine{
		embedder:  c.Embedder,
		store:     c.Store,
		generator: c.Generator,
		sessions:  c.Sessions,
		topK:      c.TopK,
		logger:    c.Logger,
	}, nil
}

// Query answers a single-turn question. Retrieval or embedding failures fail
// the call; generation failures degrade to a context-only response.
func (e *Engine) Query(ctx context.Context, req QueryRequest) (*Answer, error) {
	filters := scopeFilters(req.PatientSeq)
	results, contextBlock, err := e.retrieve(ctx, req.Prompt, req.TopK, filters)
	if err != nil {
		return nil, err
	}

	instruction := ""
	if req.PatientSeq != "" {
		instruction = patientScopedInstruction
	}

	degraded := false
	response := ""
	if e.generator != nil {
		response, err = e.generator.Answer(ctx, req.Prompt, contextBlock, instruction)
	}
	if e.generator == nil || err != nil {
		if err != nil {
			e.logger.Warn("generation failed, degrading to retrieved context", zap.Error(err))
		}
		response = degradedResponse(len(results), contextBlock)
		degraded = true
	}

	answer := &Answer{
		Response: response,
		Sources:  buildSources(results),
		Metadata: map[string]any{
			"num_sources":     len(results),
			"filters_applied": filters,
			"degraded":        degraded,
		},
	}
	e.attachModel(answer)
	return answer, nil
}

// Chat answers a conversational turn. The session remembers history and the
// sticky patient scope; a reset with an empty prompt only wipes the session.
func (e *Engine) Chat(ctx context.Context, req ChatRequest) (*Answer, error) {
	e.sessions.Sweep()

	if req.Reset && req.Prompt == "" {
		e.sessions.Delete(req.SessionID)
		return &Answer{
			Response: resetAcknowledgement,
			Sources:  []Source{},
			Metadata: map[string]any{
				"num_sources":       0,
				"session_id":        req.SessionID,
				"reset_applied":     true,
				"context_preserved": false,
				"message_count":     0,
			},
		}, nil
	}

	if req.Reset {
		e.sessions.Delete(req.SessionID)
	}
	// Get returns a read-only snapshot; all session mutations happen in
	// the Update call below so concurrent turns on one session serialize.
	sess, _ := e.sessions.Get(req.SessionID)

	// Sticky patient scope: an explicit filter is remembered; later turns
	// without one inherit it.
	patientSeq := req.PatientSeq
	if patientSeq == "" && sess.PatientSeq != "" {
		patientSeq = sess.PatientSeq
		e.logger.Debug("recovered patient scope from session",
			zap.String("session_id", sess.ID),
			zap.String("patient_seq", patientSeq))
	}

	filters := scopeFilters(patientSeq)
	results, contextBlock, err := e.retrieve(ctx, req.Prompt, req.TopK, filters)
	if err != nil {
		return nil, err
	}

	instruction := ""
	if patientSeq != "" {
		instruction = patientScopedInstruction
	}

	prompt, history, preserved := e.framePrompt(req, sess, contextBlock)

	degraded := false
	response := ""
	var turns []llm.Turn
	if e.generator != nil {
		response, turns, err = e.generator.Chat(ctx, history, prompt, contextBlock, instruction)
	}
	if e.generator == nil || err != nil {
		if err != nil {
			e.logger.Warn("chat generation failed, degrading to retrieved context",
				zap.String("session_id", sess.ID), zap.Error(err))
		}
		response = degradedResponse(len(results), contextBlock)
		degraded = true
	}

	// Only the turns this call produced are appended, so interleaved
	// turns from concurrent requests on the same session are kept.
	var newTurns []llm.Turn
	if !degraded && len(req.History) == 0 && len(turns) > len(history) {
		newTurns = turns[len(history):]
	}
	updated := e.sessions.Update(sess.ID, func(s *session.Session) {
		if req.PatientSeq != "" {
			s.PatientSeq = req.PatientSeq
		}
		s.History = append(s.History, newTurns...)
		s.Turns++
	})

	answer := &Answer{
		Response: response,
		Sources:  buildSources(results),
		Metadata: map[string]any{
			"num_sources":         len(results),
			"filters_applied":     filters,
			"session_id":          sess.ID,
			"reset_applied":       req.Reset,
			"context_preserved":   preserved && !degraded,
			"message_count":       updated.Turns,
			"chat_history_length": len(req.History),
			"degraded":            degraded,
		},
	}
	e.attachModel(answer)
	return answer, nil
}

// Records returns raw recent chunks without ranking or generation.
func (e *Engine) Records(ctx context.Context, req RecordsRequest) ([]vector.Chunk, error) {
	filters := scopeFilters(req.PatientSeq)
	if req.SourceKind != "" {
		filters["source_kind"] = req.SourceKind
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	return e.store.FetchRecent(ctx, filters, limit)
}

// retrieve embeds the prompt and searches the store.
func (e *Engine) retrieve(ctx context.Context, prompt string, topK int, filters vector.Filters) ([]vector.SearchResult, string, error) {
	embedding, err := e.embedder.Embed(ctx, prompt)
	if err != nil {
		return nil, "", fmt.Errorf("rag: embedding query: %w", err)
	}
	if topK <= 0 {
		topK = e.topK
	}
	results, err := e.store.Search(ctx, embedding, topK, filters)
	if err != nil {
		return nil, "", fmt.Errorf("rag: searching store: %w", err)
	}
	return results, BuildContext(results), nil
}

// framePrompt picks one of three prompt framings: a caller-owned transcript
// serialized into the prompt, a short follow-up over live session memory, or
// the full framing for a fresh session. The Generator adds the system and
// context sections itself, so framings only shape the question text and the
// replayed history.
func (e *Engine) framePrompt(req ChatRequest, sess *session.Session, contextBlock string) (prompt string, history []llm.Turn, preserved bool) {
	switch {
	case len(req.History) > 0:
		return transcriptPrompt(req.History, req.Prompt), nil, true
	case len(sess.History) > 0:
		return followUpPrompt(req.Prompt), sess.History, true
	default:
		return req.Prompt, nil, false
	}
}

func (e *Engine) attachModel(answer *Answer) {
	if e.generator != nil {
		answer.Metadata["model"] = e.generator.ActiveModel()
	}
}

func scopeFilters(patientSeq string) vector.Filters {
	filters := vector.Filters{}
	if patientSeq != "" {
		filters["patient_seq"] = patientSeq
	}
	return filters
}

func degradedResponse(numSources int, contextBlock string) string {
	return fmt.Sprintf(
		"[LLM unavailable - showing retrieved medical context]\n\nFound %d relevant medical records:\n\n%s",
		numSources, contextBlock)
}
