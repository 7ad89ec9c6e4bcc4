package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/clidram/medrag/pkg/utils"
	"github.com/clidram/medrag/pkg/vector"
)

var (
	searchToolName    = "search_medical_records"
	searchDescription = "Search indexed clinical records (appointments, prescriptions, patient profiles, disease codes) using semantic search. Optionally restrict results to a single patient by their patient sequence number."
)

// SearchInput represents the input arguments for the search tool.
type SearchInput struct {
	Query      string `json:"query" jsonschema:"the search query text to find relevant clinical records"`
	PatientSeq string `json:"patient_seq,omitempty" jsonschema:"restrict results to the patient with this sequence number"`
	TopK       int    `json:"top_k,omitempty" jsonschema:"number of results to return (default: 5)"`
}

// SearchResult represents a single search result.
type SearchResult struct {
	SourceKind string         `json:"source_kind"`
	SourceID   int64          `json:"source_id"`
	ChunkIndex int            `json:"chunk_index"`
	Preview    string         `json:"preview"`
	Similarity float64        `json:"similarity"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// SearchOutput represents the output of the search tool.
type SearchOutput struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
	Count   int            `json:"count"`
}

// handleSearch processes a search request.
func (s *Server) handleSearch(ctx context.Context, req *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	logger := s.config.Logger

	topK := input.TopK
	if topK <= 0 {
		topK = 5
	}

	logger.Debug("MCP search request",
		zap.String("query", input.Query),
		zap.String("patientSeq", input.PatientSeq),
		zap.Int("topK", topK),
	)

	queryEmbedding, err := s.config.Embedder.Embed(ctx, input.Query)
	if err != nil {
		logger.Error("failed to embed query", zap.Error(err))
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Failed to embed query: %v", err)},
			},
		}, SearchOutput{}, nil
	}

	filters := vector.Filters{}
	if input.PatientSeq != "" {
		filters["patient_seq"] = input.PatientSeq
	}

	results, err := s.config.VectorDriver.Search(ctx, queryEmbedding, topK, filters)
	if err != nil {
		logger.Error("failed to search vector store", zap.Error(err))
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Failed to search vector store: %v", err)},
			},
		}, SearchOutput{}, nil
	}

	searchResults := make([]SearchResult, 0, len(results))
	for _, result := range results {
		searchResults = append(searchResults, SearchResult{
			SourceKind: result.SourceKind,
			SourceID:   result.SourceID,
			ChunkIndex: result.ChunkIndex,
			Preview:    utils.Truncate(result.Content, 200),
			Similarity: result.Similarity,
			Metadata:   result.Metadata,
		})
	}

	output := SearchOutput{
		Query:   input.Query,
		Results: searchResults,
		Count:   len(searchResults),
	}

	// Serialize the structured output as JSON for the text field
	// Per MCP spec: tools returning structured content should also return
	// serialized JSON in a TextContent block for backwards compatibility
	jsonBytes, err := json.Marshal(output)
	if err != nil {
		logger.Error("failed to marshal search output", zap.Error(err))
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Failed to serialize results: %v", err)},
			},
		}, SearchOutput{}, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, output, nil
}
