package rag

import (
	"fmt"
	"sort"
	"strings"

	"github.com/clidram/medrag/pkg/llm"
	"github.com/clidram/medrag/pkg/vector"
)

const sourceContentLimit = 200

// BuildContext renders search results as numbered document blocks, each with
// its content followed by a flattened metadata line.
func BuildContext(results []vector.SearchResult) string {
	if len(results) == 0 {
		return "No relevant context found."
	}

	var parts []string
	for i, result := range results {
		parts = append(parts, fmt.Sprintf("[Document %d]", i+1))
		parts = append(parts, result.Content)
		if len(result.Metadata) > 0 {
			parts = append(parts, "Metadata: "+flattenMetadata(result.Metadata))
		}
		parts = append(parts, "")
	}
	return strings.Join(parts, "\n")
}

// flattenMetadata renders metadata as "k: v" pairs, keys sorted for a stable
// prompt.
func flattenMetadata(metadata map[string]any) string {
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s: %v", k, metadata[k]))
	}
	return strings.Join(pairs, ", ")
}

// buildSources converts search results into answer sources, truncating long
// content.
func buildSources(results []vector.SearchResult) []Source {
	sources := make([]Source, 0, len(results))
	for _, result := range results {
		content := result.Content
		if len(content) > sourceContentLimit {
			content = content[:sourceContentLimit] + "..."
		}
		sources = append(sources, Source{
			Content:    content,
			Metadata:   result.Metadata,
			Similarity: result.Similarity,
		})
	}
	return sources
}

// transcriptPrompt serializes a caller-owned transcript ahead of the new
// question so the model treats it as conversation history it did not itself
// produce.
func transcriptPrompt(transcript []llm.Turn, prompt string) string {
	var b strings.Builder
	b.WriteString("The following is the conversation so far. Treat it as history and answer only the final question.\n\n")
	for _, turn := range transcript {
		label := "User"
		if turn.Role == llm.RoleModel {
			label = "Assistant"
		}
		b.WriteString(label)
		b.WriteString(": ")
		b.WriteString(turn.Text)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(prompt)
	return b.String()
}

// followUpPrompt frames a question for a session the model already remembers.
func followUpPrompt(prompt string) string {
	return "This is a follow-up question in the same conversation. Answer it using the conversation so far and the context provided.\n\n" + prompt
}
