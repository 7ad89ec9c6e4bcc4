package llm

import "strings"

// DefaultSystemInstruction is used when the caller supplies none.
const DefaultSystemInstruction = "You are a medical AI assistant. Answer questions based on the provided " +
	"medical context. Be precise, professional, and cite relevant information from the context. " +
	"If the context doesn't contain enough information, acknowledge this limitation."

// BuildPrompt assembles the full prompt sent to the provider. The system
// instruction defaults when empty; the context block is omitted when empty.
func BuildPrompt(prompt, contextBlock, systemInstruction string) string {
	var parts []string

	if systemInstruction == "" {
		systemInstruction = DefaultSystemInstruction
	}
	parts = append(parts, "System: "+systemInstruction+"\n")

	if contextBlock != "" {
		parts = append(parts, "Context:\n"+contextBlock+"\n")
	}

	parts = append(parts, "Question: "+prompt+"\n")
	parts = append(parts, "Answer:")

	return strings.Join(parts, "\n")
}
