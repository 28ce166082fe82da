package rag

import (
	"fmt"
	"strings"

	"github.com/doctis-ai/doctis-mvp/engine/domain"
	"github.com/doctis-ai/doctis-mvp/engine/graph"
)

// systemPrompt is the fixed triage persona. The answer language is chosen
// per request in the user prompt.
const systemPrompt = "You are a careful medical triage assistant. " +
	"Respond in structured Markdown. You never diagnose; you assess urgency and advise. " +
	"Always start with: 'DISCLAIMER: I am an AI, consult a doctor.'"

// FormatContext renders retrieval matches into the reference block of the
// prompt. With no matches it returns the no-match sentinel so the model
// knows the knowledge base had nothing relevant.
func FormatContext(matches []domain.RetrievalMatch) string {
	if len(matches) == 0 {
		return domain.NoMatchFound
	}
	lines := make([]string, len(matches))
	for i, m := range matches {
		lines[i] = fmt.Sprintf("- %s (relevance: %.2f): %s Precautions: %s.",
			m.Disease, m.Score, m.Description, m.Precautions)
	}
	return strings.Join(lines, "\n")
}

// buildUserPrompt assembles the case description handed to the model.
func buildUserPrompt(req domain.TriageRequest, context string, related []graph.RelatedDisease) string {
	var b strings.Builder
	b.WriteString("ANALYZE THIS MEDICAL CASE:\n\n")

	if req.Age > 0 || req.Gender != "" {
		fmt.Fprintf(&b, "PATIENT: %d years old, %s.\n", req.Age, orUnknown(req.Gender))
	}
	fmt.Fprintf(&b, "SYMPTOMS: %q\n", req.Symptoms)
	if req.History != "" {
		fmt.Fprintf(&b, "MEDICAL HISTORY: %s\n", req.History)
	}

	b.WriteString("\nREFERENCE MEDICAL CONTEXT:\n")
	b.WriteString(context)
	b.WriteString("\n")

	if len(related) > 0 {
		b.WriteString("\nCONDITIONS WITH OVERLAPPING SYMPTOMS:\n")
		for _, r := range related {
			fmt.Fprintf(&b, "- %s (%d shared symptoms)\n", r.Name, r.SharedSymptoms)
		}
	}

	b.WriteString("\nINSTRUCTIONS:\n")
	b.WriteString("1. Determine the urgency level (Green/Orange/Red).\n")
	b.WriteString("2. Provide a brief clinical assessment.\n")
	b.WriteString("3. List immediate recommendations.\n")
	fmt.Fprintf(&b, "\nRespond in %s. Be concise and professional.\n", languageName(req.Lang))

	return b.String()
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown gender"
	}
	return s
}

func languageName(code string) string {
	switch strings.ToLower(code) {
	case "", "en":
		return "English"
	case "fr":
		return "French"
	case "ar":
		return "Arabic"
	case "es":
		return "Spanish"
	default:
		return code
	}
}
