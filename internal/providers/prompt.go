package providers

import (
	"fmt"
	"strings"
)

const (
	// defaultContextBudget bounds the characters of prior-summary context
	// included in a prompt. Oldest summaries are dropped first.
	defaultContextBudget = 12000

	// maxKnownCharacters bounds the roster context list.
	maxKnownCharacters = 200
)

const systemPrompt = `You are a reading companion that produces spoiler-safe recaps of books.
You are given the text of one segment of a book, recaps of everything before it,
and the characters known so far. Respond with JSON only, matching the schema you
are given. Never reference events past the end of the provided segment.`

// buildUserPrompt composes the user message for one checkpoint call. Prior
// summaries are included newest-last and trimmed oldest-first to fit the
// context budget; the window text itself is never trimmed.
func buildUserPrompt(req *Request, contextBudget int) string {
	if contextBudget <= 0 {
		contextBudget = defaultContextBudget
	}

	var b strings.Builder

	prior := fitPriorSummaries(req.PriorSummaries, contextBudget)
	if len(prior) > 0 {
		b.WriteString("Recap of the story so far:\n")
		for _, p := range prior {
			fmt.Fprintf(&b, "[through %d%%] %s\n", p.Progress, p.Summary)
		}
		b.WriteString("\n")
	}

	if len(req.KnownCharacters) > 0 {
		known := req.KnownCharacters
		if len(known) > maxKnownCharacters {
			known = known[:maxKnownCharacters]
		}
		b.WriteString("Characters known so far (reuse these names when the same person appears): ")
		b.WriteString(strings.Join(known, ", "))
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, "New segment, ending at %d%% of the book:\n%s\n\n", req.Progress, req.WindowText)

	b.WriteString(`Produce a JSON object with:
- "summary": a cumulative recap (250-300 words) of everything up to and including this segment, covering key events and characters in a clear, engaging style. It must not reveal anything beyond this segment.
- "characters": every character name that appears in THIS segment, as written in the text, one entry per distinct person.`)

	return b.String()
}

// fitPriorSummaries drops the oldest summaries until the rendered context
// fits the budget. The most recent summary is always kept, truncated if it
// alone exceeds the budget.
func fitPriorSummaries(prior []PriorSummary, budget int) []PriorSummary {
	if len(prior) == 0 {
		return nil
	}

	total := 0
	sizes := make([]int, len(prior))
	for i, p := range prior {
		sizes[i] = len(p.Summary) + 24 // header overhead per entry
		total += sizes[i]
	}

	start := 0
	for start < len(prior)-1 && total > budget {
		total -= sizes[start]
		start++
	}

	kept := prior[start:]
	if len(kept) == 1 && sizes[start] > budget {
		trimmed := kept[0]
		cut := budget - 24
		if cut < 0 {
			cut = 0
		}
		if cut < len(trimmed.Summary) {
			trimmed.Summary = trimmed.Summary[:cut]
		}
		return []PriorSummary{trimmed}
	}
	return kept
}
