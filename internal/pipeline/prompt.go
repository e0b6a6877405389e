package pipeline

import (
	"fmt"
	"sort"
	"strings"
)

// Prompt is a fully-formed gateway request body: system instructions plus
// the user prompt with chained prior-step context.
type Prompt struct {
	System string
	User   string
}

// factualDirective is embedded in every generated step. The model must
// admit gaps instead of inventing facts, must cite where claims come from,
// and must not leak internal reasoning markup into the answer.
const factualDirective = `Factual accuracy rules (non-negotiable):
- If a fact cannot be verified, write "information not available" instead of guessing.
- Cite the source URL for every external claim under a "## Sources" section.
- Never invent company names, figures, dates, or quotes.
- Do not include internal reasoning, <think> blocks, or meta commentary in the answer.`

const systemResearcher = `You are a meticulous brand researcher producing markdown documents
for a company knowledge base. Write in the requested locale. Structure the
answer with markdown headings.`

const promptResearch = `Research the company identified below. Produce a factual research
profile in markdown covering: what the company does, founding and history,
headquarters and markets served, notable products, and public positioning.
Finish with a "## Sources" section listing every URL you used.`

const promptBrand = `Using the research context above, write the company's brand story in
markdown: origin, mission, values, voice, and the promise it makes to its
customers. Ground every claim in the research context; where the research is
silent, say "information not available".`

const promptServices = `Using the context above, document the company's services and products
in markdown. For each offering: name, short description, who it is for, and
differentiators that the research supports.`

const promptMarket = `Using the context above, describe the company's market in markdown:
segments served, customer profiles, market trends relevant to the company,
and its position. Only include trends that can be sourced.`

const promptCompetitors = `Using the context above, identify and profile the company's main
competitors in markdown. For each competitor: name, overlap with the
company's offering, and the company's differentiation. List only
competitors you can support with sources.`

var stepPrompts = map[string]string{
	StepResearch:    promptResearch,
	StepBrand:       promptBrand,
	StepServices:    promptServices,
	StepMarket:      promptMarket,
	StepCompetitors: promptCompetitors,
}

// BuildPrompt composes the gateway request for one generable step. It is
// pure and deterministic: same inputs, same prompt. prior maps a dependency
// step to the markdown body of its current document; a missing required
// dependency yields a MissingContext fault and the caller decides policy.
func BuildPrompt(step, locale, subject string, prior map[string]string) (Prompt, error) {
	instruction, ok := stepPrompts[step]
	if !ok {
		return Prompt{}, faultf(KindValidation, "step %q has no generated content", step)
	}
	if strings.TrimSpace(subject) == "" {
		return Prompt{}, faultf(KindValidation, "subject is required")
	}
	if locale == "" {
		locale = "en"
	}

	var missing []string
	var b strings.Builder
	for _, dep := range Dependencies(step) {
		body, ok := prior[dep]
		if !ok || strings.TrimSpace(body) == "" {
			missing = append(missing, dep)
			continue
		}
		fmt.Fprintf(&b, "## [CONTEXT: %s]\n\n%s\n\n", dep, body)
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return Prompt{}, faultf(KindMissingContext, "step %q requires prior output of: %s",
			step, strings.Join(missing, ", "))
	}

	fmt.Fprintf(&b, "[SUBJECT]\n%s\n\n", strings.TrimSpace(subject))
	fmt.Fprintf(&b, "[LOCALE]\n%s\n\n", locale)
	b.WriteString(instruction)
	b.WriteString("\n\n")
	b.WriteString(factualDirective)

	return Prompt{System: systemResearcher, User: b.String()}, nil
}
