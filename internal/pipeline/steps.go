package pipeline

// Wizard steps in their strict forward default order. Doc types in the
// store use the same identifiers.
const (
	StepWelcome     = "welcome"
	StepResearch    = "research"
	StepBrand       = "brand"
	StepServices    = "services"
	StepMarket      = "market"
	StepCompetitors = "competitors"
	StepVisual      = "visual"
	StepExport      = "export"
)

// StepOrder is the default wizard sequence. Regeneration of any
// already-visited step is allowed out of order; forward progress is not.
var StepOrder = []string{
	StepWelcome,
	StepResearch,
	StepBrand,
	StepServices,
	StepMarket,
	StepCompetitors,
	StepVisual,
	StepExport,
}

// stepDeps is the per-step context dependency table. A generated step's
// prompt embeds the markdown of every listed predecessor, in order.
// StepVisual depends on the session's uploaded images, not on text context.
var stepDeps = map[string][]string{
	StepResearch:    {},
	StepBrand:       {StepResearch},
	StepServices:    {StepResearch, StepBrand},
	StepMarket:      {StepResearch, StepBrand},
	StepCompetitors: {StepResearch, StepBrand},
}

// stepConfig carries the per-step generation parameters handed to the
// model gateway.
type stepConfig struct {
	Temperature float32
	MaxTokens   int32
}

var stepConfigs = map[string]stepConfig{
	StepResearch:    {Temperature: 0.2, MaxTokens: 4096},
	StepBrand:       {Temperature: 0.6, MaxTokens: 2048},
	StepServices:    {Temperature: 0.4, MaxTokens: 2048},
	StepMarket:      {Temperature: 0.3, MaxTokens: 2048},
	StepCompetitors: {Temperature: 0.3, MaxTokens: 3072},
}

// IsStep reports whether s names a defined wizard step.
func IsStep(s string) bool {
	for _, step := range StepOrder {
		if step == s {
			return true
		}
	}
	return false
}

// Generable reports whether the step produces a text document through the
// model gateway. Welcome and export carry no generated content, and visual
// runs through the vision path.
func Generable(step string) bool {
	_, ok := stepDeps[step]
	return ok
}

// Dependencies returns the required predecessor steps for a generable step.
func Dependencies(step string) []string {
	return stepDeps[step]
}

// NextStep returns the step after cur in the default order, or cur when
// cur is the last step or unknown.
func NextStep(cur string) string {
	for i, s := range StepOrder {
		if s == cur && i+1 < len(StepOrder) {
			return StepOrder[i+1]
		}
	}
	return cur
}

// stepIndex returns the position of s in StepOrder, or -1.
func stepIndex(s string) int {
	for i, step := range StepOrder {
		if step == s {
			return i
		}
	}
	return -1
}
