package ai

import (
	_ "embed"
	"strconv"
	"strings"
	"text/template"
)

// descriptionLimit bounds how much of a listing's description reaches the model.
const descriptionLimit = 1500

//go:embed prompts/triage_system.md
var triageSystemPrompt string

//go:embed prompts/triage.md
var triagePromptRaw string

// TriageTemplate renders a model.TriageInput into the user prompt.
// Parsed once at package init; reused on every Classify call.
var TriageTemplate = template.Must(template.New("triage").Funcs(template.FuncMap{
	"join":     strings.Join,
	"truncate": truncateDescription,
	"money":    formatMinSalary,
}).Parse(triagePromptRaw))

func truncateDescription(s string) string {
	r := []rune(s)
	if len(r) > descriptionLimit {
		r = r[:descriptionLimit]
	}
	return string(r)
}

// formatMinSalary renders 80000 as "$80,000", or "Flexible" when unset.
func formatMinSalary(v *int) string {
	if v == nil || *v <= 0 {
		return "Flexible"
	}
	digits := strconv.Itoa(*v)
	var b strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(d)
	}
	return "$" + b.String()
}
