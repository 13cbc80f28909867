package ai

import (
	"context"

	"github.com/amishk599/rolecall/internal/model"
)

// NopClassifier is used when ai.enabled is false. Every listing lands in the
// backlog with a neutral score and no LLM call is made.
type NopClassifier struct{}

// NewNopClassifier returns a NopClassifier.
func NewNopClassifier() *NopClassifier {
	return &NopClassifier{}
}

// Classify returns a neutral result.
func (n *NopClassifier) Classify(_ context.Context, _ model.TriageInput) (model.TriageResult, error) {
	return model.TriageResult{
		Score:          50,
		Recommendation: model.Maybe,
		Reasoning:      "AI triage is disabled. Please review this job manually.",
	}, nil
}
