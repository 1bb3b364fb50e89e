package textgen

import (
	"context"
	"fmt"
	"strings"

	"github.com/huddle/huddle/internal/pipeline/synthesis"
)

// TemplateGenerator renders summaries from the structured prompt alone.
// The output is deterministic for a given prompt, which makes it the
// generator of choice for tests and for deployments without a hosted
// generation service.
type TemplateGenerator struct{}

func NewTemplateGenerator() *TemplateGenerator {
	return &TemplateGenerator{}
}

func (TemplateGenerator) Generate(_ context.Context, p synthesis.Prompt) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s huddle for %s: %d appointment(s) on the schedule.",
		capitalize(string(p.Role)), p.Date, len(p.Appointments))

	if len(p.Flags) > 0 {
		b.WriteString(" Attention needed:")
		for _, f := range p.Flags {
			fmt.Fprintf(&b, " [%s/%s] %s (patient %s).", f.Level, f.Category, f.Message, f.PatientID)
		}
	}
	if len(p.Opportunities) > 0 {
		b.WriteString(" Opportunities:")
		for _, o := range p.Opportunities {
			fmt.Fprintf(&b, " %s for patient %s, est. $%.0f (%s priority).",
				o.TreatmentType, o.PatientID, o.EstimatedValue, o.Priority)
		}
	}
	return b.String(), nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
