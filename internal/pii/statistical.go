package pii

import (
	"context"
	"regexp"
)

// HeuristicRecognizer is the built-in statistical layer: contextual
// pattern heuristics for person names and street addresses with graded
// confidence. It is deliberately biased toward false positives; the
// confidence threshold in the scanner is the tuning knob.
//
// Deployments that run a dedicated analyzer service swap this for the
// analyzer client; both satisfy Recognizer.
type HeuristicRecognizer struct{}

func NewHeuristicRecognizer() *HeuristicRecognizer {
	return &HeuristicRecognizer{}
}

var (
	// Honorific followed by one or two capitalized words: "Dr. Jane Doe".
	honorificNameRe = regexp.MustCompile(`\b(?:Mr|Mrs|Ms|Mx|Dr|Prof)\.? [A-Z][a-z]+(?: [A-Z][a-z]+)?`)

	// Self-introduction followed by one or two capitalized words:
	// "my name is Alice Smith", "I'm Bob".
	introNameRe = regexp.MustCompile(`\b(?i:my name is|i am|i'm|regards,|sincerely,)\s+([A-Z][a-z]+(?: [A-Z][a-z]+)?)`)

	// Street addresses: "742 Evergreen Terrace", "12 Main St".
	streetRe = regexp.MustCompile(`\b\d{1,5} [A-Z][a-z]+(?: [A-Z][a-z]+)? (?:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Lane|Ln|Drive|Dr|Terrace|Ter|Court|Ct|Way)\b\.?`)
)

func (r *HeuristicRecognizer) Recognize(ctx context.Context, text string) ([]Finding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var findings []Finding

	for _, span := range honorificNameRe.FindAllStringIndex(text, -1) {
		findings = append(findings, Finding{
			Start:      span[0],
			End:        span[1],
			Category:   CategoryPersonName,
			Confidence: 0.9,
			Source:     SourceStatistical,
		})
	}

	for _, m := range introNameRe.FindAllStringSubmatchIndex(text, -1) {
		// Submatch 1 is the name itself; the trigger phrase is context,
		// not PII.
		if m[2] >= 0 {
			findings = append(findings, Finding{
				Start:      m[2],
				End:        m[3],
				Category:   CategoryPersonName,
				Confidence: 0.85,
				Source:     SourceStatistical,
			})
		}
	}

	for _, span := range streetRe.FindAllStringIndex(text, -1) {
		findings = append(findings, Finding{
			Start:      span[0],
			End:        span[1],
			Category:   CategoryAddress,
			Confidence: 0.8,
			Source:     SourceStatistical,
		})
	}

	return findings, nil
}
