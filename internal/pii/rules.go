package pii

import (
	"regexp"
	"strconv"
	"strings"
)

// Structured identifiers are matched with plain regexes, validated where
// the format allows it (Luhn for card numbers, octet range for IPv4).
// These matchers are deterministic: a well-formed identifier is never
// missed, and the occasional false positive is acceptable because it only
// costs a cache entry, never leaks one.
var (
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

	// NANP formats plus international prefixes: +1 555-867-5309,
	// (555) 867 5309, 555.867.5309.
	phoneRe = regexp.MustCompile(`(?:\+\d{1,3}[ .\-]?)?(?:\(\d{3}\)|\d{3})[ .\-]\d{3}[ .\-]?\d{4}`)

	// Candidate card numbers: 13-19 digits with optional separators.
	// Luhn-checked before reporting.
	cardRe = regexp.MustCompile(`(?:\d[ \-]?){12,18}\d`)

	ssnRe = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)

	ipv4Re = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
)

// matchRules runs every structured matcher over text and returns the
// union of findings, all with confidence 1.0.
func matchRules(text string) []Finding {
	var findings []Finding

	add := func(spans [][]int, cat Category) {
		for _, span := range spans {
			findings = append(findings, Finding{
				Start:      span[0],
				End:        span[1],
				Category:   cat,
				Confidence: 1.0,
				Source:     SourceRule,
			})
		}
	}

	add(emailRe.FindAllStringIndex(text, -1), CategoryEmail)
	add(ssnRe.FindAllStringIndex(text, -1), CategorySSN)

	for _, span := range cardRe.FindAllStringIndex(text, -1) {
		if luhnValid(text[span[0]:span[1]]) {
			findings = append(findings, Finding{
				Start:      span[0],
				End:        span[1],
				Category:   CategoryCreditCard,
				Confidence: 1.0,
				Source:     SourceRule,
			})
		}
	}

	for _, span := range phoneRe.FindAllStringIndex(text, -1) {
		// Card numbers with dashed groups also look like phone numbers;
		// skip spans already claimed by a higher-signal category.
		if !overlapsAny(findings, span[0], span[1]) {
			findings = append(findings, Finding{
				Start:      span[0],
				End:        span[1],
				Category:   CategoryPhone,
				Confidence: 1.0,
				Source:     SourceRule,
			})
		}
	}

	for _, span := range ipv4Re.FindAllStringIndex(text, -1) {
		if validIPv4(text[span[0]:span[1]]) {
			findings = append(findings, Finding{
				Start:      span[0],
				End:        span[1],
				Category:   CategoryIPAddress,
				Confidence: 1.0,
				Source:     SourceRule,
			})
		}
	}

	return findings
}

func overlapsAny(findings []Finding, start, end int) bool {
	for _, f := range findings {
		if start < f.End && end > f.Start {
			return true
		}
	}
	return false
}

// luhnValid strips separators and checks the Luhn checksum for a 13-19
// digit candidate.
func luhnValid(candidate string) bool {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, candidate)

	if len(digits) < 13 || len(digits) > 19 {
		return false
	}

	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

func validIPv4(candidate string) bool {
	for _, part := range strings.Split(candidate, ".") {
		n, err := strconv.Atoi(part)
		if err != nil || n > 255 {
			return false
		}
	}
	return true
}
