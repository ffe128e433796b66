package pii

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"cachegate/pkg/logging"
)

const defaultRecognizerTimeout = 2 * time.Second

// Scanner combines the rule matchers with a statistical recognizer and
// applies confidence thresholding. It holds no mutable state and is safe
// for concurrent use.
type Scanner struct {
	recognizer Recognizer
	threshold  float64
	timeout    time.Duration
}

// NewScanner builds a scanner. Statistical findings with confidence below
// threshold are dropped; rule findings always count. timeout bounds one
// recognizer call (<=0 uses the default).
func NewScanner(recognizer Recognizer, threshold float64, timeout time.Duration) *Scanner {
	if timeout <= 0 {
		timeout = defaultRecognizerTimeout
	}
	return &Scanner{
		recognizer: recognizer,
		threshold:  threshold,
		timeout:    timeout,
	}
}

// Scan classifies text. Clean is true iff no finding survives
// thresholding.
//
// Fail-closed: if the recognizer errors, panics, or exceeds the timeout,
// the result carries a synthetic detector_unavailable finding and is
// dirty. A missing detector must never silently read as "no PII found".
func (s *Scanner) Scan(ctx context.Context, text string) Result {
	findings := matchRules(text)

	statistical, err := s.recognize(ctx, text)
	if err != nil {
		logging.L(ctx).Warn("pii recognizer failed, failing closed",
			zap.Error(err),
		)
		findings = append(findings, Finding{
			Start:      0,
			End:        len(text),
			Category:   CategoryDetectorUnavailable,
			Confidence: 1.0,
			Source:     SourceStatistical,
		})
	} else {
		for _, f := range statistical {
			if f.Confidence >= s.threshold {
				findings = append(findings, f)
			}
		}
	}

	sort.Slice(findings, func(i, j int) bool {
		return findings[i].Start < findings[j].Start
	})

	return Result{
		Clean:    len(findings) == 0,
		Findings: findings,
	}
}

// recognize runs the statistical layer in its own goroutine so a hung or
// panicking recognizer is bounded by the scan timeout rather than
// stalling the request.
func (s *Scanner) recognize(parentCtx context.Context, text string) ([]Finding, error) {
	ctx, cancel := context.WithTimeout(parentCtx, s.timeout)
	defer cancel()

	type outcome struct {
		findings []Finding
		err      error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{err: fmt.Errorf("%w: recognizer panic: %v", ErrDetectorUnavailable, rec)}
			}
		}()
		findings, err := s.recognizer.Recognize(ctx, text)
		if err != nil {
			err = fmt.Errorf("%w: %v", ErrDetectorUnavailable, err)
		}
		done <- outcome{findings: findings, err: err}
	}()

	select {
	case out := <-done:
		return out.findings, out.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrDetectorUnavailable, ctx.Err())
	}
}
