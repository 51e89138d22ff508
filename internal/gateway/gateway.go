// Package gateway wraps the provider client with the retry policy generation
// stages rely on: bounded retries with a fixed delay, a one-time switch to
// the fallback model when the primary keeps reporting overload, and typed
// terminal errors the pipeline can classify.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tailord/tailord/internal/config"
	"github.com/tailord/tailord/internal/faults"
	"github.com/tailord/tailord/internal/provider"
)

// ModelClass selects the capability tier for one call.
type ModelClass int

const (
	// ClassStandard uses the primary model, falling back on overload.
	ClassStandard ModelClass = iota
	// ClassLight goes straight to the cheaper fallback model. Used for
	// summaries and other low-stakes calls.
	ClassLight
)

type Gateway struct {
	provider          provider.Provider
	primaryModel      string
	fallbackModel     string
	maxRetries        int
	retryDelay        time.Duration
	overloadThreshold int

	// sleep is swappable in tests.
	sleep func(time.Duration)
}

func New(p provider.Provider, cfg config.ProviderConfig) *Gateway {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 4
	}

	threshold := cfg.OverloadThreshold
	if threshold <= 0 {
		threshold = 3
	}

	return &Gateway{
		provider:          p,
		primaryModel:      cfg.PrimaryModel,
		fallbackModel:     cfg.FallbackModel,
		maxRetries:        maxRetries,
		retryDelay:        time.Duration(cfg.RetryDelaySecs) * time.Second,
		overloadThreshold: threshold,
		sleep:             time.Sleep,
	}
}

// Generate invokes the model, retrying retryable failures up to the attempt
// budget. When the primary model reports overload overloadThreshold times in
// a row, the call switches to the fallback model once without consuming an
// attempt. onOverloadRetry, if non-nil, fires the first time overload is
// seen so the caller can surface a single "retrying" notice.
func (g *Gateway) Generate(ctx context.Context, prompt string, class ModelClass, onOverloadRetry func()) (string, error) {
	model := g.modelFor(class)

	attempt := 1
	consecutiveOverloads := 0
	switchedToFallback := class != ClassStandard
	overloadNotified := false

	for {
		content, err := g.provider.Complete(ctx, prompt, model)
		if err == nil {
			return content, nil
		}

		kind := faults.ClassifyError(err)

		switch kind {
		case faults.KindOverloaded:
			consecutiveOverloads++

			if !overloadNotified && onOverloadRetry != nil {
				onOverloadRetry()
				overloadNotified = true
			}

			if !switchedToFallback && consecutiveOverloads >= g.overloadThreshold {
				model = g.fallbackModel
				switchedToFallback = true
				// The grace switch does not consume an attempt.
				continue
			}
		case faults.KindRetryable:
			consecutiveOverloads = 0
		default:
			return "", err
		}

		if attempt >= g.maxRetries {
			return "", &faults.ExhaustedError{Attempts: attempt, LastKind: kind, Err: err}
		}

		g.sleep(g.retryDelay)
		attempt++
	}
}

func (g *Gateway) modelFor(class ModelClass) string {
	if class == ClassLight && g.fallbackModel != "" {
		return g.fallbackModel
	}
	return g.primaryModel
}

// Structured asks the model for JSON and decodes it into T. A response that
// is not valid JSON for T is a fatal parse error, never retried.
func Structured[T any](ctx context.Context, g *Gateway, prompt string, class ModelClass, onOverloadRetry func()) (T, error) {
	var result T

	content, err := g.Generate(ctx, prompt, class, onOverloadRetry)
	if err != nil {
		return result, err
	}

	if err := json.Unmarshal([]byte(stripFences(content)), &result); err != nil {
		return result, fmt.Errorf("structured generation: %w", &faults.ParseError{Err: err})
	}

	return result, nil
}

// stripFences removes a markdown code fence the model may wrap JSON in.
func stripFences(content string) string {
	trimmed := strings.TrimSpace(content)

	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")

	return strings.TrimSpace(trimmed)
}
