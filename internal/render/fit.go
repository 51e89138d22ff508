package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tailord/tailord/internal/faults"
	"github.com/tailord/tailord/internal/gateway"
)

// Outcome is the terminal state of a fit or auto-fix run. A miss is data,
// not an error: the caller decides how to surface it.
type Outcome struct {
	Content      string
	PageCount    *int
	OK           bool
	ErrorMessage string
	LogExcerpt   string
	ErrorLines   []int
	Errors       []string
	Attempts     int
}

// Fitter drives documents through the render-and-fix loop.
type Fitter struct {
	gateway         *gateway.Gateway
	renderer        Renderer
	targetPages     int
	autoFixAttempts int
}

func NewFitter(gw *gateway.Gateway, renderer Renderer, targetPages, autoFixAttempts int) *Fitter {
	if targetPages <= 0 {
		targetPages = 2
	}
	if autoFixAttempts <= 0 {
		autoFixAttempts = 3
	}

	return &Fitter{
		gateway:         gw,
		renderer:        renderer,
		targetPages:     targetPages,
		autoFixAttempts: autoFixAttempts,
	}
}

func (f *Fitter) TargetPages() int {
	return f.targetPages
}

// FitToPages renders the document and, when the page count misses the
// target, asks the model for one corrective rewrite and renders again. The
// second miss, or any compile error, becomes a failed Outcome.
func (f *Fitter) FitToPages(ctx context.Context, document string, onOverloadRetry func()) Outcome {
	result, err := f.renderer.Render(ctx, document)
	if err != nil {
		return failureOutcome(document, err, 1)
	}

	if result.PageCount == f.targetPages {
		pages := result.PageCount
		return Outcome{Content: document, PageCount: &pages, OK: true, Attempts: 1}
	}

	slog.Info("document missed page target, requesting rewrite",
		"got_pages", result.PageCount, "target_pages", f.targetPages)

	rewritten, err := f.gateway.Generate(ctx, rewritePrompt(document, result.PageCount, f.targetPages), gateway.ClassStandard, onOverloadRetry)
	if err != nil {
		return failureOutcome(document, err, 1)
	}

	secondResult, err := f.renderer.Render(ctx, rewritten)
	if err != nil {
		return failureOutcome(rewritten, err, 2)
	}

	pages := secondResult.PageCount
	if pages != f.targetPages {
		return Outcome{
			Content:      rewritten,
			PageCount:    &pages,
			ErrorMessage: fmt.Sprintf("document is %d pages after rewrite, target is %d", pages, f.targetPages),
			Attempts:     2,
		}
	}

	return Outcome{Content: rewritten, PageCount: &pages, OK: true, Attempts: 2}
}

// AutoFix patches a failing document using its error context, re-rendering
// after each patch and stopping at the first compile success. On exhaustion
// the last failure comes back with the attempt count used.
func (f *Fitter) AutoFix(ctx context.Context, document, errorSummary, logExcerpt string) Outcome {
	current := document
	var last Outcome

	for attempt := 1; attempt <= f.autoFixAttempts; attempt++ {
		patched, err := f.gateway.Generate(ctx, fixPrompt(current, errorSummary, logExcerpt), gateway.ClassStandard, nil)
		if err != nil {
			last = failureOutcome(current, err, attempt)
			continue
		}

		result, err := f.renderer.Render(ctx, patched)
		if err == nil {
			pages := result.PageCount
			return Outcome{Content: patched, PageCount: &pages, OK: true, Attempts: attempt}
		}

		last = failureOutcome(patched, err, attempt)
		current = patched
		errorSummary = last.ErrorMessage
		logExcerpt = last.LogExcerpt
	}

	return last
}

func failureOutcome(content string, err error, attempts int) Outcome {
	outcome := Outcome{
		Content:      content,
		ErrorMessage: err.Error(),
		Attempts:     attempts,
	}

	var compileErr *faults.CompileError
	if errors.As(err, &compileErr) {
		outcome.LogExcerpt = compileErr.LogExcerpt
		outcome.ErrorLines = compileErr.LineNumbers
		outcome.Errors = compileErr.Errors
	}

	return outcome
}

func rewritePrompt(document string, gotPages, targetPages int) string {
	return fmt.Sprintf(
		"The following LaTeX document renders to %d pages but must fit exactly %d. "+
			"Rewrite it to hit the target, trimming or expanding content evenly. "+
			"Return only the full LaTeX source.\n\n%s",
		gotPages, targetPages, document)
}

func fixPrompt(document, errorSummary, logExcerpt string) string {
	return fmt.Sprintf(
		"This LaTeX document fails to compile. Fix it and return only the full corrected source.\n\n"+
			"Error: %s\n\nLog excerpt:\n%s\n\nDocument:\n%s",
		errorSummary, logExcerpt, document)
}
