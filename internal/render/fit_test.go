package render

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tailord/tailord/internal/config"
	"github.com/tailord/tailord/internal/faults"
	"github.com/tailord/tailord/internal/gateway"
)

type fakeRenderer struct {
	calls   int
	results []fakeRender
}

type fakeRender struct {
	pages int
	err   error
}

func (r *fakeRenderer) Render(_ context.Context, _ string) (Result, error) {
	idx := r.calls
	if idx >= len(r.results) {
		idx = len(r.results) - 1
	}
	r.calls++

	res := r.results[idx]
	return Result{PageCount: res.pages}, res.err
}

type fitProvider struct {
	calls     int
	responses []string
}

func (p *fitProvider) Complete(_ context.Context, _, _ string) (string, error) {
	idx := p.calls
	if idx >= len(p.responses) {
		idx = len(p.responses) - 1
	}
	p.calls++
	return p.responses[idx], nil
}

func newFitter(p *fitProvider, r *fakeRenderer) *Fitter {
	gw := gateway.New(p, config.ProviderConfig{
		PrimaryModel:  "big",
		FallbackModel: "small",
		MaxRetries:    2,
	})
	return NewFitter(gw, r, 2, 3)
}

func TestFitSucceedsOnTarget(t *testing.T) {
	p := &fitProvider{responses: []string{"unused"}}
	r := &fakeRenderer{results: []fakeRender{{pages: 2}}}

	outcome := newFitter(p, r).FitToPages(context.Background(), "\\documentclass{article}", nil)
	require.True(t, outcome.OK)
	require.Equal(t, 2, *outcome.PageCount)
	require.Equal(t, 0, p.calls, "no AI call when the first render hits the target")
	require.Equal(t, 1, r.calls)
}

func TestFitOneRewriteThenSuccess(t *testing.T) {
	p := &fitProvider{responses: []string{"rewritten source"}}
	r := &fakeRenderer{results: []fakeRender{{pages: 3}, {pages: 2}}}

	outcome := newFitter(p, r).FitToPages(context.Background(), "doc", nil)
	require.True(t, outcome.OK)
	require.Equal(t, "rewritten source", outcome.Content)
	require.Equal(t, 1, p.calls, "exactly one AI fix call")
	require.Equal(t, 2, r.calls, "exactly one re-render")
}

func TestFitSecondMissIsStructuredFailure(t *testing.T) {
	p := &fitProvider{responses: []string{"rewritten source"}}
	r := &fakeRenderer{results: []fakeRender{{pages: 3}, {pages: 3}}}

	outcome := newFitter(p, r).FitToPages(context.Background(), "doc", nil)
	require.False(t, outcome.OK)
	require.NotNil(t, outcome.PageCount)
	require.Equal(t, 3, *outcome.PageCount)
	require.Contains(t, outcome.ErrorMessage, "target is 2")
	require.Equal(t, "rewritten source", outcome.Content)
}

func TestFitCompileErrorCarriesDiagnostics(t *testing.T) {
	p := &fitProvider{responses: []string{"rewritten source"}}
	compileErr := &faults.CompileError{
		LogExcerpt:  "! Undefined control sequence. l.12",
		LineNumbers: []int{12},
		Errors:      []string{"Undefined control sequence"},
	}
	r := &fakeRenderer{results: []fakeRender{{err: compileErr}}}

	outcome := newFitter(p, r).FitToPages(context.Background(), "doc", nil)
	require.False(t, outcome.OK)
	require.Equal(t, []int{12}, outcome.ErrorLines)
	require.Equal(t, []string{"Undefined control sequence"}, outcome.Errors)
	require.Contains(t, outcome.LogExcerpt, "Undefined control sequence")
}

func TestAutoFixStopsAtFirstSuccess(t *testing.T) {
	p := &fitProvider{responses: []string{"patched v1", "patched v2"}}
	compileErr := &faults.CompileError{Errors: []string{"Missing $ inserted"}}
	r := &fakeRenderer{results: []fakeRender{{err: compileErr}, {pages: 2}}}

	outcome := newFitter(p, r).AutoFix(context.Background(), "broken", "Missing $ inserted", "log")
	require.True(t, outcome.OK)
	require.Equal(t, "patched v2", outcome.Content)
	require.Equal(t, 2, outcome.Attempts)
}

func TestAutoFixExhaustionReturnsLastFailure(t *testing.T) {
	p := &fitProvider{responses: []string{"patched"}}
	compileErr := &faults.CompileError{Errors: []string{"Missing $ inserted"}}
	r := &fakeRenderer{results: []fakeRender{{err: compileErr}}}

	outcome := newFitter(p, r).AutoFix(context.Background(), "broken", "summary", "log")
	require.False(t, outcome.OK)
	require.Equal(t, 3, outcome.Attempts)
	require.Equal(t, []string{"Missing $ inserted"}, outcome.Errors)
	require.Equal(t, 3, p.calls)
}
