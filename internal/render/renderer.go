// Package render talks to the external document renderer and implements the
// page-fit loop: render, compare against the target page count, ask the model
// to correct the document once, render again. Misses come back as structured
// failures, never as thrown errors.
package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tailord/tailord/internal/config"
	"github.com/tailord/tailord/internal/faults"
)

// Result is a successful render: the document compiled to pageCount pages.
// Nothing durable is kept by the renderer.
type Result struct {
	PageCount int `json:"page_count"`
}

// Renderer is the external rendering collaborator. A compile failure is
// reported as *faults.CompileError.
type Renderer interface {
	Render(ctx context.Context, document string) (Result, error)
}

// HTTPRenderer posts documents to a rendering service.
type HTTPRenderer struct {
	endpoint string
	client   *http.Client
}

func NewHTTPRenderer(cfg config.RendererConfig) *HTTPRenderer {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout == 0 {
		timeout = 120 * time.Second
	}

	return &HTTPRenderer{
		endpoint: cfg.Endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

type compileFailurePayload struct {
	Log         string   `json:"log"`
	LineNumbers []int    `json:"line_numbers"`
	Errors      []string `json:"errors"`
}

func (r *HTTPRenderer) Render(ctx context.Context, document string) (Result, error) {
	body, err := json.Marshal(map[string]any{"source": document})
	if err != nil {
		return Result{}, fmt.Errorf("marshal render request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+"/render", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build render request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := r.client.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("render request failed: %w", err)
	}
	defer httpResp.Body.Close()

	switch {
	case httpResp.StatusCode == http.StatusUnprocessableEntity:
		var failure compileFailurePayload
		if err := json.NewDecoder(httpResp.Body).Decode(&failure); err != nil {
			return Result{}, fmt.Errorf("decode compile failure: %w", err)
		}
		return Result{}, &faults.CompileError{
			LogExcerpt:  failure.Log,
			LineNumbers: failure.LineNumbers,
			Errors:      failure.Errors,
		}
	case httpResp.StatusCode < 200 || httpResp.StatusCode >= 300:
		bodyBytes, _ := io.ReadAll(httpResp.Body)
		return Result{}, fmt.Errorf("render failed: %w", &faults.StatusError{
			Code: httpResp.StatusCode,
			Body: strings.TrimSpace(string(bodyBytes)),
		})
	}

	var result Result
	if err := json.NewDecoder(httpResp.Body).Decode(&result); err != nil {
		return Result{}, fmt.Errorf("decode render result: %w", err)
	}

	return result, nil
}

var _ Renderer = (*HTTPRenderer)(nil)
