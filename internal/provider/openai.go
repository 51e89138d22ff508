// Package provider implements the OpenAI-compatible chat completion client
// the model gateway calls through. It knows nothing about retries; failures
// carry their HTTP status so the gateway can classify them.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tailord/tailord/internal/config"
	"github.com/tailord/tailord/internal/core"
	"github.com/tailord/tailord/internal/faults"
)

type Provider interface {
	Complete(ctx context.Context, prompt, model string) (string, error)
}

type OpenAIProvider struct {
	endpoint      string
	client        *http.Client
	requestLogger *RequestLogger
}

func NewOpenAIProvider(cfg config.ProviderConfig, debugCfg config.DebugConfig) *OpenAIProvider {
	timeout := time.Duration(cfg.HTTPTimeoutSecs) * time.Second
	if timeout == 0 {
		timeout = 300 * time.Second
	}

	p := &OpenAIProvider{
		endpoint: cfg.Endpoint,
		client:   &http.Client{Timeout: timeout},
	}

	if debugCfg.LogRequests || debugCfg.LogResponses {
		p.requestLogger = NewRequestLogger(
			debugCfg.LogDirectory,
			debugCfg.LogRequests,
			debugCfg.LogResponses,
			slog.Default(),
		)
	}

	return p
}

func (p *OpenAIProvider) Complete(ctx context.Context, prompt, model string) (string, error) {
	requestID := core.NewRequestID()
	endpointURL := p.endpoint + "/v1/chat/completions"

	modelName := model
	if modelName == "" {
		modelName = "default"
	}

	payload := map[string]any{
		"model": modelName,
		"messages": []map[string]any{
			{"role": "user", "content": prompt},
		},
		"stream": false,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	if p.requestLogger != nil {
		p.requestLogger.LogRequest(requestID, modelName, prompt)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	startTime := time.Now()
	httpResp, err := p.client.Do(httpReq)
	duration := time.Since(startTime)

	if err != nil {
		if p.requestLogger != nil {
			p.requestLogger.LogError(requestID, 0, []byte(err.Error()))
		}
		return "", fmt.Errorf("provider request failed (request_id=%s): %w", requestID, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(httpResp.Body)

		if p.requestLogger != nil {
			p.requestLogger.LogError(requestID, httpResp.StatusCode, bodyBytes)
		}

		return "", fmt.Errorf("provider error (request_id=%s): %w", requestID, &faults.StatusError{
			Code: httpResp.StatusCode,
			Body: strings.TrimSpace(string(bodyBytes)),
		})
	}

	var responsePayload map[string]any
	if err := json.NewDecoder(httpResp.Body).Decode(&responsePayload); err != nil {
		return "", fmt.Errorf("decode provider response (request_id=%s): %w", requestID, err)
	}

	content, err := parseContent(responsePayload)
	if err != nil {
		return "", fmt.Errorf("provider response parse failed (request_id=%s): %w", requestID, err)
	}

	if p.requestLogger != nil {
		p.requestLogger.LogResponse(requestID, content, duration)
	}

	return content, nil
}

func parseContent(payload map[string]any) (string, error) {
	choices, ok := payload["choices"].([]any)
	if !ok || len(choices) == 0 {
		return "", errors.New("no choices in response")
	}

	choice, ok := choices[0].(map[string]any)
	if !ok {
		return "", errors.New("malformed choice in response")
	}

	message, ok := choice["message"].(map[string]any)
	if !ok {
		return "", errors.New("malformed message in response")
	}

	content, _ := message["content"].(string)
	return content, nil
}

var _ Provider = (*OpenAIProvider)(nil)
