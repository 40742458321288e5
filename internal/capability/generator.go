// Package capability holds the outbound adapters the scheduling engine
// depends on: draft generation and publication delivery. Both are defined
// as interfaces so the engine stays testable and transport-agnostic.
package capability

import (
	"context"
	"fmt"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/go-resty/resty/v2"

	"contentops/autopilot/pkg/logging"
)

// GenerateRequest asks the generation service for one draft.
type GenerateRequest struct {
	OwnerID string `json:"owner_id"`
	Pillar  string `json:"pillar,omitempty"`
}

// Draft is the produced content payload.
type Draft struct {
	Content string `json:"content"`
}

// DraftGenerator produces one content draft per call. Implementations must
// be safe for concurrent use.
type DraftGenerator interface {
	Generate(ctx context.Context, req GenerateRequest) (*Draft, error)
}

// GeneratorAPIError reports a non-success status from the generation service.
type GeneratorAPIError struct {
	StatusCode int
	Body       string
}

func (e *GeneratorAPIError) Error() string {
	return fmt.Sprintf("generator returned status %d: %s", e.StatusCode, e.Body)
}

// HTTPGenerator calls an external generation service over HTTP. Transient
// failures (network errors, 5xx) are retried with exponential backoff;
// client errors surface immediately.
type HTTPGenerator struct {
	client   *resty.Client
	executor failsafe.Executor[*resty.Response]
	logger   logging.Logger
}

// NewHTTPGenerator builds a generator client for the given base URL.
func NewHTTPGenerator(baseURL, token string, logger logging.Logger) *HTTPGenerator {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second)
	if token != "" {
		client.SetAuthToken(token)
	}

	retry := retrypolicy.NewBuilder[*resty.Response]().
		WithBackoff(200*time.Millisecond, 5*time.Second).
		WithMaxRetries(3).
		WithJitterFactor(0.1).
		HandleIf(func(resp *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp != nil && resp.StatusCode() >= 500
		}).
		Build()

	return &HTTPGenerator{
		client:   client,
		executor: failsafe.With(retry),
		logger:   logger,
	}
}

// Generate requests one draft from the generation service.
func (g *HTTPGenerator) Generate(ctx context.Context, req GenerateRequest) (*Draft, error) {
	var draft Draft

	resp, err := g.executor.WithContext(ctx).Get(func() (*resty.Response, error) {
		return g.client.R().
			SetContext(ctx).
			SetBody(req).
			SetResult(&draft).
			Post("/v1/drafts")
	})
	if err != nil {
		return nil, fmt.Errorf("generation request failed: %w", err)
	}
	if resp.IsError() {
		return nil, &GeneratorAPIError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	if draft.Content == "" {
		return nil, fmt.Errorf("generation service returned an empty draft")
	}
	return &draft, nil
}
