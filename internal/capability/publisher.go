package capability

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"contentops/autopilot/internal/models"
	"contentops/autopilot/pkg/logging"
)

// Publisher delivers a scheduled item to its destination channel.
// Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, item *models.PipelineItem) error
}

// PublisherAPIError reports a non-success status from the delivery service.
type PublisherAPIError struct {
	StatusCode int
	Body       string
}

func (e *PublisherAPIError) Error() string {
	return fmt.Sprintf("publisher returned status %d: %s", e.StatusCode, e.Body)
}

// HTTPPublisher delivers items to an external publishing service. Unlike the
// generator client it carries no retry policy: a timeout or 5xx is ambiguous
// (the destination may already have applied the post), so re-sending risks a
// duplicate on the external channel. A failed delivery parks the item in
// publish_failed and waits for an explicit operator retry.
type HTTPPublisher struct {
	client *resty.Client
	logger logging.Logger
}

// NewHTTPPublisher builds a publisher client for the given base URL.
func NewHTTPPublisher(baseURL, token string, logger logging.Logger) *HTTPPublisher {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second)
	if token != "" {
		client.SetAuthToken(token)
	}

	return &HTTPPublisher{
		client: client,
		logger: logger,
	}
}

type publishPayload struct {
	ItemID  string `json:"item_id"`
	OwnerID string `json:"owner_id"`
	Pillar  string `json:"pillar,omitempty"`
	Content string `json:"content"`
}

// Publish delivers one item with a single request. A nil return means the
// destination accepted it; any failure is reported without re-sending.
func (p *HTTPPublisher) Publish(ctx context.Context, item *models.PipelineItem) error {
	payload := publishPayload{
		ItemID:  item.ID,
		OwnerID: item.OwnerID,
		Pillar:  item.Pillar,
		Content: item.Content,
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(payload).
		Post("/v1/publications")
	if err != nil {
		return fmt.Errorf("publication request failed: %w", err)
	}
	if resp.IsError() {
		return &PublisherAPIError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	return nil
}
