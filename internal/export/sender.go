package export

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/pkoukos/stockroom/internal/dataset"
)

// HTTPDataSender posts table data to an external HTTP endpoint as JSON.
type HTTPDataSender struct {
	client *resty.Client
}

// NewHTTPDataSender creates a sender with a 30-second request timeout.
func NewHTTPDataSender() *HTTPDataSender {
	client := resty.New()
	client.SetTimeout(30 * time.Second)
	return &HTTPDataSender{client: client}
}

// Send posts {"data": rows} to url with the given method (default POST).
// Non-2xx responses are errors.
func (s *HTTPDataSender) Send(ctx context.Context, table dataset.Table, url, method string) error {
	if method == "" {
		method = "POST"
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]any{"data": table}).
		Execute(method, url)
	if err != nil {
		return fmt.Errorf("send data to %s: %w", url, err)
	}
	if resp.IsError() {
		return fmt.Errorf("send data to %s: status %d", url, resp.StatusCode())
	}
	return nil
}

// SendGroup posts {"data": {member: rows}} for a group of tables.
func (s *HTTPDataSender) SendGroup(ctx context.Context, tables map[string]dataset.Table, url, method string) error {
	if method == "" {
		method = "POST"
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]any{"data": tables}).
		Execute(method, url)
	if err != nil {
		return fmt.Errorf("send group to %s: %w", url, err)
	}
	if resp.IsError() {
		return fmt.Errorf("send group to %s: status %d", url, resp.StatusCode())
	}
	return nil
}
