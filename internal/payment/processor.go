package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dtroode/accessgate/internal/model"
)

const (
	chargeStatusPaid = "paid"
	maxChargeBytes   = 1 << 20
)

// Charge is a one-time payment as reported by the processor.
type Charge struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Status      string    `json:"status"`
	AccessUntil time.Time `json:"access_until"`
	PaidAt      time.Time `json:"paid_at"`
}

// Paid reports whether the processor captured the charge.
func (c Charge) Paid() bool {
	return c.Status == chargeStatusPaid
}

// Processor is an HTTP client for the payment processor API.
type Processor struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewProcessor creates a processor client. An empty baseURL yields a client
// whose calls fail with ErrPaymentNotConfigured.
func NewProcessor(baseURL, apiKey string, timeout time.Duration) *Processor {
	return &Processor{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// GetCharge fetches a charge by id.
func (p *Processor) GetCharge(ctx context.Context, chargeID string) (Charge, error) {
	if p.baseURL == "" {
		return Charge{}, model.ErrPaymentNotConfigured
	}

	endpoint := p.baseURL + "/v1/charges/" + url.PathEscape(chargeID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Charge{}, fmt.Errorf("failed to build charge request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return Charge{}, fmt.Errorf("failed to request charge: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Charge{}, model.ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return Charge{}, fmt.Errorf("processor returned status %d", resp.StatusCode)
	}

	var charge Charge
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxChargeBytes)).Decode(&charge); err != nil {
		return Charge{}, fmt.Errorf("failed to decode charge: %w", err)
	}
	return charge, nil
}
