package payout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ajoflow/coop-core/internal/domain"
	"github.com/ajoflow/coop-core/internal/logging"
)

// GatewayClient submits payout instructions to the external payment
// gateway over HTTP.
type GatewayClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewGatewayClient(baseURL string) *GatewayClient {
	return &GatewayClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

type gatewayPayload struct {
	IntentID    string `json:"intent_id"`
	Kind        string `json:"kind"`
	Amount      int64  `json:"amount"`
	Destination string `json:"destination"`
}

type gatewayResponse struct {
	Reference string `json:"reference"`
}

// Submit sends one intent to the gateway and returns the gateway's
// reference for it. IntentID doubles as the idempotency key, so a retried
// submission of the same intent is safe.
func (c *GatewayClient) Submit(ctx context.Context, intent domain.PayoutIntent) (string, error) {
	log := logging.FromContext(ctx)

	payload := gatewayPayload{
		IntentID:    intent.ID.String(),
		Kind:        string(intent.Kind),
		Amount:      intent.Amount,
		Destination: intent.Destination,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("Submit: marshal: %w", err)
	}

	url := c.baseURL + "/v1/payouts"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("Submit: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", intent.ID.String())

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("Submit: send: %w", err)
	}
	defer resp.Body.Close()

	log.Info("gateway response received",
		"intent_id", intent.ID,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("Submit: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var gw gatewayResponse
	if err := json.NewDecoder(resp.Body).Decode(&gw); err != nil {
		return "", fmt.Errorf("Submit: decode: %w", err)
	}
	return gw.Reference, nil
}
