package provider

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ms-reservations/internal/logger"
	"ms-reservations/internal/models"
)

// HTTPGateway is a generic HTTPS payment gateway adapter used for
// mobile-money and bank gateways. Requests carry a bearer API key and
// an HMAC-SHA256 body signature; the exact downstream wire format is
// the gateway's concern.
type HTTPGateway struct {
	name    string
	baseURL string
	apiKey  string
	secret  string
	client  *http.Client
	log     *logger.Logger
}

func NewHTTPGateway(name, baseURL, apiKey, secret string, log *logger.Logger) *HTTPGateway {
	return &HTTPGateway{
		name:    name,
		baseURL: baseURL,
		apiKey:  apiKey,
		secret:  secret,
		client:  &http.Client{Timeout: 30 * time.Second},
		log:     log,
	}
}

func (g *HTTPGateway) Name() string {
	return g.name
}

type gatewayDispatchRequest struct {
	Reference string  `json:"reference"`
	Amount    float64 `json:"amount"`
	Currency  string  `json:"currency"`
	Contact   string  `json:"contact"`
	Method    string  `json:"method"`
}

type gatewayDispatchResponse struct {
	TransactionID string            `json:"transaction_id"`
	Status        string            `json:"status"`
	Data          map[string]string `json:"data,omitempty"`
}

func (g *HTTPGateway) sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(g.secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (g *HTTPGateway) Dispatch(ctx context.Context, payment *models.Payment) (*DispatchResult, error) {
	reqBody, err := json.Marshal(gatewayDispatchRequest{
		Reference: payment.Reference,
		Amount:    payment.Amount,
		Currency:  payment.Currency,
		Contact:   payment.Contact,
		Method:    payment.Method,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/collections", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("%s: build dispatch request: %w", g.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("X-Signature", g.sign(reqBody))

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: dispatch request failed: %w", g.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%s: dispatch rejected with status %d: %s", g.name, resp.StatusCode, string(body))
	}

	var gwResp gatewayDispatchResponse
	if err := json.NewDecoder(resp.Body).Decode(&gwResp); err != nil {
		return nil, fmt.Errorf("%s: decode dispatch response: %w", g.name, err)
	}

	g.log.LogPayment("DISPATCH", payment.PaymentID,
		fmt.Sprintf("%s accepted, transaction %s status %s", g.name, gwResp.TransactionID, gwResp.Status))

	return &DispatchResult{
		ExternalReference: gwResp.TransactionID,
		Status:            models.StatusProcessing,
		ProviderData:      gwResp.Data,
	}, nil
}

func (g *HTTPGateway) CheckStatus(ctx context.Context, externalRef string) (models.PaymentStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/collections/"+externalRef, nil)
	if err != nil {
		return "", fmt.Errorf("%s: build status request: %w", g.name, err)
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: status request failed: %w", g.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%s: status check rejected with status %d", g.name, resp.StatusCode)
	}

	var gwResp gatewayDispatchResponse
	if err := json.NewDecoder(resp.Body).Decode(&gwResp); err != nil {
		return "", fmt.Errorf("%s: decode status response: %w", g.name, err)
	}

	switch gwResp.Status {
	case "successful", "completed":
		return models.StatusCompleted, nil
	case "failed", "rejected":
		return models.StatusFailed, nil
	case "cancelled":
		return models.StatusCancelled, nil
	default:
		return models.StatusProcessing, nil
	}
}
