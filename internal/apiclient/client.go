package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jogardn/offer-configurator/internal/catalog"
	"github.com/jogardn/offer-configurator/pkg/models"
)

// APIError is a non-2xx answer from the offer service.
type APIError struct {
	StatusCode int
	Message    string
	Details    map[string]string
}

func (e *APIError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("offer service returned %d: %s %v", e.StatusCode, e.Message, e.Details)
	}
	return fmt.Sprintf("offer service returned %d: %s", e.StatusCode, e.Message)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
}

func New(baseURL string, logger *logrus.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

func (c *Client) Vehicles(ctx context.Context) ([]catalog.Vehicle, error) {
	var vehicles []catalog.Vehicle
	if err := c.get(ctx, "/api/catalog/vehicles", &vehicles); err != nil {
		return nil, err
	}
	return vehicles, nil
}

// Items fetches one of the code/name/price lists: colors, upholsteries,
// factory-options or accessories.
func (c *Client) Items(ctx context.Context, kind string) ([]catalog.Item, error) {
	switch kind {
	case "colors", "upholsteries", "factory-options", "accessories":
	default:
		return nil, fmt.Errorf("unknown catalog list %q", kind)
	}

	var items []catalog.Item
	if err := c.get(ctx, "/api/catalog/"+kind, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (c *Client) SubmitOffer(ctx context.Context, cfg models.Configuration) (*models.OfferResponse, error) {
	c.logger.WithField("vehicle_id", cfg.VehicleID).Info("Submitting offer to offer service")

	jsonData, err := json.Marshal(models.OfferRequest{Configuration: cfg})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal offer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/offers", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var offerResp models.OfferResponse
	if err := c.do(req, http.StatusCreated, &offerResp); err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"offer_id":    offerResp.OfferID,
		"total_price": offerResp.TotalPrice,
	}).Info("Offer accepted by offer service")

	return &offerResp, nil
}

func (c *Client) HealthCheck(ctx context.Context) error {
	var body map[string]string
	return c.get(ctx, "/health", &body)
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, http.StatusOK, out)
}

func (c *Client) do(req *http.Request, want int, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to offer service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		var errBody struct {
			Message string            `json:"message"`
			Details map[string]string `json:"details"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&errBody); err != nil {
			errBody.Message = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: errBody.Message, Details: errBody.Details}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode offer service response: %w", err)
	}
	return nil
}
