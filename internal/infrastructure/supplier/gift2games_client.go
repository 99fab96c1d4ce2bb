package supplier

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/manavault/backend/internal/domain/procurement"
	"go.uber.org/zap"
)

// Gift2GamesClient talks to the synchronous supplier. Each call buys one unit
// and returns its code in the response.
type Gift2GamesClient struct {
	config    Gift2GamesConfig
	transport *transport
}

// NewGift2GamesClient creates a new client after validating the configuration
func NewGift2GamesClient(config Gift2GamesConfig, logger *zap.Logger) (*Gift2GamesClient, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	headers := map[string]string{
		"X-Api-Key":    config.APIKey,
		"X-Api-Secret": config.APISecret,
	}
	return &Gift2GamesClient{
		config:    config,
		transport: newTransport(procurement.SupplierSlugGift2Games, config.BaseURL, config.TimeoutSeconds, config.Retry, headers, logger),
	}, nil
}

// SetObserver attaches a request observer used for metrics
func (c *Gift2GamesClient) SetObserver(o RequestObserver) {
	c.transport.observer = o
}

type g2gOrderRequest struct {
	ProductID       string `json:"productId"`
	Quantity        int    `json:"quantity"`
	ReferenceNumber string `json:"referenceNumber"`
}

type g2gOrderResponse struct {
	Code         string `json:"code"`
	SerialNumber string `json:"serialNumber"`
	PinCode      string `json:"pinCode"`
}

// PlaceOrder buys a single unit. Quantity values other than 1 are rejected.
func (c *Gift2GamesClient) PlaceOrder(ctx context.Context, sku string, quantity int, referenceNumber string) (*procurement.UnitVoucher, error) {
	if strings.TrimSpace(sku) == "" {
		return nil, errors.New("gift2games: sku is required")
	}
	if quantity != 1 {
		return nil, errors.New("gift2games: only single-unit orders are supported")
	}

	req := g2gOrderRequest{ProductID: sku, Quantity: quantity, ReferenceNumber: referenceNumber}
	var resp g2gOrderResponse
	if err := c.transport.do(ctx, "place_order", http.MethodPost, "/api/v1/orders", req, &resp); err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp.Code) == "" {
		return nil, &RequestFailedError{
			Supplier:   procurement.SupplierSlugGift2Games,
			Operation:  "place_order",
			StatusCode: http.StatusOK,
			Attempts:   1,
			Err:        errors.New("response did not contain a voucher code"),
		}
	}
	return &procurement.UnitVoucher{
		Code:         resp.Code,
		SerialNumber: resp.SerialNumber,
		PinCode:      resp.PinCode,
	}, nil
}

var _ procurement.SyncSupplierClient = (*Gift2GamesClient)(nil)
