package supplier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/manavault/backend/internal/domain/procurement"
	"go.uber.org/zap"
)

// EzCardsClient talks to the asynchronous supplier. Orders are accepted with a
// transaction id and codes are collected later.
type EzCardsClient struct {
	config    EzCardsConfig
	transport *transport
}

// NewEzCardsClient creates a new client after validating the configuration
func NewEzCardsClient(config EzCardsConfig, logger *zap.Logger) (*EzCardsClient, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	headers := map[string]string{
		"Authorization": "Bearer " + config.AccessToken,
		"X-Api-Key":     config.APIKey,
	}
	return &EzCardsClient{
		config:    config,
		transport: newTransport(procurement.SupplierSlugEzCards, config.BaseURL, config.TimeoutSeconds, config.Retry, headers, logger),
	}, nil
}

// SetObserver attaches a request observer used for metrics
func (c *EzCardsClient) SetObserver(o RequestObserver) {
	c.transport.observer = o
}

type ezOrderProduct struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

type ezPlaceOrderRequest struct {
	ClientOrderNumber string           `json:"clientOrderNumber"`
	Products          []ezOrderProduct `json:"products"`
}

type ezOrderProductResult struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
	Status   string `json:"status"`
}

type ezPlaceOrderResponse struct {
	TransactionID flexibleID             `json:"transactionId"`
	Status        string                 `json:"status"`
	Products      []ezOrderProductResult `json:"products"`
}

type ezCode struct {
	StockID    flexibleID `json:"stockId"`
	Status     string     `json:"status"`
	RedeemCode string     `json:"redeemCode"`
	PinCode    string     `json:"pinCode"`
}

type ezCodesItem struct {
	SKU   string   `json:"sku"`
	Codes []ezCode `json:"codes"`
}

type ezCodesResponse struct {
	Items []ezCodesItem `json:"items"`
}

// PlaceOrder submits all lines in one request
func (c *EzCardsClient) PlaceOrder(ctx context.Context, items []procurement.OrderLine, orderNumber string) (*procurement.AsyncOrderResult, error) {
	if len(items) == 0 {
		return nil, errors.New("ezcards: at least one order line is required")
	}
	req := ezPlaceOrderRequest{
		ClientOrderNumber: orderNumber,
		Products:          make([]ezOrderProduct, 0, len(items)),
	}
	for _, item := range items {
		req.Products = append(req.Products, ezOrderProduct{SKU: item.SKU, Quantity: item.Quantity})
	}

	var resp ezPlaceOrderResponse
	if err := c.transport.do(ctx, "place_order", http.MethodPost, "/v2/orders", req, &resp); err != nil {
		return nil, err
	}

	txID := strings.TrimSpace(string(resp.TransactionID))
	if len(txID) > procurement.MaxSupplierReferenceLength {
		return nil, c.oversized("place_order", "transaction id", len(txID))
	}
	result := &procurement.AsyncOrderResult{
		TransactionID: txID,
		Status:        strings.ToUpper(resp.Status),
		LineResults:   make([]procurement.OrderLineResult, 0, len(resp.Products)),
	}
	for _, p := range resp.Products {
		result.LineResults = append(result.LineResults, procurement.OrderLineResult{
			SKU:      p.SKU,
			Quantity: p.Quantity,
			Status:   strings.ToUpper(p.Status),
		})
	}
	return result, nil
}

// FetchVoucherCodes returns the current code state for a transaction
func (c *EzCardsClient) FetchVoucherCodes(ctx context.Context, transactionID string) (*procurement.VoucherCodesResult, error) {
	if strings.TrimSpace(transactionID) == "" {
		return nil, errors.New("ezcards: transaction id is required")
	}
	path := fmt.Sprintf("/v2/orders/%s/codes", url.PathEscape(transactionID))

	var resp ezCodesResponse
	if err := c.transport.do(ctx, "fetch_codes", http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	result := &procurement.VoucherCodesResult{Items: make([]procurement.VoucherCodesLine, 0, len(resp.Items))}
	for _, item := range resp.Items {
		line := procurement.VoucherCodesLine{SKU: item.SKU, Codes: make([]procurement.VoucherCodeEntry, 0, len(item.Codes))}
		for _, code := range item.Codes {
			if len(code.StockID) > procurement.MaxSupplierReferenceLength {
				return nil, c.oversized("fetch_codes", "stock id", len(code.StockID))
			}
			line.Codes = append(line.Codes, procurement.VoucherCodeEntry{
				StockID:    string(code.StockID),
				Status:     strings.ToUpper(code.Status),
				RedeemCode: code.RedeemCode,
				PinCode:    code.PinCode,
			})
		}
		result.Items = append(result.Items, line)
	}
	return result, nil
}

// oversized reports an identifier too long to store. Asking again returns the same value.
func (c *EzCardsClient) oversized(operation, field string, n int) *RequestFailedError {
	return &RequestFailedError{
		Supplier:   procurement.SupplierSlugEzCards,
		Operation:  operation,
		StatusCode: http.StatusOK,
		Attempts:   1,
		Permanent:  true,
		Err:        fmt.Errorf("%s is %d bytes, limit is %d", field, n, procurement.MaxSupplierReferenceLength),
	}
}

var _ procurement.AsyncSupplierClient = (*EzCardsClient)(nil)
