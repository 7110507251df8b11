package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/astralisone/astralis-agency-server-sub001/internal/domain"
	"github.com/astralisone/astralis-agency-server-sub001/internal/provider"
	apperrors "github.com/astralisone/astralis-agency-server-sub001/pkg/errors"
	"github.com/astralisone/astralis-agency-server-sub001/pkg/httpclient"
)

// Base URLs of the PayPal REST API.
const (
	SandboxBaseURL = "https://api-m.sandbox.paypal.com"
	LiveBaseURL    = "https://api-m.paypal.com"
)

const (
	serviceName = "paypal"
	// tokenExpiryMargin refreshes access tokens a little before PayPal expires them.
	tokenExpiryMargin = time.Minute
	maxBodyBytes      = 1 << 20
)

// HTTPDoer is the interface for executing HTTP requests.
// Both httpclient.Client and httpclient.CircuitBreakerClient satisfy this.
type HTTPDoer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Config holds PayPal API credentials.
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	// BrandName is shown on the PayPal approval page.
	BrandName string
}

// Client implements provider.Provider against the PayPal Orders v2 API.
type Client struct {
	cfg    Config
	http   HTTPDoer
	logger *slog.Logger
	now    func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewClient creates a PayPal client. Calls are made through doer, which should
// not retry: order creation and capture are not safe to repeat blindly.
func NewClient(cfg Config, doer HTTPDoer, logger *slog.Logger) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = SandboxBaseURL
	}
	return &Client{
		cfg:    cfg,
		http:   doer,
		logger: logger,
		now:    time.Now,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return serviceName
}

type money struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type orderItem struct {
	Name       string `json:"name"`
	Quantity   string `json:"quantity"`
	UnitAmount money  `json:"unit_amount"`
	SKU        string `json:"sku,omitempty"`
}

type amountBreakdown struct {
	ItemTotal money `json:"item_total"`
}

type purchaseAmount struct {
	money
	Breakdown *amountBreakdown `json:"breakdown,omitempty"`
}

type purchaseUnit struct {
	ReferenceID string         `json:"reference_id,omitempty"`
	Amount      purchaseAmount `json:"amount"`
	Items       []orderItem    `json:"items,omitempty"`
}

type applicationContext struct {
	BrandName          string `json:"brand_name,omitempty"`
	ShippingPreference string `json:"shipping_preference"`
	UserAction         string `json:"user_action"`
}

type createOrderRequest struct {
	Intent             string             `json:"intent"`
	PurchaseUnits      []purchaseUnit     `json:"purchase_units"`
	ApplicationContext applicationContext `json:"application_context"`
}

type link struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type createOrderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []link `json:"links"`
}

type captureResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Payer  struct {
		PayerID string `json:"payer_id"`
	} `json:"payer"`
	PurchaseUnits []struct {
		Payments struct {
			Captures []struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// CreateOrder creates a PayPal order with intent CAPTURE for the given items.
func (c *Client) CreateOrder(ctx context.Context, input *provider.CreateOrderInput) (*provider.CreateOrderResult, error) {
	currency := input.Currency
	if currency == "" {
		currency = domain.CurrencyUSD
	}
	intent := input.Intent
	if intent == "" {
		intent = provider.IntentCapture
	}

	items := make([]orderItem, 0, len(input.Items))
	var itemTotal int64
	for _, item := range input.Items {
		items = append(items, orderItem{
			Name:       truncate(item.Name, 127),
			Quantity:   strconv.Itoa(item.Quantity),
			UnitAmount: money{CurrencyCode: currency, Value: domain.DecimalAmount(item.UnitPrice)},
			SKU:        truncate(item.ID, 127),
		})
		itemTotal += item.UnitPrice * int64(item.Quantity)
	}

	unit := purchaseUnit{
		ReferenceID: input.ReferenceID,
		Amount:      purchaseAmount{money: money{CurrencyCode: currency, Value: domain.DecimalAmount(input.Amount)}},
	}
	// PayPal rejects item lists whose sum differs from the amount.
	if len(items) > 0 && itemTotal == input.Amount {
		unit.Items = items
		unit.Amount.Breakdown = &amountBreakdown{ItemTotal: money{CurrencyCode: currency, Value: domain.DecimalAmount(itemTotal)}}
	}

	body := createOrderRequest{
		Intent:        intent,
		PurchaseUnits: []purchaseUnit{unit},
		ApplicationContext: applicationContext{
			BrandName:          c.cfg.BrandName,
			ShippingPreference: "NO_SHIPPING",
			UserAction:         "PAY_NOW",
		},
	}

	var resp createOrderResponse
	if _, err := c.doJSON(ctx, http.MethodPost, "/v2/checkout/orders", body, &resp); err != nil {
		return nil, fmt.Errorf("paypal create order: %w", err)
	}
	if resp.ID == "" {
		return nil, fmt.Errorf("paypal create order: response has no order id")
	}

	result := &provider.CreateOrderResult{OrderID: resp.ID, Status: resp.Status}
	for _, l := range resp.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			result.ApproveURL = l.Href
			break
		}
	}

	c.logger.InfoContext(ctx, "paypal order created",
		slog.String("order_id", resp.ID),
		slog.String("status", resp.Status),
	)
	return result, nil
}

// CaptureOrder captures an approved PayPal order.
func (c *Client) CaptureOrder(ctx context.Context, orderID string) (*provider.CaptureResult, error) {
	var resp captureResponse
	raw, err := c.doJSON(ctx, http.MethodPost, "/v2/checkout/orders/"+url.PathEscape(orderID)+"/capture", nil, &resp)
	if err != nil {
		return nil, fmt.Errorf("paypal capture order %s: %w", orderID, err)
	}

	result := &provider.CaptureResult{
		OrderID: resp.ID,
		Status:  provider.CaptureStatus(resp.Status),
		PayerID: resp.Payer.PayerID,
		Raw:     raw,
	}
	for _, pu := range resp.PurchaseUnits {
		if caps := pu.Payments.Captures; len(caps) > 0 {
			result.CaptureID = caps[0].ID
			// The order can be COMPLETED while the capture itself is still pending review.
			if result.Status == provider.CaptureCompleted && caps[0].Status != "" && caps[0].Status != string(provider.CaptureCompleted) {
				result.Status = provider.CaptureStatus(caps[0].Status)
			}
			break
		}
	}

	c.logger.InfoContext(ctx, "paypal order captured",
		slog.String("order_id", resp.ID),
		slog.String("status", resp.Status),
		slog.String("capture_id", result.CaptureID),
	)
	return result, nil
}

// doJSON sends an authenticated JSON request and decodes a 2xx body into out.
// It returns the raw response body.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) (json.RawMessage, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	var body io.Reader = http.NoBody
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Prefer", "return=representation")

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return nil, c.transportError(err)
	}
	if resp.StatusCode >= 300 {
		if resp.StatusCode == http.StatusUnauthorized {
			c.invalidateToken()
		}
		return nil, httpclient.ParseResponseError(resp, serviceName)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return raw, nil
}

// accessToken returns a cached OAuth2 client-credentials token, fetching a new
// one when it is missing or about to expire.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return "", fmt.Errorf("paypal token: %w", c.transportError(err))
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("paypal token: %w", httpclient.ParseResponseError(resp, serviceName))
	}
	defer func() { _ = resp.Body.Close() }()

	var tr tokenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&tr); err != nil {
		return "", fmt.Errorf("decode paypal token: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("paypal token: empty access token")
	}

	c.token = tr.AccessToken
	c.tokenExpiry = c.now().Add(time.Duration(tr.ExpiresIn)*time.Second - tokenExpiryMargin)
	return c.token, nil
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

func (c *Client) transportError(err error) error {
	if errors.Is(err, httpclient.ErrCircuitOpen) {
		return apperrors.ServiceUnavailable("payment provider is temporarily unavailable")
	}
	var serverErr *httpclient.ServerError
	if errors.As(err, &serverErr) {
		return fmt.Errorf("%s server error %d: %w", serviceName, serverErr.StatusCode, err)
	}
	return err
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
