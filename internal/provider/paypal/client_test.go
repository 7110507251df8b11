package paypal

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astralisone/astralis-agency-server-sub001/internal/provider"
	apperrors "github.com/astralisone/astralis-agency-server-sub001/pkg/errors"
	"github.com/astralisone/astralis-agency-server-sub001/pkg/httpclient"
)

type fakePayPal struct {
	tokenCalls   atomic.Int32
	createCalls  atomic.Int32
	captureCalls atomic.Int32
	lastCreate   createOrderRequest

	createStatus  int
	createBody    string
	captureStatus int
	captureBody   string
}

func (f *fakePayPal) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client-id" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"name":"AUTHENTICATION_FAILURE","message":"bad client"}`)
			return
		}
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		_, _ = io.WriteString(w, `{"access_token":"tok-1","token_type":"Bearer","expires_in":32400}`)
	})
	mux.HandleFunc("POST /v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
		f.createCalls.Add(1)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&f.lastCreate))
		w.WriteHeader(f.createStatus)
		_, _ = io.WriteString(w, f.createBody)
	})
	mux.HandleFunc("POST /v2/checkout/orders/{id}/capture", func(w http.ResponseWriter, r *http.Request) {
		f.captureCalls.Add(1)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		w.WriteHeader(f.captureStatus)
		_, _ = io.WriteString(w, f.captureBody)
	})
	return mux
}

func newFake() *fakePayPal {
	return &fakePayPal{
		createStatus: http.StatusCreated,
		createBody: `{"id":"ORDER1","status":"CREATED","links":[
			{"href":"https://api.sandbox.paypal.com/v2/checkout/orders/ORDER1","rel":"self"},
			{"href":"https://www.sandbox.paypal.com/checkoutnow?token=ORDER1","rel":"approve"}]}`,
		captureStatus: http.StatusCreated,
		captureBody: `{"id":"ORDER1","status":"COMPLETED","payer":{"payer_id":"PAYER1"},
			"purchase_units":[{"payments":{"captures":[{"id":"CAP1","status":"COMPLETED"}]}}]}`,
	}
}

func newTestClient(t *testing.T, fake *fakePayPal, secret string) *Client {
	t.Helper()
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	doer := httpclient.New(httpclient.NoRetryConfig(5 * time.Second))
	return NewClient(Config{BaseURL: srv.URL + "/", ClientID: "client-id", ClientSecret: secret, BrandName: "Astralis"},
		doer, slog.New(slog.DiscardHandler))
}

func orderInput() *provider.CreateOrderInput {
	return &provider.CreateOrderInput{
		ReferenceID: "att-1",
		Items: []provider.OrderItem{
			{ID: "a", Name: "Logo pack", Quantity: 3, UnitPrice: 1000},
		},
		Amount:   3000,
		Currency: "USD",
		Intent:   provider.IntentCapture,
	}
}

func TestCreateOrder_Success(t *testing.T) {
	fake := newFake()
	c := newTestClient(t, fake, "secret")

	res, err := c.CreateOrder(context.Background(), orderInput())
	require.NoError(t, err)
	assert.Equal(t, "ORDER1", res.OrderID)
	assert.Equal(t, "CREATED", res.Status)
	assert.Equal(t, "https://www.sandbox.paypal.com/checkoutnow?token=ORDER1", res.ApproveURL)

	req := fake.lastCreate
	assert.Equal(t, "CAPTURE", req.Intent)
	require.Len(t, req.PurchaseUnits, 1)
	pu := req.PurchaseUnits[0]
	assert.Equal(t, "att-1", pu.ReferenceID)
	assert.Equal(t, money{CurrencyCode: "USD", Value: "30.00"}, pu.Amount.money)
	require.NotNil(t, pu.Amount.Breakdown)
	assert.Equal(t, "30.00", pu.Amount.Breakdown.ItemTotal.Value)
	require.Len(t, pu.Items, 1)
	assert.Equal(t, "3", pu.Items[0].Quantity)
	assert.Equal(t, "10.00", pu.Items[0].UnitAmount.Value)
	assert.Equal(t, "Astralis", req.ApplicationContext.BrandName)
}

func TestCreateOrder_ItemMismatchOmitsBreakdown(t *testing.T) {
	fake := newFake()
	c := newTestClient(t, fake, "secret")

	in := orderInput()
	in.Amount = 2500
	_, err := c.CreateOrder(context.Background(), in)
	require.NoError(t, err)

	pu := fake.lastCreate.PurchaseUnits[0]
	assert.Empty(t, pu.Items)
	assert.Nil(t, pu.Amount.Breakdown)
	assert.Equal(t, "25.00", pu.Amount.Value)
}

func TestCreateOrder_ReusesToken(t *testing.T) {
	fake := newFake()
	c := newTestClient(t, fake, "secret")

	for range 3 {
		_, err := c.CreateOrder(context.Background(), orderInput())
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), fake.tokenCalls.Load())
	assert.Equal(t, int32(3), fake.createCalls.Load())
}

func TestCreateOrder_RefreshesExpiredToken(t *testing.T) {
	fake := newFake()
	c := newTestClient(t, fake, "secret")
	now := time.Now()
	c.now = func() time.Time { return now }

	_, err := c.CreateOrder(context.Background(), orderInput())
	require.NoError(t, err)

	now = now.Add(10 * time.Hour)
	_, err = c.CreateOrder(context.Background(), orderInput())
	require.NoError(t, err)
	assert.Equal(t, int32(2), fake.tokenCalls.Load())
}

func TestCreateOrder_BadCredentials(t *testing.T) {
	fake := newFake()
	c := newTestClient(t, fake, "wrong")

	_, err := c.CreateOrder(context.Background(), orderInput())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	assert.Zero(t, fake.createCalls.Load())
}

func TestCreateOrder_ValidationError(t *testing.T) {
	fake := newFake()
	fake.createStatus = http.StatusUnprocessableEntity
	fake.createBody = `{"name":"UNPROCESSABLE_ENTITY","message":"The requested action could not be performed",
		"details":[{"issue":"ITEM_TOTAL_MISMATCH","description":"Should equal item_total."}],"debug_id":"abc123"}`
	c := newTestClient(t, fake, "secret")

	_, err := c.CreateOrder(context.Background(), orderInput())
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "ITEM_TOTAL_MISMATCH", appErr.Code)
	assert.Contains(t, appErr.Message, "abc123")
}

func TestCreateOrder_NoRetryOnServerError(t *testing.T) {
	fake := newFake()
	fake.createStatus = http.StatusInternalServerError
	fake.createBody = `{"name":"INTERNAL_SERVER_ERROR","message":"boom"}`
	c := newTestClient(t, fake, "secret")

	_, err := c.CreateOrder(context.Background(), orderInput())
	require.Error(t, err)
	assert.Equal(t, int32(1), fake.createCalls.Load())
}

func TestCreateOrder_MissingID(t *testing.T) {
	fake := newFake()
	fake.createBody = `{"status":"CREATED"}`
	c := newTestClient(t, fake, "secret")

	_, err := c.CreateOrder(context.Background(), orderInput())
	assert.ErrorContains(t, err, "no order id")
}

func TestCaptureOrder_Completed(t *testing.T) {
	fake := newFake()
	c := newTestClient(t, fake, "secret")

	res, err := c.CaptureOrder(context.Background(), "ORDER1")
	require.NoError(t, err)
	require.NoError(t, res.Validate("ORDER1"))
	assert.True(t, res.Completed())
	assert.Equal(t, "CAP1", res.CaptureID)
	assert.Equal(t, "PAYER1", res.PayerID)
	assert.Contains(t, string(res.Raw), `"payer_id":"PAYER1"`)
}

func TestCaptureOrder_CapturePendingReview(t *testing.T) {
	fake := newFake()
	fake.captureBody = `{"id":"ORDER1","status":"COMPLETED","purchase_units":[{"payments":{"captures":[{"id":"CAP1","status":"PENDING"}]}}]}`
	c := newTestClient(t, fake, "secret")

	res, err := c.CaptureOrder(context.Background(), "ORDER1")
	require.NoError(t, err)
	assert.Equal(t, provider.CapturePending, res.Status)
	assert.False(t, res.Completed())
}

func TestCaptureOrder_Declined(t *testing.T) {
	fake := newFake()
	fake.captureStatus = http.StatusUnprocessableEntity
	fake.captureBody = `{"name":"UNPROCESSABLE_ENTITY","details":[{"issue":"INSTRUMENT_DECLINED"}],"message":"declined"}`
	c := newTestClient(t, fake, "secret")

	_, err := c.CaptureOrder(context.Background(), "ORDER1")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrPaymentFailed)
	assert.Equal(t, int32(1), fake.captureCalls.Load())
}

func TestCaptureOrder_NetworkError(t *testing.T) {
	fake := newFake()
	c := newTestClient(t, fake, "secret")
	c.cfg.BaseURL = "http://127.0.0.1:1"

	_, err := c.CaptureOrder(context.Background(), "ORDER1")
	require.Error(t, err)
}

func TestCaptureOrder_CircuitOpen(t *testing.T) {
	fake := newFake()
	fake.captureStatus = http.StatusServiceUnavailable
	fake.captureBody = `oops`
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	cbCfg := httpclient.DefaultCircuitBreakerConfig("paypal-test")
	cbCfg.MinRequests = 2
	cbCfg.FailureRatio = 0.5
	cb := httpclient.NewCircuitBreakerClient(httpclient.New(httpclient.NoRetryConfig(time.Second)), cbCfg, slog.New(slog.DiscardHandler))
	c := NewClient(Config{BaseURL: srv.URL, ClientID: "client-id", ClientSecret: "secret"}, cb, slog.New(slog.DiscardHandler))

	for range 3 {
		_, _ = c.CaptureOrder(context.Background(), "ORDER1")
	}
	_, err := c.CaptureOrder(context.Background(), "ORDER1")
	assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(Config{}, httpclient.New(httpclient.DefaultConfig()), slog.New(slog.DiscardHandler))
	assert.Equal(t, "paypal", c.Name())
	assert.Equal(t, SandboxBaseURL, c.cfg.BaseURL)
}

func TestTruncate_KeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 127))
	assert.Equal(t, "Caf", truncate("Café crème", 3))
	assert.Equal(t, "Café", truncate("Café crème", 4))

	got := truncate("東京タワーの置物", 3)
	assert.Equal(t, "東京タ", got)
	assert.True(t, utf8.ValidString(got))
}
