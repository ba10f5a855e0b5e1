package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/vala/car-rental-reservation/internal/model"
)

const (
	paypalSandboxBaseURL = "https://api-m.sandbox.paypal.com"
	paypalLiveBaseURL    = "https://api-m.paypal.com"
	paypalTokenPath      = "/v1/oauth2/token"
	paypalOrdersPath     = "/v2/checkout/orders"
	paypalCapturePath    = "/v2/checkout/orders/%s/capture"
)

// PayPalConfig holds REST API credentials.
type PayPalConfig struct {
	ClientID     string
	ClientSecret string
	// Mode is "sandbox" or "live".
	Mode string
	// BaseURL overrides the URL derived from Mode.
	BaseURL   string
	BrandName string
}

var (
	ErrPayPalMissingClientID     = errors.New("paypal: missing client id")
	ErrPayPalMissingClientSecret = errors.New("paypal: missing client secret")
	ErrPayPalInvalidMode         = errors.New("paypal: mode must be sandbox or live")
)

// Validate checks the configuration.
func (c *PayPalConfig) Validate() error {
	if c.ClientID == "" {
		return ErrPayPalMissingClientID
	}
	if c.ClientSecret == "" {
		return ErrPayPalMissingClientSecret
	}
	switch c.Mode {
	case "", "sandbox", "live":
	default:
		return ErrPayPalInvalidMode
	}
	return nil
}

func (c *PayPalConfig) baseURL() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	if c.Mode == "live" {
		return paypalLiveBaseURL
	}
	return paypalSandboxBaseURL
}

// PayPalProvider talks to the PayPal Orders v2 API.
type PayPalProvider struct {
	config     PayPalConfig
	httpClient *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewPayPalProvider validates cfg and builds the adapter.  A nil client
// gets a 30s timeout client.
func NewPayPalProvider(cfg PayPalConfig, client *http.Client) (*PayPalProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &PayPalProvider{config: cfg, httpClient: client}, nil
}

func (p *PayPalProvider) Method() model.PaymentMethod { return model.PaymentMethodPayPal }

type paypalAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type paypalPurchaseUnit struct {
	ReferenceID string       `json:"reference_id,omitempty"`
	Description string       `json:"description,omitempty"`
	Amount      paypalAmount `json:"amount"`
}

type paypalAppContext struct {
	ReturnURL  string `json:"return_url"`
	CancelURL  string `json:"cancel_url"`
	BrandName  string `json:"brand_name,omitempty"`
	UserAction string `json:"user_action"`
}

type paypalCreateOrder struct {
	Intent             string               `json:"intent"`
	PurchaseUnits      []paypalPurchaseUnit `json:"purchase_units"`
	ApplicationContext paypalAppContext     `json:"application_context"`
}

type paypalLink struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method"`
}

type paypalOrder struct {
	ID            string       `json:"id"`
	Status        string       `json:"status"`
	Links         []paypalLink `json:"links"`
	PurchaseUnits []struct {
		Payments struct {
			Captures []struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

type paypalErrorResponse struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Details []struct {
		Issue       string `json:"issue"`
		Description string `json:"description"`
	} `json:"details"`
	// OAuth errors use a different shape.
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// CreateOrder creates a CAPTURE intent order and returns its id and the
// URL the payer must visit to approve it.
func (p *PayPalProvider) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	body := paypalCreateOrder{
		Intent: "CAPTURE",
		PurchaseUnits: []paypalPurchaseUnit{{
			ReferenceID: strconv.FormatUint(req.ReservationID, 10),
			Description: req.Description,
			Amount: paypalAmount{
				CurrencyCode: req.Currency,
				Value:        req.Amount.StringFixed(2),
			},
		}},
		ApplicationContext: paypalAppContext{
			ReturnURL:  req.ReturnURL,
			CancelURL:  req.CancelURL,
			BrandName:  p.config.BrandName,
			UserAction: "PAY_NOW",
		},
	}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("paypal: failed to marshal request: %w", err)
	}

	respBody, err := p.doRequest(ctx, http.MethodPost, paypalOrdersPath, bodyBytes)
	if err != nil {
		return nil, err
	}
	var order paypalOrder
	if err := json.Unmarshal(respBody, &order); err != nil {
		return nil, fmt.Errorf("paypal: failed to parse response: %w", err)
	}
	if order.ID == "" {
		return nil, &ProviderError{StatusCode: http.StatusOK, Message: "order id missing from response", Err: ErrProviderRejected}
	}

	out := &Order{TransactionID: order.ID, Status: order.Status}
	for _, l := range order.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			out.ApprovalURL = l.Href
			break
		}
	}
	if out.ApprovalURL == "" {
		return nil, &ProviderError{StatusCode: http.StatusOK, Message: "approval link missing from response", Err: ErrProviderRejected}
	}
	return out, nil
}

// CaptureOrder captures an approved order.
func (p *PayPalProvider) CaptureOrder(ctx context.Context, transactionID string) (*Capture, error) {
	if transactionID == "" {
		return nil, &ProviderError{StatusCode: http.StatusNotFound, Message: "empty order id", Err: ErrOrderNotFound}
	}
	path := fmt.Sprintf(paypalCapturePath, url.PathEscape(transactionID))
	respBody, err := p.doRequest(ctx, http.MethodPost, path, []byte("{}"))
	if err != nil {
		return nil, err
	}
	var order paypalOrder
	if err := json.Unmarshal(respBody, &order); err != nil {
		return nil, fmt.Errorf("paypal: failed to parse response: %w", err)
	}
	if order.Status != "COMPLETED" {
		return nil, &ProviderError{StatusCode: http.StatusOK, Message: "order status " + order.Status, Err: ErrProviderRejected}
	}
	out := &Capture{TransactionID: order.ID, Status: order.Status}
	for _, pu := range order.PurchaseUnits {
		for _, c := range pu.Payments.Captures {
			out.CaptureID = c.ID
		}
	}
	return out, nil
}

func (p *PayPalProvider) token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.accessToken != "" && time.Now().Before(p.tokenExpiry) {
		return p.accessToken, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.baseURL()+paypalTokenPath, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("paypal: failed to create token request: %w", err)
	}
	req.SetBasicAuth(p.config.ClientID, p.config.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	respBody, err := p.send(req)
	if err != nil {
		// Credential problems are ours, not the payer's.
		var pe *ProviderError
		if errors.As(err, &pe) {
			pe.Err = ErrProviderUnavailable
		}
		return "", err
	}
	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(respBody, &tok); err != nil || tok.AccessToken == "" {
		return "", &ProviderError{StatusCode: http.StatusOK, Message: "invalid token response", Err: ErrProviderUnavailable}
	}
	ttl := time.Duration(tok.ExpiresIn) * time.Second
	if ttl > time.Minute {
		ttl -= time.Minute
	}
	p.accessToken = tok.AccessToken
	p.tokenExpiry = time.Now().Add(ttl)
	return p.accessToken, nil
}

func (p *PayPalProvider) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	tok, err := p.token(ctx)
	if err != nil {
		return nil, err
	}
	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.config.baseURL()+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("paypal: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+tok)
	return p.send(req)
}

func (p *PayPalProvider) send(req *http.Request) ([]byte, error) {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrProviderUnavailable, err)
	}
	if resp.StatusCode >= 400 {
		return nil, parsePayPalError(resp.StatusCode, respBody)
	}
	return respBody, nil
}

func parsePayPalError(status int, body []byte) *ProviderError {
	pe := &ProviderError{StatusCode: status, Message: http.StatusText(status)}
	var er paypalErrorResponse
	if err := json.Unmarshal(body, &er); err == nil {
		switch {
		case len(er.Details) > 0:
			pe.Issue = er.Details[0].Issue
			pe.Message = er.Details[0].Description
		case er.Message != "":
			pe.Issue = er.Name
			pe.Message = er.Message
		case er.ErrorDescription != "":
			pe.Issue = er.Error
			pe.Message = er.ErrorDescription
		}
	}

	switch {
	case pe.Issue == "ORDER_ALREADY_CAPTURED":
		pe.Err = ErrOrderAlreadyCaptured
	case pe.Issue == "ORDER_EXPIRED":
		pe.Err = ErrOrderExpired
	case pe.Issue == "ORDER_NOT_APPROVED" || pe.Issue == "PAYER_ACTION_REQUIRED":
		pe.Err = ErrOrderNotApproved
	case status == http.StatusNotFound || pe.Issue == "INVALID_RESOURCE_ID" || pe.Issue == "RESOURCE_NOT_FOUND":
		pe.Err = ErrOrderNotFound
	case status >= 500 || status == http.StatusTooManyRequests:
		pe.Err = ErrProviderUnavailable
	default:
		pe.Err = ErrProviderRejected
	}
	return pe
}
