package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"contactpay/internal/config"

	"github.com/go-resty/resty/v2"
)

// Canonical outcome vocabulary. Everything the provider reports is mapped
// into one of these before any state machine decision is made.
const (
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
	StatusPending = "PENDING"
)

var (
	// ErrGatewayUnavailable covers transport failures, timeouts and 5xx.
	// Retryable; the payment stays where it was.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	// ErrGatewayRejected means the provider declined the intent outright.
	ErrGatewayRejected = errors.New("payment gateway rejected the request")
)

type InitiateRequest struct {
	Reference   string
	Amount      int64
	Currency    string
	Description string
	Customer    Customer
	NotifyURL   string
	ReturnURL   string
}

type Customer struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

type InitiateResult struct {
	PaymentURL    string
	PaymentToken  string
	ExternalTxnID string
}

type VerifyResult struct {
	Status  string // canonical: SUCCESS / FAILED / PENDING
	Code    string // provider code, kept for logging
	Amount  int64
	RawData json.RawMessage
}

// Client is the boundary to the external payment provider. It holds no
// local state; every call is a fresh HTTP exchange.
type Client interface {
	Initiate(ctx context.Context, req *InitiateRequest) (*InitiateResult, error)
	Verify(ctx context.Context, externalTxnID string) (*VerifyResult, error)
}

type httpClient struct {
	rest   *resty.Client
	apiKey string
	siteID string
}

// NewHTTPClient builds the production client. The verify timeout bounds
// every call; a timed-out verify is reported as ErrGatewayUnavailable and
// must be treated as ambiguous by the caller, never as a failed payment.
func NewHTTPClient(cfg *config.GatewayConfig) Client {
	rest := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(time.Duration(cfg.VerifyTimeoutSeconds) * time.Second).
		SetHeader("Content-Type", "application/json")

	return &httpClient{
		rest:   rest,
		apiKey: cfg.APIKey,
		siteID: cfg.SiteID,
	}
}

type initiateAPIResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		PaymentURL    string `json:"payment_url"`
		PaymentToken  string `json:"payment_token"`
		TransactionID string `json:"transaction_id"`
	} `json:"data"`
}

func (c *httpClient) Initiate(ctx context.Context, req *InitiateRequest) (*InitiateResult, error) {
	body := map[string]interface{}{
		"apikey":         c.apiKey,
		"site_id":        c.siteID,
		"transaction_id": req.Reference,
		"amount":         req.Amount,
		"currency":       req.Currency,
		"description":    req.Description,
		"customer_name":  req.Customer.Name,
		"customer_phone": req.Customer.Phone,
		"customer_email": req.Customer.Email,
		"notify_url":     req.NotifyURL,
		"return_url":     req.ReturnURL,
	}

	var parsed initiateAPIResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&parsed).
		Post("/v2/payment")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	if resp.StatusCode() >= 500 {
		return nil, fmt.Errorf("%w: status %d", ErrGatewayUnavailable, resp.StatusCode())
	}
	if resp.StatusCode() >= 400 || !isAcceptedCode(parsed.Code) {
		return nil, fmt.Errorf("%w: code=%s message=%s", ErrGatewayRejected, parsed.Code, parsed.Message)
	}

	externalID := parsed.Data.TransactionID
	if externalID == "" {
		externalID = req.Reference
	}

	return &InitiateResult{
		PaymentURL:    parsed.Data.PaymentURL,
		PaymentToken:  parsed.Data.PaymentToken,
		ExternalTxnID: externalID,
	}, nil
}

type verifyAPIResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Status string `json:"status"`
		Amount int64  `json:"amount"`
	} `json:"data"`
}

// Verify asks the provider for the authoritative state of a transaction.
// This is the single source of truth, more trusted than any webhook body.
func (c *httpClient) Verify(ctx context.Context, externalTxnID string) (*VerifyResult, error) {
	body := map[string]interface{}{
		"apikey":         c.apiKey,
		"site_id":        c.siteID,
		"transaction_id": externalTxnID,
	}

	raw := json.RawMessage{}
	var parsed verifyAPIResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(body).
		Post("/v2/payment/check")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	if resp.StatusCode() >= 500 {
		return nil, fmt.Errorf("%w: status %d", ErrGatewayUnavailable, resp.StatusCode())
	}
	raw = append(raw, resp.Body()...)
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, fmt.Errorf("%w: unreadable verify response: %v", ErrGatewayUnavailable, err)
	}

	return &VerifyResult{
		Status:  MapProviderStatus(parsed.Code, parsed.Data.Status),
		Code:    parsed.Code,
		Amount:  parsed.Data.Amount,
		RawData: raw,
	}, nil
}

func isAcceptedCode(code string) bool {
	switch code {
	case "00", "201", "CREATED", "OPERATION_SUCCES":
		return true
	}
	return false
}

// MapProviderStatus folds the provider's code/status pair into the
// canonical vocabulary. Unknown values map to PENDING: an unrecognized
// answer is ambiguous, not a failure.
func MapProviderStatus(code, status string) string {
	switch status {
	case "ACCEPTED", "SUCCES", "SUCCESS", "COMPLETED":
		return StatusSuccess
	case "REFUSED", "DECLINED", "FAILED", "CANCELED", "CANCELLED":
		return StatusFailed
	case "PENDING", "WAITING_FOR_CUSTOMER", "WAITING_CUSTOMER_PAYMENT", "CREATED":
		return StatusPending
	}
	switch code {
	case "00":
		return StatusSuccess
	case "600", "627", "REFUSED":
		return StatusFailed
	}
	return StatusPending
}
