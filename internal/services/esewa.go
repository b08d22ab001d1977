package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/whristorium/backend/internal/config"
	"github.com/whristorium/backend/internal/utils"
)

const (
	esewaStatusComplete = "COMPLETE"

	esewaRequestSignedFields = "total_amount,transaction_uuid,product_code"
)

var (
	// ErrEsewaSignature is returned when a callback signature does not match.
	ErrEsewaSignature = errors.New("esewa: signature mismatch")
	// ErrEsewaPayload is returned when a callback payload cannot be decoded.
	ErrEsewaPayload = errors.New("esewa: malformed payload")
)

// EsewaClient signs outbound payment requests, verifies callbacks and
// queries transaction status for the eSewa ePay v2 gateway.
type EsewaClient struct {
	cfg        config.EsewaConfig
	httpClient *http.Client
}

func NewEsewaClient(cfg config.EsewaConfig) *EsewaClient {
	return &EsewaClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// PaymentURL is where the browser form has to be posted.
func (c *EsewaClient) PaymentURL() string {
	return c.cfg.PaymentURL
}

// EsewaPaymentParams are the form fields posted to the gateway.
type EsewaPaymentParams struct {
	Amount                string `json:"amount"`
	TaxAmount             string `json:"tax_amount"`
	TotalAmount           string `json:"total_amount"`
	TransactionUUID       string `json:"transaction_uuid"`
	ProductCode           string `json:"product_code"`
	ProductServiceCharge  string `json:"product_service_charge"`
	ProductDeliveryCharge string `json:"product_delivery_charge"`
	SuccessURL            string `json:"success_url"`
	FailureURL            string `json:"failure_url"`
	SignedFieldNames      string `json:"signed_field_names"`
	Signature             string `json:"signature"`
}

// Sign returns base64(HMAC-SHA256(secret, message)).
func (c *EsewaClient) Sign(message string) string {
	mac := hmac.New(sha256.New, []byte(c.cfg.SecretKey))
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// BuildPaymentParams prepares the signed form for a payment of totalAmount.
// The order id is used as the gateway transaction reference.
func (c *EsewaClient) BuildPaymentParams(totalAmount float64, transactionUUID, successURL, failureURL string) EsewaPaymentParams {
	total := utils.FormatAmount(totalAmount)
	message := fmt.Sprintf("total_amount=%s,transaction_uuid=%s,product_code=%s", total, transactionUUID, c.cfg.MerchantCode)

	return EsewaPaymentParams{
		Amount:                total,
		TaxAmount:             "0",
		TotalAmount:           total,
		TransactionUUID:       transactionUUID,
		ProductCode:           c.cfg.MerchantCode,
		ProductServiceCharge:  "0",
		ProductDeliveryCharge: "0",
		SuccessURL:            successURL,
		FailureURL:            failureURL,
		SignedFieldNames:      esewaRequestSignedFields,
		Signature:             c.Sign(message),
	}
}

// gatewayAmount keeps an amount exactly as the gateway wrote it, whether it
// arrived as a JSON string or a JSON number. Signatures cover that text.
type gatewayAmount string

func (a *gatewayAmount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = gatewayAmount(s)
		return nil
	}
	if bytes.Equal(data, []byte("null")) {
		*a = ""
		return nil
	}
	*a = gatewayAmount(data)
	return nil
}

// EsewaCallback is the decoded payload the gateway redirects back with.
type EsewaCallback struct {
	TransactionCode  string        `json:"transaction_code"`
	Status           string        `json:"status"`
	TotalAmount      gatewayAmount `json:"total_amount"`
	TransactionUUID  string        `json:"transaction_uuid"`
	ProductCode      string        `json:"product_code"`
	SignedFieldNames string        `json:"signed_field_names"`
	Signature        string        `json:"signature"`

	raw []byte
}

// Raw returns the decoded JSON document as received.
func (cb *EsewaCallback) Raw() []byte {
	return cb.raw
}

// DecodeCallback base64-decodes and parses the data query parameter.
func (c *EsewaClient) DecodeCallback(data string) (*EsewaCallback, error) {
	data = strings.TrimSpace(data)
	if data == "" {
		return nil, fmt.Errorf("%w: empty data", ErrEsewaPayload)
	}
	// Query decoding turns '+' into ' '.
	data = strings.ReplaceAll(data, " ", "+")

	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		decoded, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(data, "="))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEsewaPayload, err)
		}
	}

	var cb EsewaCallback
	if err := json.Unmarshal(decoded, &cb); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEsewaPayload, err)
	}
	if cb.TransactionUUID == "" || cb.Signature == "" {
		return nil, fmt.Errorf("%w: missing transaction_uuid or signature", ErrEsewaPayload)
	}
	cb.raw = decoded
	return &cb, nil
}

// callbackMessage is the exact string the gateway signs for a callback.
func callbackMessage(cb *EsewaCallback) string {
	return fmt.Sprintf("transaction_code=%s,status=%s,total_amount=%s,transaction_uuid=%s,product_code=%s,signed_field_names=%s",
		cb.TransactionCode,
		cb.Status,
		cb.TotalAmount,
		cb.TransactionUUID,
		cb.ProductCode,
		cb.SignedFieldNames,
	)
}

// VerifyCallback recomputes the callback signature and compares it in constant time.
func (c *EsewaClient) VerifyCallback(cb *EsewaCallback) error {
	expected := c.Sign(callbackMessage(cb))
	if !hmac.Equal([]byte(expected), []byte(cb.Signature)) {
		return ErrEsewaSignature
	}
	return nil
}

// EsewaStatus is the gateway's answer to a transaction status query.
type EsewaStatus struct {
	ProductCode     string        `json:"product_code"`
	TransactionUUID string        `json:"transaction_uuid"`
	TotalAmount     gatewayAmount `json:"total_amount"`
	Status          string        `json:"status"`
	RefID           *string       `json:"ref_id"`

	raw []byte
}

// Raw returns the response body as received.
func (s *EsewaStatus) Raw() []byte {
	return s.raw
}

// Complete reports whether the gateway considers the transaction settled.
func (s *EsewaStatus) Complete() bool {
	return s.Status == esewaStatusComplete
}

// CheckStatus asks the gateway for the state of a transaction.
func (c *EsewaClient) CheckStatus(ctx context.Context, totalAmount, transactionUUID string) (*EsewaStatus, error) {
	query := url.Values{}
	query.Set("product_code", c.cfg.MerchantCode)
	query.Set("total_amount", totalAmount)
	query.Set("transaction_uuid", transactionUUID)

	endpoint := c.cfg.StatusURL
	if strings.Contains(endpoint, "?") {
		endpoint += "&" + query.Encode()
	} else {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build esewa status request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("esewa status request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read esewa status response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("[Esewa] status query for %s failed: %d %s", transactionUUID, resp.StatusCode, string(body))
		return nil, fmt.Errorf("esewa status query returned %d", resp.StatusCode)
	}

	var status EsewaStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("decode esewa status response: %w", err)
	}
	status.raw = body
	return &status, nil
}
