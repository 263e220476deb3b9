package bankid

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrConflict means the vendor already holds an active transaction for
// the requested personal number. The message match lives here and only
// here; callers switch on errors.Is.
var ErrConflict = errors.New("bankid: transaction already in progress")

const defaultTimeout = 30 * time.Second

// Client talks to the BankID-compatible signing API. It is safe for
// concurrent use.
type Client struct {
	baseURL    string
	apiUser    string
	password   string
	companyID  string
	httpClient *http.Client
}

func New(baseURL, apiUser, password, companyID string) (*Client, error) {
	if baseURL == "" || apiUser == "" || password == "" || companyID == "" {
		return nil, errors.New("bankid: missing required client configuration")
	}

	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiUser:   apiUser,
		password:  password,
		companyID: companyID,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}, nil
}

type signRequest struct {
	APIUser         string `json:"apiUser"`
	Password        string `json:"password"`
	CompanyAPIGUID  string `json:"companyApiGuid"`
	EndUserIP       string `json:"endUserIp"`
	PersonalNumber  string `json:"personalNumber"`
	UserVisibleData string `json:"userVisibleData"`
}

type collectRequest struct {
	APIUser        string `json:"apiUser"`
	Password       string `json:"password"`
	CompanyAPIGUID string `json:"companyApiGuid"`
	OrderRef       string `json:"orderRef"`
}

// Sign starts a new transaction for the given identity. A vendor-side
// transaction collision is reported as ErrConflict.
func (c *Client) Sign(
	ctx context.Context,
	endUserIP string,
	personalNumber string,
	userVisibleData string,
) (SignResult, error) {
	req := signRequest{
		APIUser:         c.apiUser,
		Password:        c.password,
		CompanyAPIGUID:  c.companyID,
		EndUserIP:       endUserIP,
		PersonalNumber:  personalNumber,
		UserVisibleData: userVisibleData,
	}

	var res SignResult
	if err := c.post(ctx, "/sign", req, &res); err != nil {
		return SignResult{}, err
	}
	if res.OrderRef == "" {
		return SignResult{}, errors.New("bankid: sign response missing orderRef")
	}
	return res, nil
}

// CollectStatus reads the current state of a transaction.
func (c *Client) CollectStatus(ctx context.Context, orderRef string) (CollectResult, error) {
	req := collectRequest{
		APIUser:        c.apiUser,
		Password:       c.password,
		CompanyAPIGUID: c.companyID,
		OrderRef:       orderRef,
	}

	var res CollectResult
	if err := c.post(ctx, "/collectstatus", req, &res); err != nil {
		return CollectResult{}, err
	}

	res.Status = Status(strings.ToLower(string(res.Status)))
	if res.Status == "" {
		return CollectResult{}, errors.New("bankid: collect response missing status")
	}
	return res, nil
}

// CollectQR fetches the current QR payload for a pending transaction.
// The returned string is an image data URL ready for an <img> tag.
func (c *Client) CollectQR(ctx context.Context, orderRef string) (string, error) {
	req := collectRequest{
		APIUser:        c.apiUser,
		Password:       c.password,
		CompanyAPIGUID: c.companyID,
		OrderRef:       orderRef,
	}

	var res struct {
		QRImage string `json:"qrImage"`
	}
	if err := c.post(ctx, "/collectqr", req, &res); err != nil {
		return "", err
	}
	if res.QRImage == "" {
		return "", errors.New("bankid: collectqr response missing qrImage")
	}
	return res.QRImage, nil
}

// envelope covers the vendor's two response shapes: a flat payload, or
// the same payload nested under authResponse / apiCallResponse.
type envelope struct {
	AuthResponse    json.RawMessage `json:"authResponse"`
	APICallResponse json.RawMessage `json:"apiCallResponse"`
}

type vendorError struct {
	Message     string `json:"message"`
	ErrorObject *struct {
		Message string `json:"message"`
	} `json:"errorObject"`
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("bankid: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+path,
		bytes.NewReader(payload),
	)
	if err != nil {
		return fmt.Errorf("bankid: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("bankid: %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("bankid: %s: read response: %w", path, err)
	}

	inner := normalize(raw)

	if msg := errorMessage(inner); msg != "" {
		if strings.Contains(strings.ToLower(msg), "already in progress") {
			return fmt.Errorf("%w: %s", ErrConflict, msg)
		}
		return fmt.Errorf("bankid: %s: vendor error: %s", path, msg)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("bankid: %s: unexpected status %d", path, resp.StatusCode)
	}

	if err := json.Unmarshal(inner, out); err != nil {
		return fmt.Errorf("bankid: %s: decode response: %w", path, err)
	}
	return nil
}

// normalize unwraps a nested response shape, returning the payload that
// actually carries the fields of interest.
func normalize(raw []byte) json.RawMessage {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return raw
	}
	if len(env.AuthResponse) > 0 && string(env.AuthResponse) != "null" {
		return env.AuthResponse
	}
	if len(env.APICallResponse) > 0 && string(env.APICallResponse) != "null" {
		return env.APICallResponse
	}
	return raw
}

func errorMessage(raw []byte) string {
	var ve vendorError
	if err := json.Unmarshal(raw, &ve); err != nil {
		return ""
	}
	if ve.ErrorObject != nil && ve.ErrorObject.Message != "" {
		return ve.ErrorObject.Message
	}
	return ve.Message
}
