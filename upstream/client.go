package upstream

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

	authgate "github.com/tripwell/authgate"
)

const (
	loginPath     = "/v1/auth/login"
	otpSendPath   = "/v1/auth/otp/send"
	otpVerifyPath = "/v1/auth/otp/verify"
	logoutPath    = "/v1/auth/logout"
)

// maxErrorBody caps how much of a failed response is read before discarding.
const maxErrorBody = 4 << 10

// ClientConfig defines a public type used by authgate APIs.
//
// ClientConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration

	// HTTPClient overrides the default client; Timeout is ignored when set.
	HTTPClient *http.Client
}

// Client speaks the identity service's HTTP API and satisfies both
// authgate.CredentialVerifier and authgate.OtpChallenger. Rejections map onto
// authgate sentinel errors; network and decode failures are returned as-is
// for the gateway to classify as transport.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient describes the newclient operation and its observable behavior.
//
// NewClient may return an error when input validation, dependency calls, or security checks fail.
// NewClient does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("base URL is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    httpClient,
	}, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// VerifyCredentials describes the verifycredentials operation and its observable behavior.
//
// VerifyCredentials may return an error when input validation, dependency calls, or security checks fail.
// VerifyCredentials does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Client) VerifyCredentials(ctx context.Context, email, password string) (authgate.VerifiedLogin, error) {
	payload := map[string]string{"email": email, "password": password}

	var data struct {
		Token string               `json:"token"`
		User  authgate.UserProfile `json:"user"`
	}
	status, err := c.post(ctx, loginPath, "", payload, &data)
	if err != nil {
		return authgate.VerifiedLogin{}, err
	}
	switch {
	case status == http.StatusOK:
		if data.Token == "" {
			return authgate.VerifiedLogin{}, errors.New("login response missing token")
		}
		return authgate.VerifiedLogin{Token: data.Token, User: data.User}, nil
	case status == http.StatusUnauthorized || status == http.StatusBadRequest:
		return authgate.VerifiedLogin{}, authgate.ErrInvalidCredentials
	default:
		return authgate.VerifiedLogin{}, fmt.Errorf("login upstream status %d", status)
	}
}

// RetireToken describes the retiretoken operation and its observable behavior.
//
// RetireToken may return an error when input validation, dependency calls, or security checks fail.
// RetireToken does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Client) RetireToken(ctx context.Context, token string) error {
	status, err := c.post(ctx, logoutPath, token, nil, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusNoContent {
		return fmt.Errorf("logout upstream status %d", status)
	}
	return nil
}

// SendCode describes the sendcode operation and its observable behavior.
//
// SendCode may return an error when input validation, dependency calls, or security checks fail.
// SendCode does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Client) SendCode(ctx context.Context, token, email string) error {
	status, err := c.post(ctx, otpSendPath, token, map[string]string{"email": email}, nil)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusUnauthorized:
		return authgate.ErrTokenRequired
	default:
		return fmt.Errorf("%w: upstream status %d", authgate.ErrOtpUnavailable, status)
	}
}

// VerifyCode describes the verifycode operation and its observable behavior.
//
// VerifyCode may return an error when input validation, dependency calls, or security checks fail.
// VerifyCode does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Client) VerifyCode(ctx context.Context, token, email, code string) error {
	status, err := c.post(ctx, otpVerifyPath, token, map[string]string{"email": email, "otp": code}, nil)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusBadRequest, http.StatusUnauthorized:
		return authgate.ErrOtpInvalid
	default:
		return fmt.Errorf("otp verify upstream status %d", status)
	}
}

// post sends one JSON request and decodes the success envelope into out when
// provided. The HTTP status is returned for the caller to interpret; only
// transport and decode problems surface as errors.
func (c *Client) post(ctx context.Context, path, token string, payload, out any) (int, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK && out != nil {
		var env envelope
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&env); err != nil {
			return 0, fmt.Errorf("decode upstream response: %w", err)
		}
		if !env.Success {
			// A 200 carrying a failure envelope is a contract violation.
			return 0, fmt.Errorf("upstream reported failure: %s", env.Error)
		}
		if err := json.Unmarshal(env.Data, out); err != nil {
			return 0, fmt.Errorf("decode upstream data: %w", err)
		}
		return resp.StatusCode, nil
	}

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	return resp.StatusCode, nil
}
