package telephony

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// RestClient calls the telephony provider's REST API for call control that
// cannot happen over the media stream: starting call recordings and replacing
// live call TwiML (used to speak an apology before hangup on fatal errors).
//
// Grounded on the provider's 2010-04-01 REST surface. Safe for concurrent use.
type RestClient struct {
	accountSid        string
	authToken         string
	baseURL           string
	statusCallbackURL string
	client            *http.Client
}

// RestConfig holds credentials for the provider REST API.
type RestConfig struct {
	// AccountSid is the provider account SID (required).
	AccountSid string

	// AuthToken is the provider auth token (required).
	AuthToken string

	// StatusCallbackURL is the public URL the provider posts recording
	// status updates to. Empty disables the callbacks.
	StatusCallbackURL string

	// BaseURL overrides the API base URL; used by tests.
	BaseURL string
}

// NewRestClient creates a provider REST client.
func NewRestClient(cfg RestConfig) (*RestClient, error) {
	if cfg.AccountSid == "" {
		return nil, errors.New("telephony: account SID is required")
	}
	if cfg.AuthToken == "" {
		return nil, errors.New("telephony: auth token is required")
	}

	base := cfg.BaseURL
	if base == "" {
		base = "https://api.twilio.com/2010-04-01"
	}

	return &RestClient{
		accountSid:        cfg.AccountSid,
		authToken:         cfg.AuthToken,
		baseURL:           fmt.Sprintf("%s/Accounts/%s", base, cfg.AccountSid),
		statusCallbackURL: cfg.StatusCallbackURL,
		client:            &http.Client{Timeout: 15 * time.Second},
	}, nil
}

// StartRecording starts dual-channel recording on a live call and returns the
// recording SID.
func (c *RestClient) StartRecording(ctx context.Context, callSid string) (string, error) {
	if callSid == "" {
		return "", errors.New("telephony: call SID is required")
	}

	params := url.Values{
		"RecordingChannels": {"dual"},
	}
	if c.statusCallbackURL != "" {
		params.Set("RecordingStatusCallback", c.statusCallbackURL)
		params.Set("RecordingStatusCallbackEvent", "completed")
	}

	body, err := c.post(ctx, fmt.Sprintf("/Calls/%s/Recordings.json", callSid), params)
	if err != nil {
		return "", err
	}

	var resp struct {
		Sid string `json:"sid"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("telephony: parse recording response: %w", err)
	}
	return resp.Sid, nil
}

// SayAndHangup replaces the live call's TwiML with a spoken message followed
// by a hangup. Fatal bridge errors route through this so the caller hears an
// apology instead of dead air.
func (c *RestClient) SayAndHangup(ctx context.Context, callSid, message string) error {
	if callSid == "" {
		return errors.New("telephony: call SID is required")
	}
	if message == "" {
		message = "We're sorry, we are unable to take your call right now. Please try again later."
	}

	twiml := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?><Response><Say>%s</Say><Hangup/></Response>`,
		xmlEscape(message))

	params := url.Values{"Twiml": {twiml}}
	_, err := c.post(ctx, fmt.Sprintf("/Calls/%s.json", callSid), params)
	return err
}

func (c *RestClient) post(ctx context.Context, path string, params url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+path, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("telephony: build request: %w", err)
	}
	req.SetBasicAuth(c.accountSid, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telephony: %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("telephony: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("telephony: %s returned %d: %s", path, resp.StatusCode, string(body))
	}
	return body, nil
}

func xmlEscape(s string) string {
	var b strings.Builder
	// xml.EscapeText only fails on writer errors; strings.Builder has none.
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
