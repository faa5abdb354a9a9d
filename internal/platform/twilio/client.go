// Package twilio sends SMS through the Twilio Messages API.
package twilio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.twilio.com"

type Client struct {
	AccountSID string
	authToken  string
	From       string
	baseURL    string
	httpClient *http.Client
}

func NewClient(accountSID, authToken, from string) *Client {
	return &Client{
		AccountSID: accountSID,
		authToken:  authToken,
		From:       from,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// WithBaseURL points the client at another API host.
func (c *Client) WithBaseURL(u string) *Client {
	c.baseURL = strings.TrimRight(u, "/")
	return c
}

type messageResp struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

type errorResp struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Send delivers body to the E.164 number to and returns the message SID.
func (c *Client) Send(ctx context.Context, to, body string) (string, error) {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, url.PathEscape(c.AccountSID))

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", c.From)
	form.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.AccountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send sms: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		var e errorResp
		if json.Unmarshal(data, &e) == nil && e.Message != "" {
			return "", fmt.Errorf("twilio api returned status: %s, code %d: %s", resp.Status, e.Code, e.Message)
		}
		return "", fmt.Errorf("twilio api returned status: %s, body: %s", resp.Status, string(data))
	}

	var m messageResp
	if err := json.Unmarshal(data, &m); err != nil {
		return "", fmt.Errorf("decode twilio response: %w", err)
	}
	return m.SID, nil
}
