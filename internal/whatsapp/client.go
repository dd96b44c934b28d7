package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/saishivanagaram1324-cpu/admin-chiro/internal/notify"
)

// DefaultBaseURL is the WhatsApp Cloud API endpoint prefix.
const DefaultBaseURL = "https://graph.facebook.com/v18.0"

// countryPrefix is prepended to bare 10-digit numbers, which local patients
// submit without a country code.
const countryPrefix = "91"

type Config struct {
	AccessToken   string
	PhoneNumberID string
	BaseURL       string
}

// Client sends text messages through the WhatsApp Cloud API. It never returns
// an error past its boundary: every outcome is folded into a notify.Result.
type Client struct {
	token         string
	phoneNumberID string
	baseURL       string
	http          *http.Client
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		token:         strings.TrimSpace(cfg.AccessToken),
		phoneNumberID: strings.TrimSpace(cfg.PhoneNumberID),
		baseURL:       baseURL,
		http: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Configured reports whether credentials are present. The dashboard stays
// fully usable without them; sends just short-circuit.
func (c *Client) Configured() bool {
	return c.token != "" && c.phoneNumberID != ""
}

func (c *Client) Send(ctx context.Context, toRaw string, body string) notify.Result {
	if !c.Configured() {
		return notify.Result{Detail: "whatsapp credentials not configured"}
	}

	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                NormalizeNumber(toRaw),
		"type":              "text",
		"text":              map[string]string{"body": body},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return notify.Result{Detail: err.Error()}
	}

	url := c.baseURL + "/" + c.phoneNumberID + "/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return notify.Result{Detail: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return notify.Result{Detail: err.Error()}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	detail := strings.TrimSpace(string(respBody))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if detail == "" {
			detail = resp.Status
		}
		return notify.Result{Detail: detail}
	}
	return notify.Result{Delivered: true, Detail: detail}
}

// NormalizeNumber strips every non-digit and prepends the default country
// prefix to exactly-10-digit numbers. It is a heuristic, not a validator:
// anything else passes through as its bare digit string.
func NormalizeNumber(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) == 10 {
		return countryPrefix + digits
	}
	return digits
}
