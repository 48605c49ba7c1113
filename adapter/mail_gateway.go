package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// MailGatewayConfig holds the REST mail gateway options.
type MailGatewayConfig struct {
	// BaseURL of the mail relay service; the gateway calls
	// POST {BaseURL}/messages to send and GET {BaseURL}/messages?q= to
	// search the inbox.
	BaseURL string
	// Token authenticates against the relay.
	Token string
	// From is the sender address on outbound mail.
	From string
	// Timeout bounds one HTTP round trip.
	Timeout time.Duration
}

// HTTPMailGateway implements MailGateway over a JSON mail relay service.
type HTTPMailGateway struct {
	cfg    MailGatewayConfig
	client *http.Client
}

// NewHTTPMailGateway creates the gateway.
func NewHTTPMailGateway(cfg MailGatewayConfig) (*HTTPMailGateway, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("mail gateway requires a base URL")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &HTTPMailGateway{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Send posts one outbound mail to the relay.
func (g *HTTPMailGateway) Send(ctx context.Context, to, subject, body string) error {
	payload, err := json.Marshal(map[string]string{
		"from":    g.cfg.From,
		"to":      to,
		"subject": subject,
		"body":    body,
	})
	if err != nil {
		return fmt.Errorf("failed to serialize mail: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	g.authorize(req)

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("mail send returned %d", resp.StatusCode)
	}
	return nil
}

// Search queries the inbox.
func (g *HTTPMailGateway) Search(ctx context.Context, query string) ([]MailMessage, error) {
	u, err := url.Parse(g.cfg.BaseURL + "/messages")
	if err != nil {
		return nil, fmt.Errorf("invalid mail gateway URL: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	g.authorize(req)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("mail search returned %d", resp.StatusCode)
	}

	var payload struct {
		Messages []MailMessage `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode mail search response: %w", err)
	}
	return payload.Messages, nil
}

func (g *HTTPMailGateway) authorize(req *http.Request) {
	if g.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+g.cfg.Token)
	}
}
