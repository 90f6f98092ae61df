package mailrelay

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/mamadbah2/vitrine/internal/config"
)

// Client exposes the mail relay operations used by the application.
type Client interface {
	Ping(ctx context.Context) error
	Send(ctx context.Context, msg Message) (*SendResponse, error)
}

// APIClient is a resty-backed implementation of Client.
type APIClient struct {
	httpClient *resty.Client
}

// NewClient builds a relay client using the provided configuration values.
func NewClient(cfg config.MailConfig) *APIClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	restyClient := resty.New()
	restyClient.
		SetBaseURL(strings.TrimSuffix(cfg.RelayURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)
	if cfg.Token != "" {
		restyClient.SetAuthToken(cfg.Token)
	}

	return &APIClient{httpClient: restyClient}
}

// Attachment is a file carried by a Message.
type Attachment struct {
	FileName string
	Content  []byte
}

// Message is an outgoing e-mail.
type Message struct {
	To         []string
	Subject    string
	Body       string
	Attachment *Attachment
}

// SendResponse mirrors the successful response from the relay.
type SendResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type attachmentPayload struct {
	FileName      string `json:"file_name"`
	ContentBase64 string `json:"content_base64"`
}

type messagePayload struct {
	To         []string           `json:"to"`
	Subject    string             `json:"subject"`
	Body       string             `json:"body"`
	Attachment *attachmentPayload `json:"attachment,omitempty"`
}

// apiError represents a relay error payload.
type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Ping checks that the relay answers its health endpoint.
func (c *APIClient) Ping(ctx context.Context) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		Get("/healthz")
	if err != nil {
		return fmt.Errorf("ping mail relay: %w", err)
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		return fmt.Errorf("mail relay unhealthy: status=%d", resp.StatusCode())
	}
	return nil
}

// Send posts msg to the relay.
func (c *APIClient) Send(ctx context.Context, msg Message) (*SendResponse, error) {
	if len(msg.To) == 0 {
		return nil, fmt.Errorf("send mail: no recipients")
	}

	payload := messagePayload{
		To:      msg.To,
		Subject: msg.Subject,
		Body:    msg.Body,
	}
	if msg.Attachment != nil {
		payload.Attachment = &attachmentPayload{
			FileName:      msg.Attachment.FileName,
			ContentBase64: base64.StdEncoding.EncodeToString(msg.Attachment.Content),
		}
	}

	result := new(SendResponse)
	apiErr := new(apiError)

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(result).
		SetError(apiErr).
		Post("/v1/messages")
	if err != nil {
		return nil, fmt.Errorf("send mail: %w", err)
	}

	if resp.StatusCode() >= http.StatusBadRequest {
		message := apiErr.Error.Message
		if message == "" {
			message = strings.TrimSpace(resp.String())
		}
		return nil, fmt.Errorf("mail relay error: status=%d, code=%s, message=%s", resp.StatusCode(), apiErr.Error.Code, message)
	}

	return result, nil
}
