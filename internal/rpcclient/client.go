package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/fathima-sithara/chatlist-service/internal/apperr"
	"github.com/fathima-sithara/chatlist-service/internal/auth"
	"github.com/fathima-sithara/chatlist-service/internal/discovery"
	"github.com/fathima-sithara/chatlist-service/internal/domain"
	"github.com/go-playground/validator/v10"
)

const latestMessagesPath = "/rpc/get_latest_messages"

type Config struct {
	Service string
	Timeout time.Duration
}

// Client calls get_latest_messages on the aggregation service. It never retries;
// recovery is left to whoever triggered the call.
type Client struct {
	disc     discovery.Discovery
	tokens   auth.TokenSource
	service  string
	http     *http.Client
	validate *validator.Validate
}

func New(disc discovery.Discovery, tokens auth.TokenSource, cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	tr := &http.Transport{
		DialContext:     (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
		MaxIdleConns:    10,
		IdleConnTimeout: 90 * time.Second,
	}
	return &Client{
		disc:     disc,
		tokens:   tokens,
		service:  cfg.Service,
		http:     &http.Client{Transport: tr, Timeout: cfg.Timeout},
		validate: validator.New(),
	}
}

func (c *Client) LatestMessages(ctx context.Context, currentUserID string) ([]domain.LatestMessageRecord, error) {
	base, err := c.disc.Lookup(ctx, c.service)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrUnavailable, err)
	}
	token, err := c.tokens(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(domain.LatestMessagesRequest{CurrentUserID: currentUserID})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(base, "/")+latestMessagesPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+strings.TrimPrefix(token, "Bearer "))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}
	return c.decode(resp.Body)
}

func statusError(resp *http.Response) error {
	var e struct {
		Message string `json:"message"`
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(b, &e)
	if e.Message == "" {
		e.Message = resp.Status
	}
	sentinel := apperr.FromStatus(resp.StatusCode)
	if sentinel == nil {
		sentinel = apperr.ErrUnavailable
	}
	return fmt.Errorf("%w: %s", sentinel, e.Message)
}

// decode requires a JSON array whose records carry other_user_id, content and timestamp.
func (c *Client) decode(r io.Reader) ([]domain.LatestMessageRecord, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrMalformed, err)
	}
	if !bytes.HasPrefix(bytes.TrimSpace(raw), []byte("[")) {
		return nil, fmt.Errorf("%w: expected a list of records", apperr.ErrMalformed)
	}
	var records []domain.LatestMessageRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrMalformed, err)
	}
	for i, rec := range records {
		if err := c.validate.Struct(rec); err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", apperr.ErrMalformed, i, err)
		}
	}
	return records, nil
}
