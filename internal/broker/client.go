// Package broker talks to a live broker's REST order API.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/rrctrade/RRC-Automation2/internal/execution"
)

// DefaultTokenEnv is the environment variable holding the API access token.
const DefaultTokenEnv = "BROKER_ACCESS_TOKEN"

// LoadTokenFromEnv reads the access token from the environment, loading .env first if present.
func LoadTokenFromEnv(name string) (string, error) {
	_ = godotenv.Load() // best-effort
	if name == "" {
		name = DefaultTokenEnv
	}
	token := strings.TrimSpace(os.Getenv(name))
	if token == "" {
		return "", fmt.Errorf("%s not set", name)
	}
	return token, nil
}

// Client implements execution.Gateway over HTTP.
type Client struct {
	Base  string
	Token string
	Http  *http.Client
}

func NewClient(base, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Client{
		Base:  strings.TrimSuffix(base, "/"),
		Token: token,
		Http:  &http.Client{Timeout: timeout},
	}
}

type placeRequest struct {
	Symbol    string          `json:"symbol"`
	Side      string          `json:"side"`
	Qty       int64           `json:"qty"`
	Type      string          `json:"type"`
	StopPrice decimal.Decimal `json:"stopPrice"`
	Tag       string          `json:"tag,omitempty"`
	ClientID  string          `json:"clientOrderId,omitempty"`
}

type placeResponse struct {
	ID string `json:"id"`
}

type statusResponse struct {
	ID        string          `json:"id"`
	State     string          `json:"state"`
	FillPrice decimal.Decimal `json:"fillPrice"`
}

type errorResponse struct {
	Message string `json:"message"`
}

func (c *Client) PlaceStopOrder(ctx context.Context, order execution.StopOrder) (string, error) {
	body, err := json.Marshal(placeRequest{
		Symbol:    order.Symbol,
		Side:      string(order.Side),
		Qty:       order.Quantity,
		Type:      "STOP",
		StopPrice: order.StopPrice,
		Tag:       string(order.Purpose),
		ClientID:  order.ClientOrderID,
	})
	if err != nil {
		return "", err
	}
	var out placeResponse
	if err := c.do(ctx, http.MethodPost, "/orders", body, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", errors.New("broker returned empty order id")
	}
	return out.ID, nil
}

func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	return c.do(ctx, http.MethodDelete, "/orders/"+url.PathEscape(orderID), nil, nil)
}

func (c *Client) OrderStatus(ctx context.Context, orderID string) (execution.OrderStatus, error) {
	var out statusResponse
	if err := c.do(ctx, http.MethodGet, "/orders/"+url.PathEscape(orderID), nil, &out); err != nil {
		return execution.OrderStatus{}, err
	}
	return execution.OrderStatus{
		ID:        out.ID,
		State:     execution.OrderState(strings.ToUpper(out.State)),
		FillPrice: out.FillPrice,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.Base+path, rdr)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.Http.Do(req)
	if err != nil {
		return fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}

	var e errorResponse
	_ = json.NewDecoder(resp.Body).Decode(&e)
	switch resp.StatusCode {
	case http.StatusBadRequest, http.StatusUnprocessableEntity, http.StatusForbidden:
		return fmt.Errorf("%w: %s", execution.ErrRejected, e.Message)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", execution.ErrUnknownOrder, path)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", execution.ErrOrderNotOpen, e.Message)
	default:
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}
}

var _ execution.Gateway = (*Client)(nil)
