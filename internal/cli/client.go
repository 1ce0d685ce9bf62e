package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// AuthResponse is the shared payload of signup and login.
type AuthResponse struct {
	Token string `json:"token"`
	User  struct {
		ID       string `json:"id"`
		Username string `json:"username"`
		Email    string `json:"email"`
		Team     string `json:"team"`
		Role     string `json:"role"`
	} `json:"user"`
}

func (c *Client) Signup(ctx context.Context, username, email, password, team, role string) (AuthResponse, error) {
	var out AuthResponse
	body := map[string]any{
		"username": username,
		"email":    email,
		"password": password,
		"team":     team,
	}
	if role != "" {
		body["role"] = role
	}
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/auth/signup", "", body, &out)
	return out, err
}

func (c *Client) Login(ctx context.Context, email, password string) (AuthResponse, error) {
	var out AuthResponse
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/auth/login", "", map[string]any{
		"email":    email,
		"password": password,
	}, &out)
	return out, err
}

func (c *Client) Me(ctx context.Context, token string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/auth/me", token, nil, &out)
	return out, err
}

func (c *Client) ListStocks(ctx context.Context, token string, all bool) (map[string]any, error) {
	path := "/v1/trading/stocks"
	if all {
		path = "/v1/trading/stocks?all=1"
	}
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, path, token, nil, &out)
	return out, err
}

func (c *Client) Buy(ctx context.Context, token string, stockID, quantity int64) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/trading/buy", token, map[string]any{
		"stockId":  stockID,
		"quantity": quantity,
	}, &out)
	return out, err
}

func (c *Client) Sell(ctx context.Context, token string, stockID, quantity int64) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/trading/sell", token, map[string]any{
		"stockId":  stockID,
		"quantity": quantity,
	}, &out)
	return out, err
}

func (c *Client) Portfolio(ctx context.Context, token string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/trading/portfolio", token, nil, &out)
	return out, err
}

func (c *Client) History(ctx context.Context, token string, limit int) (map[string]any, error) {
	path := "/v1/trading/history"
	if limit > 0 {
		path = fmt.Sprintf("%s?limit=%d", path, limit)
	}
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, path, token, nil, &out)
	return out, err
}

func (c *Client) TradingSettings(ctx context.Context, token string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/trading/settings", token, nil, &out)
	return out, err
}

func (c *Client) Dashboard(ctx context.Context, token string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/admin/dashboard", token, nil, &out)
	return out, err
}

func (c *Client) ListTeams(ctx context.Context, token string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/admin/teams", token, nil, &out)
	return out, err
}

func (c *Client) Allocate(ctx context.Context, token, teamName string, totalAmount float64, distributionType string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/admin/teams/allocate", token, map[string]any{
		"teamName":         teamName,
		"totalAmount":      totalAmount,
		"distributionType": distributionType,
	}, &out)
	return out, err
}

func (c *Client) CreateStock(ctx context.Context, token, symbol, name, description string, price float64, category string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/admin/stocks", token, map[string]any{
		"symbol":       symbol,
		"name":         name,
		"description":  description,
		"currentPrice": price,
		"category":     category,
	}, &out)
	return out, err
}

func (c *Client) ListCards(ctx context.Context, token string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/admin/cards", token, nil, &out)
	return out, err
}

func (c *Client) ActivateCard(ctx context.Context, token string, cardID int64) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, fmt.Sprintf("/v1/admin/cards/%d/activate", cardID), token, map[string]any{}, &out)
	return out, err
}

func (c *Client) UpdateSettings(ctx context.Context, token string, buyEnabled, sellEnabled *bool) (map[string]any, error) {
	body := map[string]any{}
	if buyEnabled != nil {
		body["buyEnabled"] = *buyEnabled
	}
	if sellEnabled != nil {
		body["sellEnabled"] = *sellEnabled
	}
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPut, "/v1/admin/settings", token, body, &out)
	return out, err
}

// Do is the escape hatch for endpoints without a typed helper.
func (c *Client) Do(ctx context.Context, method, path, token string, body map[string]any) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, method, path, token, body, &out)
	return out, err
}

func (c *Client) jsonRequest(ctx context.Context, method, path, token string, in any, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("api status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
