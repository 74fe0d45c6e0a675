// Package panel реализует REST-клиент панели управления VPN-серверами.
// Панель хранит учетные записи пользователей и их лимиты; биллинг
// синхронизирует с ней состояние подписок.
package panel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nbelyakov/vpn-billing/internal/config"
)

type Client struct {
	baseURL  string
	apiToken string
	client   *http.Client
}

// RemoteUser описывает учетную запись на стороне панели.
type RemoteUser struct {
	UUID              string   `json:"uuid"`
	Username          string   `json:"username"`
	Status            string   `json:"status"`
	ExpireAt          string   `json:"expireAt"`
	TrafficLimitBytes int64    `json:"trafficLimitBytes"`
	HWIDDeviceLimit   int      `json:"hwidDeviceLimit"`
	ActiveSquads      []string `json:"activeInternalSquads"`
}

type UpdateUserRequest struct {
	UUID              string   `json:"uuid"`
	Status            string   `json:"status,omitempty"`
	ExpireAt          string   `json:"expireAt,omitempty"`
	TrafficLimitBytes *int64   `json:"trafficLimitBytes,omitempty"`
	HWIDDeviceLimit   *int     `json:"hwidDeviceLimit,omitempty"`
	ActiveSquads      []string `json:"activeInternalSquads,omitempty"`
}

type CreateUserRequest struct {
	Username          string   `json:"username"`
	Status            string   `json:"status"`
	ExpireAt          string   `json:"expireAt"`
	TrafficLimitBytes int64    `json:"trafficLimitBytes"`
	HWIDDeviceLimit   int      `json:"hwidDeviceLimit"`
	TelegramID        *int64   `json:"telegramId,omitempty"`
	ActiveSquads      []string `json:"activeInternalSquads,omitempty"`
}

type apiResponse struct {
	Response json.RawMessage `json:"response"`
}

func NewClient(cfg config.Panel) *Client {
	return &Client{
		baseURL:  cfg.BaseURL,
		apiToken: cfg.APIToken,
		client:   &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *Client) do(ctx context.Context, method, path string, payload, result any) error {
	const op = "panel.do"
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s: panel returned %d: %s", op, resp.StatusCode, respBody)
	}
	if result == nil {
		return nil
	}

	var envelope apiResponse
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := json.Unmarshal(envelope.Response, result); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// CreateUser заводит учетную запись в панели и возвращает ее UUID.
func (c *Client) CreateUser(ctx context.Context, req CreateUserRequest) (*RemoteUser, error) {
	const op = "panel.CreateUser"
	var user RemoteUser
	if err := c.do(ctx, http.MethodPost, "/api/users", req, &user); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &user, nil
}

// UpdateUser меняет лимиты и срок действия учетной записи.
func (c *Client) UpdateUser(ctx context.Context, req UpdateUserRequest) (*RemoteUser, error) {
	const op = "panel.UpdateUser"
	var user RemoteUser
	if err := c.do(ctx, http.MethodPatch, "/api/users", req, &user); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &user, nil
}

// GetUserByUUID возвращает учетную запись панели.
func (c *Client) GetUserByUUID(ctx context.Context, uuid string) (*RemoteUser, error) {
	const op = "panel.GetUserByUUID"
	var user RemoteUser
	if err := c.do(ctx, http.MethodGet, "/api/users/"+uuid, nil, &user); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &user, nil
}

// DisableUser отключает учетную запись в панели.
func (c *Client) DisableUser(ctx context.Context, uuid string) error {
	const op = "panel.DisableUser"
	if err := c.do(ctx, http.MethodPost, "/api/users/"+uuid+"/actions/disable", nil, nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// FormatExpireAt переводит время в формат, который понимает панель.
func FormatExpireAt(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
