// Package api is the REST client for the clanchat server.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"clanchat/internal/models"
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

type Client struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	token string
}

// New returns a client for baseURL. A nil httpClient gets a 30s timeout.
func New(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient, token: token}
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// SocketURL is the push-channel endpoint for the current token.
func (c *Client) SocketURL() string {
	u := c.baseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws?token=" + url.QueryEscape(c.Token())
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out interface{}) error {
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{StatusCode: resp.StatusCode}
		var body struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
			se.Message = body.Error
		}
		return se
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

// Login authenticates and keeps the returned token for later calls.
func (c *Client) Login(ctx context.Context, email, password string) (*models.LoginResponse, error) {
	var out models.LoginResponse
	if err := c.do(ctx, http.MethodPost, "/login", models.LoginRequest{Email: email, Password: password}, &out); err != nil {
		return nil, err
	}
	c.SetToken(out.Token)
	return &out, nil
}

func (c *Client) Register(ctx context.Context, req models.RegisterRequest) (*models.LoginResponse, error) {
	var out models.LoginResponse
	if err := c.do(ctx, http.MethodPost, "/register", req, &out); err != nil {
		return nil, err
	}
	c.SetToken(out.Token)
	return &out, nil
}

func (c *Client) Clans(ctx context.Context) ([]*models.Clan, error) {
	var out []*models.Clan
	if err := c.do(ctx, http.MethodGet, "/clans", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateClan(ctx context.Context, name string) (*models.Clan, error) {
	var out models.Clan
	if err := c.do(ctx, http.MethodPost, "/clans", models.CreateClanRequest{Name: name}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Roster(ctx context.Context, clanID string) ([]models.Member, error) {
	var out []models.Member
	if err := c.do(ctx, http.MethodGet, "/clans/"+url.PathEscape(clanID)+"/members", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) RequestToJoin(ctx context.Context, clanID string) error {
	return c.do(ctx, http.MethodPost, "/clans/"+url.PathEscape(clanID)+"/requests", nil, nil)
}

func (c *Client) AcceptRequest(ctx context.Context, clanID, userID string) error {
	return c.do(ctx, http.MethodPost, requestPath(clanID, userID, "accept"), nil, nil)
}

func (c *Client) RejectRequest(ctx context.Context, clanID, userID string) error {
	return c.do(ctx, http.MethodPost, requestPath(clanID, userID, "reject"), nil, nil)
}

func requestPath(clanID, userID, action string) string {
	return "/clans/" + url.PathEscape(clanID) + "/requests/" + url.PathEscape(userID) + "/" + action
}

// History returns up to limit messages older than beforeID ("" for the newest page), oldest first.
func (c *Client) History(ctx context.Context, roomID, beforeID string, limit int) ([]*models.Message, error) {
	q := url.Values{}
	if beforeID != "" {
		q.Set("before", beforeID)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/rooms/" + url.PathEscape(roomID) + "/messages"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out []*models.Message
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) PostMessage(ctx context.Context, roomID string, draft models.Draft) (*models.Message, error) {
	var out models.Message
	if err := c.do(ctx, http.MethodPost, "/rooms/"+url.PathEscape(roomID)+"/messages", draft, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	return c.do(ctx, http.MethodDelete, "/messages/"+url.PathEscape(messageID), nil, nil)
}

// React sets the caller's reaction; "" clears it.
func (c *Client) React(ctx context.Context, messageID, emoji string) error {
	return c.do(ctx, http.MethodPost, "/messages/"+url.PathEscape(messageID)+"/reactions", models.ReactRequest{Emoji: emoji}, nil)
}

func (c *Client) Notifications(ctx context.Context) ([]*models.Notification, error) {
	var out []*models.Notification
	if err := c.do(ctx, http.MethodGet, "/notifications", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Upload sends an image or voice clip and returns its hosted URL.
func (c *Client) Upload(ctx context.Context, filename, contentType string, r io.Reader) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/uploads", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out struct {
		URL string `json:"url"`
	}
	if err := c.send(req, &out); err != nil {
		return "", err
	}
	return out.URL, nil
}
