// Package client talks to the chat server over HTTP and WebSocket. Client
// implements chatstate.API and Socket implements chatstate.Transport.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/johndosdos/dmchat/internal/chatstate"
	"github.com/johndosdos/dmchat/internal/model"
)

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: status %d", e.Status)
	}
	return fmt.Sprintf("api: status %d: %s", e.Status, e.Message)
}

// UserMessage is the text to show for err, preferring the server's message.
func UserMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			return apiErr.Message
		}
		if apiErr.Status >= http.StatusInternalServerError {
			return "Server error, try again later"
		}
		return http.StatusText(apiErr.Status)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "Request timed out"
	}
	return "Network error"
}

type Client struct {
	base *url.URL
	http *http.Client

	mu    sync.RWMutex
	token string
}

type Option func(*Client)

// WithHTTPClient replaces the default client, which times out after 15s.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithToken starts the client with an existing session token.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base url %q: scheme must be http or https", baseURL)
	}
	c := &Client{
		base: u,
		http: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SocketURL is the WebSocket endpoint matching the base URL.
func (c *Client) SocketURL() string {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String()
}

type session struct {
	model.User
	Token string `json:"token"`
}

func (c *Client) Signup(ctx context.Context, fullName, username, email, password string) (model.User, error) {
	body := map[string]string{
		"fullName": fullName,
		"username": username,
		"email":    email,
		"password": password,
	}
	return c.startSession(ctx, "/api/auth/signup", body)
}

func (c *Client) Login(ctx context.Context, email, password string) (model.User, error) {
	body := map[string]string{"email": email, "password": password}
	return c.startSession(ctx, "/api/auth/login", body)
}

func (c *Client) startSession(ctx context.Context, path string, body any) (model.User, error) {
	var s session
	if err := c.do(ctx, http.MethodPost, path, body, &s); err != nil {
		return model.User{}, err
	}
	c.mu.Lock()
	c.token = s.Token
	c.mu.Unlock()
	return s.User, nil
}

func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
	return err
}

// Me returns the signed-in user.
func (c *Client) Me(ctx context.Context) (model.User, error) {
	var u model.User
	err := c.do(ctx, http.MethodGet, "/api/auth/check", nil, &u)
	return u, err
}

func (c *Client) SendMessage(ctx context.Context, peerID string, req model.SendRequest) (model.Message, error) {
	var m model.Message
	err := c.do(ctx, http.MethodPost, "/api/messages/send/"+url.PathEscape(peerID), req, &m)
	return m, err
}

func (c *Client) FetchMessages(ctx context.Context, peerID string) ([]model.Message, error) {
	var msgs []model.Message
	err := c.do(ctx, http.MethodGet, "/api/messages/"+url.PathEscape(peerID), nil, &msgs)
	return msgs, err
}

func (c *Client) DeleteMessage(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/messages/"+url.PathEscape(id), nil, nil)
}

func (c *Client) SetReaction(ctx context.Context, messageID, emoji string) error {
	body := map[string]string{"emoji": emoji}
	return c.do(ctx, http.MethodPost, "/api/messages/"+url.PathEscape(messageID)+"/reaction", body, nil)
}

func (c *Client) ClearReaction(ctx context.Context, messageID string) error {
	return c.do(ctx, http.MethodDelete, "/api/messages/"+url.PathEscape(messageID)+"/reaction", nil, nil)
}

func (c *Client) FetchContacts(ctx context.Context) ([]model.User, error) {
	var users []model.User
	err := c.do(ctx, http.MethodGet, "/api/messages/contacts", nil, &users)
	return users, err
}

func (c *Client) FetchChatSummaries(ctx context.Context) ([]model.ChatSummary, error) {
	var chats []model.ChatSummary
	err := c.do(ctx, http.MethodGet, "/api/messages/chats", nil, &chats)
	return chats, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		p, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		r = bytes.NewReader(p)
	}

	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path

	req, err := http.NewRequestWithContext(ctx, method, u.String(), r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		apiErr := &APIError{Status: res.StatusCode}
		var e struct {
			Message string `json:"message"`
		}
		if err := json.NewDecoder(io.LimitReader(res.Body, 1<<16)).Decode(&e); err == nil {
			apiErr.Message = e.Message
		}
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

var _ chatstate.API = (*Client)(nil)
