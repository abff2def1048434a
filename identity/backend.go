package identity

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

// Backend produces a session token for the current device.
type Backend interface {
	SignIn(ctx context.Context) (string, error)
}

// StaticBackend returns a token obtained out of band (implicit identity).
type StaticBackend struct {
	Token string
}

func (s StaticBackend) SignIn(context.Context) (string, error) {
	if s.Token == "" {
		return "", errors.New("no identity token configured")
	}
	return s.Token, nil
}

// AnonymousPath is where the identity backend creates anonymous sessions.
const AnonymousPath = "/api/sessions/anonymous"

// AnonymousBackend signs in anonymously against an identity service over HTTP.
type AnonymousBackend struct {
	BaseURL string
	Client  *http.Client
}

func NewAnonymousBackend(baseURL string, timeout time.Duration) *AnonymousBackend {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &AnonymousBackend{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: timeout},
	}
}

func (a *AnonymousBackend) SignIn(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+AnonymousPath, bytes.NewReader([]byte("{}")))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", err
	}
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("anonymous sign-in: status %d", resp.StatusCode)
	}
	var out Session
	if err := sonic.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("anonymous sign-in: %w", err)
	}
	if out.Token == "" {
		return "", errors.New("anonymous sign-in: empty token")
	}
	return out.Token, nil
}
