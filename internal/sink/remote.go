package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"onnoon-care/eye-monitor/internal/fatigue"
)

// tokenRefreshMargin is how long before expiry the sink logs in again.
const tokenRefreshMargin = time.Minute

// RemoteSink posts records to the result store as an authenticated user.
type RemoteSink struct {
	baseURL  string
	email    string
	password string
	client   *http.Client
	clock    clock.Clock

	mu        sync.Mutex
	token     string
	expiresAt time.Time // zero when the store did not send expires_in
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// NewRemoteSink logs in and keeps the bearer token for later deliveries.
// A failed login is returned so the caller can refuse to start. The sink
// logs in again shortly before the token expires; clk may be nil.
func NewRemoteSink(ctx context.Context, baseURL, email, password string, client *http.Client, clk clock.Clock) (*RemoteSink, error) {
	if baseURL == "" {
		return nil, errors.New("remote url is empty")
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if clk == nil {
		clk = clock.New()
	}
	s := &RemoteSink{
		baseURL:  strings.TrimRight(baseURL, "/"),
		email:    email,
		password: password,
		client:   client,
		clock:    clk,
	}

	if err := s.refresh(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// bearer returns a token that is not about to expire, logging in again if needed.
func (s *RemoteSink) bearer(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.expiresAt.IsZero() && !s.clock.Now().Before(s.expiresAt.Add(-tokenRefreshMargin)) {
		if err := s.refreshLocked(ctx); err != nil {
			return "", fmt.Errorf("token refresh: %w", err)
		}
	}
	return s.token, nil
}

func (s *RemoteSink) refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshLocked(ctx)
}

func (s *RemoteSink) refreshLocked(ctx context.Context) error {
	issued := s.clock.Now()
	out, err := s.login(ctx)
	if err != nil {
		return err
	}
	s.token = out.AccessToken
	s.expiresAt = time.Time{}
	if out.ExpiresIn > 0 {
		s.expiresAt = issued.Add(time.Duration(out.ExpiresIn) * time.Second)
	}
	return nil
}

func (s *RemoteSink) login(ctx context.Context) (*loginResponse, error) {
	body, err := json.Marshal(loginRequest{Email: s.email, Password: s.password})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/auth/login", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("login failed: status %d, body: %s", resp.StatusCode, readSnippet(resp.Body))
	}

	var out loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("login failed: invalid response: %w", err)
	}
	if out.AccessToken == "" {
		return nil, errors.New("login failed: no access token in response")
	}
	return &out, nil
}

// Deliver posts one record. Any non-2xx answer is an error.
func (s *RemoteSink) Deliver(ctx context.Context, rec fatigue.Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	token, err := s.bearer(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/eye-fatigue", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post record: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("post record: status %d, body: %s", resp.StatusCode, readSnippet(resp.Body))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func readSnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	return strings.TrimSpace(string(b))
}
