package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/equipedash/equipe-dash-go/internal/domain"
	"github.com/equipedash/equipe-dash-go/internal/port"

	"go.uber.org/zap"
)

// ============================================================
// AuthGateway implementation — GoTrue session primitives
// ============================================================

// gotrueUser is the identity shape returned by GoTrue.
type gotrueUser struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
}

func (u *gotrueUser) identity() *port.AuthIdentity {
	id := &port.AuthIdentity{ID: u.ID, Email: u.Email}
	if v, ok := u.UserMetadata["name"].(string); ok {
		id.Name = v
	}
	if v, ok := u.UserMetadata["role"].(string); ok {
		id.Role = v
	}
	if v, ok := u.UserMetadata["avatar_url"].(string); ok {
		id.PhotoURL = v
	}
	return id
}

type gotrueSession struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	ExpiresIn    int        `json:"expires_in"`
	User         gotrueUser `json:"user"`
}

type gotrueError struct {
	Message          string `json:"msg"`
	ErrorDescription string `json:"error_description"`
}

func (e *gotrueError) text() string {
	if e.Message != "" {
		return e.Message
	}
	return e.ErrorDescription
}

// doAuth executes a request against the GoTrue API. bearerToken
// overrides the default key for user-scoped endpoints (logout, user).
func (c *Client) doAuth(ctx context.Context, method, path, bearerToken string, payload any) ([]byte, error) {
	url := fmt.Sprintf("%s/auth/v1/%s", c.baseURL, path)

	var bodyReader io.Reader
	if payload != nil {
		jsonBody, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	token := bearerToken
	if token == "" {
		token = c.apiKey
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("gotrue: request failed", zap.String("path", path), zap.Error(err))
		c.metrics.IncrRemoteError("gotrue")
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var ge gotrueError
		_ = json.Unmarshal(body, &ge)
		c.logger.Warn("gotrue: non-2xx",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("message", ge.text()),
		)
		// Rejected credentials are the caller's problem; only count
		// the backend's own failures.
		if resp.StatusCode >= 500 {
			c.metrics.IncrRemoteError("gotrue")
		}
		msg := ge.text()
		if msg == "" {
			msg = fmt.Sprintf("auth request failed with status %d", resp.StatusCode)
		}
		return nil, &domain.ErrAuth{Message: msg}
	}

	return body, nil
}

// SignUp registers a new auth identity. Metadata carries the display
// name and role chosen at signup; the matching profile row is inserted
// separately by the session manager.
func (c *Client) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*port.AuthIdentity, error) {
	ctx, span := tracer.Start(ctx, "Supabase.SignUp")
	defer span.End()

	payload := map[string]any{
		"email":    email,
		"password": password,
		"data":     metadata,
	}

	body, err := c.doAuth(ctx, http.MethodPost, "signup", "", payload)
	if err != nil {
		return nil, err
	}

	// GoTrue returns either the user directly or a session wrapping it,
	// depending on whether email confirmation is enabled.
	var sess gotrueSession
	if err := json.Unmarshal(body, &sess); err == nil && sess.User.ID != "" {
		return sess.User.identity(), nil
	}
	var user gotrueUser
	if err := json.Unmarshal(body, &user); err != nil || user.ID == "" {
		return nil, &domain.ErrAuth{Message: "signup response missing user", Err: err}
	}
	return user.identity(), nil
}

// SignInWithPassword exchanges credentials for a session.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*port.AuthSession, error) {
	ctx, span := tracer.Start(ctx, "Supabase.SignInWithPassword")
	defer span.End()

	payload := map[string]any{
		"email":    email,
		"password": password,
	}

	body, err := c.doAuth(ctx, http.MethodPost, "token?grant_type=password", "", payload)
	if err != nil {
		return nil, err
	}

	var sess gotrueSession
	if err := json.Unmarshal(body, &sess); err != nil {
		return nil, &domain.ErrAuth{Message: "malformed session response", Err: err}
	}
	if sess.AccessToken == "" {
		return nil, &domain.ErrAuth{Message: "session response missing access token"}
	}

	return &port.AuthSession{
		AccessToken:  sess.AccessToken,
		RefreshToken: sess.RefreshToken,
		ExpiresIn:    sess.ExpiresIn,
		Identity:     *sess.User.identity(),
	}, nil
}

// SignOut revokes the session behind accessToken.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	ctx, span := tracer.Start(ctx, "Supabase.SignOut")
	defer span.End()

	_, err := c.doAuth(ctx, http.MethodPost, "logout", accessToken, nil)
	return err
}

// GetSession resolves the identity behind an access token; used for
// session recovery at startup.
func (c *Client) GetSession(ctx context.Context, accessToken string) (*port.AuthIdentity, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetSession")
	defer span.End()

	body, err := c.doAuth(ctx, http.MethodGet, "user", accessToken, nil)
	if err != nil {
		return nil, err
	}

	var user gotrueUser
	if err := json.Unmarshal(body, &user); err != nil || user.ID == "" {
		return nil, &domain.ErrAuth{Message: "malformed user response", Err: err}
	}
	return user.identity(), nil
}
