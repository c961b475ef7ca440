// Package auth manages the cloud account session: one initial
// username/password exchange per cold state, proactive refresh inside a fixed
// expiry margin, and single-flight serialization of concurrent callers.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/joshp123/godaikin/internal/store"
)

// ExpiryMargin is how long before expiry a token is refreshed. Matches the
// vendor app so refreshed sessions stay indistinguishable from its traffic.
const ExpiryMargin = 5 * time.Minute

const amzTarget = "AWSCognitoIdentityProviderService.InitiateAuth"

// AuthError is a terminal rejection from the identity provider. It is never
// retried automatically; repeated bad-credential attempts risk provider-side
// lockout.
type AuthError struct {
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("authentication failed: %s", e.Code)
	}
	return fmt.Sprintf("authentication failed: %s: %s", e.Code, e.Message)
}

// Config describes the identity provider account.
type Config struct {
	Region   string
	ClientID string
	Username string
	Password string

	// Endpoint overrides the provider URL derived from Region.
	Endpoint string

	// StatePath, when set, persists the session so warm starts skip the
	// password exchange. Mirror optionally replicates it to object storage.
	StatePath string
	Mirror    store.Store
}

// Manager hands out valid tokens, refreshing them as needed. Safe for
// concurrent use; callers that observe an expired token share one in-flight
// exchange.
type Manager struct {
	source *identitySource
	tokens oauth2.TokenSource
	log    zerolog.Logger
}

func NewManager(ctx context.Context, cfg Config, log zerolog.Logger) (*Manager, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client id is required")
	}
	if cfg.Username == "" {
		return nil, fmt.Errorf("username is required")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		if cfg.Region == "" {
			return nil, fmt.Errorf("region is required")
		}
		endpoint = fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/", cfg.Region)
	}

	src := &identitySource{
		ctx:        ctx,
		endpoint:   endpoint,
		clientID:   cfg.ClientID,
		username:   cfg.Username,
		password:   cfg.Password,
		statePath:  cfg.StatePath,
		mirror:     cfg.Mirror,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		log:        log.With().Str("component", "auth").Logger(),
	}

	if cfg.StatePath != "" {
		state, err := loadInitialState(ctx, cfg)
		switch {
		case err == nil:
			src.refreshToken = state.RefreshToken
		case errors.Is(err, ErrStateNotFound):
		default:
			return nil, err
		}
	}
	if src.refreshToken == "" && cfg.Password == "" {
		return nil, fmt.Errorf("password is required without a saved session")
	}

	return &Manager{
		source: src,
		tokens: oauth2.ReuseTokenSourceWithExpiry(nil, src, ExpiryMargin),
		log:    src.log,
	}, nil
}

// Token returns a valid credential tuple, performing the initial or refresh
// exchange when needed. No network call happens while the cached token is
// outside the expiry margin.
func (m *Manager) Token(ctx context.Context) (*oauth2.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	token, err := m.tokens.Token()
	if err != nil {
		return nil, err
	}
	return token, nil
}

// Authorization returns the value the device API accepts in its Authorization
// header, which is the session's ID token.
func (m *Manager) Authorization(ctx context.Context) (string, error) {
	token, err := m.Token(ctx)
	if err != nil {
		return "", err
	}
	id, _ := token.Extra("id_token").(string)
	if id == "" {
		return "", &AuthError{Code: "MissingIdToken", Message: "exchange returned no id token"}
	}
	return id, nil
}

// identitySource performs the provider exchange. Calls to Token are
// serialized by the reuse source wrapping it, so the refresh token needs no
// further locking once construction finishes.
type identitySource struct {
	ctx        context.Context
	endpoint   string
	clientID   string
	username   string
	password   string
	statePath  string
	mirror     store.Store
	httpClient *http.Client
	log        zerolog.Logger

	refreshToken string
}

type initiateAuthRequest struct {
	AuthFlow       string            `json:"AuthFlow"`
	ClientID       string            `json:"ClientId"`
	AuthParameters map[string]string `json:"AuthParameters"`
}

type authResult struct {
	AccessToken  string `json:"AccessToken"`
	IDToken      string `json:"IdToken"`
	RefreshToken string `json:"RefreshToken"`
	ExpiresIn    int    `json:"ExpiresIn"`
}

type initiateAuthResponse struct {
	AuthenticationResult *authResult `json:"AuthenticationResult"`
	ChallengeName        string      `json:"ChallengeName"`
}

type providerError struct {
	Type    string `json:"__type"`
	Message string `json:"message"`
}

func (s *identitySource) Token() (*oauth2.Token, error) {
	grant := "refresh_token"
	req := initiateAuthRequest{
		AuthFlow: "REFRESH_TOKEN_AUTH",
		ClientID: s.clientID,
		AuthParameters: map[string]string{
			"REFRESH_TOKEN": s.refreshToken,
		},
	}
	if s.refreshToken == "" {
		grant = "password"
		req = initiateAuthRequest{
			AuthFlow: "USER_PASSWORD_AUTH",
			ClientID: s.clientID,
			AuthParameters: map[string]string{
				"USERNAME": s.username,
				"PASSWORD": s.password,
			},
		}
	}

	result, err := s.initiateAuth(req)
	if err != nil {
		exchangeFailures.WithLabelValues(grant).Inc()
		tokenValid.Set(0)
		return nil, err
	}

	// The provider omits the refresh token on the refresh path; the
	// original one stays valid and is reused.
	if result.RefreshToken != "" {
		s.refreshToken = result.RefreshToken
	}

	s.persist()

	exchanges.WithLabelValues(grant).Inc()
	tokenValid.Set(1)
	s.log.Debug().Str("grant", grant).Int("expires_in", result.ExpiresIn).Msg("exchanged credentials")

	token := &oauth2.Token{
		AccessToken: result.AccessToken,
		TokenType:   "Bearer",
		Expiry:      time.Now().Add(time.Duration(result.ExpiresIn) * time.Second),
	}
	return token.WithExtra(map[string]any{"id_token": result.IDToken}), nil
}

func (s *identitySource) initiateAuth(body initiateAuthRequest) (*authResult, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode auth request: %w", err)
	}

	req, err := http.NewRequestWithContext(s.ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-amz-json-1.1")
	req.Header.Set("X-Amz-Target", amzTarget)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity provider: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read auth response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var perr providerError
		if json.Unmarshal(data, &perr) == nil && isCredentialRejection(perr.Type) {
			return nil, &AuthError{Code: trimNamespace(perr.Type), Message: perr.Message}
		}
		return nil, fmt.Errorf("identity provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var out initiateAuthResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode auth response: %w", err)
	}
	if out.AuthenticationResult == nil {
		code := "EmptyResult"
		msg := "response contained no authentication result"
		if out.ChallengeName != "" {
			code = "UnhandledChallenge"
			msg = "provider requested challenge " + out.ChallengeName
		}
		return nil, &AuthError{Code: code, Message: msg}
	}
	return out.AuthenticationResult, nil
}

func (s *identitySource) persist() {
	if s.statePath == "" {
		return
	}
	state := State{SchemaVersion: SchemaVersion, Username: s.username, RefreshToken: s.refreshToken}
	if err := WriteState(s.statePath, state); err != nil {
		statePersistOK.Set(0)
		s.log.Warn().Err(err).Msg("failed to persist session state")
		return
	}
	if s.mirror != nil {
		data, err := json.MarshalIndent(state, "", "  ")
		if err == nil {
			err = s.mirror.Save(s.ctx, data)
		}
		if err != nil {
			statePersistOK.Set(0)
			s.log.Warn().Err(err).Msg("failed to mirror session state")
			return
		}
	}
	statePersistOK.Set(1)
}

func loadInitialState(ctx context.Context, cfg Config) (State, error) {
	state, err := LoadState(cfg.StatePath)
	if err == nil {
		if state.Username != cfg.Username {
			return State{}, ErrStateNotFound
		}
		return state, nil
	}
	if !errors.Is(err, ErrStateNotFound) {
		return State{}, err
	}
	if cfg.Mirror == nil {
		return State{}, ErrStateNotFound
	}

	data, mirrorErr := cfg.Mirror.Load(ctx)
	if mirrorErr != nil {
		if errors.Is(mirrorErr, store.ErrNotFound) {
			return State{}, ErrStateNotFound
		}
		return State{}, mirrorErr
	}
	state, err = DecodeState(data)
	if err != nil {
		return State{}, err
	}
	if state.Username != cfg.Username {
		return State{}, ErrStateNotFound
	}
	if err := WriteState(cfg.StatePath, state); err != nil {
		return State{}, err
	}
	return state, nil
}

// isCredentialRejection reports whether a provider error type means the
// credentials themselves are bad, as opposed to throttling or server trouble.
func isCredentialRejection(errType string) bool {
	switch trimNamespace(errType) {
	case "NotAuthorizedException", "UserNotFoundException", "UserNotConfirmedException", "PasswordResetRequiredException":
		return true
	default:
		return false
	}
}

func trimNamespace(errType string) string {
	if i := strings.LastIndex(errType, "#"); i >= 0 {
		return errType[i+1:]
	}
	return errType
}
