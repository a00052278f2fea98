package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/mail"
	"regexp"
	"strings"
	"sync"
	"time"

	"photogram/internal/models"
	"photogram/internal/observability"

	"github.com/golang-jwt/jwt/v5"
)

// AuthStatus is the identity provider's reported authentication state.
type AuthStatus string

const (
	StatusLoading   AuthStatus = "loading"
	StatusSignedIn  AuthStatus = "signed-in"
	StatusSignedOut AuthStatus = "signed-out"
)

// backendClaimsKey is the namespaced claims block the backend requires inside
// provider tokens. A token without it is not yet usable and must be refreshed
// once the provider has attached the claims.
const backendClaimsKey = "https://photogram.app/jwt/claims"

// AuthState is one entry in the authentication-state change stream.
type AuthState struct {
	Status AuthStatus
	UserID string
	Token  string
}

// usernameRe bounds usernames to 3-20 word characters or periods.
var usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_.]{3,20}$`)

// SignUpInput is the sign-up form payload.
type SignUpInput struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Validate checks the form fields and returns per-field errors.
func (in SignUpInput) Validate() error {
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return models.NewFieldError("email", "Enter a valid email address")
	}
	if len(in.Name) < 5 || len(in.Name) > 20 {
		return models.NewFieldError("name", "Name must be 5-20 characters")
	}
	if !usernameRe.MatchString(in.Username) {
		return models.NewFieldError("username", "Username must be 3-20 letters, numbers, underscores or periods")
	}
	if len(in.Password) < 6 {
		return models.NewFieldError("password", "Password must be at least 6 characters")
	}
	return nil
}

// usernameChecker reports whether a username is already registered.
type usernameChecker interface {
	UsernameTaken(ctx context.Context, username string) (bool, error)
}

// userCreator registers the profile document for a brand-new identity.
type userCreator interface {
	CreateProfile(ctx context.Context, userID string, in SignUpInput) error
}

// Manager drives credential sign-in and sign-up against the identity provider
// and publishes authentication-state changes. Token refresh belongs to the
// provider; the manager re-reads claims after each refresh.
type Manager struct {
	authURL string
	apiKey  string
	http    *http.Client
	checker usernameChecker
	creator userCreator
	logger  *observability.Logger

	mu        sync.RWMutex
	state     AuthState
	refresh   string
	listeners map[chan AuthState]struct{}
}

// NewManager creates an auth manager in the loading state.
func NewManager(authURL, apiKey string, checker usernameChecker, creator userCreator) *Manager {
	return &Manager{
		authURL:   authURL,
		apiKey:    apiKey,
		http:      &http.Client{Timeout: 15 * time.Second},
		checker:   checker,
		creator:   creator,
		logger:    observability.GlobalLogger,
		state:     AuthState{Status: StatusLoading},
		listeners: make(map[chan AuthState]struct{}),
	}
}

// SetDirectory injects the username checker and profile creator. They depend
// on the gateway client, which in turn needs the manager's token source, so
// they are wired after construction.
func (m *Manager) SetDirectory(checker usernameChecker, creator userCreator) {
	m.checker = checker
	m.creator = creator
}

// State returns the current authentication state.
func (m *Manager) State() AuthState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Token returns the current bearer token, "" when signed out. Satisfies
// gateway.TokenSource.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Token
}

// Subscribe returns a channel delivering every subsequent auth-state change,
// starting with the current state.
func (m *Manager) Subscribe() chan AuthState {
	ch := make(chan AuthState, 8)
	m.mu.Lock()
	m.listeners[ch] = struct{}{}
	ch <- m.state
	m.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener registered with Subscribe.
func (m *Manager) Unsubscribe(ch chan AuthState) {
	m.mu.Lock()
	delete(m.listeners, ch)
	m.mu.Unlock()
}

func (m *Manager) setState(state AuthState) {
	m.mu.Lock()
	m.state = state
	for ch := range m.listeners {
		select {
		case ch <- state:
		default:
		}
	}
	m.mu.Unlock()
}

type providerTokenResponse struct {
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	LocalID      string `json:"localId"`
	Error        *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (m *Manager) call(ctx context.Context, action string, payload interface{}) (*providerTokenResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	url := fmt.Sprintf("%s/accounts:%s?key=%s", m.authURL, action, m.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.http.Do(req)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	var decoded providerTokenResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, models.NewInternalError(err)
	}
	if decoded.Error != nil {
		return nil, providerError(decoded.Error.Message)
	}
	return &decoded, nil
}

// providerError maps the provider's error codes onto the local taxonomy so
// they render as inline form errors.
func providerError(code string) error {
	switch {
	case strings.Contains(code, "EMAIL_NOT_FOUND"), strings.Contains(code, "INVALID_PASSWORD"),
		strings.Contains(code, "INVALID_LOGIN_CREDENTIALS"):
		return models.NewUnauthorizedError("Incorrect username or password")
	case strings.Contains(code, "EMAIL_EXISTS"):
		return models.NewFieldError("email", "Email already in use")
	case strings.Contains(code, "TOO_MANY_ATTEMPTS"):
		return models.NewUnauthorizedError("Too many attempts, try again later")
	default:
		return models.NewUnauthorizedError(code)
	}
}

// SignIn authenticates with email and password and publishes the signed-in
// state. The returned Session is empty until the identity subscription
// delivers its first snapshot.
func (m *Manager) SignIn(ctx context.Context, email, password string) (*Session, error) {
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, models.NewFieldError("email", "Enter a valid email address")
	}
	if password == "" {
		return nil, models.NewFieldError("password", "Password is required")
	}

	resp, err := m.call(ctx, "signInWithPassword", map[string]interface{}{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	})
	if err != nil {
		return nil, err
	}

	return m.acceptToken(ctx, resp)
}

// SignUp validates the form, rejects taken usernames, registers the identity
// with the provider, creates the profile document, and signs in.
func (m *Manager) SignUp(ctx context.Context, in SignUpInput) (*Session, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	if m.checker != nil {
		taken, err := m.checker.UsernameTaken(ctx, in.Username)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, models.NewFieldError("username", "Username already taken")
		}
	}

	resp, err := m.call(ctx, "signUp", map[string]interface{}{
		"email":             in.Email,
		"password":          in.Password,
		"returnSecureToken": true,
	})
	if err != nil {
		return nil, err
	}

	if m.creator != nil {
		if err := m.creator.CreateProfile(ctx, resp.LocalID, in); err != nil {
			return nil, err
		}
	}

	return m.acceptToken(ctx, resp)
}

// acceptToken decodes provider claims and transitions to signed-in. When the
// backend's namespaced claims block is missing the token is refreshed once;
// the provider attaches the block asynchronously for new accounts.
func (m *Manager) acceptToken(ctx context.Context, resp *providerTokenResponse) (*Session, error) {
	authUID, hasClaims, err := decodeToken(resp.IDToken)
	if err != nil {
		return nil, models.NewUnauthorizedError("Malformed identity token")
	}

	if !hasClaims {
		refreshed, err := m.refreshToken(ctx, resp.RefreshToken)
		if err != nil {
			return nil, err
		}
		resp.IDToken = refreshed
		if authUID, hasClaims, err = decodeToken(resp.IDToken); err != nil || !hasClaims {
			return nil, models.NewUnauthorizedError("Identity token missing backend claims")
		}
	}

	m.mu.Lock()
	m.refresh = resp.RefreshToken
	m.mu.Unlock()

	m.setState(AuthState{Status: StatusSignedIn, UserID: authUID, Token: resp.IDToken})
	m.logger.InfoContext(ctx, "signed in", "auth_uid", authUID)
	return NewSession(authUID), nil
}

func (m *Manager) refreshToken(ctx context.Context, refreshToken string) (string, error) {
	resp, err := m.call(ctx, "token", map[string]interface{}{
		"grant_type":    "refresh_token",
		"refresh_token": refreshToken,
	})
	if err != nil {
		return "", err
	}
	return resp.IDToken, nil
}

// SignOut transitions to signed-out and forgets the token.
func (m *Manager) SignOut(ctx context.Context) {
	m.mu.Lock()
	m.refresh = ""
	m.mu.Unlock()
	m.setState(AuthState{Status: StatusSignedOut})
	m.logger.InfoContext(ctx, "signed out")
}

// decodeToken extracts the subject uid from a provider token and reports
// whether the backend's namespaced claims block is present. The token's
// signature is the backend's concern; the client only reads claims.
func decodeToken(token string) (userID string, hasClaims bool, err error) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return "", false, err
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", false, fmt.Errorf("token missing subject")
	}

	_, ok := claims[backendClaimsKey]
	return sub, ok, nil
}
