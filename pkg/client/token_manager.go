// Package client SDK Go para la API de contratos: ciclo de vida de tokens, canal en vivo
// y store de notificaciones.
package client

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

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/jhoicas/contratos-api/pkg/jwt"
)

const (
	// RefreshThreshold margen antes del vencimiento a partir del cual se refresca.
	RefreshThreshold = 60 * time.Second
	// CheckInterval frecuencia del refresco proactivo.
	CheckInterval = 30 * time.Second

	defaultRefreshTimeout = 10 * time.Second
	codeTokenExpired      = "TOKEN_EXPIRED"
)

var (
	// ErrMustReauthenticate la sesión terminó (refresh fallido o rechazo persistente); hay que hacer login.
	ErrMustReauthenticate = errors.New("client: es necesario autenticarse de nuevo")
	// ErrInvalidCredentials usuario o contraseña incorrectos.
	ErrInvalidCredentials = errors.New("client: credenciales inválidas")
)

// APIError respuesta de error de la API ({code, message}).
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("client: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
}

// User usuario autenticado tal como lo devuelve /api/auth.
type User struct {
	ID           string   `json:"id"`
	Username     string   `json:"username"`
	Email        string   `json:"email"`
	Name         string   `json:"name"`
	IsAdmin      bool     `json:"is_admin"`
	Capabilities []string `json:"capabilities"`
	Active       bool     `json:"active"`
}

type tokenResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         User      `json:"user"`
}

// TokenManager garantiza que cada llamada y cada handshake del canal en vivo presenten
// un access token vigente. Los refrescos concurrentes comparten un único intercambio.
type TokenManager struct {
	baseURL        string
	httpClient     *http.Client
	store          *CredentialStore
	log            zerolog.Logger
	now            func() time.Time
	refreshTimeout time.Duration
	checkInterval  time.Duration
	onSessionEnd   func(error)

	flight singleflight.Group

	timerMu sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
}

// Option configura el TokenManager.
type Option func(*TokenManager)

// WithHTTPClient reemplaza el cliente HTTP.
func WithHTTPClient(h *http.Client) Option {
	return func(tm *TokenManager) { tm.httpClient = h }
}

// WithRefreshTimeout límite del intercambio de refresh; al vencer cuenta como fallo.
func WithRefreshTimeout(d time.Duration) Option {
	return func(tm *TokenManager) { tm.refreshTimeout = d }
}

// WithCheckInterval frecuencia del refresco proactivo.
func WithCheckInterval(d time.Duration) Option {
	return func(tm *TokenManager) { tm.checkInterval = d }
}

// WithLogger logger del SDK.
func WithLogger(l zerolog.Logger) Option {
	return func(tm *TokenManager) { tm.log = l }
}

// WithClock reloj usado para evaluar vencimientos.
func WithClock(now func() time.Time) Option {
	return func(tm *TokenManager) { tm.now = now }
}

// WithSessionEnd se invoca cuando la sesión termina sin logout explícito.
func WithSessionEnd(fn func(error)) Option {
	return func(tm *TokenManager) { tm.onSessionEnd = fn }
}

// NewTokenManager construye el gestor para la API en baseURL.
func NewTokenManager(baseURL string, store *CredentialStore, opts ...Option) *TokenManager {
	tm := &TokenManager{
		baseURL:        strings.TrimRight(baseURL, "/"),
		httpClient:     &http.Client{Timeout: 15 * time.Second},
		store:          store,
		log:            zerolog.Nop(),
		now:            time.Now,
		refreshTimeout: defaultRefreshTimeout,
		checkInterval:  CheckInterval,
	}
	for _, opt := range opts {
		opt(tm)
	}
	return tm
}

// IsAuthenticated false si no hay token, no se puede decodificar o ya venció.
func (tm *TokenManager) IsAuthenticated() bool {
	creds, _, err := tm.store.Active()
	if err != nil || creds.AccessToken == "" {
		return false
	}
	exp, err := jwt.ExpiresAt(creds.AccessToken)
	if err != nil {
		return false
	}
	return tm.now().Before(exp)
}

// NeedsRefresh true si faltan menos de RefreshThreshold para el vencimiento
// o si el token no se puede interpretar.
func (tm *TokenManager) NeedsRefresh() bool {
	creds, _, err := tm.store.Active()
	if err != nil {
		return true
	}
	return tm.needsRefresh(creds.AccessToken)
}

func (tm *TokenManager) needsRefresh(accessToken string) bool {
	exp, err := jwt.ExpiresAt(accessToken)
	if err != nil {
		return true
	}
	return exp.Sub(tm.now()) < RefreshThreshold
}

// Login autentica y guarda el par en el ámbito persistente si remember, si no en el efímero.
func (tm *TokenManager) Login(ctx context.Context, username, password string, remember bool) (*User, error) {
	var out tokenResponse
	err := tm.postJSON(ctx, "/api/auth/login", map[string]any{
		"username": username,
		"password": password,
		"remember": remember,
	}, &out)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: %s", ErrInvalidCredentials, apiErr.Message)
		}
		return nil, err
	}
	scope := ScopeEphemeral
	if remember {
		scope = ScopePersistent
	}
	if err := tm.store.Put(scope, Credentials{
		AccessToken:  out.AccessToken,
		RefreshToken: out.RefreshToken,
		ExpiresAt:    out.ExpiresAt,
	}); err != nil {
		return nil, err
	}
	return &out.User, nil
}

// Refresh intercambia el refresh token por un par nuevo. Si ya hay un intercambio en curso,
// espera ese mismo resultado. Ante cualquier fallo borra las credenciales de ambos ámbitos
// y devuelve ErrMustReauthenticate.
func (tm *TokenManager) Refresh(ctx context.Context) (string, error) {
	ch := tm.flight.DoChan("refresh", func() (any, error) {
		return tm.exchange()
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// exchange corre desacoplado del contexto de quien lo disparó: lo comparten todos los que esperan.
func (tm *TokenManager) exchange() (string, error) {
	creds, _, err := tm.store.Active()
	if err != nil {
		return "", tm.endSession(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), tm.refreshTimeout)
	defer cancel()

	var out tokenResponse
	if err := tm.postJSON(ctx, "/api/auth/refresh", map[string]string{"refresh_token": creds.RefreshToken}, &out); err != nil {
		return "", tm.endSession(err)
	}
	scope, err := tm.store.Replace(Credentials{
		AccessToken:  out.AccessToken,
		RefreshToken: out.RefreshToken,
		ExpiresAt:    out.ExpiresAt,
	})
	if err != nil {
		return "", tm.endSession(err)
	}
	tm.log.Debug().Str("scope", string(scope)).Time("expires_at", out.ExpiresAt).Msg("tokens renovados")
	return out.AccessToken, nil
}

// AccessToken devuelve un access token vigente, refrescando antes si hace falta.
func (tm *TokenManager) AccessToken(ctx context.Context) (string, error) {
	creds, _, err := tm.store.Active()
	if err != nil {
		if errors.Is(err, ErrNoSession) {
			return "", ErrMustReauthenticate
		}
		return "", err
	}
	if tm.needsRefresh(creds.AccessToken) {
		return tm.Refresh(ctx)
	}
	return creds.AccessToken, nil
}

// Do envía req con el bearer vigente. Si la API responde TOKEN_EXPIRED refresca y reintenta
// una sola vez; un segundo rechazo termina la sesión.
// Con cuerpo, req debe poder rebobinarse (GetBody), como hace http.NewRequest con buffers.
func (tm *TokenManager) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	token, err := tm.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := tm.send(req, req.Body, token)
	if err != nil {
		return nil, err
	}
	if !tokenExpired(resp) {
		return resp, nil
	}
	resp.Body.Close()

	token, err = tm.refreshStale(ctx, token)
	if err != nil {
		return nil, err
	}
	var body io.ReadCloser
	if req.Body != nil && req.Body != http.NoBody {
		if req.GetBody == nil {
			return nil, errors.New("client: la petición no se puede reintentar (sin GetBody)")
		}
		if body, err = req.GetBody(); err != nil {
			return nil, err
		}
	}
	resp, err = tm.send(req, body, token)
	if err != nil {
		return nil, err
	}
	if tokenExpired(resp) {
		resp.Body.Close()
		return nil, tm.endSession(errors.New("token rechazado tras refrescar"))
	}
	return resp, nil
}

// refreshStale evita un segundo intercambio si otra llamada ya rotó el token que falló.
func (tm *TokenManager) refreshStale(ctx context.Context, stale string) (string, error) {
	if creds, _, err := tm.store.Active(); err == nil && creds.AccessToken != stale && !tm.needsRefresh(creds.AccessToken) {
		return creds.AccessToken, nil
	}
	return tm.Refresh(ctx)
}

func (tm *TokenManager) send(req *http.Request, body io.ReadCloser, token string) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.Body = body
	out.Header.Set("Authorization", "Bearer "+token)
	return tm.httpClient.Do(out)
}

// tokenExpired lee el código de un 401 y deja el cuerpo intacto para el llamador.
func tokenExpired(resp *http.Response) bool {
	if resp.StatusCode != http.StatusUnauthorized {
		return false
	}
	b, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(b))
	if err != nil {
		return false
	}
	var e APIError
	return json.Unmarshal(b, &e) == nil && e.Code == codeTokenExpired
}

// Start arranca el refresco proactivo; llamadas repetidas no crean otro timer.
func (tm *TokenManager) Start() {
	tm.timerMu.Lock()
	defer tm.timerMu.Unlock()
	if tm.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	tm.cancel, tm.done = cancel, done

	go func() {
		defer close(done)
		ticker := time.NewTicker(tm.checkInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, _, err := tm.store.Active(); err != nil {
					continue
				}
				if !tm.NeedsRefresh() {
					continue
				}
				if _, err := tm.Refresh(ctx); err != nil && ctx.Err() == nil {
					tm.log.Warn().Err(err).Msg("refresco proactivo fallido")
				}
			}
		}
	}()
}

// Stop detiene el refresco proactivo y espera a que termine.
func (tm *TokenManager) Stop() {
	tm.timerMu.Lock()
	cancel, done := tm.cancel, tm.done
	tm.cancel, tm.done = nil, nil
	tm.timerMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Logout revoca el refresh token en la API (best-effort) y borra la sesión local.
func (tm *TokenManager) Logout(ctx context.Context) error {
	tm.Stop()
	if creds, _, err := tm.store.Active(); err == nil {
		ctx, cancel := context.WithTimeout(ctx, tm.refreshTimeout)
		defer cancel()
		if err := tm.postJSON(ctx, "/api/auth/logout", map[string]string{"refresh_token": creds.RefreshToken}, nil); err != nil {
			tm.log.Warn().Err(err).Msg("logout remoto fallido; se borra la sesión local")
		}
	}
	return tm.store.Clear()
}

// endSession cierre fail-closed: borra ambos ámbitos, cancela el timer sin esperarlo
// (puede ser el propio timer quien llama) y avisa.
func (tm *TokenManager) endSession(cause error) error {
	if err := tm.store.Clear(); err != nil {
		tm.log.Error().Err(err).Msg("borrar credenciales")
	}
	tm.timerMu.Lock()
	if tm.cancel != nil {
		tm.cancel()
		tm.cancel, tm.done = nil, nil
	}
	tm.timerMu.Unlock()

	tm.log.Info().Err(cause).Msg("sesión terminada")
	if tm.onSessionEnd != nil {
		tm.onSessionEnd(cause)
	}
	return fmt.Errorf("%w: %v", ErrMustReauthenticate, cause)
}

func (tm *TokenManager) postJSON(ctx context.Context, path string, in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tm.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := tm.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		return apiErr
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
