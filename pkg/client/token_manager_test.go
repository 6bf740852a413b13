package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/contratos-api/pkg/jwt"
)

const apiSecret = "secreto-api"

// fakeAPI servidor de auth con rotación de refresh de un solo uso.
type fakeAPI struct {
	t   *testing.T
	srv *httptest.Server

	mu        sync.Mutex
	access    string
	refresh   string
	accessTTL time.Duration
	seq       int
	revoked   []string

	refreshGate chan struct{} // si no es nil, /refresh espera hasta que se cierre

	refreshCalls atomic.Int32
	dataCalls    atomic.Int32
	refreshFails atomic.Bool
	alwaysExpire atomic.Bool
	invalidAll   atomic.Bool
	lastBody     atomic.Value
	wsMode       atomic.Value // "", "drop", "inactive", "invalid-once"
	wsDials      atomic.Int32
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	api := &fakeAPI{t: t, accessTTL: 10 * time.Minute}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", api.login)
	mux.HandleFunc("POST /api/auth/refresh", api.doRefresh)
	mux.HandleFunc("POST /api/auth/logout", api.logout)
	mux.HandleFunc("/api/data", api.data)
	mux.HandleFunc("GET /api/notifications", api.listNotifications)
	mux.HandleFunc("PATCH /api/notifications/read-all", api.readAll)
	mux.HandleFunc("PATCH /api/notifications/{id}/read", api.readOne)
	mux.HandleFunc("/ws", api.live)
	api.srv = httptest.NewServer(mux)
	t.Cleanup(api.srv.Close)
	return api
}

func (a *fakeAPI) issue(w http.ResponseWriter) {
	a.mu.Lock()
	a.seq++
	access, exp, err := jwt.Generate(apiSecret, "u-1", "ana", "contratos-api", a.accessTTL)
	require.NoError(a.t, err)
	a.access = access
	a.refresh = "refresh-" + strings.Repeat("x", a.seq)
	out := map[string]any{
		"access_token":  a.access,
		"refresh_token": a.refresh,
		"expires_at":    exp,
		"user":          map[string]any{"id": "u-1", "username": "ana", "capabilities": []string{"solicitacoes"}},
	}
	a.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (a *fakeAPI) login(w http.ResponseWriter, r *http.Request) {
	var in struct{ Username, Password string }
	_ = json.NewDecoder(r.Body).Decode(&in)
	if in.Password != "s3nha" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"code": "INVALID_CREDENTIALS", "message": "credenciales inválidas"})
		return
	}
	a.issue(w)
}

func (a *fakeAPI) doRefresh(w http.ResponseWriter, r *http.Request) {
	a.refreshCalls.Add(1)
	a.mu.Lock()
	gate := a.refreshGate
	a.mu.Unlock()
	if gate != nil {
		<-gate
	}
	var in struct {
		RefreshToken string `json:"refresh_token"`
	}
	_ = json.NewDecoder(r.Body).Decode(&in)
	a.mu.Lock()
	valid := in.RefreshToken == a.refresh && !a.refreshFails.Load()
	a.mu.Unlock()
	if !valid {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"code": "INVALID_REFRESH_TOKEN", "message": "refresh inválido"})
		return
	}
	a.issue(w)
}

func (a *fakeAPI) logout(w http.ResponseWriter, r *http.Request) {
	var in struct {
		RefreshToken string `json:"refresh_token"`
	}
	_ = json.NewDecoder(r.Body).Decode(&in)
	a.mu.Lock()
	a.revoked = append(a.revoked, in.RefreshToken)
	a.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

// authorized responde 401 y devuelve false si el bearer no es el access token vigente.
func (a *fakeAPI) authorized(w http.ResponseWriter, r *http.Request) bool {
	a.mu.Lock()
	current := a.access
	a.mu.Unlock()
	if r.Header.Get("Authorization") != "Bearer "+current {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"code": "TOKEN_EXPIRED"})
		return false
	}
	return true
}

func (a *fakeAPI) data(w http.ResponseWriter, r *http.Request) {
	a.dataCalls.Add(1)
	body, _ := io.ReadAll(r.Body)
	a.lastBody.Store(string(body))
	a.mu.Lock()
	current := a.access
	a.mu.Unlock()
	switch got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "); {
	case got == "":
		writeJSON(w, http.StatusUnauthorized, map[string]string{"code": "MISSING_TOKEN"})
	case a.invalidAll.Load():
		writeJSON(w, http.StatusUnauthorized, map[string]string{"code": "INVALID_TOKEN", "message": "token inválido"})
	case got != current || a.alwaysExpire.Load():
		writeJSON(w, http.StatusUnauthorized, map[string]string{"code": "TOKEN_EXPIRED", "message": "token expirado"})
	default:
		writeJSON(w, http.StatusOK, map[string]string{"ok": "sí"})
	}
}

// expireCurrent el servidor deja de aceptar el access token actual sin que el cliente lo sepa.
func (a *fakeAPI) expireCurrent() {
	a.mu.Lock()
	a.access = "revocado"
	a.mu.Unlock()
}

func (a *fakeAPI) setTTL(d time.Duration) {
	a.mu.Lock()
	a.accessTTL = d
	a.mu.Unlock()
}

func (a *fakeAPI) setGate(ch chan struct{}) {
	a.mu.Lock()
	a.refreshGate = ch
	a.mu.Unlock()
}

func (a *fakeAPI) currentRefresh() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.refresh
}

func (a *fakeAPI) revokedTokens() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.revoked...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newManager(t *testing.T, api *fakeAPI, opts ...Option) (*TokenManager, *CredentialStore) {
	t.Helper()
	store, _, _ := newStores(t)
	tm := NewTokenManager(api.srv.URL, store, opts...)
	t.Cleanup(tm.Stop)
	return tm, store
}

func login(t *testing.T, tm *TokenManager, remember bool) {
	t.Helper()
	_, err := tm.Login(context.Background(), "ana", "s3nha", remember)
	require.NoError(t, err)
}

func tokenWithTTL(t *testing.T, ttl time.Duration) string {
	t.Helper()
	tok, _, err := jwt.Generate(apiSecret, "u-1", "ana", "contratos-api", ttl)
	require.NoError(t, err)
	return tok
}

// ── IsAuthenticated / NeedsRefresh ──

func TestIsAuthenticated_TokensInvalidos(t *testing.T) {
	store, _, mem := newStores(t)
	tm := NewTokenManager("http://localhost", store)
	assert.False(t, tm.IsAuthenticated(), "sin token")

	for _, tok := range []string{"", "abc", "a.b.c", "eyJhbGciOiJIUzI1NiJ9.e30.x", tokenWithTTL(t, -time.Minute)} {
		require.NoError(t, mem.Save(Credentials{AccessToken: tok, RefreshToken: "r"}))
		assert.False(t, tm.IsAuthenticated(), "token %q", tok)
		assert.True(t, tm.NeedsRefresh(), "token %q", tok)
	}
}

func TestIsAuthenticated_FalsoTrasElVencimiento(t *testing.T) {
	store, _, mem := newStores(t)
	tok := tokenWithTTL(t, 10*time.Minute)
	exp, err := jwt.ExpiresAt(tok)
	require.NoError(t, err)
	require.NoError(t, mem.Save(Credentials{AccessToken: tok, RefreshToken: "r"}))

	for _, offset := range []time.Duration{-10 * time.Minute, -2 * time.Minute, -61 * time.Second, -59 * time.Second, -time.Second, 0, time.Second, time.Hour} {
		now := exp.Add(offset)
		tm := NewTokenManager("http://localhost", store, WithClock(func() time.Time { return now }))
		assert.Equal(t, now.Before(exp), tm.IsAuthenticated(), "offset %s", offset)
		assert.Equal(t, exp.Sub(now) < RefreshThreshold, tm.NeedsRefresh(), "offset %s", offset)
	}
}

// ── Login / Refresh ──

func TestLogin_EligeAmbito(t *testing.T) {
	api := newFakeAPI(t)
	for _, remember := range []bool{true, false} {
		tm, store := newManager(t, api)
		login(t, tm, remember)
		_, scope, err := store.Active()
		require.NoError(t, err)
		want := ScopeEphemeral
		if remember {
			want = ScopePersistent
		}
		assert.Equal(t, want, scope)
		assert.True(t, tm.IsAuthenticated())
	}

	tm, _ := newManager(t, api)
	_, err := tm.Login(context.Background(), "ana", "errada", false)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRefresh_SingleFlight(t *testing.T) {
	api := newFakeAPI(t)
	tm, _ := newManager(t, api)
	login(t, tm, false)
	gate := make(chan struct{})
	api.setGate(gate)

	const n = 20
	results := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = tm.Refresh(context.Background())
		}(i)
	}
	require.Eventually(t, func() bool { return api.refreshCalls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, int32(1), api.refreshCalls.Load(), "un único intercambio")
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0], results[i])
	}
	assert.True(t, tm.IsAuthenticated())
}

func TestRefresh_ConservaAmbito(t *testing.T) {
	api := newFakeAPI(t)
	for _, remember := range []bool{true, false} {
		tm, store := newManager(t, api)
		login(t, tm, remember)
		_, before, err := store.Active()
		require.NoError(t, err)

		tok, err := tm.Refresh(context.Background())
		require.NoError(t, err)

		creds, after, err := store.Active()
		require.NoError(t, err)
		assert.Equal(t, before, after)
		assert.Equal(t, tok, creds.AccessToken)
		assert.Equal(t, api.currentRefresh(), creds.RefreshToken, "ambos tokens se reemplazan juntos")
	}
}

func TestRefresh_FalloCierraSesion(t *testing.T) {
	api := newFakeAPI(t)
	var ended atomic.Bool
	tm, store := newManager(t, api, WithSessionEnd(func(error) { ended.Store(true) }))
	login(t, tm, true)
	api.refreshFails.Store(true)

	_, err := tm.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrMustReauthenticate)
	_, _, err = store.Active()
	assert.ErrorIs(t, err, ErrNoSession)
	assert.False(t, tm.IsAuthenticated())
	assert.True(t, ended.Load())
}

func TestRefresh_TimeoutCuentaComoFallo(t *testing.T) {
	api := newFakeAPI(t)
	tm, store := newManager(t, api, WithRefreshTimeout(50*time.Millisecond))
	login(t, tm, false)
	gate := make(chan struct{})
	api.setGate(gate)
	t.Cleanup(func() { close(gate) })

	_, err := tm.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrMustReauthenticate)
	_, _, err = store.Active()
	assert.ErrorIs(t, err, ErrNoSession)
}

// ── Do ──

func TestDo_ReintentaUnaVezConTokenExpired(t *testing.T) {
	api := newFakeAPI(t)
	tm, _ := newManager(t, api)
	login(t, tm, false)
	api.expireCurrent()

	req, err := http.NewRequest(http.MethodPost, api.srv.URL+"/api/data", strings.NewReader(`{"valor":"1500.00"}`))
	require.NoError(t, err)
	resp, err := tm.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(2), api.dataCalls.Load())
	assert.Equal(t, int32(1), api.refreshCalls.Load())
	assert.Equal(t, `{"valor":"1500.00"}`, api.lastBody.Load(), "el reintento reenvía el mismo cuerpo")
}

func TestDo_SegundoRechazoFuerzaLogout(t *testing.T) {
	api := newFakeAPI(t)
	tm, store := newManager(t, api)
	login(t, tm, true)
	api.alwaysExpire.Store(true)

	req, err := http.NewRequest(http.MethodGet, api.srv.URL+"/api/data", nil)
	require.NoError(t, err)
	_, err = tm.Do(req)
	assert.ErrorIs(t, err, ErrMustReauthenticate)
	assert.Equal(t, int32(2), api.dataCalls.Load(), "como máximo un reintento")
	_, _, err = store.Active()
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestDo_RefrescaAntesSiEstaPorVencer(t *testing.T) {
	api := newFakeAPI(t)
	api.setTTL(30 * time.Second)
	tm, _ := newManager(t, api)
	login(t, tm, false)
	api.setTTL(10 * time.Minute)

	req, err := http.NewRequest(http.MethodGet, api.srv.URL+"/api/data", nil)
	require.NoError(t, err)
	resp, err := tm.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, int32(1), api.refreshCalls.Load())
	assert.Equal(t, int32(1), api.dataCalls.Load())
}

func TestDo_OtroCodigo401NoReintenta(t *testing.T) {
	api := newFakeAPI(t)
	tm, store := newManager(t, api)
	login(t, tm, false)
	api.invalidAll.Store(true)

	req, err := http.NewRequest(http.MethodGet, api.srv.URL+"/api/data", nil)
	require.NoError(t, err)
	resp, err := tm.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	var body APIError
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body), "el cuerpo sigue legible")
	assert.Equal(t, "INVALID_TOKEN", body.Code)
	assert.Equal(t, int32(1), api.dataCalls.Load())
	assert.Zero(t, api.refreshCalls.Load())
	_, _, err = store.Active()
	assert.NoError(t, err, "la sesión sigue")
}

func TestDo_SinSesion(t *testing.T) {
	api := newFakeAPI(t)
	tm, _ := newManager(t, api)
	req, err := http.NewRequest(http.MethodGet, api.srv.URL+"/api/data", nil)
	require.NoError(t, err)
	_, err = tm.Do(req)
	assert.ErrorIs(t, err, ErrMustReauthenticate)
	assert.Zero(t, api.dataCalls.Load())
}

// ── Timer / Logout ──

func TestStart_RefrescoProactivo(t *testing.T) {
	api := newFakeAPI(t)
	api.setTTL(30 * time.Second)
	tm, _ := newManager(t, api, WithCheckInterval(10*time.Millisecond))
	login(t, tm, false)
	api.setTTL(10 * time.Minute)

	tm.Start()
	tm.Start()
	require.Eventually(t, func() bool { return api.refreshCalls.Load() >= 1 }, time.Second, 5*time.Millisecond)
	tm.Stop()
	tm.Stop()

	calls := api.refreshCalls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, api.refreshCalls.Load(), "tras Stop no hay más refrescos")
	assert.False(t, tm.NeedsRefresh())
}

func TestLogout_RevocaYBorra(t *testing.T) {
	api := newFakeAPI(t)
	tm, store := newManager(t, api)
	login(t, tm, true)
	refresh := api.currentRefresh()
	tm.Start()

	require.NoError(t, tm.Logout(context.Background()))
	assert.Equal(t, []string{refresh}, api.revokedTokens())
	_, _, err := store.Active()
	assert.ErrorIs(t, err, ErrNoSession)
	assert.False(t, tm.IsAuthenticated())
}
