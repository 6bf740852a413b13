package client

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// live imita el gateway: handshake {auth:{token}}, connected y un notification:new.
func (a *fakeAPI) live(w http.ResponseWriter, r *http.Request) {
	a.wsDials.Add(1)
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.CloseNow()
	mode, _ := a.wsMode.Load().(string)
	if mode == "drop" {
		_ = conn.Close(websocket.StatusGoingAway, "reinicio")
		return
	}

	ctx := r.Context()
	var hs handshake
	if err := wsjson.Read(ctx, conn, &hs); err != nil {
		return
	}
	a.mu.Lock()
	current := a.access
	a.mu.Unlock()

	reject := func(code string) {
		_ = wsjson.Write(ctx, conn, map[string]any{"event": EventConnectError, "data": map[string]string{"code": code}})
		_ = conn.Close(websocket.StatusPolicyViolation, code)
	}
	switch {
	case mode == "inactive":
		reject("AUTH_USER_INACTIVE")
		return
	case mode == "invalid-once":
		a.wsMode.Store("")
		reject("AUTH_INVALID")
		return
	case hs.Auth.Token != current:
		reject("AUTH_INVALID")
		return
	}

	_ = wsjson.Write(ctx, conn, map[string]any{
		"event": EventConnected,
		"data":  map[string]any{"user_id": "u-1", "groups": []string{"user:u-1"}},
	})
	_ = wsjson.Write(ctx, conn, map[string]any{
		"event": EventNotificationNew,
		"data":  map[string]any{"id": "n-1", "kind": "request_approved", "title": "Solicitação aprovada"},
	})
	// el tipo desconocido se descarta sin cortar el canal
	_ = wsjson.Write(ctx, conn, map[string]any{
		"event": EventNotificationNew,
		"data":  map[string]any{"id": "n-x", "kind": "request_archived"},
	})
	_ = wsjson.Write(ctx, conn, map[string]any{
		"event": EventNotificationNew,
		"data":  map[string]any{"id": "n-2", "kind": "request_created", "title": "Nova solicitação"},
	})
	_, _, _ = conn.Read(ctx)
}

func wsURL(api *fakeAPI) string {
	return "ws" + strings.TrimPrefix(api.srv.URL, "http") + "/ws"
}

type collector struct {
	mu  sync.Mutex
	ids []string
}

func (c *collector) add(n Notification) {
	c.mu.Lock()
	c.ids = append(c.ids, n.ID)
	c.mu.Unlock()
}

func (c *collector) got() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.ids...)
}

func TestLiveClient_RecibeNotificaciones(t *testing.T) {
	api := newFakeAPI(t)
	tm, _ := newManager(t, api)
	login(t, tm, false)

	var (
		col    collector
		groups []string
		mu     sync.Mutex
	)
	lc := NewLiveClient(wsURL(api), tm, col.add, WithOnConnected(func(_ string, g []string) {
		mu.Lock()
		groups = g
		mu.Unlock()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- lc.Run(ctx) }()

	require.Eventually(t, func() bool { return len(col.got()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"n-1", "n-2"}, col.got())
	mu.Lock()
	assert.Equal(t, []string{"user:u-1"}, groups)
	mu.Unlock()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run no terminó al cancelar")
	}
}

func TestLiveClient_ReconexionAcotada(t *testing.T) {
	api := newFakeAPI(t)
	tm, _ := newManager(t, api)
	login(t, tm, false)
	api.wsMode.Store("drop")

	lc := NewLiveClient(wsURL(api), tm, nil, WithReconnect(4, time.Millisecond))
	err := lc.Run(context.Background())
	assert.ErrorIs(t, err, ErrReconnectExhausted)
	assert.Equal(t, int32(4), api.wsDials.Load())
}

func TestLiveClient_UsuarioInactivoNoReintenta(t *testing.T) {
	api := newFakeAPI(t)
	tm, _ := newManager(t, api)
	login(t, tm, false)
	api.wsMode.Store("inactive")

	lc := NewLiveClient(wsURL(api), tm, nil, WithReconnect(5, time.Millisecond))
	err := lc.Run(context.Background())
	var ce *ConnectError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "AUTH_USER_INACTIVE", ce.Code)
	assert.Equal(t, int32(1), api.wsDials.Load())
}

func TestLiveClient_AuthInvalidRefrescaYReconecta(t *testing.T) {
	api := newFakeAPI(t)
	tm, _ := newManager(t, api)
	login(t, tm, false)
	api.wsMode.Store("invalid-once")

	var col collector
	lc := NewLiveClient(wsURL(api), tm, col.add, WithReconnect(3, time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = lc.Run(ctx) }()

	require.Eventually(t, func() bool { return len(col.got()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), api.refreshCalls.Load())
	assert.Equal(t, int32(2), api.wsDials.Load())
}

func TestLiveClient_SinSesion(t *testing.T) {
	api := newFakeAPI(t)
	tm, _ := newManager(t, api)

	lc := NewLiveClient(wsURL(api), tm, nil)
	err := lc.Run(context.Background())
	assert.ErrorIs(t, err, ErrMustReauthenticate)
	assert.Zero(t, api.wsDials.Load())
}
