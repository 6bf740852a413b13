package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"
)

// Eventos del canal en vivo.
const (
	EventConnected       = "connected"
	EventConnectError    = "connect_error"
	EventNotificationNew = "notification:new"
)

const (
	DefaultMaxAttempts    = 10
	DefaultReconnectDelay = 2 * time.Second

	handshakeWriteTimeout = 10 * time.Second
	readLimit             = 1 << 20
)

// ErrReconnectExhausted se agotaron los intentos de reconexión.
var ErrReconnectExhausted = errors.New("client: reconexión agotada")

// ConnectError rechazo del handshake (AUTH_MISSING, AUTH_INVALID, AUTH_USER_INACTIVE, UNAVAILABLE).
type ConnectError struct {
	Code string `json:"code"`
}

func (e *ConnectError) Error() string { return "client: conexión rechazada: " + e.Code }

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type handshake struct {
	Auth struct {
		Token string `json:"token"`
	} `json:"auth"`
}

// LiveClient mantiene el canal en vivo autenticado con un token fresco en cada handshake.
type LiveClient struct {
	url            string
	tm             *TokenManager
	onNotification func(Notification)
	onConnected    func(userID string, groups []string)
	maxAttempts    int
	delay          time.Duration
	log            zerolog.Logger
}

// LiveOption configura el LiveClient.
type LiveOption func(*LiveClient)

// WithReconnect intentos y espera entre reconexiones.
func WithReconnect(maxAttempts int, delay time.Duration) LiveOption {
	return func(lc *LiveClient) { lc.maxAttempts, lc.delay = maxAttempts, delay }
}

// WithOnConnected callback tras un handshake aceptado.
func WithOnConnected(fn func(userID string, groups []string)) LiveOption {
	return func(lc *LiveClient) { lc.onConnected = fn }
}

// WithLiveLogger logger del canal.
func WithLiveLogger(l zerolog.Logger) LiveOption {
	return func(lc *LiveClient) { lc.log = l }
}

// NewLiveClient wsURL es el endpoint /ws (ws:// o wss://).
func NewLiveClient(wsURL string, tm *TokenManager, onNotification func(Notification), opts ...LiveOption) *LiveClient {
	lc := &LiveClient{
		url:            wsURL,
		tm:             tm,
		onNotification: onNotification,
		maxAttempts:    DefaultMaxAttempts,
		delay:          DefaultReconnectDelay,
		log:            zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(lc)
	}
	if lc.maxAttempts < 1 {
		lc.maxAttempts = 1
	}
	return lc
}

// Run conecta y reconecta hasta que ctx termine, la sesión se pierda o se agoten los intentos.
// Una sesión que llegó a conectarse reinicia el contador de intentos.
func (lc *LiveClient) Run(ctx context.Context) error {
	failures := 0
	for {
		established, err := lc.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrMustReauthenticate) {
			return err
		}
		var ce *ConnectError
		if errors.As(err, &ce) {
			switch ce.Code {
			case "AUTH_INVALID":
				// el token pudo vencer entre el refresco y el handshake
				if _, rerr := lc.tm.Refresh(ctx); rerr != nil {
					return rerr
				}
			case "AUTH_MISSING", "AUTH_USER_INACTIVE":
				return err
			}
		}
		if established {
			failures = 0
		}
		failures++
		if failures >= lc.maxAttempts {
			return fmt.Errorf("%w: %v", ErrReconnectExhausted, err)
		}
		lc.log.Warn().Err(err).Int("attempt", failures).Msg("canal en vivo caído; reconectando")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lc.delay):
		}
	}
}

func (lc *LiveClient) session(ctx context.Context) (established bool, err error) {
	token, err := lc.tm.AccessToken(ctx)
	if err != nil {
		return false, err
	}
	conn, _, err := websocket.Dial(ctx, lc.url, nil)
	if err != nil {
		return false, err
	}
	defer conn.CloseNow()
	conn.SetReadLimit(readLimit)

	var hs handshake
	hs.Auth.Token = token
	wctx, cancel := context.WithTimeout(ctx, handshakeWriteTimeout)
	err = wsjson.Write(wctx, conn, hs)
	cancel()
	if err != nil {
		return false, err
	}

	for {
		var env envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			return established, err
		}
		switch env.Event {
		case EventConnected:
			var p struct {
				UserID string   `json:"user_id"`
				Groups []string `json:"groups"`
			}
			_ = json.Unmarshal(env.Data, &p)
			established = true
			if lc.onConnected != nil {
				lc.onConnected(p.UserID, p.Groups)
			}
		case EventConnectError:
			ce := &ConnectError{}
			_ = json.Unmarshal(env.Data, ce)
			return established, ce
		case EventNotificationNew:
			var n Notification
			if err := json.Unmarshal(env.Data, &n); err != nil {
				lc.log.Warn().Err(err).Msg("notificación en vivo descartada")
				continue
			}
			if lc.onNotification != nil {
				lc.onNotification(n)
			}
		}
	}
}
