// Package ws gateway del canal en vivo: handshake autenticado y asignación de grupos.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jhoicas/contratos-api/internal/domain"
	"github.com/jhoicas/contratos-api/internal/domain/entity"
	"github.com/jhoicas/contratos-api/internal/infrastructure/realtime"
)

// Eventos y códigos del handshake.
const (
	EventConnected    = "connected"
	EventConnectError = "connect_error"

	CodeAuthMissing      = "AUTH_MISSING"
	CodeAuthInvalid      = "AUTH_INVALID"
	CodeAuthUserInactive = "AUTH_USER_INACTIVE"
	CodeUnavailable      = "UNAVAILABLE"

	// ClosePolicyViolation código de cierre RFC 6455 para handshakes rechazados.
	ClosePolicyViolation = 1008

	defaultHandshakeTimeout = 10 * time.Second
)

// Authenticator valida el access token y devuelve el usuario con sus capacidades.
// Lo implementa *auth.AuthUseCase.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*entity.User, error)
}

// Socket conexión ya actualizada a WebSocket.
type Socket interface {
	realtime.Conn
	ReadMessage() (messageType int, p []byte, err error)
	SetReadDeadline(t time.Time) error
	CloseWithCode(code int, reason string) error
}

// ConnectError rechazo del handshake; Code viaja al cliente en connect_error.
type ConnectError struct {
	Code string
	Err  error
}

func (e *ConnectError) Error() string {
	if e.Err == nil {
		return e.Code
	}
	return e.Code + ": " + e.Err.Error()
}

func (e *ConnectError) Unwrap() error { return e.Err }

type handshake struct {
	Auth struct {
		Token string `json:"token"`
	} `json:"auth"`
}

type connectedPayload struct {
	UserID string   `json:"user_id"`
	Groups []string `json:"groups"`
}

type connectErrorPayload struct {
	Code string `json:"code"`
}

// Gateway autentica cada conexión una sola vez y la registra en el hub.
type Gateway struct {
	auth             Authenticator
	hub              *realtime.Hub
	handshakeTimeout time.Duration
	log              zerolog.Logger
}

// NewGateway construye el gateway. handshakeTimeout <= 0 usa 10s.
func NewGateway(auth Authenticator, hub *realtime.Hub, handshakeTimeout time.Duration, log zerolog.Logger) *Gateway {
	if handshakeTimeout <= 0 {
		handshakeTimeout = defaultHandshakeTimeout
	}
	return &Gateway{auth: auth, hub: hub, handshakeTimeout: handshakeTimeout, log: log}
}

// Groups grupos de un usuario admitido: siempre el personal, compras si es admin o tiene la capacidad.
// La membresía queda fija durante la vida de la conexión.
func Groups(u *entity.User) []string {
	groups := []string{realtime.UserGroup(u.ID)}
	if u.HasCapability(entity.CapabilityCompras) {
		groups = append(groups, entity.CapabilityCompras)
	}
	return groups
}

// Admit valida el token del handshake y resuelve los grupos.
func (g *Gateway) Admit(ctx context.Context, token string) (*entity.User, []string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil, &ConnectError{Code: CodeAuthMissing}
	}
	user, err := g.auth.Authenticate(ctx, token)
	if err != nil {
		return nil, nil, &ConnectError{Code: connectCode(err), Err: err}
	}
	return user, Groups(user), nil
}

// Serve atiende una conexión completa: handshake, registro y lectura hasta el cierre.
// Las tramas del cliente posteriores al handshake se ignoran. Serve no retorna mientras
// el writer del hub siga usando sock.
func (g *Gateway) Serve(ctx context.Context, sock Socket) {
	hctx, cancel := context.WithTimeout(ctx, g.handshakeTimeout)
	user, groups, err := g.handshake(hctx, sock)
	cancel()
	if err != nil {
		g.reject(sock, err)
		return
	}

	client := g.hub.Attach(sock, user.ID, groups)
	defer g.hub.Release(client)
	if err := g.hub.Send(client, EventConnected, connectedPayload{UserID: user.ID, Groups: groups}); err != nil {
		g.log.Warn().Err(err).Str("user_id", user.ID).Msg("no se pudo confirmar la conexión")
	}

	for {
		if _, _, err := sock.ReadMessage(); err != nil {
			return
		}
	}
}

func (g *Gateway) handshake(ctx context.Context, sock Socket) (*entity.User, []string, error) {
	_ = sock.SetReadDeadline(time.Now().Add(g.handshakeTimeout))
	_, raw, err := sock.ReadMessage()
	if err != nil {
		return nil, nil, &ConnectError{Code: CodeAuthMissing, Err: err}
	}
	_ = sock.SetReadDeadline(time.Time{})

	var hs handshake
	if err := json.Unmarshal(raw, &hs); err != nil {
		return nil, nil, &ConnectError{Code: CodeAuthMissing, Err: err}
	}
	return g.Admit(ctx, hs.Auth.Token)
}

func (g *Gateway) reject(sock Socket, err error) {
	code := CodeAuthInvalid
	var ce *ConnectError
	if errors.As(err, &ce) {
		code = ce.Code
	}
	ev := g.log.Info()
	if code == CodeUnavailable {
		ev = g.log.Error()
	}
	ev.Err(err).Str("code", code).Msg("handshake rechazado")

	_ = sock.WriteJSON(realtime.Envelope{Event: EventConnectError, Data: connectErrorPayload{Code: code}})
	_ = sock.CloseWithCode(ClosePolicyViolation, code)
}

// connectCode token vencido e inválido comparten código: el cliente en ambos casos refresca o reautentica.
func connectCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrAuthMissing):
		return CodeAuthMissing
	case errors.Is(err, domain.ErrAuthExpired), errors.Is(err, domain.ErrAuthInvalid):
		return CodeAuthInvalid
	case errors.Is(err, domain.ErrAuthUserInactive):
		return CodeAuthUserInactive
	default:
		return CodeUnavailable
	}
}
