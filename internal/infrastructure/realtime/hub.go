// Package realtime registro de conexiones en vivo y difusión por grupos.
package realtime

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jhoicas/contratos-api/internal/application/notification"
	"github.com/jhoicas/contratos-api/internal/domain"
)

var _ notification.Emitter = (*Hub)(nil)

const (
	defaultSendBuffer = 64
	pingInterval      = 30 * time.Second
)

// Conn lado de escritura de un socket. Solo el writer del cliente lo usa después de Attach.
type Conn interface {
	WriteJSON(v any) error
	Ping() error
	Close() error
}

// Envelope trama del canal: {"event": ..., "data": ...}.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// UserGroup grupo personal de un usuario.
func UserGroup(userID string) string {
	return "user:" + userID
}

// Client conexión admitida. Los envíos pasan por un buffer propio; si se llena la trama se descarta
// para que un socket lento no frene a los demás.
type Client struct {
	UserID string
	Groups []string

	conn      Conn
	send      chan Envelope
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// Done se cierra al desasociar el cliente del hub.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Stopped se cierra cuando el writer terminó; a partir de ahí nadie más usa la conexión.
func (c *Client) Stopped() <-chan struct{} {
	return c.stopped
}

// Hub mapa grupo -> clientes. Es seguro para uso concurrente.
type Hub struct {
	mu      sync.RWMutex
	groups  map[string]map[*Client]struct{}
	bufSize int
	log     zerolog.Logger
}

// NewHub construye el hub; sendBuffer <= 0 usa el valor por defecto.
func NewHub(sendBuffer int, log zerolog.Logger) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = defaultSendBuffer
	}
	return &Hub{
		groups:  make(map[string]map[*Client]struct{}),
		bufSize: sendBuffer,
		log:     log,
	}
}

// Attach registra la conexión en sus grupos y arranca su writer.
func (h *Hub) Attach(conn Conn, userID string, groups []string) *Client {
	c := &Client{
		UserID:  userID,
		Groups:  groups,
		conn:    conn,
		send:    make(chan Envelope, h.bufSize),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	h.mu.Lock()
	for _, g := range groups {
		members, ok := h.groups[g]
		if !ok {
			members = make(map[*Client]struct{})
			h.groups[g] = members
		}
		members[c] = struct{}{}
	}
	h.mu.Unlock()

	go h.writeLoop(c)
	h.log.Debug().Str("user_id", userID).Strs("groups", groups).Msg("cliente conectado")
	return c
}

// Detach saca al cliente de todos sus grupos y detiene su writer. Idempotente.
// No espera al writer (puede llamarse desde él); para eso está Release.
func (h *Hub) Detach(c *Client) {
	c.closeOnce.Do(func() {
		h.mu.Lock()
		for _, g := range c.Groups {
			if members, ok := h.groups[g]; ok {
				delete(members, c)
				if len(members) == 0 {
					delete(h.groups, g)
				}
			}
		}
		h.mu.Unlock()
		close(c.done)
		h.log.Debug().Str("user_id", c.UserID).Msg("cliente desconectado")
	})
}

// Release desasocia al cliente, cierra la conexión y espera a que su writer termine.
// Después de Release la conexión puede devolverse a su dueño sin escrituras pendientes.
// No debe llamarse desde el writer.
func (h *Hub) Release(c *Client) {
	h.Detach(c)
	_ = c.conn.Close()
	<-c.stopped
}

// Send encola una trama para un cliente concreto.
func (h *Hub) Send(c *Client, event string, payload any) error {
	if !h.enqueue(c, Envelope{Event: event, Data: payload}) {
		return fmt.Errorf("%w: buffer lleno o cliente cerrado (%s)", domain.ErrTransport, c.UserID)
	}
	return nil
}

// EmitToGroup entrega best-effort a cada miembro del grupo. Un grupo vacío no es error;
// las tramas descartadas se informan con domain.ErrTransport.
func (h *Hub) EmitToGroup(group, event string, payload any) error {
	h.mu.RLock()
	members := make([]*Client, 0, len(h.groups[group]))
	for c := range h.groups[group] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	env := Envelope{Event: event, Data: payload}
	dropped := 0
	for _, c := range members {
		if !h.enqueue(c, env) {
			dropped++
		}
	}
	if dropped > 0 {
		h.log.Warn().Str("group", group).Str("event", event).Int("dropped", dropped).Msg("tramas descartadas")
		return fmt.Errorf("%w: %d de %d clientes sin entrega en %s", domain.ErrTransport, dropped, len(members), group)
	}
	return nil
}

// EmitToUser entrega al grupo personal user:{id}.
func (h *Hub) EmitToUser(userID, event string, payload any) error {
	return h.EmitToGroup(UserGroup(userID), event, payload)
}

// GroupSize cantidad de conexiones en el grupo.
func (h *Hub) GroupSize(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[group])
}

func (h *Hub) enqueue(c *Client, env Envelope) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- env:
		return true
	default:
		return false
	}
}

func (h *Hub) writeLoop(c *Client) {
	defer close(c.stopped)
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case env := <-c.send:
			if err := c.conn.WriteJSON(env); err != nil {
				h.log.Debug().Err(err).Str("user_id", c.UserID).Msg("escritura fallida; cerrando")
				_ = c.conn.Close()
				h.Detach(c)
				return
			}
		case <-ticker.C:
			if err := c.conn.Ping(); err != nil {
				_ = c.conn.Close()
				h.Detach(c)
				return
			}
		}
	}
}
