package ws

import (
	"context"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

const controlWriteWait = 5 * time.Second

// fiberSocket adapta *websocket.Conn (fasthttp) a Socket.
type fiberSocket struct {
	*websocket.Conn
}

func (s fiberSocket) WriteJSON(v any) error {
	_ = s.Conn.SetWriteDeadline(time.Now().Add(controlWriteWait))
	return s.Conn.WriteJSON(v)
}

func (s fiberSocket) Ping() error {
	return s.Conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(controlWriteWait))
}

func (s fiberSocket) CloseWithCode(code int, reason string) error {
	_ = s.Conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(controlWriteWait))
	return s.Conn.Close()
}

// RequireUpgrade middleware para la ruta /ws: solo deja pasar pedidos de upgrade.
func RequireUpgrade() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

// Handler handler Fiber del endpoint /ws.
func (g *Gateway) Handler() fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		g.Serve(context.Background(), fiberSocket{Conn: c})
	})
}
