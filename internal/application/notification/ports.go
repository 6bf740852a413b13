package notification

// Emitter entrega en vivo (best-effort) hacia los grupos del canal WebSocket.
// Lo implementa *realtime.Hub; un error aquí nunca aborta la operación que notifica.
type Emitter interface {
	EmitToUser(userID, event string, payload any) error
}
