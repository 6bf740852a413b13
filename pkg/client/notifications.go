package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// Kind tipo de notificación. Los desconocidos se rechazan al decodificar.
type Kind string

const (
	KindRequestCreated  Kind = "request_created"
	KindRequestApproved Kind = "request_approved"
	KindRequestRejected Kind = "request_rejected"
)

// kindRoutes página del frontend a la que enlaza cada tipo.
var kindRoutes = map[Kind]string{
	KindRequestCreated:  "/compras",
	KindRequestApproved: "/solicitacoes",
	KindRequestRejected: "/solicitacoes",
}

// Route ruta de destino del tipo.
func (k Kind) Route() string { return kindRoutes[k] }

func (k *Kind) UnmarshalText(b []byte) error {
	if _, ok := kindRoutes[Kind(b)]; !ok {
		return fmt.Errorf("client: tipo de notificación desconocido %q", string(b))
	}
	*k = Kind(b)
	return nil
}

// Notification fila de notificación tal como viaja por REST y por el canal en vivo.
type Notification struct {
	ID          string         `json:"id"`
	RecipientID string         `json:"recipient_id"`
	Kind        Kind           `json:"kind"`
	Title       string         `json:"title"`
	Body        string         `json:"body"`
	ReferenceID *string        `json:"reference_id"`
	Metadata    map[string]any `json:"metadata"`
	Read        bool           `json:"read"`
	ReadAt      *time.Time     `json:"read_at"`
	CreatedAt   time.Time      `json:"created_at"`
}

// NotificationStore lista en memoria (más recientes primero) y contador de no leídas.
// Se alimenta de la carga REST y de los eventos en vivo; un evento repetido no duplica.
type NotificationStore struct {
	mu     sync.RWMutex
	items  []Notification
	unread int
}

// NewNotificationStore store vacío.
func NewNotificationStore() *NotificationStore { return &NotificationStore{} }

// Load reemplaza el contenido con una página del servidor y su total de no leídas.
func (s *NotificationStore) Load(items []Notification, unread int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append([]Notification(nil), items...)
	s.unread = unread
}

// Add antepone una notificación recibida en vivo. false si ya estaba.
func (s *NotificationStore) Add(n Notification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.items {
		if it.ID == n.ID {
			return false
		}
	}
	s.items = append([]Notification{n}, s.items...)
	if !n.Read {
		s.unread++
	}
	return true
}

// SetUnread corrige el contador con el valor del servidor.
func (s *NotificationStore) SetUnread(n int) {
	s.mu.Lock()
	s.unread = n
	s.mu.Unlock()
}

// MarkRead marca localmente; false si no está o ya estaba leída.
func (s *NotificationStore) MarkRead(id string, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID != id {
			continue
		}
		if s.items[i].Read {
			return false
		}
		s.items[i].Read = true
		s.items[i].ReadAt = &at
		if s.unread > 0 {
			s.unread--
		}
		return true
	}
	return false
}

// MarkAllRead marca todas localmente y devuelve cuántas cambiaron.
func (s *NotificationStore) MarkAllRead(at time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for i := range s.items {
		if !s.items[i].Read {
			s.items[i].Read = true
			s.items[i].ReadAt = &at
			n++
		}
	}
	s.unread = 0
	return n
}

// Items copia de la lista.
func (s *NotificationStore) Items() []Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Notification(nil), s.items...)
}

// Unread total de no leídas.
func (s *NotificationStore) Unread() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unread
}

// Presence estado de la aplicación anfitriona.
type Presence interface {
	Backgrounded() bool
	PermissionGranted() bool
}

// DesktopNotifier aviso de escritorio best-effort con enlace a la página del tipo.
type DesktopNotifier struct {
	presence Presence
	show     func(title, body, route string) error
}

// NewDesktopNotifier show recibe la ruta de destino del clic.
func NewDesktopNotifier(presence Presence, show func(title, body, route string) error) *DesktopNotifier {
	return &DesktopNotifier{presence: presence, show: show}
}

// Notify muestra el aviso solo en segundo plano y con permiso concedido.
func (d *DesktopNotifier) Notify(n Notification) bool {
	if d == nil || !d.presence.Backgrounded() || !d.presence.PermissionGranted() {
		return false
	}
	route := n.Kind.Route()
	if route == "" {
		return false
	}
	return d.show(n.Title, n.Body, route) == nil
}

// Feed une el store con la API REST de notificaciones y con el canal en vivo.
type Feed struct {
	tm       *TokenManager
	store    *NotificationStore
	notifier *DesktopNotifier
	now      func() time.Time
}

// NewFeed notifier puede ser nil.
func NewFeed(tm *TokenManager, store *NotificationStore, notifier *DesktopNotifier) *Feed {
	return &Feed{tm: tm, store: store, notifier: notifier, now: time.Now}
}

// Reload carga la primera página desde GET /api/notifications.
func (f *Feed) Reload(ctx context.Context, limit int) error {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out struct {
		Notifications []Notification `json:"notifications"`
		Unread        int            `json:"unread"`
	}
	if err := f.call(ctx, http.MethodGet, "/api/notifications?"+q.Encode(), &out); err != nil {
		return err
	}
	f.store.Load(out.Notifications, out.Unread)
	return nil
}

// SyncUnread consulta GET /api/notifications/unread-count.
func (f *Feed) SyncUnread(ctx context.Context) (int, error) {
	var out struct {
		Unread int `json:"unread"`
	}
	if err := f.call(ctx, http.MethodGet, "/api/notifications/unread-count", &out); err != nil {
		return 0, err
	}
	f.store.SetUnread(out.Unread)
	return out.Unread, nil
}

// MarkRead PATCH /api/notifications/:id/read y actualiza el store con la fila devuelta.
func (f *Feed) MarkRead(ctx context.Context, id string) error {
	var row Notification
	if err := f.call(ctx, http.MethodPatch, "/api/notifications/"+url.PathEscape(id)+"/read", &row); err != nil {
		return err
	}
	at := f.now()
	if row.ReadAt != nil {
		at = *row.ReadAt
	}
	f.store.MarkRead(id, at)
	return nil
}

// MarkAllRead PATCH /api/notifications/read-all.
func (f *Feed) MarkAllRead(ctx context.Context) (int64, error) {
	var out struct {
		Updated int64 `json:"updated"`
	}
	if err := f.call(ctx, http.MethodPatch, "/api/notifications/read-all", &out); err != nil {
		return 0, err
	}
	f.store.MarkAllRead(f.now())
	return out.Updated, nil
}

// HandleLive registra un evento notification:new y avisa en el escritorio si corresponde.
func (f *Feed) HandleLive(n Notification) {
	if f.store.Add(n) {
		f.notifier.Notify(n)
	}
}

func (f *Feed) call(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, f.tm.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := f.tm.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}
