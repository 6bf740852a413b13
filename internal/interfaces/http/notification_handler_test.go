package http_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/contratos-api/internal/application/dto"
	"github.com/jhoicas/contratos-api/internal/application/notification"
	"github.com/jhoicas/contratos-api/internal/domain/entity"
	apphttp "github.com/jhoicas/contratos-api/internal/interfaces/http"
)

type fakeNotificationService struct {
	opts     notification.ListOptions
	userID   string
	markRead *entity.Notification
	marked   int64
}

func (f *fakeNotificationService) List(_ context.Context, userID string, opts notification.ListOptions) (*notification.ListResult, error) {
	f.userID, f.opts = userID, opts
	size := opts.PageSize
	if size == 0 {
		size = 20
	}
	return &notification.ListResult{
		Items:    []*entity.Notification{{ID: "n-1", RecipientID: userID, Kind: entity.KindRequestCreated, Title: "t"}},
		Unread:   7,
		Total:    45,
		Page:     opts.Page,
		PageSize: size,
	}, nil
}

func (f *fakeNotificationService) CountUnread(context.Context, string) (int, error) { return 7, nil }

func (f *fakeNotificationService) MarkRead(context.Context, string, string) (*entity.Notification, error) {
	return f.markRead, nil
}

func (f *fakeNotificationService) MarkAllRead(context.Context, string) (int64, error) {
	return f.marked, nil
}

func buildNotificationApp(svc *fakeNotificationService) *fiber.App {
	app := fiber.New()
	h := apphttp.NewNotificationHandler(svc)
	g := app.Group("/api/notifications", apphttp.AuthMiddleware(testJWTSecret))
	g.Get("/", h.List)
	g.Get("/unread-count", h.UnreadCount)
	g.Patch("/read-all", h.MarkAllRead)
	g.Patch("/:id/read", h.MarkRead)
	return app
}

func TestNotifications_ListPaginacion(t *testing.T) {
	svc := &fakeNotificationService{}
	app := buildNotificationApp(svc)

	resp := call(t, app, http.MethodGet, "/api/notifications?page=2&unread_only=true", "")
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, testUserID, svc.userID)
	assert.Equal(t, 2, svc.opts.Page)
	assert.True(t, svc.opts.UnreadOnly)

	var out dto.NotificationListResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Len(t, out.Notifications, 1)
	assert.Equal(t, 7, out.Unread)
	assert.Equal(t, dto.PageResponse{Page: 2, Limit: 20, Total: 45, TotalPages: 3}, out.Page)
}

func TestNotifications_UnreadCount(t *testing.T) {
	app := buildNotificationApp(&fakeNotificationService{})
	resp := call(t, app, http.MethodGet, "/api/notifications/unread-count", "")
	defer resp.Body.Close()

	var out dto.UnreadCountResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, 7, out.Unread)
}

func TestNotifications_MarkReadAjena404(t *testing.T) {
	app := buildNotificationApp(&fakeNotificationService{markRead: nil})
	resp := call(t, app, http.MethodPatch, "/api/notifications/n-9/read", "")
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestNotifications_MarkReadDevuelveFila(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	n := &entity.Notification{ID: "n-1", RecipientID: testUserID, Kind: entity.KindRequestApproved, Read: true, ReadAt: &at}
	app := buildNotificationApp(&fakeNotificationService{markRead: n})

	resp := call(t, app, http.MethodPatch, "/api/notifications/n-1/read", "")
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out entity.Notification
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.True(t, out.Read)
	require.NotNil(t, out.ReadAt)
	assert.True(t, at.Equal(*out.ReadAt))
}

func TestNotifications_MarkAllRead(t *testing.T) {
	app := buildNotificationApp(&fakeNotificationService{marked: 5})
	resp := call(t, app, http.MethodPatch, "/api/notifications/read-all", "")
	defer resp.Body.Close()

	var out dto.MarkAllReadResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, int64(5), out.Updated)
}
