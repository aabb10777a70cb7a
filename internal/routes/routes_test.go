package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"talkdrove/internal/handlers"
	"talkdrove/internal/models"
	"talkdrove/internal/services"
)

const cookieName = "talkdrove-session"

type reloader struct{}

func (reloader) SessionUserByID(_ context.Context, id int64, deviceID string) (*models.SessionUser, error) {
	return &models.SessionUser{ID: id, Email: "user@gmail.com", IsVerified: true, DeviceID: deviceID}, nil
}

type deviceBook struct {
	devices []models.UserDevice
}

func (b *deviceBook) Devices(context.Context, int64) ([]models.UserDevice, error) {
	return b.devices, nil
}

func (b *deviceBook) RemoveDevice(_ context.Context, _ int64, current, id string) error {
	if id == current {
		return &services.ValidationError{Message: "Cannot remove the device you are using"}
	}
	for i, d := range b.devices {
		if d.ID == id {
			b.devices = append(b.devices[:i], b.devices[i+1:]...)
			return nil
		}
	}
	return services.ErrNotFound
}

func newRouter(t *testing.T) (*gin.Engine, *services.SessionService, *deviceBook) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	sessions := services.NewSessionService(services.NewMemorySessionStore(nil), "routes-secret", time.Hour, nil)
	book := &deviceBook{devices: []models.UserDevice{{ID: "laptop", UserID: 1}, {ID: "phone", UserID: 1}}}

	r := gin.New()
	SetupRoutes(r,
		Handlers{
			Auth:       handlers.NewAuthHandler(nil, nil, sessions, handlers.CookieOptions{Name: cookieName}),
			Deployment: handlers.NewDeploymentHandler(nil),
			Admin:      handlers.NewAdminHandler(nil),
			Devices:    handlers.NewDeviceHandler(book),
		},
		SessionConfig{CookieName: cookieName, Sessions: sessions, Users: reloader{}},
	)
	return r, sessions, book
}

func get(r *gin.Engine, method, path string, cookie *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestPublicRoutes(t *testing.T) {
	r, _, _ := newRouter(t)

	if w := get(r, http.MethodGet, "/healthz", nil); w.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", w.Code)
	}
	if w := get(r, http.MethodGet, "/swagger/index.html", nil); w.Code != http.StatusOK {
		t.Fatalf("swagger ui status = %d", w.Code)
	}
	if w := get(r, http.MethodGet, "/api/devices", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("devices without session status = %d", w.Code)
	}
	if w := get(r, http.MethodGet, "/api/admin/api-keys", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("admin without session status = %d", w.Code)
	}
}

func TestDeviceRoutes(t *testing.T) {
	r, sessions, book := newRouter(t)
	token, err := sessions.Issue(context.Background(), models.SessionUser{ID: 1, Email: "user@gmail.com", IsVerified: true, DeviceID: "laptop"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	cookie := &http.Cookie{Name: cookieName, Value: token}

	w := get(r, http.MethodGet, "/api/devices", cookie)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var body struct {
		Devices         []models.UserDevice `json:"devices"`
		CurrentDeviceID string              `json:"currentDeviceId"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Devices) != 2 || body.CurrentDeviceID != "laptop" {
		t.Fatalf("unexpected list %+v", body)
	}

	if w := get(r, http.MethodDelete, "/api/devices/laptop", cookie); w.Code != http.StatusBadRequest {
		t.Fatalf("removing current device status = %d", w.Code)
	}
	if w := get(r, http.MethodDelete, "/api/devices/tablet", cookie); w.Code != http.StatusNotFound {
		t.Fatalf("removing unknown device status = %d", w.Code)
	}
	if w := get(r, http.MethodDelete, "/api/devices/phone", cookie); w.Code != http.StatusOK {
		t.Fatalf("remove status = %d", w.Code)
	}
	if len(book.devices) != 1 || book.devices[0].ID != "laptop" {
		t.Fatalf("unexpected devices left %+v", book.devices)
	}

	if w := get(r, http.MethodGet, "/api/admin/api-keys", cookie); w.Code != http.StatusForbidden {
		t.Fatalf("admin as regular user status = %d", w.Code)
	}
}
