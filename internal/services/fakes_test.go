package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"talkdrove/internal/models"
	"talkdrove/internal/utils"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func fixedCode(code string) func() (string, error) {
	return func() (string, error) { return code, nil }
}

type sentMail struct {
	SenderID int64
	To       string
	Subject  string
	Body     string
}

// fakeMailer fails for sender ids listed in failFor.
type fakeMailer struct {
	mu        sync.Mutex
	failFor   map[int64]error
	probeOK   map[int64]bool
	sent      []sentMail
	attempted []int64
}

func (m *fakeMailer) Send(_ context.Context, s models.EmailSender, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempted = append(m.attempted, s.ID)
	if err := m.failFor[s.ID]; err != nil {
		return err
	}
	m.sent = append(m.sent, sentMail{SenderID: s.ID, To: to, Subject: subject, Body: body})
	return nil
}

func (m *fakeMailer) Probe(_ context.Context, s models.EmailSender) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.probeOK[s.ID] {
		return nil
	}
	return errors.New("probe failed")
}

func (m *fakeMailer) last() sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[len(m.sent)-1]
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (n *recordingNotifier) Notify(_ context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, text)
	return nil
}

// fakeHeroku keeps apps in memory and rejects keys listed in badKeys.
type fakeHeroku struct {
	mu       sync.Mutex
	badKeys  map[string]bool
	apps     map[string]map[string]string
	failVars bool
	calls    []string
}

func newFakeHeroku() *fakeHeroku {
	return &fakeHeroku{badKeys: map[string]bool{}, apps: map[string]map[string]string{}}
}

func (h *fakeHeroku) auth(apiKey, op string) error {
	h.calls = append(h.calls, op+":"+apiKey)
	if h.badKeys[apiKey] {
		return &utils.APIError{Status: 401, ID: "unauthorized", Message: "Invalid credentials provided."}
	}
	return nil
}

func (h *fakeHeroku) CreateApp(_ context.Context, apiKey, name string) (*utils.HerokuApp, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.auth(apiKey, "create"); err != nil {
		return nil, err
	}
	if _, ok := h.apps[name]; ok {
		return nil, &utils.APIError{Status: 422, ID: "invalid_params", Message: "Name is already taken"}
	}
	h.apps[name] = map[string]string{}
	return &utils.HerokuApp{ID: "id-" + name, Name: name}, nil
}

func (h *fakeHeroku) DeleteApp(_ context.Context, apiKey, name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.auth(apiKey, "delete"); err != nil {
		return err
	}
	if _, ok := h.apps[name]; !ok {
		return &utils.APIError{Status: 404, ID: "not_found"}
	}
	delete(h.apps, name)
	return nil
}

func (h *fakeHeroku) GetApp(_ context.Context, apiKey, name string) (*utils.HerokuApp, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.auth(apiKey, "get"); err != nil {
		return nil, err
	}
	if _, ok := h.apps[name]; !ok {
		return nil, &utils.APIError{Status: 404, ID: "not_found"}
	}
	return &utils.HerokuApp{ID: "id-" + name, Name: name}, nil
}

func (h *fakeHeroku) ListApps(_ context.Context, apiKey string) ([]utils.HerokuApp, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.auth(apiKey, "list"); err != nil {
		return nil, err
	}
	var out []utils.HerokuApp
	for name := range h.apps {
		out = append(out, utils.HerokuApp{Name: name})
	}
	return out, nil
}

func (h *fakeHeroku) GetConfigVars(_ context.Context, apiKey, app string) (map[string]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.auth(apiKey, "vars"); err != nil {
		return nil, err
	}
	vars, ok := h.apps[app]
	if !ok {
		return nil, &utils.APIError{Status: 404, ID: "not_found"}
	}
	out := make(map[string]string, len(vars))
	for k, v := range vars {
		out[k] = v
	}
	return out, nil
}

func (h *fakeHeroku) PatchConfigVars(_ context.Context, apiKey, app string, patch map[string]*string) (map[string]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.auth(apiKey, "patch"); err != nil {
		return nil, err
	}
	if h.failVars {
		return nil, &utils.APIError{Status: 422, ID: "invalid_params"}
	}
	vars, ok := h.apps[app]
	if !ok {
		return nil, &utils.APIError{Status: 404, ID: "not_found"}
	}
	for k, v := range patch {
		if v == nil {
			delete(vars, k)
			continue
		}
		vars[k] = *v
	}
	out := make(map[string]string, len(vars))
	for k, v := range vars {
		out[k] = v
	}
	return out, nil
}

func (h *fakeHeroku) GetAccount(_ context.Context, apiKey string) (*utils.HerokuAccount, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.auth(apiKey, "account"); err != nil {
		return nil, err
	}
	return &utils.HerokuAccount{ID: "acc", Email: "ops@talkdrove.com"}, nil
}
