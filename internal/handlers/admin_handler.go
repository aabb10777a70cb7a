package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"talkdrove/internal/models"
	"talkdrove/internal/services"
	"talkdrove/internal/utils"
)

type CredentialAdmin interface {
	ListKeys(ctx context.Context) ([]services.HerokuKeyView, error)
	AddKey(ctx context.Context, apiKey string) (*services.HerokuKeyView, error)
	SetKeyActive(ctx context.Context, id int64, active bool) error
	DeleteKey(ctx context.Context, id int64) error
	KeyApps(ctx context.Context, id int64) ([]utils.HerokuApp, error)

	ListSenders(ctx context.Context) ([]models.EmailSender, error)
	AddSender(ctx context.Context, in services.EmailSenderInput) (*models.EmailSender, error)
	SetSenderActive(ctx context.Context, id int64, active bool) error
	DeleteSender(ctx context.Context, id int64) error
	TestSender(ctx context.Context, id int64, to string) error
}

type AdminHandler struct {
	admin CredentialAdmin
}

func NewAdminHandler(admin CredentialAdmin) *AdminHandler {
	return &AdminHandler{admin: admin}
}

type activeRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

func bindActive(c *gin.Context) (bool, bool) {
	var req activeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "is_active is required")
		return false, false
	}
	return *req.IsActive, true
}

func (h *AdminHandler) ListKeys(c *gin.Context) {
	keys, err := h.admin.ListKeys(c.Request.Context())
	if err != nil {
		respondError(c, "[admin][api-keys]", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "keys": keys})
}

func (h *AdminHandler) AddKey(c *gin.Context) {
	var req struct {
		APIKey string `json:"api_key" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "api_key is required")
		return
	}
	key, err := h.admin.AddKey(c.Request.Context(), req.APIKey)
	if err != nil {
		respondError(c, "[admin][api-keys]", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "key": key})
}

func (h *AdminHandler) SetKeyActive(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	active, ok := bindActive(c)
	if !ok {
		return
	}
	if err := h.admin.SetKeyActive(c.Request.Context(), id, active); err != nil {
		respondError(c, "[admin][api-keys]", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *AdminHandler) DeleteKey(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	if err := h.admin.DeleteKey(c.Request.Context(), id); err != nil {
		respondError(c, "[admin][api-keys]", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *AdminHandler) KeyApps(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	apps, err := h.admin.KeyApps(c.Request.Context(), id)
	if err != nil {
		respondError(c, "[admin][api-keys]", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "apps": apps})
}

func (h *AdminHandler) ListSenders(c *gin.Context) {
	senders, err := h.admin.ListSenders(c.Request.Context())
	if err != nil {
		respondError(c, "[admin][email-senders]", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "senders": senders})
}

func (h *AdminHandler) AddSender(c *gin.Context) {
	var in services.EmailSenderInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, http.StatusBadRequest, "email, password, host and port are required")
		return
	}
	sender, err := h.admin.AddSender(c.Request.Context(), in)
	if err != nil {
		respondError(c, "[admin][email-senders]", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "sender": sender})
}

func (h *AdminHandler) SetSenderActive(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	active, ok := bindActive(c)
	if !ok {
		return
	}
	if err := h.admin.SetSenderActive(c.Request.Context(), id, active); err != nil {
		respondError(c, "[admin][email-senders]", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *AdminHandler) DeleteSender(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	if err := h.admin.DeleteSender(c.Request.Context(), id); err != nil {
		respondError(c, "[admin][email-senders]", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// TestSender mails the given address, or the admin's own when empty.
func (h *AdminHandler) TestSender(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req struct {
		To string `json:"to"`
	}
	_ = c.ShouldBindJSON(&req)
	if req.To == "" {
		req.To = sessionUser(c).Email
	}
	if err := h.admin.TestSender(c.Request.Context(), id, req.To); err != nil {
		respondError(c, "[admin][email-senders]", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Test email sent"})
}
