package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"talkdrove/internal/models"
)

type DeviceManager interface {
	Devices(ctx context.Context, userID int64) ([]models.UserDevice, error)
	RemoveDevice(ctx context.Context, userID int64, currentDeviceID, deviceID string) error
}

type DeviceHandler struct {
	devices DeviceManager
}

func NewDeviceHandler(devices DeviceManager) *DeviceHandler {
	return &DeviceHandler{devices: devices}
}

// @Summary      List my devices
// @Tags         Devices
// @Produce      json
// @Success      200    {object}  map[string]interface{}
// @Failure      401    {object}  map[string]interface{}
// @Router       /api/devices [get]
func (h *DeviceHandler) List(c *gin.Context) {
	u := sessionUser(c)
	devices, err := h.devices.Devices(c.Request.Context(), u.ID)
	if err != nil {
		respondError(c, "[devices][list]", err)
		return
	}
	if devices == nil {
		devices = []models.UserDevice{}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "devices": devices, "currentDeviceId": u.DeviceID})
}

// @Summary      Remove a device
// @Tags         Devices
// @Produce      json
// @Param        id  path  string  true  "id"
// @Success      200    {object}  map[string]interface{}
// @Failure      400    {object}  map[string]interface{}
// @Failure      404    {object}  map[string]interface{}
// @Router       /api/devices/{id} [delete]
func (h *DeviceHandler) Remove(c *gin.Context) {
	u := sessionUser(c)
	if err := h.devices.RemoveDevice(c.Request.Context(), u.ID, u.DeviceID, c.Param("id")); err != nil {
		respondError(c, "[devices][remove]", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Device removed"})
}
