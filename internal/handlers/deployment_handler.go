package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"talkdrove/internal/models"
	"talkdrove/internal/services"
)

type DeploymentManager interface {
	CheckAppName(ctx context.Context, name string) (services.AppNameCheck, error)
	DeployApp(ctx context.Context, userID int64, req models.DeployRequest) (*models.DeployedApp, error)
	ListApps(ctx context.Context, userID int64) ([]models.DeployedApp, error)
	DeleteApp(ctx context.Context, actor services.Actor, appName string) (*services.DeleteAppResult, error)
	ConfigVars(ctx context.Context, actor services.Actor, appName string) (map[string]string, error)
	UpdateConfigVars(ctx context.Context, actor services.Actor, appName string, updates map[string]string) (map[string]string, error)
	SetConfigVar(ctx context.Context, actor services.Actor, appName, key, value string) (map[string]string, error)
	DeleteConfigVar(ctx context.Context, actor services.Actor, appName, key string) (map[string]string, error)
}

type DeploymentHandler struct {
	deployments DeploymentManager
}

func NewDeploymentHandler(deployments DeploymentManager) *DeploymentHandler {
	return &DeploymentHandler{deployments: deployments}
}

// @Summary      Check app name
// @Tags         Deploy
// @Produce      json
// @Param        appName  query  string  true  "appName"
// @Success      200    {object}  map[string]interface{}
// @Failure      400    {object}  map[string]interface{}
// @Failure      401    {object}  map[string]interface{}
// @Router       /api/check-app-name [get]
func (h *DeploymentHandler) CheckAppName(c *gin.Context) {
	name := c.Query("appName")
	if name == "" {
		fail(c, http.StatusBadRequest, "appName is required")
		return
	}
	res, err := h.deployments.CheckAppName(c.Request.Context(), name)
	if err != nil {
		respondError(c, "[deploy][check-name]", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"available":    res.Available(),
		"exists":       res.Exists,
		"reserved":     res.Reserved,
		"herokuExists": res.HerokuExists,
		"error":        res.Error,
	})
}

// @Summary      Deploy a bot
// @Tags         Deploy
// @Accept       json
// @Produce      json
// @Param        req  body      models.DeployRequest  true  "Request body"
// @Success      201    {object}  map[string]interface{}
// @Failure      400    {object}  map[string]interface{}
// @Failure      401    {object}  map[string]interface{}
// @Failure      409    {object}  map[string]interface{}
// @Failure      503    {object}  map[string]interface{}
// @Router       /api/deploy [post]
func (h *DeploymentHandler) Deploy(c *gin.Context) {
	var req models.DeployRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "bot_id and app_name are required")
		return
	}
	d, err := h.deployments.DeployApp(c.Request.Context(), sessionUser(c).ID, req)
	if err != nil {
		respondError(c, "[deploy][create]", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "app": d})
}

// @Summary      List my apps
// @Tags         Deploy
// @Produce      json
// @Success      200    {object}  map[string]interface{}
// @Failure      401    {object}  map[string]interface{}
// @Router       /api/apps [get]
func (h *DeploymentHandler) ListApps(c *gin.Context) {
	apps, err := h.deployments.ListApps(c.Request.Context(), sessionUser(c).ID)
	if err != nil {
		respondError(c, "[deploy][list]", err)
		return
	}
	if apps == nil {
		apps = []models.DeployedApp{}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "apps": apps})
}

// @Summary      Delete app
// @Tags         Deploy
// @Produce      json
// @Param        appName  path  string  true  "appName"
// @Success      200    {object}  map[string]interface{}
// @Failure      401    {object}  map[string]interface{}
// @Failure      403    {object}  map[string]interface{}
// @Failure      404    {object}  map[string]interface{}
// @Router       /api/apps/{appName} [delete]
func (h *DeploymentHandler) DeleteApp(c *gin.Context) {
	res, err := h.deployments.DeleteApp(c.Request.Context(), actor(c), c.Param("appName"))
	if err != nil {
		respondError(c, "[deploy][delete]", err)
		return
	}
	msg := "App deleted"
	if !res.HerokuDeleted {
		msg = "App removed from your account; the hosting provider could not be reached"
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": msg, "appName": res.AppName, "herokuDeleted": res.HerokuDeleted})
}

// @Summary      Get config vars
// @Tags         Deploy
// @Produce      json
// @Param        appName  path  string  true  "appName"
// @Success      200    {object}  map[string]interface{}
// @Failure      401    {object}  map[string]interface{}
// @Failure      403    {object}  map[string]interface{}
// @Failure      404    {object}  map[string]interface{}
// @Failure      503    {object}  map[string]interface{}
// @Router       /api/config-vars/{appName} [get]
func (h *DeploymentHandler) GetConfigVars(c *gin.Context) {
	vars, err := h.deployments.ConfigVars(c.Request.Context(), actor(c), c.Param("appName"))
	if err != nil {
		respondError(c, "[deploy][config-vars]", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "configVars": vars})
}

type configVarsRequest struct {
	ConfigVars map[string]string `json:"configVars" binding:"required"`
}

// UpdateConfigVars merges the given vars into the app config.
// @Summary      Merge config vars
// @Tags         Deploy
// @Produce      json
// @Param        appName  path  string  true  "appName"
// @Param        req  body      configVarsRequest  true  "Request body"
// @Success      200    {object}  map[string]interface{}
// @Failure      400    {object}  map[string]interface{}
// @Failure      403    {object}  map[string]interface{}
// @Failure      404    {object}  map[string]interface{}
// @Router       /api/config-vars/{appName} [put]
func (h *DeploymentHandler) UpdateConfigVars(c *gin.Context) {
	var req configVarsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "configVars is required")
		return
	}
	vars, err := h.deployments.UpdateConfigVars(c.Request.Context(), actor(c), c.Param("appName"), req.ConfigVars)
	if err != nil {
		respondError(c, "[deploy][config-vars]", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "configVars": vars})
}

type configVarRequest struct {
	Key   string `json:"key" binding:"required"`
	Value string `json:"value"`
}

// @Summary      Set one config var
// @Tags         Deploy
// @Produce      json
// @Param        appName  path  string  true  "appName"
// @Param        req  body      configVarRequest  true  "Request body"
// @Success      200    {object}  map[string]interface{}
// @Failure      400    {object}  map[string]interface{}
// @Failure      403    {object}  map[string]interface{}
// @Failure      404    {object}  map[string]interface{}
// @Router       /api/config-vars/{appName} [post]
func (h *DeploymentHandler) SetConfigVar(c *gin.Context) {
	var req configVarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "key is required")
		return
	}
	vars, err := h.deployments.SetConfigVar(c.Request.Context(), actor(c), c.Param("appName"), req.Key, req.Value)
	if err != nil {
		respondError(c, "[deploy][config-vars]", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "configVars": vars})
}

// @Summary      Delete one config var
// @Tags         Deploy
// @Produce      json
// @Param        appName  path  string  true  "appName"
// @Param        key  path  string  true  "key"
// @Success      200    {object}  map[string]interface{}
// @Failure      400    {object}  map[string]interface{}
// @Failure      403    {object}  map[string]interface{}
// @Failure      404    {object}  map[string]interface{}
// @Router       /api/config-vars/{appName}/{key} [delete]
func (h *DeploymentHandler) DeleteConfigVar(c *gin.Context) {
	vars, err := h.deployments.DeleteConfigVar(c.Request.Context(), actor(c), c.Param("appName"), c.Param("key"))
	if err != nil {
		respondError(c, "[deploy][config-vars]", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "configVars": vars})
}
