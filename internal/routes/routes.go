package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"talkdrove/internal/handlers"
	"talkdrove/internal/middleware"
)

type Handlers struct {
	Auth       *handlers.AuthHandler
	Deployment *handlers.DeploymentHandler
	Admin      *handlers.AdminHandler
	Devices    *handlers.DeviceHandler
}

type SessionConfig struct {
	CookieName string
	Sessions   middleware.SessionResolver
	Users      middleware.UserReloader
}

func SetupRoutes(r *gin.Engine, h Handlers, s SessionConfig) *gin.Engine {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := r.Group("/api", middleware.LoadSession(s.Sessions, s.CookieName))

	// ---- public
	api.POST("/signup", h.Auth.Signup)
	api.POST("/verify-signup", h.Auth.VerifySignup)
	api.POST("/login", h.Auth.Login)
	api.POST("/verify-device-login", h.Auth.VerifyDeviceLogin)
	api.POST("/logout", h.Auth.Logout)
	api.GET("/check-login", h.Auth.CheckLogin)

	// ---- signed in
	user := api.Group("", middleware.RequireLogin(s.Users))
	{
		user.GET("/check-app-name", h.Deployment.CheckAppName)
		user.POST("/deploy", h.Deployment.Deploy)
		user.GET("/apps", h.Deployment.ListApps)
		user.DELETE("/apps/:appName", h.Deployment.DeleteApp)

		user.GET("/config-vars/:appName", h.Deployment.GetConfigVars)
		user.POST("/config-vars/:appName", h.Deployment.SetConfigVar)
		user.PUT("/config-vars/:appName", h.Deployment.UpdateConfigVars)
		user.DELETE("/config-vars/:appName/:key", h.Deployment.DeleteConfigVar)

		user.GET("/devices", h.Devices.List)
		user.DELETE("/devices/:id", h.Devices.Remove)
	}

	// ---- admin
	admin := user.Group("/admin", middleware.RequireAdmin())
	{
		admin.GET("/api-keys", h.Admin.ListKeys)
		admin.POST("/api-keys", h.Admin.AddKey)
		admin.PUT("/api-keys/:id", h.Admin.SetKeyActive)
		admin.DELETE("/api-keys/:id", h.Admin.DeleteKey)
		admin.GET("/api-keys/:id/apps", h.Admin.KeyApps)

		admin.GET("/email-senders", h.Admin.ListSenders)
		admin.POST("/email-senders", h.Admin.AddSender)
		admin.PUT("/email-senders/:id", h.Admin.SetSenderActive)
		admin.DELETE("/email-senders/:id", h.Admin.DeleteSender)
		admin.POST("/email-senders/:id/test", h.Admin.TestSender)
	}

	return r
}
