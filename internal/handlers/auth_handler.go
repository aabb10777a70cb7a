package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"talkdrove/internal/middleware"
	"talkdrove/internal/models"
	"talkdrove/internal/services"
)

type SignupFlow interface {
	RequestSignup(ctx context.Context, req models.SignupRequest, clientIP string) error
	VerifySignup(ctx context.Context, email, code string) (*models.User, error)
}

type LoginFlow interface {
	Login(ctx context.Context, identifier, password, userAgent, clientIP string) (*services.LoginResult, error)
	VerifyDeviceLogin(ctx context.Context, email, code string) (*models.SessionUser, error)
}

type SessionManager interface {
	Issue(ctx context.Context, u models.SessionUser) (string, error)
	Revoke(ctx context.Context, token string) error
	TTL() time.Duration
}

type CookieOptions struct {
	Name   string
	Secure bool
}

type AuthHandler struct {
	signup   SignupFlow
	login    LoginFlow
	sessions SessionManager
	cookie   CookieOptions
}

func NewAuthHandler(signup SignupFlow, login LoginFlow, sessions SessionManager, cookie CookieOptions) *AuthHandler {
	return &AuthHandler{signup: signup, login: login, sessions: sessions, cookie: cookie}
}

func (h *AuthHandler) setSession(c *gin.Context, u models.SessionUser) error {
	token, err := h.sessions.Issue(c.Request.Context(), u)
	if err != nil {
		return err
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, token, int(h.sessions.TTL().Seconds()), "/", "", h.cookie.Secure, true)
	return nil
}

// @Summary      Start signup
// @Description  Validates the form and mails a verification code
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        req  body      models.SignupRequest  true  "Request body"
// @Success      200    {object}  map[string]interface{}
// @Failure      400    {object}  map[string]interface{}
// @Failure      409    {object}  map[string]interface{}
// @Failure      503    {object}  map[string]interface{}
// @Router       /api/signup [post]
func (h *AuthHandler) Signup(c *gin.Context) {
	var req models.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Printf("[auth][signup] bad request: bind json failed: err=%v", err)
		fail(c, http.StatusBadRequest, "All fields are required")
		return
	}
	if err := h.signup.RequestSignup(c.Request.Context(), req, c.ClientIP()); err != nil {
		respondError(c, "[auth][signup]", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Verification code sent to your email"})
}

// @Summary      Verify signup code
// @Description  Creates the account and opens a session
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        req  body      models.VerifyCodeRequest  true  "Request body"
// @Success      200    {object}  map[string]interface{}
// @Failure      400    {object}  map[string]interface{}
// @Failure      429    {object}  map[string]interface{}
// @Failure      500    {object}  map[string]interface{}
// @Router       /api/verify-signup [post]
func (h *AuthHandler) VerifySignup(c *gin.Context) {
	var req models.VerifyCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Email and verification code are required")
		return
	}
	user, err := h.signup.VerifySignup(c.Request.Context(), req.Email, req.Code)
	if err != nil {
		respondError(c, "[auth][verify-signup]", err)
		return
	}

	if user.IsBanned {
		log.Printf("[auth][verify-signup] user_id=%d created banned", user.ID)
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"banned":  true,
			"message": "Account created but suspended: too many accounts from your network. Contact support.",
		})
		return
	}

	su := models.SessionUser{ID: user.ID, Email: user.Email, IsVerified: true, IsAdmin: user.IsAdmin}
	if err := h.setSession(c, su); err != nil {
		respondError(c, "[auth][verify-signup]", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Email verified", "user": su})
}

// @Summary      Log in
// @Description  Unknown devices get a verification code instead of a session
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        req  body      models.LoginRequest  true  "Request body"
// @Success      200    {object}  map[string]interface{}
// @Failure      400    {object}  map[string]interface{}
// @Failure      401    {object}  map[string]interface{}
// @Failure      503    {object}  map[string]interface{}
// @Router       /api/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	start := time.Now()

	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Printf("[auth][login] bad request: bind json failed: err=%v", err)
		fail(c, http.StatusBadRequest, "Email and password are required")
		return
	}
	res, err := h.login.Login(c.Request.Context(), req.Email, req.Password, c.Request.UserAgent(), c.ClientIP())
	if err != nil {
		respondError(c, "[auth][login]", err)
		return
	}

	if res.RequireVerification {
		c.JSON(http.StatusOK, gin.H{
			"success":             true,
			"requireVerification": true,
			"deviceId":            res.PendingDeviceID,
			"message":             "New device detected. A verification code was sent to your email",
		})
		return
	}

	if err := h.setSession(c, *res.User); err != nil {
		respondError(c, "[auth][login]", err)
		return
	}
	log.Printf("[auth][login] success user_id=%d took=%s", res.User.ID, time.Since(start).Truncate(time.Millisecond))
	c.JSON(http.StatusOK, gin.H{"success": true, "user": res.User})
}

// @Summary      Verify new device
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        req  body      models.VerifyCodeRequest  true  "Request body"
// @Success      200    {object}  map[string]interface{}
// @Failure      400    {object}  map[string]interface{}
// @Failure      429    {object}  map[string]interface{}
// @Router       /api/verify-device-login [post]
func (h *AuthHandler) VerifyDeviceLogin(c *gin.Context) {
	var req models.VerifyCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Email and verification code are required")
		return
	}
	su, err := h.login.VerifyDeviceLogin(c.Request.Context(), req.Email, req.Code)
	if err != nil {
		respondError(c, "[auth][verify-device]", err)
		return
	}
	if err := h.setSession(c, *su); err != nil {
		respondError(c, "[auth][verify-device]", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": su})
}

// @Summary      Log out
// @Tags         Auth
// @Produce      json
// @Success      200    {object}  map[string]interface{}
// @Router       /api/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	if token, err := c.Cookie(h.cookie.Name); err == nil && token != "" {
		if err := h.sessions.Revoke(c.Request.Context(), token); err != nil {
			log.Printf("[auth][logout] revoke: %v", err)
		}
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, "", -1, "/", "", h.cookie.Secure, true)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Logged out"})
}

// @Summary      Current session
// @Tags         Auth
// @Produce      json
// @Success      200    {object}  map[string]interface{}
// @Router       /api/check-login [get]
func (h *AuthHandler) CheckLogin(c *gin.Context) {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"loggedIn": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"loggedIn": true, "user": u})
}
