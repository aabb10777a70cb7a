package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"talkdrove/internal/middleware"
	"talkdrove/internal/models"
	"talkdrove/internal/services"
	"talkdrove/internal/utils"
)

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "message": message})
}

// respondError maps service errors to a status and a client-safe message.
// The full error only goes to the log.
func respondError(c *gin.Context, op string, err error) {
	log.Printf("%s %s %s: %v", op, c.Request.Method, c.Request.URL.Path, err)

	var (
		verr     *services.ValidationError
		mismatch *services.MismatchError
		apiErr   *utils.APIError
	)
	switch {
	case errors.As(err, &verr):
		fail(c, http.StatusBadRequest, verr.Message)
	case errors.As(err, &mismatch):
		c.JSON(http.StatusBadRequest, gin.H{
			"success":      false,
			"message":      "Invalid verification code",
			"attemptsLeft": mismatch.AttemptsLeft,
		})
	case errors.Is(err, services.ErrVerificationNotFound):
		fail(c, http.StatusBadRequest, "No pending verification found. Please request a new code")
	case errors.Is(err, services.ErrVerificationExpired):
		fail(c, http.StatusBadRequest, "Verification code has expired. Please request a new one")
	case errors.Is(err, services.ErrAttemptsExceeded):
		fail(c, http.StatusTooManyRequests, "Too many failed attempts. Please request a new code")
	case errors.Is(err, services.ErrCredentialExhausted):
		fail(c, http.StatusServiceUnavailable, "Service temporarily unavailable. Please try again later")
	case errors.Is(err, services.ErrTransactionFailed):
		fail(c, http.StatusInternalServerError, "Account creation failed. Please sign up again")
	case errors.Is(err, services.ErrInvalidCredentials):
		fail(c, http.StatusUnauthorized, "Invalid email or password")
	case errors.Is(err, services.ErrForbidden):
		fail(c, http.StatusForbidden, "Access denied")
	case errors.Is(err, services.ErrNotFound):
		fail(c, http.StatusNotFound, "Not found")
	case errors.Is(err, services.ErrConflict):
		fail(c, http.StatusConflict, "Already exists")
	case errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500:
		fail(c, http.StatusBadRequest, "The deployment provider rejected the request")
	default:
		fail(c, http.StatusInternalServerError, "Internal server error")
	}
}

// sessionUser is only called behind RequireLogin.
func sessionUser(c *gin.Context) *models.SessionUser {
	u, _ := middleware.CurrentUser(c)
	return u
}

func actor(c *gin.Context) services.Actor {
	u := sessionUser(c)
	return services.Actor{UserID: u.ID, IsAdmin: u.IsAdmin}
}

func paramID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		fail(c, http.StatusBadRequest, "Invalid id")
		return 0, false
	}
	return id, true
}
