package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"

	"talkdrove/internal/models"
	"talkdrove/internal/repositories"
	"talkdrove/internal/utils"
)

// HerokuAPI is the part of the Platform API the deployment flows use.
type HerokuAPI interface {
	CreateApp(ctx context.Context, apiKey, name string) (*utils.HerokuApp, error)
	DeleteApp(ctx context.Context, apiKey, name string) error
	GetApp(ctx context.Context, apiKey, name string) (*utils.HerokuApp, error)
	ListApps(ctx context.Context, apiKey string) ([]utils.HerokuApp, error)
	GetConfigVars(ctx context.Context, apiKey, app string) (map[string]string, error)
	PatchConfigVars(ctx context.Context, apiKey, app string, vars map[string]*string) (map[string]string, error)
	GetAccount(ctx context.Context, apiKey string) (*utils.HerokuAccount, error)
}

// Config vars the platform injects into every bot; users never see or change them.
var sensitiveConfigVars = map[string]bool{
	"HEROKU_API_KEYY":  true,
	"HEROKU_APP_NAMEE": true,
}

var reservedAppNames = map[string]bool{
	"heroku-td": true, "admin-td": true, "api-td": true, "dashboard-td": true, "app-td": true,
	"staging-td": true, "production-td": true, "test-td": true, "testing-td": true, "www-td": true,
	"web-td": true, "mail-td": true, "email-td": true, "beta-td": true, "demo-td": true,
}

var appNamePattern = regexp.MustCompile(`^[a-z0-9-]{3,30}$`)

type AppNameCheck struct {
	Exists       bool   `json:"exists"`
	Reserved     bool   `json:"reserved"`
	HerokuExists bool   `json:"herokuExists"`
	Error        string `json:"error"`
}

func (c AppNameCheck) Available() bool {
	return c.Error == "" && !c.Exists && !c.Reserved && !c.HerokuExists
}

type DeleteAppResult struct {
	AppName       string `json:"appName"`
	HerokuDeleted bool   `json:"herokuDeleted"`
}

// Actor is the signed-in user an app operation is performed for.
type Actor struct {
	UserID  int64
	IsAdmin bool
}

type DeploymentService struct {
	pool    CredentialPool[models.HerokuAPIKey]
	heroku  HerokuAPI
	apps    repositories.DeploymentRepository
	timeout time.Duration
	clock   Clock
}

func NewDeploymentService(
	pool CredentialPool[models.HerokuAPIKey],
	heroku HerokuAPI,
	apps repositories.DeploymentRepository,
	timeout time.Duration,
	clock Clock,
) *DeploymentService {
	return &DeploymentService{pool: pool, heroku: heroku, apps: apps, timeout: timeout, clock: clock}
}

// classifyAppError decides whose fault a Platform API error is. Only a
// rejected token is held against the key. 403/404 on an app usually means
// the app lives on another account; other 4xx answers are about the request.
func classifyAppError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *utils.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch {
	case apiErr.Status == http.StatusUnauthorized:
		return err
	case apiErr.Status == http.StatusForbidden, apiErr.Status == http.StatusNotFound:
		return Skip(err)
	case apiErr.Status == http.StatusTooManyRequests:
		return err
	case apiErr.Status >= 400 && apiErr.Status < 500:
		return Permanent(err)
	}
	return err
}

func ValidateAppName(name string) error {
	if !appNamePattern.MatchString(name) {
		return invalid("App name must be 3-30 characters: lowercase letters, numbers and dashes")
	}
	if reservedAppNames[name] {
		return invalid("App name %s is reserved", name)
	}
	return nil
}

func (s *DeploymentService) CheckAppName(ctx context.Context, name string) (AppNameCheck, error) {
	name = strings.TrimSpace(name)
	if !appNamePattern.MatchString(name) {
		return AppNameCheck{Error: "Invalid name format"}, nil
	}

	var res AppNameCheck
	exists, err := s.apps.NameExists(ctx, name)
	if err != nil {
		return res, err
	}
	res.Exists = exists
	res.Reserved = reservedAppNames[name]

	key, err := Acquire(ctx, s.pool)
	if err != nil {
		log.Printf("[deploy][check-name] no key to query provider: %v", err)
		return res, nil
	}
	actx, cancel := context.WithTimeout(ctx, s.callTimeout())
	defer cancel()
	_, err = s.heroku.GetApp(actx, key.APIKey, name)
	var apiErr *utils.APIError
	switch {
	case err == nil:
		res.HerokuExists = true
	case errors.As(err, &apiErr) && apiErr.Status == http.StatusForbidden:
		// Someone else's app.
		res.HerokuExists = true
	case utils.IsNotFound(err):
	default:
		log.Printf("[deploy][check-name] provider lookup %s: %v", name, err)
	}
	return res, nil
}

// DeployApp creates the app and its config under one key. A config failure
// removes the half-made app with the same key before the next key is tried.
func (s *DeploymentService) DeployApp(ctx context.Context, userID int64, req models.DeployRequest) (*models.DeployedApp, error) {
	name := strings.TrimSpace(req.AppName)
	if err := ValidateAppName(name); err != nil {
		return nil, err
	}
	exists, err := s.apps.NameExists(ctx, name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("app %s: %w", name, ErrConflict)
	}

	patch := make(map[string]*string, len(req.ConfigVars))
	for k, v := range req.ConfigVars {
		patch[k] = &v
	}

	created, key, err := Call(ctx, s.pool, s.callTimeout(), func(ctx context.Context, k models.HerokuAPIKey) (*utils.HerokuApp, error) {
		app, err := s.heroku.CreateApp(ctx, k.APIKey, name)
		var apiErr *utils.APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnprocessableEntity {
			return nil, Permanent(fmt.Errorf("app %s: %w", name, ErrConflict))
		}
		if err != nil {
			return nil, classifyAppError(err)
		}
		if len(patch) > 0 {
			if _, err := s.heroku.PatchConfigVars(ctx, k.APIKey, app.Name, patch); err != nil {
				if delErr := s.heroku.DeleteApp(ctx, k.APIKey, app.Name); delErr != nil {
					log.Printf("[deploy][create] cleanup %s: %v", app.Name, delErr)
				}
				return nil, classifyAppError(err)
			}
		}
		return app, nil
	})
	if err != nil {
		return nil, err
	}

	d := &models.DeployedApp{
		UserID:        userID,
		BotID:         req.BotID,
		AppName:       name,
		HerokuAppName: created.Name,
		Status:        models.DeploymentStatusActive,
		CreatedAt:     s.clock.now(),
	}
	if err := s.apps.Create(ctx, d); err != nil {
		return nil, err
	}
	log.Printf("[deploy][create] ok: user_id=%d app=%s key_id=%d", userID, d.HerokuAppName, key.ID)
	return d, nil
}

func (s *DeploymentService) ListApps(ctx context.Context, userID int64) ([]models.DeployedApp, error) {
	return s.apps.ListByUser(ctx, userID)
}

func (s *DeploymentService) ownedApp(ctx context.Context, actor Actor, appName string) (*models.DeployedApp, error) {
	d, err := s.apps.GetByName(ctx, appName)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, fmt.Errorf("app %s: %w", appName, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if d.UserID != actor.UserID && !actor.IsAdmin {
		return nil, ErrForbidden
	}
	return d, nil
}

// DeleteApp removes the provider app when any key can, and always drops
// the local record.
func (s *DeploymentService) DeleteApp(ctx context.Context, actor Actor, appName string) (*DeleteAppResult, error) {
	d, err := s.ownedApp(ctx, actor, appName)
	if err != nil {
		return nil, err
	}

	_, err = Execute(ctx, s.pool, s.callTimeout(), func(ctx context.Context, k models.HerokuAPIKey) error {
		return classifyAppError(s.heroku.DeleteApp(ctx, k.APIKey, d.HerokuAppName))
	})
	if err != nil && errors.Is(err, context.Canceled) {
		return nil, err
	}
	herokuDeleted := err == nil
	if !herokuDeleted {
		log.Printf("[deploy][delete] provider delete %s failed: %v", d.HerokuAppName, err)
	}

	if err := s.apps.Delete(ctx, d.ID); err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return nil, err
	}
	return &DeleteAppResult{AppName: d.HerokuAppName, HerokuDeleted: herokuDeleted}, nil
}

func filterSensitive(vars map[string]string) map[string]string {
	out := make(map[string]string, len(vars))
	for k, v := range vars {
		if !sensitiveConfigVars[k] {
			out[k] = v
		}
	}
	return out
}

// varsCall runs fn under the first key that can see the app and strips
// sensitive vars from the answer.
func (s *DeploymentService) varsCall(ctx context.Context, fn func(ctx context.Context, apiKey string) (map[string]string, error)) (map[string]string, error) {
	vars, _, err := Call(ctx, s.pool, s.callTimeout(), func(ctx context.Context, k models.HerokuAPIKey) (map[string]string, error) {
		return fn(ctx, k.APIKey)
	})
	if err != nil {
		var apiErr *utils.APIError
		if errors.As(err, &apiErr) && (apiErr.Status == http.StatusNotFound || apiErr.Status == http.StatusForbidden) {
			return nil, fmt.Errorf("app not visible to any key: %w: %w", ErrNotFound, err)
		}
		return nil, err
	}
	return filterSensitive(vars), nil
}

func (s *DeploymentService) ConfigVars(ctx context.Context, actor Actor, appName string) (map[string]string, error) {
	d, err := s.ownedApp(ctx, actor, appName)
	if err != nil {
		return nil, err
	}
	return s.varsCall(ctx, func(ctx context.Context, apiKey string) (map[string]string, error) {
		v, err := s.heroku.GetConfigVars(ctx, apiKey, d.HerokuAppName)
		return v, classifyAppError(err)
	})
}

// UpdateConfigVars merges updates into the app config. Sensitive keys in
// updates are ignored so the platform values survive.
func (s *DeploymentService) UpdateConfigVars(ctx context.Context, actor Actor, appName string, updates map[string]string) (map[string]string, error) {
	d, err := s.ownedApp(ctx, actor, appName)
	if err != nil {
		return nil, err
	}
	patch := make(map[string]*string, len(updates))
	for k, v := range updates {
		if sensitiveConfigVars[k] || strings.TrimSpace(k) == "" {
			continue
		}
		patch[k] = &v
	}
	return s.patchVars(ctx, d, patch)
}

func (s *DeploymentService) SetConfigVar(ctx context.Context, actor Actor, appName, key, value string) (map[string]string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, invalid("Config var key is required")
	}
	if sensitiveConfigVars[key] {
		return nil, invalid("Config var %s cannot be changed", key)
	}
	d, err := s.ownedApp(ctx, actor, appName)
	if err != nil {
		return nil, err
	}
	return s.patchVars(ctx, d, map[string]*string{key: &value})
}

func (s *DeploymentService) DeleteConfigVar(ctx context.Context, actor Actor, appName, key string) (map[string]string, error) {
	if sensitiveConfigVars[key] {
		return nil, invalid("Config var %s cannot be deleted", key)
	}
	d, err := s.ownedApp(ctx, actor, appName)
	if err != nil {
		return nil, err
	}

	return s.varsCall(ctx, func(ctx context.Context, apiKey string) (map[string]string, error) {
		current, err := s.heroku.GetConfigVars(ctx, apiKey, d.HerokuAppName)
		if err != nil {
			return nil, classifyAppError(err)
		}
		if _, ok := current[key]; !ok {
			return nil, Permanent(fmt.Errorf("config var %s: %w", key, ErrNotFound))
		}
		out, err := s.heroku.PatchConfigVars(ctx, apiKey, d.HerokuAppName, map[string]*string{key: nil})
		return out, classifyAppError(err)
	})
}

func (s *DeploymentService) patchVars(ctx context.Context, d *models.DeployedApp, patch map[string]*string) (map[string]string, error) {
	return s.varsCall(ctx, func(ctx context.Context, apiKey string) (map[string]string, error) {
		v, err := s.heroku.PatchConfigVars(ctx, apiKey, d.HerokuAppName, patch)
		return v, classifyAppError(err)
	})
}

func (s *DeploymentService) callTimeout() time.Duration {
	if s.timeout <= 0 {
		return DefaultCallTimeout
	}
	return s.timeout
}
