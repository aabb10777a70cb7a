package models

import "time"

const (
	DeploymentStatusActive = "active"
)

type DeployedApp struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id"`
	BotID         int64     `json:"bot_id"`
	AppName       string    `json:"app_name"`
	HerokuAppName string    `json:"heroku_app_name"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

type DeployRequest struct {
	BotID      int64             `json:"bot_id" binding:"required"`
	AppName    string            `json:"app_name" binding:"required"`
	ConfigVars map[string]string `json:"config_vars"`
}
