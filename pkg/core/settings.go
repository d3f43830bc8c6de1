package core

import "time"

// Settings represents the main configuration for the application
type Settings struct {
	BackendURL  string        // Base URL of the backend serving the update route
	DefaultYear string        // Year applied when the selector is empty
	Timeout     time.Duration // Per request timeout, zero disables it
	Retries     int           // Extra attempts after a failed request
	Telegram    TelegramSettings
}

// TelegramSettings holds configuration for Telegram integration
type TelegramSettings struct {
	Enabled bool   // Whether Telegram notifications are enabled
	Token   string // Telegram bot token
	Users   []int  // List of authorized user IDs
}
