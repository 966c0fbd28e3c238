package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds server configuration.
type Config struct {
	// Addr is the listen address for the HTTP server.
	Addr         string
	DatabasePath string
	MasterSecret string
	// OpenAIKey authorizes calls to the chat-completion endpoint that powers
	// bot replies.
	OpenAIKey   string
	OpenAIModel string
	// RoomDefaultPrompt seeds the room-wide fallback prompt used for bot
	// records that carry no prompt of their own.
	RoomDefaultPrompt string
	Debug             bool
	AllowedOrigins    []string
}

// Overrides optionally overrides values from environment variables.
//
// A nil pointer means "use the environment/default value".
type Overrides struct {
	Addr         *string
	DatabasePath *string
	MasterSecret *string
	Debug        *bool
}

// Load loads server configuration from environment variables and applies any
// explicit overrides.
func Load(overrides Overrides) (*Config, error) {
	port := 2567
	if portStr := os.Getenv("PORT"); portStr != "" {
		if p, err := strconv.Atoi(portStr); err == nil {
			port = p
		}
	}

	addr := fmt.Sprintf(":%d", port)
	if overrides.Addr != nil {
		addr = *overrides.Addr
	}

	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "./playroom.db"
	}
	if overrides.DatabasePath != nil {
		dbPath = *overrides.DatabasePath
	}

	masterSecret := os.Getenv("PLAYROOM_MASTER_SECRET")
	if overrides.MasterSecret != nil {
		masterSecret = *overrides.MasterSecret
	}
	if masterSecret == "" {
		return nil, fmt.Errorf("PLAYROOM_MASTER_SECRET environment variable is required")
	}

	model := os.Getenv("OPENAI_MODEL")
	if model == "" {
		model = "gpt-4o-mini"
	}

	defaultPrompt := os.Getenv("ROOM_DEFAULT_PROMPT")
	if defaultPrompt == "" {
		defaultPrompt = "You are a friendly creature living in a tiny shared world. Keep replies short."
	}

	debug := false
	if debugStr := os.Getenv("DEBUG"); debugStr == "true" || debugStr == "1" {
		debug = true
	}
	if overrides.Debug != nil {
		debug = *overrides.Debug
	}

	return &Config{
		Addr:              addr,
		DatabasePath:      dbPath,
		MasterSecret:      masterSecret,
		OpenAIKey:         os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:       model,
		RoomDefaultPrompt: defaultPrompt,
		Debug:             debug,
		AllowedOrigins:    []string{"*"}, // For self-hosted, allow all origins
	}, nil
}
