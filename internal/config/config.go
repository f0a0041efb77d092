// Package config centralizes environment-variable configuration: one
// struct populated by a constructor, never scattered os.Getenv calls in
// handler code.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds every environment-derived setting the runtime needs.
type Config struct {
	// ProjectPath roots every default data path.
	ProjectPath string

	// APIHost / APIPort / APIToken configure the tool-call transport.
	APIHost  string
	APIPort  int
	APIToken string

	// AgentName / InstanceID / Team / Org / Host seed identity resolution
	// when a tool call omits an explicit caller.
	AgentName  string
	InstanceID string
	Team       string
	Org        string
	Host       string

	// IdleTimeout is how long an idle chat-triggered session may sit
	// before the Session Manager terminates it.
	IdleTimeout time.Duration

	// External back-end credentials: unset means the corresponding
	// adapter slot is left nil and that capability reports unavailable
	// rather than failing the whole runtime.
	SlackBotToken  string
	LinearAPIKey   string
	GitHubAPIBase  string
	GitHubToken    string
	RepoDir        string
	DockerImage    string

	// TelegramBotToken, when set, starts the chat-platform bridge
	// routing long-polled messages into the Session Manager under
	// CoordinatorRole's system prompt.
	TelegramBotToken string
	CoordinatorRole  string
}

// FromEnv populates a Config from the environment, falling back to
// sensible defaults for anything unset.
func FromEnv() Config {
	return Config{
		ProjectPath: getenv("HERD_PROJECT_PATH", "."),
		APIHost:     getenv("HERD_API_HOST", "0.0.0.0"),
		APIPort:     getenvInt("HERD_API_PORT", 8420),
		APIToken:    os.Getenv("HERD_API_TOKEN"),
		AgentName:   os.Getenv("HERD_AGENT_NAME"),
		InstanceID:  os.Getenv("HERD_INSTANCE_ID"),
		Team:        os.Getenv("HERD_TEAM"),
		Org:         os.Getenv("HERD_ORG"),
		Host:        os.Getenv("HERD_HOST"),
		IdleTimeout: getenvDurationSeconds("HERD_IDLE_TIMEOUT", 180*time.Second),

		SlackBotToken: os.Getenv("HERD_SLACK_BOT_TOKEN"),
		LinearAPIKey:  os.Getenv("HERD_LINEAR_API_KEY"),
		GitHubAPIBase: os.Getenv("HERD_GITHUB_API_BASE"),
		GitHubToken:   os.Getenv("HERD_GITHUB_TOKEN"),
		RepoDir:       getenv("HERD_REPO_DIR", ""),
		DockerImage:   getenv("HERD_DOCKER_IMAGE", "herd-agent:latest"),

		TelegramBotToken: os.Getenv("HERD_TELEGRAM_BOT_TOKEN"),
		CoordinatorRole:  getenv("HERD_COORDINATOR_ROLE", "steve"),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvDurationSeconds(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return time.Duration(secs) * time.Second
}
