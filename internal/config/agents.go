package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/omnifm/omnifm-bot/types"
)

// maxNumberedAgents bounds the AGENT_n_* scan.
const maxNumberedAgents = 20

var numberPattern = regexp.MustCompile(`^[0-9]+$`)

// AgentConfig describes one bot identity the orchestrator runs.
type AgentConfig struct {
	ID          string
	Index       int
	Name        string
	Token       string
	ClientID    string
	Permissions string
}

// InviteURL builds the OAuth2 authorization link for this agent.
func (a AgentConfig) InviteURL() string {
	q := url.Values{}
	q.Set("client_id", a.ClientID)
	q.Set("scope", "bot applications.commands")
	if a.Permissions != "" {
		q.Set("permissions", a.Permissions)
	}
	return "https://discord.com/oauth2/authorize?" + q.Encode()
}

// LoadAgents reads the numbered AGENT_n_TOKEN / AGENT_n_CLIENT_ID pairs,
// falling back to the legacy single-agent DISCORD_TOKEN / CLIENT_ID form.
// Client ids must be unique across agents.
func LoadAgents() ([]AgentConfig, error) {
	return loadAgents(os.Getenv)
}

func loadAgents(getenv func(string) string) ([]AgentConfig, error) {
	agents, err := loadNumberedAgents(getenv)
	if err != nil {
		return nil, err
	}
	if len(agents) == 0 {
		agents = loadLegacyAgent(getenv)
	}
	if len(agents) == 0 {
		return nil, fmt.Errorf("no agent configured: set AGENT_1_TOKEN and AGENT_1_CLIENT_ID (or DISCORD_TOKEN and CLIENT_ID)")
	}

	seen := make(map[string]struct{}, len(agents))
	for _, agent := range agents {
		if _, dup := seen[agent.ClientID]; dup {
			return nil, &types.ConflictError{Field: "clientId", Value: agent.ClientID}
		}
		seen[agent.ClientID] = struct{}{}
	}
	return agents, nil
}

func loadNumberedAgents(getenv func(string) string) ([]AgentConfig, error) {
	var agents []AgentConfig
	for i := 1; i <= maxNumberedAgents; i++ {
		token := strings.TrimSpace(getenv(fmt.Sprintf("AGENT_%d_TOKEN", i)))
		clientID := numberString(getenv(fmt.Sprintf("AGENT_%d_CLIENT_ID", i)))

		if token == "" && clientID == "" {
			continue
		}
		if token == "" || clientID == "" {
			return nil, fmt.Errorf("AGENT_%d_TOKEN and AGENT_%d_CLIENT_ID must be set together", i, i)
		}

		agents = append(agents, AgentConfig{
			ID:          fmt.Sprintf("agent-%d", i),
			Index:       i,
			Name:        nameOrDefault(getenv(fmt.Sprintf("AGENT_%d_NAME", i)), fmt.Sprintf("Radio Agent %d", i)),
			Token:       token,
			ClientID:    clientID,
			Permissions: numberString(getenv(fmt.Sprintf("AGENT_%d_PERMISSIONS", i))),
		})
	}
	return agents, nil
}

func loadLegacyAgent(getenv func(string) string) []AgentConfig {
	token := strings.TrimSpace(getenv("DISCORD_TOKEN"))
	clientID := numberString(getenv("CLIENT_ID"))
	if token == "" || clientID == "" {
		return nil
	}
	return []AgentConfig{{
		ID:          "agent-1",
		Index:       1,
		Name:        nameOrDefault(getenv("AGENT_NAME"), "Radio Agent"),
		Token:       token,
		ClientID:    clientID,
		Permissions: numberString(getenv("AGENT_PERMISSIONS")),
	}}
}

func nameOrDefault(raw, fallback string) string {
	if name := strings.TrimSpace(raw); name != "" {
		return name
	}
	return fallback
}

// numberString returns the trimmed value when it is all digits, else "".
func numberString(raw string) string {
	value := strings.TrimSpace(raw)
	if !numberPattern.MatchString(value) {
		return ""
	}
	return value
}
