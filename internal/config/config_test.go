package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/omnifm/omnifm-bot/types"
)

func envMap(m map[string]string) func(string) string {
	return func(key string) string { return m[key] }
}

func TestLoadNumberedAgents(t *testing.T) {
	agents, err := loadAgents(envMap(map[string]string{
		"AGENT_1_TOKEN":     "tok-1",
		"AGENT_1_CLIENT_ID": "100000000000000001",
		"AGENT_1_NAME":      "Alpha",
		"AGENT_3_TOKEN":     "tok-3",
		"AGENT_3_CLIENT_ID": "100000000000000003",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(agents) != 2 {
		t.Fatalf("expected 2 agents, got %d", len(agents))
	}
	if agents[0].ID != "agent-1" || agents[0].Name != "Alpha" {
		t.Errorf("unexpected first agent: %+v", agents[0])
	}
	if agents[1].ID != "agent-3" || agents[1].Name != "Radio Agent 3" {
		t.Errorf("gaps in numbering must be skipped, got %+v", agents[1])
	}
}

func TestLoadAgentsTokenWithoutClientID(t *testing.T) {
	_, err := loadAgents(envMap(map[string]string{
		"AGENT_1_TOKEN": "tok-1",
	}))
	if err == nil || !strings.Contains(err.Error(), "AGENT_1_") {
		t.Errorf("half-configured agents must fail loudly, got %v", err)
	}
}

func TestLoadAgentsRejectsNonNumericClientID(t *testing.T) {
	_, err := loadAgents(envMap(map[string]string{
		"AGENT_1_TOKEN":     "tok-1",
		"AGENT_1_CLIENT_ID": "not-a-number",
	}))
	if err == nil {
		t.Error("non-numeric client ids must be rejected")
	}
}

func TestLoadAgentsDuplicateClientID(t *testing.T) {
	_, err := loadAgents(envMap(map[string]string{
		"AGENT_1_TOKEN":     "tok-1",
		"AGENT_1_CLIENT_ID": "100000000000000001",
		"AGENT_2_TOKEN":     "tok-2",
		"AGENT_2_CLIENT_ID": "100000000000000001",
	}))
	var conflict *types.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected a conflict error, got %v", err)
	}
	if conflict.Value != "100000000000000001" {
		t.Errorf("conflict should name the client id, got %+v", conflict)
	}
}

func TestLoadAgentsLegacyFallback(t *testing.T) {
	agents, err := loadAgents(envMap(map[string]string{
		"DISCORD_TOKEN": "legacy-token",
		"CLIENT_ID":     "100000000000000009",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(agents) != 1 || agents[0].ID != "agent-1" || agents[0].Token != "legacy-token" {
		t.Errorf("unexpected legacy agent: %+v", agents)
	}
}

func TestLoadAgentsNumberedWinsOverLegacy(t *testing.T) {
	agents, err := loadAgents(envMap(map[string]string{
		"AGENT_1_TOKEN":     "tok-1",
		"AGENT_1_CLIENT_ID": "100000000000000001",
		"DISCORD_TOKEN":     "legacy-token",
		"CLIENT_ID":         "100000000000000009",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(agents) != 1 || agents[0].Token != "tok-1" {
		t.Errorf("numbered config must shadow legacy vars, got %+v", agents)
	}
}

func TestLoadAgentsNoneConfigured(t *testing.T) {
	_, err := loadAgents(envMap(nil))
	if err == nil {
		t.Error("an empty environment must fail")
	}
}

func TestInviteURL(t *testing.T) {
	a := AgentConfig{ClientID: "100000000000000001", Permissions: "3145728"}
	u := a.InviteURL()
	for _, want := range []string{"client_id=100000000000000001", "permissions=3145728", "discord.com/oauth2/authorize"} {
		if !strings.Contains(u, want) {
			t.Errorf("invite url %q should contain %q", u, want)
		}
	}

	u = AgentConfig{ClientID: "1"}.InviteURL()
	if strings.Contains(u, "permissions=") {
		t.Errorf("no permissions configured means no permissions param, got %q", u)
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := strings.Join([]string{
		"# comment",
		"",
		"PLAIN=one",
		`QUOTED="two words"`,
		"export EXPORTED='three'",
		"EXISTING=from-file",
		"broken-line-without-equals",
		"=novalue",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("EXISTING", "from-env")
	for _, key := range []string{"PLAIN", "QUOTED", "EXPORTED"} {
		os.Unsetenv(key)
		t.Cleanup(func() { os.Unsetenv(key) })
	}

	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cases := map[string]string{
		"PLAIN":    "one",
		"QUOTED":   "two words",
		"EXPORTED": "three",
		"EXISTING": "from-env",
	}
	for key, want := range cases {
		if got := os.Getenv(key); got != want {
			t.Errorf("%s = %q, want %q", key, got, want)
		}
	}
}

func TestLoadEnvFileMissing(t *testing.T) {
	if err := LoadEnvFile(filepath.Join(t.TempDir(), "nope.env")); err != nil {
		t.Errorf("a missing env file must not error, got %v", err)
	}
}
