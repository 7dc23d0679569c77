package store

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/omnifm/omnifm-bot/types"
)

const (
	permGroupID = "123456789012345678"
	roleA       = "111111111111111111"
	roleB       = "222222222222222222"
	roleC       = "333333333333333333"
)

func newTestPermissionStore(t *testing.T) *PermissionStore {
	t.Helper()
	return NewPermissionStore(filepath.Join(t.TempDir(), "command-permissions.json"), nil)
}

func TestSetRolePermissionMutualExclusion(t *testing.T) {
	s := newTestPermissionStore(t)

	if _, err := s.SetRolePermission(permGroupID, "play", roleA, ModeDeny); err != nil {
		t.Fatal(err)
	}
	rule, err := s.SetRolePermission(permGroupID, "play", roleA, ModeAllow)
	if err != nil {
		t.Fatal(err)
	}
	if len(rule.DenyRoleIDs) != 0 {
		t.Errorf("role survived in deny after allow: %+v", rule)
	}
	if len(rule.AllowRoleIDs) != 1 || rule.AllowRoleIDs[0] != roleA {
		t.Errorf("allow = %v, want [%s]", rule.AllowRoleIDs, roleA)
	}
}

func TestSetRolePermissionIdempotent(t *testing.T) {
	s := newTestPermissionStore(t)
	if _, err := s.SetRolePermission(permGroupID, "stop", roleA, ModeAllow); err != nil {
		t.Fatal(err)
	}
	rule, err := s.SetRolePermission(permGroupID, "stop", roleA, ModeAllow)
	if err != nil {
		t.Fatal(err)
	}
	if len(rule.AllowRoleIDs) != 1 {
		t.Errorf("duplicate insertion grew the set: %v", rule.AllowRoleIDs)
	}
}

func TestSetRolePermissionValidation(t *testing.T) {
	s := newTestPermissionStore(t)

	if _, err := s.SetRolePermission(permGroupID, "selfdestruct", roleA, ModeAllow); !errors.Is(err, types.ErrUnsupportedCommand) {
		t.Errorf("unmanaged command err = %v", err)
	}
	if _, err := s.SetRolePermission("nope", "play", roleA, ModeAllow); !errors.Is(err, types.ErrInvalidID) {
		t.Errorf("bad group err = %v", err)
	}
	if _, err := s.SetRolePermission(permGroupID, "play", "short", ModeAllow); !errors.Is(err, types.ErrInvalidID) {
		t.Errorf("bad role err = %v", err)
	}
}

func TestCommandNormalization(t *testing.T) {
	s := newTestPermissionStore(t)
	if _, err := s.SetRolePermission(permGroupID, "/Play", roleA, ModeAllow); err != nil {
		t.Fatal(err)
	}
	verdict := s.Evaluate(permGroupID, "PLAY", []string{roleB})
	if verdict.Allowed {
		t.Error("normalized lookup should hit the configured rule")
	}
}

func TestRemoveRolePermission(t *testing.T) {
	s := newTestPermissionStore(t)
	if _, err := s.SetRolePermission(permGroupID, "play", roleA, ModeAllow); err != nil {
		t.Fatal(err)
	}

	changed, err := s.RemoveRolePermission(permGroupID, "play", roleA)
	if err != nil || !changed {
		t.Fatalf("remove: changed=%v err=%v", changed, err)
	}
	changed, err = s.RemoveRolePermission(permGroupID, "play", roleA)
	if err != nil || changed {
		t.Errorf("second remove: changed=%v err=%v", changed, err)
	}
	// The emptied rule is pruned entirely.
	if rules := s.GroupRules(permGroupID); len(rules) != 0 {
		t.Errorf("empty rule not pruned: %+v", rules)
	}
}

func TestReset(t *testing.T) {
	s := newTestPermissionStore(t)
	if _, err := s.SetRolePermission(permGroupID, "play", roleA, ModeAllow); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SetRolePermission(permGroupID, "stop", roleB, ModeDeny); err != nil {
		t.Fatal(err)
	}

	changed, err := s.Reset(permGroupID, "play")
	if err != nil || !changed {
		t.Fatalf("reset one command: changed=%v err=%v", changed, err)
	}
	if rules := s.GroupRules(permGroupID); len(rules) != 1 {
		t.Errorf("rules after single reset = %+v", rules)
	}

	changed, err = s.Reset(permGroupID, "")
	if err != nil || !changed {
		t.Fatalf("reset group: changed=%v err=%v", changed, err)
	}
	if rules := s.GroupRules(permGroupID); len(rules) != 0 {
		t.Errorf("rules after group reset = %+v", rules)
	}
}

func TestEvaluatePolicy(t *testing.T) {
	s := newTestPermissionStore(t)
	if _, err := s.SetRolePermission(permGroupID, "play", roleA, ModeAllow); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SetRolePermission(permGroupID, "play", roleB, ModeDeny); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SetRolePermission(permGroupID, "stop", roleB, ModeDeny); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name        string
		command     string
		roles       []string
		wantAllowed bool
		wantReason  string
	}{
		{"unmanaged command", "sing", []string{roleA}, true, types.ReasonNotManaged},
		{"unconfigured command", "pause", []string{roleA}, true, types.ReasonOpen},
		{"deny beats allow", "play", []string{roleA, roleB}, false, types.ReasonDeny},
		{"allow match", "play", []string{roleA, roleC}, true, types.ReasonAllow},
		{"allow required", "play", []string{roleC}, false, types.ReasonAllowRequired},
		{"no roles at all", "play", nil, false, types.ReasonAllowRequired},
		{"deny-only rule open otherwise", "stop", []string{roleC}, true, types.ReasonOpen},
		{"deny-only rule blocks member", "stop", []string{roleB}, false, types.ReasonDeny},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			verdict := s.Evaluate(permGroupID, tc.command, tc.roles)
			if verdict.Allowed != tc.wantAllowed {
				t.Errorf("allowed = %v, want %v", verdict.Allowed, tc.wantAllowed)
			}
			if verdict.Reason != tc.wantReason {
				t.Errorf("reason = %s, want %s", verdict.Reason, tc.wantReason)
			}
		})
	}
}

func TestNormalizePermissionDocumentLooseShapes(t *testing.T) {
	raw := map[string]any{
		permGroupID: map[string]any{
			"play": map[string]any{
				"allowRoleIds": []any{roleA, roleA, "garbage", roleB},
				"denyRoleIds":  []any{roleB, roleC},
			},
			"unknowncmd": map[string]any{
				"allowRoleIds": []any{roleA},
			},
		},
		"not-a-snowflake": map[string]any{
			"play": map[string]any{"allowRoleIds": []any{roleA}},
		},
	}

	doc := normalizePermissionDocument(raw)
	if len(doc.Guilds) != 1 {
		t.Fatalf("guilds = %d, want 1", len(doc.Guilds))
	}
	rule := doc.Guilds[permGroupID].Commands["play"]
	if len(rule.AllowRoleIDs) != 2 {
		t.Errorf("allow = %v, want deduped [%s %s]", rule.AllowRoleIDs, roleA, roleB)
	}
	// roleB sits in allow, so the conflicting deny entry is dropped.
	if len(rule.DenyRoleIDs) != 1 || rule.DenyRoleIDs[0] != roleC {
		t.Errorf("deny = %v, want [%s]", rule.DenyRoleIDs, roleC)
	}
	if _, ok := doc.Guilds[permGroupID].Commands["unknowncmd"]; ok {
		t.Error("unmanaged command survived normalization")
	}
}
