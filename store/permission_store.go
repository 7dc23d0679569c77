package store

import (
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/omnifm/omnifm-bot/types"
)

// ManagedCommands is the closed set of commands role rules can be attached to.
var ManagedCommands = []string{
	"play",
	"pause",
	"resume",
	"stop",
	"setvolume",
	"stations",
	"list",
	"now",
	"status",
	"health",
	"diag",
	"addstation",
	"removestation",
	"mystations",
}

var managedCommandSet = func() map[string]struct{} {
	out := make(map[string]struct{}, len(ManagedCommands))
	for _, c := range ManagedCommands {
		out[c] = struct{}{}
	}
	return out
}()

// NormalizeCommand strips a leading slash and lowercases.
func NormalizeCommand(raw string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(raw)), "/")
}

func IsManagedCommand(raw string) bool {
	_, ok := managedCommandSet[NormalizeCommand(raw)]
	return ok
}

type PermissionMode string

const (
	ModeAllow PermissionMode = "allow"
	ModeDeny  PermissionMode = "deny"
)

type permissionDocument struct {
	Guilds map[string]permissionGuild `json:"guilds"`
}

type permissionGuild struct {
	Commands map[string]types.Rule `json:"commands"`
}

// PermissionStore owns the group→command→role-rule document.
type PermissionStore struct {
	mu   sync.Mutex
	file *jsonFile
	log  *slog.Logger
}

func NewPermissionStore(path string, log *slog.Logger) *PermissionStore {
	if log == nil {
		log = slog.Default()
	}
	return &PermissionStore{
		file: newJSONFile(path, true, log),
		log:  log,
	}
}

func (s *PermissionStore) load() *permissionDocument {
	raw := map[string]any{}
	if err := s.file.Load(&raw); err != nil {
		s.log.Warn("permission store load failed, starting empty", "error", err)
	}
	return normalizePermissionDocument(raw)
}

// normalizePermissionDocument accepts both the wrapped {"guilds": ...} shape
// and the legacy bare guild-map shape, drops invalid ids and unmanaged
// commands, dedups role lists, and enforces allow/deny mutual exclusion.
func normalizePermissionDocument(raw map[string]any) *permissionDocument {
	doc := &permissionDocument{Guilds: map[string]permissionGuild{}}

	source := raw
	if wrapped, ok := raw["guilds"].(map[string]any); ok {
		source = wrapped
	}
	for rawGuildID, rawEntry := range source {
		guildID := strings.TrimSpace(rawGuildID)
		if !types.IsSnowflake(guildID) {
			continue
		}
		entry, ok := rawEntry.(map[string]any)
		if !ok {
			continue
		}
		rawCommands := entry
		if wrapped, ok := entry["commands"].(map[string]any); ok {
			rawCommands = wrapped
		}
		commands := map[string]types.Rule{}
		for rawCommand, rawRule := range rawCommands {
			command := NormalizeCommand(rawCommand)
			if !IsManagedCommand(command) {
				continue
			}
			rule := normalizeRule(rawRule)
			if rule.Empty() {
				continue
			}
			commands[command] = rule
		}
		if len(commands) == 0 {
			continue
		}
		doc.Guilds[guildID] = permissionGuild{Commands: commands}
	}
	return doc
}

func normalizeRule(raw any) types.Rule {
	entry, _ := raw.(map[string]any)
	allow := uniqueRoleIDs(entry["allowRoleIds"])
	allowSet := map[string]struct{}{}
	for _, id := range allow {
		allowSet[id] = struct{}{}
	}
	deny := make([]string, 0)
	for _, id := range uniqueRoleIDs(entry["denyRoleIds"]) {
		if _, dup := allowSet[id]; dup {
			continue
		}
		deny = append(deny, id)
	}
	return types.Rule{AllowRoleIDs: allow, DenyRoleIDs: deny}
}

func uniqueRoleIDs(raw any) []string {
	items, _ := raw.([]any)
	out := make([]string, 0, len(items))
	seen := map[string]struct{}{}
	for _, item := range items {
		id, _ := item.(string)
		id = strings.TrimSpace(id)
		if !types.IsSnowflake(id) {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func (s *PermissionStore) save(doc *permissionDocument) {
	if err := s.file.Save(doc); err != nil {
		s.log.Warn("permission store save failed", "error", err)
	}
}

// Rule returns the configured rule for a group/command, empty when unset.
func (s *PermissionStore) Rule(groupID, command string) types.Rule {
	command = NormalizeCommand(command)
	if !types.IsSnowflake(groupID) || !IsManagedCommand(command) {
		return types.Rule{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load().Guilds[groupID].Commands[command]
}

// GroupRules returns all configured rules for a group keyed by command.
func (s *PermissionStore) GroupRules(groupID string) map[string]types.Rule {
	if !types.IsSnowflake(groupID) {
		return map[string]types.Rule{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]types.Rule{}
	for command, rule := range s.load().Guilds[groupID].Commands {
		out[command] = rule
	}
	return out
}

// SetRolePermission upserts a role into the requested set and evicts it from
// the opposite one. Idempotent.
func (s *PermissionStore) SetRolePermission(groupID, command, roleID string, mode PermissionMode) (types.Rule, error) {
	command = NormalizeCommand(command)
	if !types.IsSnowflake(groupID) || !types.IsSnowflake(roleID) {
		return types.Rule{}, types.ErrInvalidID
	}
	if !IsManagedCommand(command) {
		return types.Rule{}, types.ErrUnsupportedCommand
	}
	if mode != ModeAllow && mode != ModeDeny {
		return types.Rule{}, types.ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.load()
	rule := doc.Guilds[groupID].Commands[command]

	rule.AllowRoleIDs = removeID(rule.AllowRoleIDs, roleID)
	rule.DenyRoleIDs = removeID(rule.DenyRoleIDs, roleID)
	if mode == ModeAllow {
		rule.AllowRoleIDs = append(rule.AllowRoleIDs, roleID)
	} else {
		rule.DenyRoleIDs = append(rule.DenyRoleIDs, roleID)
	}

	s.storeRule(doc, groupID, command, rule)
	s.save(doc)
	return rule, nil
}

// RemoveRolePermission drops a role from both sets and reports whether a
// change occurred.
func (s *PermissionStore) RemoveRolePermission(groupID, command, roleID string) (bool, error) {
	command = NormalizeCommand(command)
	if !types.IsSnowflake(groupID) || !types.IsSnowflake(roleID) {
		return false, types.ErrInvalidID
	}
	if !IsManagedCommand(command) {
		return false, types.ErrUnsupportedCommand
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.load()
	rule := doc.Guilds[groupID].Commands[command]
	before := len(rule.AllowRoleIDs) + len(rule.DenyRoleIDs)
	rule.AllowRoleIDs = removeID(rule.AllowRoleIDs, roleID)
	rule.DenyRoleIDs = removeID(rule.DenyRoleIDs, roleID)
	changed := len(rule.AllowRoleIDs)+len(rule.DenyRoleIDs) != before

	s.storeRule(doc, groupID, command, rule)
	s.save(doc)
	return changed, nil
}

// Reset clears one command rule, or every rule for the group when command is
// empty. Reports whether anything was removed.
func (s *PermissionStore) Reset(groupID, command string) (bool, error) {
	if !types.IsSnowflake(groupID) {
		return false, types.ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.load()
	entry, exists := doc.Guilds[groupID]
	if !exists {
		return false, nil
	}
	if command == "" {
		delete(doc.Guilds, groupID)
		s.save(doc)
		return true, nil
	}

	command = NormalizeCommand(command)
	if !IsManagedCommand(command) {
		return false, types.ErrUnsupportedCommand
	}
	_, changed := entry.Commands[command]
	delete(entry.Commands, command)
	if len(entry.Commands) == 0 {
		delete(doc.Guilds, groupID)
	}
	s.save(doc)
	return changed, nil
}

// Evaluate applies the permission policy: unmanaged commands and unconfigured
// rules are open; deny matches beat allow matches; a non-empty allow list
// requires membership.
func (s *PermissionStore) Evaluate(groupID, command string, callerRoleIDs []string) types.Verdict {
	command = NormalizeCommand(command)
	if !types.IsSnowflake(groupID) || !IsManagedCommand(command) {
		return types.Verdict{Managed: false, Allowed: true, Reason: types.ReasonNotManaged}
	}

	rule := s.Rule(groupID, command)
	if rule.Empty() {
		return types.Verdict{Managed: true, Allowed: true, Reason: types.ReasonOpen}
	}

	roles := map[string]struct{}{}
	for _, id := range callerRoleIDs {
		id = strings.TrimSpace(id)
		if types.IsSnowflake(id) {
			roles[id] = struct{}{}
		}
	}

	if matched := intersect(rule.DenyRoleIDs, roles); len(matched) > 0 {
		return types.Verdict{Managed: true, Configured: true, Allowed: false, Reason: types.ReasonDeny, MatchedIDs: matched}
	}
	if len(rule.AllowRoleIDs) > 0 {
		if matched := intersect(rule.AllowRoleIDs, roles); len(matched) > 0 {
			return types.Verdict{Managed: true, Configured: true, Allowed: true, Reason: types.ReasonAllow, MatchedIDs: matched}
		}
		return types.Verdict{Managed: true, Configured: true, Allowed: false, Reason: types.ReasonAllowRequired}
	}
	return types.Verdict{Managed: true, Configured: true, Allowed: true, Reason: types.ReasonOpen}
}

// storeRule writes a rule back, pruning empty rules and empty guild entries.
func (s *PermissionStore) storeRule(doc *permissionDocument, groupID, command string, rule types.Rule) {
	entry, ok := doc.Guilds[groupID]
	if !ok {
		entry = permissionGuild{Commands: map[string]types.Rule{}}
	}
	if rule.Empty() {
		delete(entry.Commands, command)
	} else {
		sort.Strings(rule.AllowRoleIDs)
		sort.Strings(rule.DenyRoleIDs)
		entry.Commands[command] = rule
	}
	if len(entry.Commands) == 0 {
		delete(doc.Guilds, groupID)
	} else {
		doc.Guilds[groupID] = entry
	}
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, candidate := range ids {
		if candidate != id {
			out = append(out, candidate)
		}
	}
	return out
}

func intersect(ids []string, set map[string]struct{}) []string {
	var matched []string
	for _, id := range ids {
		if _, ok := set[id]; ok {
			matched = append(matched, id)
		}
	}
	return matched
}
