// Package policy provides tool authorization and access control: profiles,
// allow/deny rules, and named groups for deciding which tools an agent may
// call during a turn.
package policy

import "strings"

// Profile is a pre-configured tool access level that provides sensible
// defaults for a common deployment shape.
type Profile string

const (
	// ProfileMinimal allows only status/read-only tools.
	ProfileMinimal Profile = "minimal"

	// ProfileCoding allows filesystem, exec, and web tools.
	ProfileCoding Profile = "coding"

	// ProfileMessaging allows session/messaging tools.
	ProfileMessaging Profile = "messaging"

	// ProfileFull allows all tools (except explicitly denied).
	ProfileFull Profile = "full"
)

// Policy defines tool access rules for an agent by combining a profile
// with explicit allow and deny lists. Deny rules always take precedence
// over allow rules.
type Policy struct {
	// Profile is a pre-configured access level.
	Profile Profile `json:"profile,omitempty" yaml:"profile"`

	// Allow explicitly allows these tools (in addition to the profile).
	// Entries may be exact tool names, "group:name" references, or
	// "prefix.*" wildcards.
	Allow []string `json:"allow,omitempty" yaml:"allow"`

	// Deny explicitly denies these tools (overrides allow).
	Deny []string `json:"deny,omitempty" yaml:"deny"`
}

// NewPolicy creates a new policy with the given profile as a base.
func NewPolicy(profile Profile) *Policy {
	return &Policy{Profile: profile}
}

// WithAllow adds tools to the allow list and returns the policy for chaining.
func (p *Policy) WithAllow(tools ...string) *Policy {
	p.Allow = append(p.Allow, tools...)
	return p
}

// WithDeny adds tools to the deny list and returns the policy for chaining.
func (p *Policy) WithDeny(tools ...string) *Policy {
	p.Deny = append(p.Deny, tools...)
	return p
}

// DefaultGroups are the built-in tool groups. Groups can be referenced in
// policies using their key (e.g., "group:fs").
var DefaultGroups = map[string][]string{
	"group:fs":       {"read", "write", "edit", "apply_patch", "exec", "process"},
	"group:web":      {"web_search", "web_fetch"},
	"group:sessions": {"sessions_list", "sessions_history", "session_status", "sessions_send"},
	"group:cron":     {"cron"},
}

// ProfileDefaults defines the default allow lists for each profile.
var ProfileDefaults = map[Profile]*Policy{
	ProfileMinimal: {
		Allow: []string{"session_status"},
	},
	ProfileCoding: {
		Allow: []string{"group:fs", "group:web"},
	},
	ProfileMessaging: {
		Allow: []string{"group:sessions"},
	},
	ProfileFull: {
		// Full profile allows everything not explicitly denied.
	},
}

// ToolAliases maps alternative names to canonical tool names.
var ToolAliases = map[string]string{
	"bash":        "exec",
	"shell":       "exec",
	"apply-patch": "apply_patch",
	"websearch":   "web_search",
	"webfetch":    "web_fetch",
}

// NormalizeTool normalizes a tool name to its canonical form by lowercasing
// and resolving known aliases.
func NormalizeTool(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := ToolAliases[normalized]; ok {
		return alias
	}
	return normalized
}

// NormalizeTools normalizes a list of tool names to their canonical forms.
func NormalizeTools(names []string) []string {
	result := make([]string, 0, len(names))
	for _, name := range names {
		if normalized := NormalizeTool(name); normalized != "" {
			result = append(result, normalized)
		}
	}
	return result
}
