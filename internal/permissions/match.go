// Package permissions resolves a role assignment's merged permission surface
// and answers exact and wildcard membership queries over it.
package permissions

import "strings"

// Match reports whether permission satisfies pattern. Patterns are plain
// permission strings with optional "*" wildcards: "*" alone grants
// everything, "users.*" grants any permission under the users prefix, and a
// pattern without "*" matches only itself. The matcher works over the
// pre-split literal segments, anchored at both ends; role-authored strings
// never reach a regex engine.
func Match(pattern, permission string) bool {
	if pattern == "*" {
		return true
	}
	if !strings.Contains(pattern, "*") {
		return pattern == permission
	}

	segments := strings.Split(pattern, "*")

	head := segments[0]
	if !strings.HasPrefix(permission, head) {
		return false
	}
	rest := permission[len(head):]

	tail := segments[len(segments)-1]
	if len(rest) < len(tail) || !strings.HasSuffix(rest, tail) {
		return false
	}
	rest = rest[:len(rest)-len(tail)]

	for _, segment := range segments[1 : len(segments)-1] {
		if segment == "" {
			continue
		}
		idx := strings.Index(rest, segment)
		if idx < 0 {
			return false
		}
		rest = rest[idx+len(segment):]
	}
	return true
}

// MatchAny reports whether permission satisfies any of the held patterns.
func MatchAny(patterns []string, permission string) bool {
	for _, p := range patterns {
		if Match(p, permission) {
			return true
		}
	}
	return false
}

// SplitModule separates a module-scoped permission into its module name and
// action. Only the first dot splits; the action may itself be dotted. A
// dotless permission has no module and fails closed at the caller.
func SplitModule(permission string) (module, action string, ok bool) {
	idx := strings.Index(permission, ".")
	if idx <= 0 || idx == len(permission)-1 {
		return "", "", false
	}
	return permission[:idx], permission[idx+1:], true
}
