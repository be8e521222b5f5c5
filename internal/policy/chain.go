// Package policy merges the global, service, endpoint and call levels of the
// caching and logging configuration into one effective decision per call.
//
// Enabled flags are AND-chained: a nil level inherits, and a false at any
// level disables the concern for every level below it. Routing values such as
// cache keys, TTLs and log channels use override semantics: the most specific
// non-empty value wins.
package policy

import (
	"regexp"
	"strings"
	"time"
)

// AndChain resolves an enabled flag across levels. Nil levels inherit; any
// explicit false disables.
func AndChain(levels ...*bool) bool {
	for _, l := range levels {
		if l != nil && !*l {
			return false
		}
	}
	return true
}

// Override returns the last non-empty value, levels given most general first.
func Override(levels ...string) string {
	for i := len(levels) - 1; i >= 0; i-- {
		if levels[i] != "" {
			return levels[i]
		}
	}
	return ""
}

// OverrideDuration returns the last non-nil value, levels given most general
// first.
func OverrideDuration(levels ...*time.Duration) *time.Duration {
	for i := len(levels) - 1; i >= 0; i-- {
		if levels[i] != nil {
			return levels[i]
		}
	}
	return nil
}

var placeholder = regexp.MustCompile(`\{[A-Za-z0-9_.-]+\}`)

// RenderKey substitutes {name} placeholders in tmpl with params. ok is false
// when a placeholder has no value in params; the placeholder is then left in
// the result as it is.
func RenderKey(tmpl string, params map[string]string) (string, bool) {
	if tmpl == "" || !strings.Contains(tmpl, "{") {
		return tmpl, true
	}
	ok := true
	out := placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		v, found := params[m[1:len(m)-1]]
		if !found {
			ok = false
			return m
		}
		return v
	})
	return out, ok
}

// Unresolved reports whether key still carries a {name} placeholder.
func Unresolved(key string) bool {
	return placeholder.MatchString(key)
}

func Bool(b bool) *bool { return &b }

func Seconds(n int) *time.Duration {
	d := time.Duration(n) * time.Second
	return &d
}
