package relay

import (
	"net/url"
	"strings"
)

// Origins decides which request origins may reach the relay and the
// console websocket
type Origins struct {
	any     bool
	allowed map[string]bool
}

// NewOrigins builds a policy from an allow-list. "*" accepts every origin.
func NewOrigins(allowed []string) *Origins {
	o := &Origins{allowed: make(map[string]bool, len(allowed))}
	for _, origin := range allowed {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		switch origin {
		case "":
		case "*":
			o.any = true
		default:
			o.allowed[strings.ToLower(origin)] = true
		}
	}
	return o
}

// Allowed reports whether origin may talk to a server reached as host.
// Requests without an Origin header and same-origin requests are allowed.
// The opaque "null" origin must be listed explicitly.
func (o *Origins) Allowed(origin, host string) bool {
	if o.any || origin == "" {
		return true
	}
	origin = strings.ToLower(strings.TrimRight(origin, "/"))
	if o.allowed[origin] {
		return true
	}
	if u, err := url.Parse(origin); err == nil && u.Host != "" && strings.EqualFold(u.Host, host) {
		return true
	}
	return false
}

// List returns the configured origins for CORS
func (o *Origins) List() []string {
	if o.any {
		return []string{"*"}
	}
	out := make([]string, 0, len(o.allowed))
	for origin := range o.allowed {
		out = append(out, origin)
	}
	return out
}

// AllowsAny reports whether the policy is "*"
func (o *Origins) AllowsAny() bool {
	return o.any
}
