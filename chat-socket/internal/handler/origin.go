package handler

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/weiawesome/wes-chat-socket/pkg/log"
)

// OriginPolicy decides which browser origins may open a socket.
type OriginPolicy struct {
	allowAll bool
	allowed  map[string]struct{}
}

// NewOriginPolicy builds a policy from configured origins. "*" allows any
// origin; an empty list allows none.
func NewOriginPolicy(origins []string) *OriginPolicy {
	p := &OriginPolicy{allowed: make(map[string]struct{})}
	l := log.L()

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			p.allowAll = true
			continue
		}

		normalized, ok := normalizeOrigin(trimmed)
		if !ok {
			l.Warn().Str("origin", origin).Msg("ignoring invalid origin in configuration")
			continue
		}
		p.allowed[normalized] = struct{}{}
	}

	return p
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", false
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

// AllowAll reports whether every origin is accepted.
func (p *OriginPolicy) AllowAll() bool {
	return p.allowAll
}

// Check is a websocket.Upgrader CheckOrigin func.
func (p *OriginPolicy) Check(r *http.Request) bool {
	if p.allowAll {
		return true
	}

	origin := r.Header.Get("Origin")
	if normalized, ok := normalizeOrigin(origin); ok {
		if _, exists := p.allowed[normalized]; exists {
			return true
		}
	}

	l := log.Ctx(r.Context())
	l.Warn().Str("origin", origin).Msg("blocked websocket connection from disallowed origin")
	return false
}
