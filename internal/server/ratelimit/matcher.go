package ratelimit

import "strings"

// healthEndpoint is never limited.
var healthEndpoint = EndpointConfig{Path: "/health", Method: "GET"}

// MatchEndpoint returns the configuration for a request, or nil when only the
// default limit applies. Exact paths win over prefixes.
func MatchEndpoint(path string, method string, configs []EndpointConfig) *EndpointConfig {
	if path == healthEndpoint.Path && method == healthEndpoint.Method {
		return &healthEndpoint
	}

	for i := range configs {
		if configs[i].Method == method && configs[i].Path == path {
			return &configs[i]
		}
	}

	for i := range configs {
		c := &configs[i]
		if c.Method == method && strings.HasSuffix(c.Path, "/") && strings.HasPrefix(path, c.Path) {
			return c
		}
	}

	return nil
}
