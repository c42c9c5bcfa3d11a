package ratelimit

import (
	"strings"
)

// unlimited routes never consume tokens
var unlimited = map[string]bool{
	"GET /health":  true,
	"GET /metrics": true,
}

// MatchEndpoint returns the configuration whose pattern matches the request, or nil.
// Exact patterns win over wildcard ones.
func MatchEndpoint(path string, method string, configs []EndpointConfig) *EndpointConfig {
	if unlimited[method+" "+path] {
		return &EndpointConfig{Path: path, Method: method}
	}

	for i := range configs {
		if configs[i].Method == method && configs[i].Path == path {
			return &configs[i]
		}
	}
	for i := range configs {
		if configs[i].Method == method && matchPattern(configs[i].Path, path) {
			return &configs[i]
		}
	}
	return nil
}

func matchPattern(pattern, path string) bool {
	if !strings.Contains(pattern, "*") {
		return false
	}
	want := strings.Split(strings.Trim(pattern, "/"), "/")
	got := strings.Split(strings.Trim(path, "/"), "/")
	if len(want) != len(got) {
		return false
	}
	for i := range want {
		if want[i] == "*" {
			if got[i] == "" {
				return false
			}
			continue
		}
		if want[i] != got[i] {
			return false
		}
	}
	return true
}
