package ratelimit

import (
	"strings"
)

// MatchEndpoint returns the first rule whose method and path pattern match, or nil.
// A "*" pattern segment matches any single path segment, so "/jobs/*/bids" covers
// every job's bid route. GET /health is never limited.
func MatchEndpoint(path, method string, configs []EndpointConfig) *EndpointConfig {
	if path == "/health" && method == "GET" {
		return &EndpointConfig{Path: path, Method: method}
	}

	segments := splitPath(path)
	for i := range configs {
		c := &configs[i]
		if c.Method == method && matchSegments(splitPath(c.Path), segments) {
			return c
		}
	}
	return nil
}

func splitPath(p string) []string {
	return strings.Split(strings.Trim(p, "/"), "/")
}

func matchSegments(pattern, path []string) bool {
	if len(pattern) != len(path) {
		return false
	}
	for i := range pattern {
		if pattern[i] != "*" && pattern[i] != path[i] {
			return false
		}
	}
	return true
}
