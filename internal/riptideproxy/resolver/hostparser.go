package resolver

import (
	"strings"

	"github.com/theCapypara/riptide-proxy/internal/riptideproxy/project"
)

// ParseHost decodes a Host header into (project name, service name)
// relative to baseURL, per spec.md §4.1.
//
// Algorithm: strip any ":port" suffix; if the remainder equals baseURL,
// return ("", "", true) for the landing page. Otherwise strip the
// ".baseURL" suffix if present and take the last dot-delimited label (so
// extra left-hand subdomains are simply ignored). Split that label once on
// project.SEP: the first token is the project name, everything after
// (re-joined with SEP) is the service name, or "" when absent.
func ParseHost(hostHeader, baseURL string) (projectName, serviceName string, isLanding bool) {
	host := hostHeader
	if idx := strings.IndexByte(host, ':'); idx >= 0 {
		host = host[:idx]
	}

	if host == baseURL {
		return "", "", true
	}

	label := host
	if strings.HasSuffix(host, "."+baseURL) {
		label = strings.TrimSuffix(host, "."+baseURL)
	}
	if idx := strings.LastIndexByte(label, '.'); idx >= 0 {
		label = label[idx+1:]
	}

	parts := strings.SplitN(label, project.SEP, 2)
	projectName = parts[0]
	if len(parts) > 1 {
		serviceName = parts[1]
	}
	return projectName, serviceName, false
}
