// Package observability provides metrics for the HTTP API, jobs and
// outbound gateway calls.
package observability

import (
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys
const (
	attrMethod  = "method"
	attrPath    = "path"
	attrStatus  = "status"
	attrKind    = "kind"
	attrService = "service"
	attrSuccess = "success"
)

func methodAttr(method string) attribute.KeyValue {
	return attribute.String(attrMethod, method)
}

func pathAttr(path string) attribute.KeyValue {
	// Normalize paths with IDs to reduce cardinality
	// /v1/courses/12/jobs/push-teams -> /v1/courses/{courseId}/jobs/push-teams
	return attribute.String(attrPath, normalizePath(path))
}

func statusAttr(code int) attribute.KeyValue {
	// Group status codes to reduce cardinality
	// 200-299 -> 2xx, 400-499 -> 4xx, 500-599 -> 5xx
	if code == 0 {
		return attribute.String(attrStatus, "none")
	}
	return attribute.String(attrStatus, fmt.Sprintf("%dxx", code/100))
}

func kindAttr(kind string) attribute.KeyValue {
	return attribute.String(attrKind, kind)
}

func serviceAttr(service string) attribute.KeyValue {
	return attribute.String(attrService, service)
}

func successAttr(success bool) attribute.KeyValue {
	return attribute.Bool(attrSuccess, success)
}

// idSegments maps a collection segment to the placeholder for the id that follows it.
var idSegments = map[string]string{
	"courses":      "{courseId}",
	"team-members": "{memberId}",
	"teams":        "{teamId}",
	"students":     "{studentId}",
	"staff":        "{staffId}",
	"jobs":         "{jobId}",
}

// staticJobRoutes are /v1/jobs/<name> routes that are not job ids.
var staticJobRoutes = map[string]bool{
	"membership-audit": true,
}

// normalizePath replaces dynamic path segments with placeholders.
func normalizePath(path string) string {
	if !strings.HasPrefix(path, "/v1/") {
		return path
	}
	parts := strings.Split(path, "/")
	for i := 2; i < len(parts)-1; i++ {
		placeholder, ok := idSegments[parts[i]]
		if !ok || parts[i+1] == "" {
			continue
		}
		next := parts[i+1]
		// Only the top-level /v1/jobs/{jobId} carries an id; nested
		// .../jobs/<kind> segments name the job to submit.
		if parts[i] == "jobs" && (i != 2 || staticJobRoutes[next]) {
			continue
		}
		parts[i+1] = placeholder
		i++
	}
	return strings.Join(parts, "/")
}
