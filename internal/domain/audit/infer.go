package audit

import (
	"net/http"
	"strings"
)

// InferAction derives an action tag from an HTTP method and request path
// when a handler did not supply one explicitly. Auth-related paths are
// special-cased; everything else maps the second path segment (trailing
// "s" stripped, upper-cased) plus a method suffix. The result is not
// guaranteed to be in the closed action set; callers that get an invalid
// action back must fall back to a generic one rather than widen the set.
func InferAction(method, path string) Action {
	switch {
	case strings.Contains(path, "/login"):
		return ActionLogin
	case strings.Contains(path, "/logout"):
		return ActionLogout
	case strings.Contains(path, "/register"):
		return ActionUserCreated
	case strings.Contains(path, "/password"):
		return ActionPasswordChange
	}

	var suffix string
	switch method {
	case http.MethodPost:
		suffix = "_CREATED"
	case http.MethodGet:
		suffix = "_VIEWED"
	case http.MethodPut, http.MethodPatch:
		suffix = "_UPDATED"
	case http.MethodDelete:
		suffix = "_DELETED"
	default:
		suffix = "_ACCESSED"
	}

	parts := strings.Split(path, "/")
	segments := parts[:0]
	for _, p := range parts {
		if p != "" {
			segments = append(segments, p)
		}
	}
	name := "SYSTEM"
	if len(segments) > 1 {
		name = strings.ToUpper(strings.TrimSuffix(segments[1], "s"))
	}
	return Action(name + suffix)
}

// InferResource derives a resource type from a request path by substring
// match, falling back to System.
func InferResource(path string) Resource {
	switch {
	case strings.Contains(path, "/user"):
		return ResourceUser
	case strings.Contains(path, "/patient"):
		return ResourcePatient
	case strings.Contains(path, "/doctor"):
		return ResourceDoctor
	case strings.Contains(path, "/appointment"):
		return ResourceAppointment
	case strings.Contains(path, "/auth"):
		return ResourceAuth
	default:
		return ResourceSystem
	}
}

// InferResourceID picks the affected entity id from the locations the
// portal's responses may carry it in, first non-empty wins: the path
// parameter, then body.data.id, then body.data._id.
func InferResourceID(paramID string, body map[string]any) string {
	if paramID != "" {
		return paramID
	}
	data, ok := body["data"].(map[string]any)
	if !ok {
		return ""
	}
	if id, ok := data["id"].(string); ok && id != "" {
		return id
	}
	if id, ok := data["_id"].(string); ok && id != "" {
		return id
	}
	return ""
}
