package audit

import (
	"net/http"
	"testing"
)

func TestInferAction(t *testing.T) {
	tests := []struct {
		method string
		path   string
		want   Action
	}{
		{http.MethodPost, "/api/auth/login", ActionLogin},
		{http.MethodPost, "/api/auth/logout", ActionLogout},
		{http.MethodPost, "/api/auth/register", ActionUserCreated},
		{http.MethodPut, "/api/users/password", ActionPasswordChange},

		{http.MethodPost, "/api/appointments", Action("APPOINTMENT_CREATED")},
		{http.MethodGet, "/api/appointments/123", Action("APPOINTMENT_VIEWED")},
		{http.MethodPut, "/api/appointments/123", Action("APPOINTMENT_UPDATED")},
		{http.MethodPatch, "/api/patients/9", Action("PATIENT_UPDATED")},
		{http.MethodDelete, "/api/users/9", Action("USER_DELETED")},
		{http.MethodHead, "/api/doctors", Action("DOCTOR_ACCESSED")},

		// No second segment falls back to SYSTEM.
		{http.MethodGet, "/api", Action("SYSTEM_VIEWED")},
	}
	for _, tt := range tests {
		if got := InferAction(tt.method, tt.path); got != tt.want {
			t.Errorf("InferAction(%s, %s) = %q, want %q", tt.method, tt.path, got, tt.want)
		}
	}
}

func TestInferActionCanProduceUnknownTag(t *testing.T) {
	// Inference is mechanical; an unmapped collection yields a tag
	// outside the closed set, which the caller must replace.
	got := InferAction(http.MethodPost, "/api/invoices")
	if got.Valid() {
		t.Fatalf("expected invalid action, got %q", got)
	}
}

func TestInferResource(t *testing.T) {
	tests := []struct {
		path string
		want Resource
	}{
		{"/api/users/1", ResourceUser},
		{"/api/patients/2", ResourcePatient},
		{"/api/doctors", ResourceDoctor},
		{"/api/appointments/5/cancel", ResourceAppointment},
		{"/api/auth/login", ResourceAuth},
		{"/api/settings", ResourceSystem},
	}
	for _, tt := range tests {
		if got := InferResource(tt.path); got != tt.want {
			t.Errorf("InferResource(%s) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestInferResourceID(t *testing.T) {
	body := map[string]any{
		"data": map[string]any{"id": "id-1", "_id": "raw-1"},
	}

	if got := InferResourceID("param-1", body); got != "param-1" {
		t.Errorf("path parameter must win, got %q", got)
	}
	if got := InferResourceID("", body); got != "id-1" {
		t.Errorf("data.id must win over data._id, got %q", got)
	}

	raw := map[string]any{"data": map[string]any{"_id": "raw-1"}}
	if got := InferResourceID("", raw); got != "raw-1" {
		t.Errorf("data._id fallback failed, got %q", got)
	}

	if got := InferResourceID("", map[string]any{"data": "nope"}); got != "" {
		t.Errorf("non-object data should yield empty, got %q", got)
	}
	if got := InferResourceID("", nil); got != "" {
		t.Errorf("nil body should yield empty, got %q", got)
	}
}
