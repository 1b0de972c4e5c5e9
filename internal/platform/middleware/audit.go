package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/careportal/careportal/internal/domain/audit"
	"github.com/careportal/careportal/internal/platform/auth"
)

// maxCapturedBody bounds how much of a request or response body the
// audit capture will buffer.
const maxCapturedBody = 64 << 10 // 64KB

// AuditSink receives the audit event for a finished request. It must not
// block the request path; the dispatcher's Enqueue satisfies this.
type AuditSink interface {
	Enqueue(ev audit.Event) bool
}

// AuditCapture returns middleware that records one audit event per
// request to the portal API. It runs the handler first so the response
// status is known, infers action and resource when the handler did not
// record an explicit event, and never fails the request over a capture
// problem. Redaction is owned by the audit service, not here.
func AuditCapture(sink AuditSink) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !strings.HasPrefix(req.URL.Path, "/api/") {
				return next(c)
			}

			start := time.Now()
			reqBody := captureRequestBody(c)
			respBody := captureResponseBody(c)

			err := next(c)

			// Handlers that already dispatched a domain-event record
			// mark the request; a second record would double-log it.
			if done, _ := c.Get("audit_recorded").(bool); done {
				return err
			}

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else {
					status = http.StatusInternalServerError
				}
			}

			// The inference rules count path segments the way the
			// portal's unversioned API laid them out.
			inferPath := strings.Replace(req.URL.Path, "/api/v1/", "/api/", 1)

			ev := audit.Event{
				ActorID:    auth.ActorIDFromContext(req.Context()),
				Action:     audit.InferAction(req.Method, inferPath),
				Resource:   audit.InferResource(inferPath),
				ResourceID: audit.InferResourceID(c.Param("id"), respBody.decoded()),
				Method:     req.Method,
				Path:       req.URL.Path,
				IPAddress:  c.RealIP(),
				UserAgent:  req.UserAgent(),
				StatusCode: status,
				Duration:   time.Since(start),
				Detail:     buildDetail(c, reqBody),
			}
			if !ev.Action.Valid() {
				// Inference fell outside the closed set; fall back to a
				// generic access record rather than widening the enum.
				ev.Action = audit.ActionPatientRecordAccessed
				if ev.Resource == audit.ResourceSystem {
					ev.Action = audit.ActionSystemConfigChanged
				}
			}
			if ev.Outcome = audit.OutcomeFromStatus(status); ev.Outcome == audit.OutcomeFailure {
				ev.ErrorMessage = failureMessage(err, respBody.decoded())
			}

			sink.Enqueue(ev)
			return err
		}
	}
}

// buildDetail assembles the raw detail payload. Query and path params
// are identifiers; the body is captured verbatim for the service to
// redact.
func buildDetail(c echo.Context, reqBody map[string]any) *audit.Detail {
	d := &audit.Detail{}
	if qp := c.QueryParams(); len(qp) > 0 {
		d.Query = make(map[string]string, len(qp))
		for k := range qp {
			d.Query[k] = qp.Get(k)
		}
	}
	if names := c.ParamNames(); len(names) > 0 {
		d.Params = make(map[string]string, len(names))
		for _, name := range names {
			d.Params[name] = c.Param(name)
		}
	}
	d.RequestBody = reqBody
	if d.Query == nil && d.Params == nil && d.RequestBody == nil {
		return nil
	}
	return d
}

// captureRequestBody reads and restores the JSON request body, bounded
// by maxCapturedBody. Non-JSON or oversized bodies are skipped.
func captureRequestBody(c echo.Context) map[string]any {
	req := c.Request()
	if req.Body == nil || req.ContentLength == 0 || req.ContentLength > maxCapturedBody {
		return nil
	}
	raw, err := io.ReadAll(io.LimitReader(req.Body, maxCapturedBody))
	if err != nil {
		return nil
	}
	req.Body = io.NopCloser(bytes.NewReader(raw))

	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil
	}
	return body
}

// responseCapture tees the response body so resource ids can be read
// out of it after the handler ran.
type responseCapture struct {
	http.ResponseWriter
	buf bytes.Buffer
}

func (w *responseCapture) Write(b []byte) (int, error) {
	if room := maxCapturedBody - w.buf.Len(); room > 0 {
		n := len(b)
		if n > room {
			n = room
		}
		w.buf.Write(b[:n])
	}
	return w.ResponseWriter.Write(b)
}

func (w *responseCapture) decoded() map[string]any {
	if w == nil || w.buf.Len() == 0 {
		return nil
	}
	var body map[string]any
	if err := json.Unmarshal(w.buf.Bytes(), &body); err != nil {
		return nil
	}
	return body
}

func captureResponseBody(c echo.Context) *responseCapture {
	w := &responseCapture{ResponseWriter: c.Response().Writer}
	c.Response().Writer = w
	return w
}

// failureMessage pulls the error message for a failed request, from the
// handler error first and the response body second.
func failureMessage(err error, body map[string]any) string {
	if he, ok := err.(*echo.HTTPError); ok {
		if msg, ok := he.Message.(string); ok {
			return msg
		}
	}
	if err != nil {
		return err.Error()
	}
	if msg, ok := body["message"].(string); ok {
		return msg
	}
	return ""
}
