package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"gatekeeper.dev/internal/audit"
)

// handleAuditLogs serves the filtered trail and, on request, the aggregate
// counters. Reading the trail is deliberately not itself audited.
func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	f, withStats, err := auditFilterFromQuery(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	logs, err := a.audits.Query(r.Context(), f)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "audit query failed")
		return
	}

	resp := map[string]any{"logs": logs}
	if withStats {
		stats, err := a.audits.Stats(r.Context())
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "audit stats failed")
			return
		}
		resp["stats"] = stats
	}
	writeJSON(w, http.StatusOK, resp)
}

func auditFilterFromQuery(r *http.Request) (audit.Filter, bool, error) {
	q := r.URL.Query()
	var f audit.Filter

	f.SubjectID = q.Get("userId")

	if v := q.Get("action"); v != "" {
		action := audit.Action(v)
		if !containsAction(action) {
			return f, false, fmt.Errorf("unknown action %q", v)
		}
		f.Action = action
	}
	if v := q.Get("resource"); v != "" {
		resource := audit.Resource(v)
		if !containsResource(resource) {
			return f, false, fmt.Errorf("unknown resource %q", v)
		}
		f.Resource = resource
	}
	if v := q.Get("status"); v != "" {
		switch audit.Status(v) {
		case audit.StatusSuccess, audit.StatusFailure:
			f.Status = audit.Status(v)
		default:
			return f, false, fmt.Errorf("unknown status %q", v)
		}
	}

	var err error
	if f.From, err = parseDateParam(q.Get("fromDate"), false); err != nil {
		return f, false, err
	}
	if f.To, err = parseDateParam(q.Get("toDate"), true); err != nil {
		return f, false, err
	}

	return f, q.Get("stats") == "true", nil
}

// parseDateParam accepts RFC 3339 timestamps or bare dates. A bare toDate
// covers its whole day.
func parseDateParam(v string, endOfDay bool) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: use RFC 3339 or YYYY-MM-DD", v)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

func containsAction(a audit.Action) bool {
	for _, known := range audit.Actions() {
		if known == a {
			return true
		}
	}
	return false
}

func containsResource(res audit.Resource) bool {
	for _, known := range audit.Resources() {
		if known == res {
			return true
		}
	}
	return false
}
