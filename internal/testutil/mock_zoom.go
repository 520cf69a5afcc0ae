// Package testutil provides test helpers: a mock Zoom Phone API and Redis
// connections.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// APIPrefix is where the mock serves the phone API.
const APIPrefix = "/v2/phone"

// MockZoomResponse defines a canned response for a path.
type MockZoomResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
}

// MockZoom is an httptest server that imitates the parts of the Zoom Phone
// API the tap uses: the OAuth token endpoint, token paging for users,
// windowed token paging for SMS sessions, windowed page-count paging for call
// history (which keeps returning a token on the last page) and call detail.
type MockZoom struct {
	server *httptest.Server

	mu       sync.Mutex
	handlers map[string]http.HandlerFunc

	users       []map[string]any
	smsSessions []map[string]any
	callLogs    []map[string]any
	callDetails map[string]map[string]any

	requests      []string
	tokenRequests int
}

// NewMockZoom starts a mock server. Close it when done.
func NewMockZoom() *MockZoom {
	m := &MockZoom{
		handlers:    make(map[string]http.HandlerFunc),
		callDetails: make(map[string]map[string]any),
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.serve))
	return m
}

// URL returns the server root.
func (m *MockZoom) URL() string { return m.server.URL }

// APIURL returns the phone API base URL.
func (m *MockZoom) APIURL() string { return m.server.URL + APIPrefix }

// TokenURL returns the OAuth token endpoint.
func (m *MockZoom) TokenURL() string { return m.server.URL + "/oauth/token" }

// Close shuts down the server.
func (m *MockZoom) Close() { m.server.Close() }

// SetUsers replaces the user directory.
func (m *MockZoom) SetUsers(users ...map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = users
}

// SetSMSSessions replaces the SMS sessions, windowed on last_access_time.
func (m *MockZoom) SetSMSSessions(sessions ...map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.smsSessions = sessions
}

// SetCallLogs replaces the call history, windowed on start_time.
func (m *MockZoom) SetCallLogs(logs ...map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callLogs = logs
}

// SetCallDetail registers the detail body for a call id.
func (m *MockZoom) SetCallDetail(id string, detail map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callDetails[id] = detail
}

// SetHandler overrides the handler for an exact request path, e.g.
// "/v2/phone/users".
func (m *MockZoom) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a canned response for an exact request path.
func (m *MockZoom) SetResponse(path string, resp MockZoomResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// Requests returns the request URIs (path and query) of all API calls.
func (m *MockZoom) Requests() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.requests...)
}

// RequestsTo returns the API requests whose path equals path.
func (m *MockZoom) RequestsTo(path string) []string {
	var out []string
	for _, uri := range m.Requests() {
		if p, _, _ := strings.Cut(uri, "?"); p == path {
			out = append(out, uri)
		}
	}
	return out
}

// TokenRequests returns how many tokens were issued.
func (m *MockZoom) TokenRequests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokenRequests
}

func (m *MockZoom) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/oauth/token" {
		m.serveToken(w, r)
		return
	}

	m.mu.Lock()
	m.requests = append(m.requests, r.URL.RequestURI())
	handler, ok := m.handlers[r.URL.Path]
	m.mu.Unlock()

	if ok {
		handler(w, r)
		return
	}
	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"code": 124, "message": "Invalid access token."})
		return
	}

	path := strings.TrimPrefix(r.URL.Path, APIPrefix)
	switch {
	case path == "/users":
		m.serveUsers(w, r)
	case path == "/sms/sessions":
		m.serveSMSSessions(w, r)
	case path == "/call_history":
		m.serveCallHistory(w, r)
	case strings.HasPrefix(path, "/call_history/"):
		m.serveCallDetail(w, strings.TrimPrefix(path, "/call_history/"))
	default:
		writeJSON(w, http.StatusNotFound, map[string]any{"code": 404, "message": "Not found."})
	}
}

func (m *MockZoom) serveToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "account_credentials" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"reason": "unsupported grant type", "error": "invalid_request"})
		return
	}
	m.mu.Lock()
	m.tokenRequests++
	n := m.tokenRequests
	m.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": "mock-token-" + strconv.Itoa(n),
		"token_type":   "bearer",
		"expires_in":   3600,
		"scope":        "phone:read:admin",
	})
}

func (m *MockZoom) serveUsers(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	users := m.users
	m.mu.Unlock()

	pageSize, offset := pageParams(r)
	records, next := slicePage(users, pageSize, offset)
	writeJSON(w, http.StatusOK, map[string]any{
		"next_page_token": next,
		"page_size":       pageSize,
		"total_records":   len(users),
		"users":           records,
	})
}

func (m *MockZoom) serveSMSSessions(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	sessions := m.smsSessions
	m.mu.Unlock()

	inWindow, ok := filterWindow(w, r, sessions, "last_access_time")
	if !ok {
		return
	}
	pageSize, offset := pageParams(r)
	records, next := slicePage(inWindow, pageSize, offset)
	writeJSON(w, http.StatusOK, map[string]any{
		"next_page_token": next,
		"page_size":       pageSize,
		"sms_sessions":    records,
	})
}

// serveCallHistory reports page_count for the window and, like the real API,
// hands out a next_page_token even on the final page.
func (m *MockZoom) serveCallHistory(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	logs := m.callLogs
	m.mu.Unlock()

	inWindow, ok := filterWindow(w, r, logs, "start_time")
	if !ok {
		return
	}
	pageSize, offset := pageParams(r)
	records, next := slicePage(inWindow, pageSize, offset)
	if next == "" {
		next = strconv.Itoa(offset + pageSize)
	}
	pageCount := (len(inWindow) + pageSize - 1) / pageSize
	writeJSON(w, http.StatusOK, map[string]any{
		"from":            r.URL.Query().Get("from"),
		"to":              r.URL.Query().Get("to"),
		"next_page_token": next,
		"page_count":      pageCount,
		"page_size":       pageSize,
		"total_records":   len(inWindow),
		"call_logs":       records,
	})
}

func (m *MockZoom) serveCallDetail(w http.ResponseWriter, id string) {
	m.mu.Lock()
	detail, ok := m.callDetails[id]
	m.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"code": 3001, "message": "Call log does not exist."})
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// pageParams reads page_size and the offset encoded in next_page_token.
func pageParams(r *http.Request) (pageSize, offset int) {
	pageSize = 30
	if v, err := strconv.Atoi(r.URL.Query().Get("page_size")); err == nil && v > 0 {
		pageSize = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("next_page_token")); err == nil && v > 0 {
		offset = v
	}
	return pageSize, offset
}

// slicePage returns one page and the token for the next, empty on the last page.
func slicePage(all []map[string]any, pageSize, offset int) ([]map[string]any, string) {
	if offset >= len(all) {
		return []map[string]any{}, ""
	}
	end := offset + pageSize
	if end >= len(all) {
		return all[offset:], ""
	}
	return all[offset:end], strconv.Itoa(end)
}

// filterWindow keeps records whose field lies in [from, to) and sorts them by
// that field. A malformed window is answered with a 400.
func filterWindow(w http.ResponseWriter, r *http.Request, all []map[string]any, field string) ([]map[string]any, bool) {
	from, errFrom := time.Parse(time.RFC3339, r.URL.Query().Get("from"))
	to, errTo := time.Parse(time.RFC3339, r.URL.Query().Get("to"))
	if errFrom != nil || errTo != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"code": 300, "message": "Invalid from or to."})
		return nil, false
	}

	out := []map[string]any{}
	for _, rec := range all {
		raw, _ := rec[field].(string)
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			continue
		}
		if !ts.Before(from) && ts.Before(to) {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, _ := out[i][field].(string)
		b, _ := out[j][field].(string)
		return a < b
	})
	return out, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json;charset=UTF-8")
	w.Header().Set("X-RateLimit-Limit", "100")
	w.Header().Set("X-RateLimit-Remaining", "99")
	w.Header().Set("X-RateLimit-Category", "Medium")
	w.Header().Set("X-RateLimit-Type", "QPS")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
