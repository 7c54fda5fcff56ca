// Package testutil holds shared test fixtures: an in-memory chat platform, a mock Slack Web API
// server, and a Postgres helper.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// MockSlackServer is an httptest server that answers Slack Web API methods. Handlers are keyed by
// method path, e.g. "/pins.add". Unknown methods answer {"ok":false,"error":"unknown_method"}.
type MockSlackServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc

	mu    sync.Mutex
	calls map[string]int
	forms map[string][]map[string]string
}

// NewMockSlackServer starts the server and registers its shutdown with t.
func NewMockSlackServer(t *testing.T) *MockSlackServer {
	t.Helper()
	m := &MockSlackServer{
		Handlers: make(map[string]http.HandlerFunc),
		calls:    make(map[string]int),
		forms:    make(map[string][]map[string]string),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		form := make(map[string]string, len(r.Form))
		for k := range r.Form {
			form[k] = r.Form.Get(k)
		}
		m.mu.Lock()
		m.calls[r.URL.Path]++
		m.forms[r.URL.Path] = append(m.forms[r.URL.Path], form)
		handler, ok := m.Handlers[r.URL.Path]
		m.mu.Unlock()
		if ok {
			handler(w, r)
			return
		}
		WriteSlackJSON(w, map[string]interface{}{"ok": false, "error": "unknown_method"})
	}))
	t.Cleanup(m.Close)
	return m
}

// APIURL is the value for slack.OptionAPIURL.
func (m *MockSlackServer) APIURL() string { return m.URL + "/" }

// Calls returns how many times method was requested.
func (m *MockSlackServer) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls["/"+method]
}

// LastForm returns the form values of the latest request to method.
func (m *MockSlackServer) LastForm(method string) map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	forms := m.forms["/"+method]
	if len(forms) == 0 {
		return nil
	}
	return forms[len(forms)-1]
}

// MockOK makes method answer {"ok":true} merged with extra.
func (m *MockSlackServer) MockOK(method string, extra map[string]interface{}) {
	m.Handlers["/"+method] = func(w http.ResponseWriter, r *http.Request) {
		body := map[string]interface{}{"ok": true}
		for k, v := range extra {
			body[k] = v
		}
		WriteSlackJSON(w, body)
	}
}

// MockError makes method answer {"ok":false,"error":code}.
func (m *MockSlackServer) MockError(method, code string) {
	m.Handlers["/"+method] = func(w http.ResponseWriter, r *http.Request) {
		WriteSlackJSON(w, map[string]interface{}{"ok": false, "error": code})
	}
}

// MockAuthTest answers auth.test with the given bot user id.
func (m *MockSlackServer) MockAuthTest(userID string) {
	m.MockOK("auth.test", map[string]interface{}{"user_id": userID, "user": "pinvote", "team_id": "T1"})
}

// MockThread answers conversations.replies with messages, parent first.
func (m *MockSlackServer) MockThread(messages ...map[string]string) {
	m.MockOK("conversations.replies", map[string]interface{}{"messages": messages, "has_more": false})
}

// WriteSlackJSON writes v as a JSON response.
func WriteSlackJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // test mock response
}
