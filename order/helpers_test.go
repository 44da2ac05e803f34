package order

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/glimte/sagaflow-go/internal/reliability"
)

// fakeServices stands in for the payment, subscription and notification services
type fakeServices struct {
	mu        sync.Mutex
	calls     map[string][]map[string]any
	status    map[string]int
	responses map[string]any
}

func newFakeServices(t *testing.T) (*fakeServices, *httptest.Server) {
	t.Helper()
	f := &fakeServices{
		calls:  make(map[string][]map[string]any),
		status: make(map[string]int),
		responses: map[string]any{
			"/pay":       map[string]any{"amount": 149.9},
			"/refund":    map[string]any{"protocol": "RF-1"},
			"/subscribe": map[string]any{"subscription_id": "sub-9"},
		},
	}
	server := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(server.Close)
	return f, server
}

func (f *fakeServices) serve(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	f.calls[r.URL.Path] = append(f.calls[r.URL.Path], body)
	status, ok := f.status[r.URL.Path]
	resp := f.responses[r.URL.Path]
	f.mu.Unlock()

	if !ok {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if resp != nil && status < 300 {
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func (f *fakeServices) fail(path string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status[path] = status
}

func (f *fakeServices) respond(path string, body any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[path] = body
}

func (f *fakeServices) callsTo(path string) []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.calls[path]...)
}

// newTestClient returns a client whose breaker never opens during a test
func newTestClient(url string) *ServiceClient {
	return NewServiceClient(url, WithCircuitBreaker(
		reliability.NewCircuitBreaker(reliability.WithFailureThreshold(1000)),
	))
}
