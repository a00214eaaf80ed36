package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/xraph/warrant/gate"
	"github.com/xraph/warrant/queue"
	"github.com/xraph/warrant/store/memory"
)

func newTestServer(t *testing.T, opts ...Option) *httptest.Server {
	t.Helper()
	q, err := queue.New(context.Background(), queue.WithBackends(memory.New("test")))
	if err != nil {
		t.Fatalf("queue.New: %v", err)
	}
	srv := httptest.NewServer(NewServer(q, opts...).Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = q.Close()
	})
	return srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func getJSON(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

type taskJSON struct {
	ID       string          `json:"id"`
	Payload  json.RawMessage `json:"payload"`
	Priority string          `json:"priority"`
	Status   string          `json:"status"`
}

type leaseJSON struct {
	TaskID    string `json:"task_id"`
	WorkerID  string `json:"worker_id"`
	ExpiresAt string `json:"expires_at"`
}

type claimJSON struct {
	Task  taskJSON  `json:"task"`
	Lease leaseJSON `json:"lease"`
}

func submitTask(t *testing.T, base string, priority string) taskJSON {
	t.Helper()
	resp := postJSON(t, base+"/v1/tasks", map[string]any{
		"payload":  json.RawMessage(`{"n":1}`),
		"priority": priority,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("submit status = %d", resp.StatusCode)
	}
	return decode[taskJSON](t, resp)
}

func TestSubmitDefaultsPriority(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/tasks", map[string]any{
		"payload": json.RawMessage(`{}`),
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	created := decode[taskJSON](t, resp)
	if created.Priority != "medium" {
		t.Errorf("priority = %q, want medium", created.Priority)
	}
	if created.Status != "pending" {
		t.Errorf("status = %q, want pending", created.Status)
	}
}

func TestSubmitRejectsBadInput(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{"invalid priority", map[string]any{"priority": "urgent"}, http.StatusBadRequest},
		{"malformed id", map[string]any{"id": "not-a-typeid"}, http.StatusBadRequest},
		{"wrong id prefix", map[string]any{"id": "user_01h2xcejqtf2nbrexx3vqjhp41"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, srv.URL+"/v1/tasks", tt.body)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestSubmitDuplicateConflicts(t *testing.T) {
	srv := newTestServer(t)

	created := submitTask(t, srv.URL, "low")
	resp := postJSON(t, srv.URL+"/v1/tasks", map[string]any{"id": created.ID})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
}

func TestClaimFlow(t *testing.T) {
	srv := newTestServer(t)

	submitTask(t, srv.URL, "low")
	high := submitTask(t, srv.URL, "high")

	resp := postJSON(t, srv.URL+"/v1/claims", map[string]any{"worker_id": "wkr-a"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("claim status = %d", resp.StatusCode)
	}
	claimed := decode[claimJSON](t, resp)
	if claimed.Task.ID != high.ID {
		t.Errorf("claimed %s, want high-priority %s", claimed.Task.ID, high.ID)
	}
	if claimed.Lease.WorkerID != "wkr-a" {
		t.Errorf("lease worker = %q", claimed.Lease.WorkerID)
	}
}

func TestClaimEmptyQueueReturnsNoContent(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/claims", map[string]any{"worker_id": "wkr-a"})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
}

func TestClaimRequiresWorkerID(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/claims", map[string]any{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestRenewAndReleaseStatusMapping(t *testing.T) {
	srv := newTestServer(t)

	created := submitTask(t, srv.URL, "")
	if resp := postJSON(t, srv.URL+"/v1/claims", map[string]any{"worker_id": "wkr-a"}); resp.StatusCode != http.StatusOK {
		t.Fatalf("claim status = %d", resp.StatusCode)
	}

	// A non-holder renewing is a 403.
	resp := postJSON(t, fmt.Sprintf("%s/v1/tasks/%s/renew", srv.URL, created.ID),
		map[string]any{"worker_id": "wkr-b"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign renew status = %d, want 403", resp.StatusCode)
	}

	// The holder renewing is a 200.
	secs := int64(120)
	resp = postJSON(t, fmt.Sprintf("%s/v1/tasks/%s/renew", srv.URL, created.ID),
		map[string]any{"worker_id": "wkr-a", "lease_seconds": secs})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("renew status = %d", resp.StatusCode)
	}

	// A non-holder releasing is a 403; the no-id administrative form
	// skips the holder check.
	resp = postJSON(t, fmt.Sprintf("%s/v1/tasks/%s/release", srv.URL, created.ID),
		map[string]any{"worker_id": "wkr-b"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign release status = %d, want 403", resp.StatusCode)
	}
	resp = postJSON(t, fmt.Sprintf("%s/v1/tasks/%s/release", srv.URL, created.ID),
		map[string]any{"reason": "operator reset"})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("administrative release status = %d, want 204", resp.StatusCode)
	}

	// Renewing after the lease is gone is a 404.
	resp = postJSON(t, fmt.Sprintf("%s/v1/tasks/%s/renew", srv.URL, created.ID),
		map[string]any{"worker_id": "wkr-a"})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("renew without lease status = %d, want 404", resp.StatusCode)
	}
}

func TestCompleteAndResult(t *testing.T) {
	srv := newTestServer(t)

	created := submitTask(t, srv.URL, "")
	if resp := postJSON(t, srv.URL+"/v1/claims", map[string]any{"worker_id": "wkr-a"}); resp.StatusCode != http.StatusOK {
		t.Fatalf("claim status = %d", resp.StatusCode)
	}

	resp := postJSON(t, fmt.Sprintf("%s/v1/tasks/%s/complete", srv.URL, created.ID),
		map[string]any{"worker_id": "wkr-a", "result": json.RawMessage(`{"out":42}`)})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("complete status = %d", resp.StatusCode)
	}

	resp = getJSON(t, fmt.Sprintf("%s/v1/tasks/%s/result", srv.URL, created.ID))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("result status = %d", resp.StatusCode)
	}
	got := decode[map[string]json.RawMessage](t, resp)
	if string(got["payload"]) != `{"out":42}` {
		t.Errorf("payload = %s", got["payload"])
	}

	// The task itself is gone.
	resp = getJSON(t, fmt.Sprintf("%s/v1/tasks/%s", srv.URL, created.ID))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("task status = %d, want 404", resp.StatusCode)
	}
}

func TestResultMissingIs404(t *testing.T) {
	srv := newTestServer(t)

	created := submitTask(t, srv.URL, "")
	resp := getJSON(t, fmt.Sprintf("%s/v1/tasks/%s/result", srv.URL, created.ID))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestGateShedsClaimLoad(t *testing.T) {
	srv := newTestServer(t, WithGate(gate.New(gate.Config{Rate: 0.0001, Burst: 1})))

	// First claim consumes the only token; the second is shed.
	postJSON(t, srv.URL+"/v1/claims", map[string]any{"worker_id": "wkr-a"})
	resp := postJSON(t, srv.URL+"/v1/claims", map[string]any{"worker_id": "wkr-a"})
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	resp := getJSON(t, srv.URL+"/v1/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	h := decode[map[string]string](t, resp)
	if h["status"] != "ok" || h["backend"] != "serialized" {
		t.Errorf("health = %v", h)
	}
}

func TestStatsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	submitTask(t, srv.URL, "")
	submitTask(t, srv.URL, "")
	postJSON(t, srv.URL+"/v1/claims", map[string]any{"worker_id": "wkr-a"})

	resp := getJSON(t, srv.URL+"/v1/tasks/stats")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	stats := decode[map[string]any](t, resp)
	if stats["outstanding"].(float64) != 2 {
		t.Errorf("outstanding = %v", stats["outstanding"])
	}
	if stats["claimed"].(float64) != 1 {
		t.Errorf("claimed = %v", stats["claimed"])
	}
}
