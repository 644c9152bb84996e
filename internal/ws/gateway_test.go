package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/taskhub/realtime/internal/auth"
	"github.com/taskhub/realtime/internal/config"
	"github.com/taskhub/realtime/internal/protocol"
	"github.com/taskhub/realtime/internal/registry"
)

func TestNotifyProjectReachesEveryMember(t *testing.T) {
	env := newTestEnv(t, nil)
	c1 := env.login("1", "alice")
	c1.join("42")
	c2 := env.login("2", "bob")
	c2.join("42")
	c1.expect(protocol.MsgUserJoined)
	other := env.login("3", "carol")
	other.join("7")

	ev := protocol.Event{Type: protocol.MsgTaskDeleted, TaskID: protocol.StringID("11")}
	if n := env.srv.Gateway().NotifyProject("42", ev); n != 2 {
		t.Fatalf("delivered = %d, want 2", n)
	}
	for _, c := range []*testClient{c1, c2} {
		if got := c.expect(protocol.MsgTaskDeleted); got.TaskID.String() != "11" {
			t.Errorf("task_deleted = %+v", got)
		}
	}
	other.sync()

	if n := env.srv.Gateway().NotifyProject("nobody", ev); n != 0 {
		t.Errorf("delivered to empty project = %d", n)
	}
}

func postEvent(t *testing.T, env *testEnv, project, body string, header map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, env.http.URL+"/api/projects/"+project+"/events", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestNotifyRoute(t *testing.T) {
	env := newTestEnv(t, nil)
	c := env.login("1", "alice")
	c.join("42")

	body := `{"type":"task_created","task":{"id":5}}`

	tests := []struct {
		name   string
		body   string
		header map[string]string
		want   int
	}{
		{"missing token", body, nil, http.StatusUnauthorized},
		{"wrong token", body, map[string]string{"X-Taskhub-Token": "nope"}, http.StatusUnauthorized},
		{"not json", "nope", map[string]string{"X-Taskhub-Token": "notify-token"}, http.StatusBadRequest},
		{"missing type", `{"task":{}}`, map[string]string{"X-Taskhub-Token": "notify-token"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if resp := postEvent(t, env, "42", tt.body, tt.header); resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
	c.sync()

	resp := postEvent(t, env, "42", body, map[string]string{"Authorization": "Bearer notify-token"})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	var out struct {
		Delivered int `json:"delivered"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Delivered != 1 {
		t.Errorf("delivered = %d, want 1", out.Delivered)
	}

	created := c.expect(protocol.MsgTaskCreated)
	if string(created.Task) != `{"id":5}` {
		t.Errorf("task = %s", created.Task)
	}
}

func TestNotifyRouteDisabledWithoutToken(t *testing.T) {
	cfg := config.Default()
	srv := NewServer(cfg, registry.New(nil, nil), auth.NewHMAC([]byte(testSecret), ""), nil, discardLogger())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/projects/42/events", strings.NewReader(`{"type":"x"}`))
	srv.Routes().ServeHTTP(rec, req)

	if rec.Code == http.StatusAccepted {
		t.Fatal("notify route accepted a request with no token configured")
	}
}
