package statusz

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type fakeClock struct {
	cur time.Time
}

func (f *fakeClock) now() time.Time {
	return f.cur
}

func TestTrackerStatus(t *testing.T) {
	clock := &fakeClock{cur: time.Unix(1000, 0)}
	tr := NewTracker()
	tr.now = clock.now

	if diff := cmp.Diff(tr.Status(), Status{}); diff != "" {
		t.Errorf("Fresh tracker; diff (-got +want)\n%s", diff)
	}

	tr.Start("test render", 400)
	clock.cur = clock.cur.Add(10 * time.Second)
	tr.Progress(100, 400)

	want := Status{
		Description: "test render",
		Done:        100,
		Total:       400,
		Elapsed:     10 * time.Second,
		Remaining:   30 * time.Second,
	}
	if diff := cmp.Diff(tr.Status(), want); diff != "" {
		t.Errorf("Mid-render; diff (-got +want)\n%s", diff)
	}
	if got := tr.Status().Percent(); got != 25 {
		t.Errorf("Percent() = %v, want 25", got)
	}

	clock.cur = clock.cur.Add(30 * time.Second)
	tr.Progress(400, 400)
	tr.Finish()

	want = Status{
		Description: "test render",
		Done:        400,
		Total:       400,
		Finished:    true,
		Elapsed:     40 * time.Second,
	}
	if diff := cmp.Diff(tr.Status(), want); diff != "" {
		t.Errorf("Finished; diff (-got +want)\n%s", diff)
	}
}

func get(t *testing.T, srv *httptest.Server, path string) (int, string) {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	if err != nil {
		t.Fatalf("Unexpected error fetching %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Unexpected error reading %s: %v", path, err)
	}
	return resp.StatusCode, string(body)
}

func TestDebugHandlers(t *testing.T) {
	tr := NewTracker()
	mux := http.NewServeMux()
	RegisterDebugHandlers(mux, tr)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	code, body := get(t, srv, "/healthz")
	if code != http.StatusOK || body != "200 OK" {
		t.Errorf("/healthz = %d %q", code, body)
	}

	code, body = get(t, srv, "/statusz")
	if code != http.StatusOK || !strings.Contains(body, "No render started.") {
		t.Errorf("/statusz before start = %d %q", code, body)
	}

	tr.Start("800x450 default scene", 1000)
	tr.Progress(250, 1000)

	code, body = get(t, srv, "/statusz")
	if code != http.StatusOK {
		t.Errorf("/statusz = %d", code)
	}
	for _, want := range []string{"800x450 default scene", "250 / 1000", "25.0%"} {
		if !strings.Contains(body, want) {
			t.Errorf("/statusz body missing %q:\n%s", want, body)
		}
	}

	code, _ = get(t, srv, "/debug/pprof/")
	if code != http.StatusOK {
		t.Errorf("/debug/pprof/ = %d", code)
	}
}

func TestNewDebugServer(t *testing.T) {
	s := NewDebugServer("127.0.0.1:0", NewTracker())
	if s.Addr != "127.0.0.1:0" {
		t.Errorf("Bad address %q", s.Addr)
	}
	if s.Handler == nil {
		t.Errorf("No handler installed")
	}
}
