// Package statusz serves the debug endpoints of a running render.
package statusz

import (
	"fmt"
	"html/template"
	"net/http"
	"net/http/pprof"
	"sync"
	"time"

	"github.com/golang/glog"
	"go.opentelemetry.io/otel"
)

// Tracker records the state of the current render for display.  It is safe
// for concurrent use.
type Tracker struct {
	mu sync.Mutex

	description  string
	started      time.Time
	done, total  int
	finished     bool
	lastProgress time.Time

	now func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{
		now: time.Now,
	}
}

// Start marks the beginning of a render that will trace total samples.
func (t *Tracker) Start(description string, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.description = description
	t.started = t.now()
	t.lastProgress = t.started
	t.done = 0
	t.total = total
	t.finished = false
}

// Progress has the shape of render.ProgressFunction.
func (t *Tracker) Progress(done, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.done = done
	t.total = total
	t.lastProgress = t.now()
}

func (t *Tracker) Finish() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.finished = true
	t.lastProgress = t.now()
}

// Status is a snapshot of a Tracker.
type Status struct {
	Description string
	Done, Total int
	Finished    bool
	Elapsed     time.Duration

	// Remaining extrapolates from the rate so far.  Zero until some
	// progress has been made.
	Remaining time.Duration
}

func (s Status) Percent() float64 {
	if s.Total == 0 {
		return 0
	}
	return 100 * float64(s.Done) / float64(s.Total)
}

func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := Status{
		Description: t.description,
		Done:        t.done,
		Total:       t.total,
		Finished:    t.finished,
	}
	if t.started.IsZero() {
		return st
	}

	st.Elapsed = t.lastProgress.Sub(t.started)
	if !t.finished && t.done > 0 && t.done < t.total {
		perSample := st.Elapsed / time.Duration(t.done)
		st.Remaining = perSample * time.Duration(t.total-t.done)
	}
	return st
}

const statusHTML = `
<!DOCTYPE html>
<head>
	<title>lumen status</title>
</head>

<h1>Render</h1>
{{if .Description}}
<p>{{.Description}}</p>
<ul>
<li>Samples: {{.Done}} / {{.Total}} ({{printf "%.1f" .Percent}}%)</li>
<li>Elapsed: {{.Elapsed}}</li>
{{if .Finished}}<li>Finished</li>{{else if .Remaining}}<li>Remaining: about {{.Remaining}}</li>{{end}}
</ul>
{{else}}
<p>No render started.</p>
{{end}}
`

var statusTemplate = template.Must(template.New("status").Parse(statusHTML))

func (t *Tracker) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	tracer := otel.Tracer("lumen/statusz")
	_, span := tracer.Start(req.Context(), "Tracker.ServeHTTP")
	defer span.End()

	if err := statusTemplate.Execute(w, t.Status()); err != nil {
		glog.Errorf("Error while executing template: %v", err)
		return
	}
}

type healthzHandler struct{}

func (healthzHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fmt.Fprint(w, "200 OK")
}

// RegisterDebugHandlers installs /healthz, /statusz, and the pprof handlers
// on mux.
func RegisterDebugHandlers(mux *http.ServeMux, t *Tracker) {
	mux.Handle("/healthz", healthzHandler{})
	mux.Handle("/statusz", t)
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
}

// NewDebugServer builds the debug server for addr.  The caller starts it.
func NewDebugServer(addr string, t *Tracker) *http.Server {
	mux := http.NewServeMux()
	RegisterDebugHandlers(mux, t)
	return &http.Server{
		Addr:    addr,
		Handler: mux,

		ReadTimeout:    30 * time.Second,
		WriteTimeout:   60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
}
