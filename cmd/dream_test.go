package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/aceteam-ai/dream-cli/internal/config"
	"github.com/aceteam-ai/dream-cli/internal/horde"
	"github.com/aceteam-ai/dream-cli/internal/ledger"
)

// hordeStub serves a job that finishes on the first check.
type hordeStub struct {
	mu         sync.Mutex
	url        string
	submitCode int
	submitBody string
	faulted    bool
	submitted  int
	deletes    int
}

func (h *hordeStub) router() http.Handler {
	r := chi.NewRouter()
	r.Post("/api/v2/generate/async", func(w http.ResponseWriter, req *http.Request) {
		h.mu.Lock()
		h.submitted++
		h.mu.Unlock()
		w.WriteHeader(h.submitCode)
		fmt.Fprint(w, h.submitBody)
	})
	r.Get("/api/v2/generate/check/{id}", func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprint(w, `{"finished":2,"done":true}`)
	})
	r.Get("/api/v2/generate/status/{id}", func(w http.ResponseWriter, req *http.Request) {
		if h.faulted {
			fmt.Fprint(w, `{"faulted":true,"kudos":3,"generations":[]}`)
			return
		}
		fmt.Fprintf(w, `{"faulted":false,"kudos":20,"generations":[
			{"id":"g0","img":"%[1]s/img/0","worker_id":"w-1","worker_name":"alpha","censored":true},
			{"id":"g1","img":"%[1]s/img/1","worker_id":"w-2","worker_name":"beta","censored":false}]}`, h.url)
	})
	r.Delete("/api/v2/generate/status/{id}", func(w http.ResponseWriter, req *http.Request) {
		h.mu.Lock()
		h.deletes++
		h.mu.Unlock()
		fmt.Fprintf(w, `{"faulted":false,"kudos":4,"generations":[
			{"id":"g0","img":"%s/partial","worker_id":"w-9","censored":false}]}`, h.url)
	})
	r.Get("/partial", func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprint(w, "partial")
	})
	r.Get("/img/{n}", func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprintf(w, "image-%s", chi.URLParam(req, "n"))
	})
	return r
}

func startStub(t *testing.T, h *hordeStub) {
	t.Helper()
	if h.submitCode == 0 {
		h.submitCode = http.StatusAccepted
	}
	if h.submitBody == "" {
		h.submitBody = `{"id":"job-1","kudos":20}`
	}
	server := httptest.NewServer(h.router())
	t.Cleanup(server.Close)
	h.url = server.URL
}

func testOptions(t *testing.T, h *hordeStub) (runOptions, string, *bytes.Buffer) {
	t.Helper()
	t.Setenv("HORDE_URL", "")
	t.Setenv("HORDE_API_KEY", "")

	dir := t.TempDir()
	stdout := &bytes.Buffer{}
	amount := 2
	filename := filepath.Join(dir, "out", "dream.png")
	apiKey := "test-key"
	return runOptions{
		load: config.LoadOptions{
			RequestFile: filepath.Join(dir, "missing.yml"),
			SpecialDir:  dir,
			EnvFile:     filepath.Join(dir, ".env"),
		},
		overrides: config.Overrides{
			Horde:    &h.url,
			APIKey:   &apiKey,
			Amount:   &amount,
			Filename: &filename,
		},
		ledgerPath:   filepath.Join(dir, "ledger.db"),
		stdout:       stdout,
		stderr:       &bytes.Buffer{},
		pollInterval: time.Millisecond,
		retryDelay:   time.Millisecond,
	}, dir, stdout
}

func lastRecord(t *testing.T, path string) ledger.Record {
	t.Helper()
	store, err := ledger.OpenStore(path)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer store.Close()
	records, err := store.Recent(1)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one ledger record, got %d", len(records))
	}
	return records[0]
}

func TestRunGenerationSavesImages(t *testing.T) {
	stub := &hordeStub{}
	startStub(t, stub)
	opts, dir, stdout := testOptions(t, stub)

	out, err := runGeneration(context.Background(), opts, nil)
	if err != nil {
		t.Fatalf("runGeneration: %v", err)
	}
	if out.State != horde.StateCompleted {
		t.Fatalf("state = %s", out.State)
	}

	for i := 0; i < 2; i++ {
		data, err := os.ReadFile(filepath.Join(dir, "out", fmt.Sprintf("%d_dream.png", i)))
		if err != nil {
			t.Fatalf("read output %d: %v", i, err)
		}
		if string(data) != fmt.Sprintf("image-%d", i) {
			t.Errorf("output %d = %q", i, data)
		}
	}
	if !strings.Contains(stdout.String(), "Saved (censored)") || !strings.Contains(stdout.String(), "via beta - w-2") {
		t.Errorf("stdout = %q", stdout.String())
	}

	rec := lastRecord(t, opts.ledgerPath)
	if rec.State != "completed" || rec.JobID != "job-1" || rec.Generations != 2 || rec.Kudos != 20 {
		t.Errorf("ledger record = %+v", rec)
	}
}

func TestRunGenerationDryRun(t *testing.T) {
	stub := &hordeStub{submitCode: http.StatusOK, submitBody: `{"kudos":12.5,"message":"dry run"}`}
	startStub(t, stub)
	opts, dir, stdout := testOptions(t, stub)
	dry := true
	opts.overrides.DryRun = &dry

	out, err := runGeneration(context.Background(), opts, nil)
	if err != nil {
		t.Fatalf("runGeneration: %v", err)
	}
	if out.State != horde.StateSubmissionRejected {
		t.Errorf("state = %s", out.State)
	}
	if !strings.Contains(stdout.String(), "12.5") {
		t.Errorf("stdout should report the kudos cost: %q", stdout.String())
	}
	if _, err := os.Stat(filepath.Join(dir, "out")); !os.IsNotExist(err) {
		t.Error("dry run should not write any output")
	}
}

func TestRunGenerationFaulted(t *testing.T) {
	stub := &hordeStub{faulted: true}
	startStub(t, stub)
	opts, dir, stdout := testOptions(t, stub)

	source := filepath.Join(dir, "source.png")
	writePNG(t, source)
	prompt := "a lighthouse in a storm"
	opts.overrides.SourceImage = &source
	opts.overrides.Prompt = &prompt

	out, err := runGeneration(context.Background(), opts, nil)
	if err != nil {
		t.Fatalf("faulted job should not be a fatal error: %v", err)
	}
	if out.State != horde.StateFaulted {
		t.Errorf("state = %s", out.State)
	}
	for _, want := range []string{"job-1 faulted", "after 3 kudos", prompt, "img2img request with size:"} {
		if !strings.Contains(stdout.String(), want) {
			t.Errorf("stdout missing %q: %q", want, stdout.String())
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "out")); !os.IsNotExist(err) {
		t.Error("faulted job should not write any output")
	}

	rec := lastRecord(t, opts.ledgerPath)
	if rec.State != "faulted" || !strings.Contains(rec.ErrorMessage, "job-1") {
		t.Errorf("ledger record = %+v", rec)
	}
}

func TestRunGenerationCancelledSavesPartial(t *testing.T) {
	stub := &hordeStub{}
	startStub(t, stub)
	opts, dir, stdout := testOptions(t, stub)

	interrupt := make(chan struct{})
	close(interrupt)

	out, err := runGeneration(context.Background(), opts, interrupt)
	if err != nil {
		t.Fatalf("runGeneration: %v", err)
	}
	if out.State != horde.StateCancelled {
		t.Fatalf("state = %s, want cancelled", out.State)
	}
	if stub.deletes != 1 {
		t.Errorf("deletes = %d, want 1", stub.deletes)
	}

	// one returned generation keeps the name unprefixed
	data, err := os.ReadFile(filepath.Join(dir, "out", "dream.png"))
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(data) != "partial" {
		t.Errorf("output = %q", data)
	}
	for _, want := range []string{"Job job-1 cancelled, saving 1 finished image(s)", "for 4 kudos (via w-9)"} {
		if !strings.Contains(stdout.String(), want) {
			t.Errorf("stdout missing %q: %q", want, stdout.String())
		}
	}

	rec := lastRecord(t, opts.ledgerPath)
	if rec.State != "cancelled" || rec.Generations != 1 {
		t.Errorf("ledger record = %+v", rec)
	}
}

func TestRunGenerationProgressOwnsLogOutput(t *testing.T) {
	stub := &hordeStub{}
	startStub(t, stub)
	opts, _, _ := testOptions(t, stub)
	stderr := &bytes.Buffer{}
	opts.stderr = stderr
	opts.progress = true
	opts.width = 80

	prev := log.Out
	if _, err := runGeneration(context.Background(), opts, nil); err != nil {
		t.Fatalf("runGeneration: %v", err)
	}
	if log.Out != prev {
		t.Error("log output should be restored after the run")
	}
	if !strings.Contains(stderr.String(), "Queue Position: 0") || !strings.Contains(stderr.String(), "2/2") {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, image.NewRGBA(image.Rect(0, 0, 8, 8))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
}

func TestRunGenerationSubmitRejected(t *testing.T) {
	stub := &hordeStub{submitCode: http.StatusUnauthorized, submitBody: `{"message":"bad key"}`}
	startStub(t, stub)
	opts, _, _ := testOptions(t, stub)

	_, err := runGeneration(context.Background(), opts, nil)
	var apiErr *horde.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("err = %v, want 401 APIError", err)
	}

	rec := lastRecord(t, opts.ledgerPath)
	if rec.State != "submission_rejected" || !strings.Contains(rec.ErrorMessage, "bad key") {
		t.Errorf("ledger record = %+v", rec)
	}
}

func TestRunGenerationInvalidConfig(t *testing.T) {
	stub := &hordeStub{}
	startStub(t, stub)
	opts, _, _ := testOptions(t, stub)
	width := 500
	opts.overrides.Width = &width

	_, err := runGeneration(context.Background(), opts, nil)
	if !errors.Is(err, config.ErrInvalidDimensions) {
		t.Fatalf("err = %v, want ErrInvalidDimensions", err)
	}
	if stub.submitted != 0 {
		t.Error("invalid config must not be submitted")
	}
}

func TestRunGenerationWithoutLedger(t *testing.T) {
	stub := &hordeStub{}
	startStub(t, stub)
	opts, dir, _ := testOptions(t, stub)
	opts.ledgerPath = ""

	if _, err := runGeneration(context.Background(), opts, nil); err != nil {
		t.Fatalf("runGeneration: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "ledger.db")); !os.IsNotExist(err) {
		t.Error("ledger should not be created when disabled")
	}
}

func TestOverridesFromFlags(t *testing.T) {
	fs := pflag.NewFlagSet("dream", pflag.ContinueOnError)
	addRequestFlags(fs)
	if err := fs.Parse([]string{"-n", "3", "--nsfw", "-m", "Deliberate", "-l", "768"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	o := overridesFromFlags(fs)
	if o.Amount == nil || *o.Amount != 3 {
		t.Errorf("Amount = %v", o.Amount)
	}
	if o.NSFW == nil || !*o.NSFW {
		t.Errorf("NSFW = %v", o.NSFW)
	}
	if o.Model == nil || *o.Model != "Deliberate" {
		t.Errorf("Model = %v", o.Model)
	}
	if o.Height == nil || *o.Height != 768 {
		t.Errorf("Height = %v", o.Height)
	}
	if o.Prompt != nil || o.Width != nil || o.DryRun != nil || o.APIKey != nil {
		t.Errorf("unset flags must stay nil: %+v", o)
	}
}

func TestLevelFor(t *testing.T) {
	tests := []struct {
		verbose, quiet int
		want           logrus.Level
	}{
		{0, 0, logrus.ErrorLevel},
		{1, 0, logrus.WarnLevel},
		{2, 0, logrus.InfoLevel},
		{3, 0, logrus.DebugLevel},
		{9, 0, logrus.TraceLevel},
		{0, 1, logrus.FatalLevel},
		{0, 5, logrus.PanicLevel},
		{2, 1, logrus.WarnLevel},
	}
	for _, tt := range tests {
		if got := levelFor(tt.verbose, tt.quiet); got != tt.want {
			t.Errorf("levelFor(%d, %d) = %v, want %v", tt.verbose, tt.quiet, got, tt.want)
		}
	}
}

func TestPrintHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	store, err := ledger.OpenStore(path)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	now := time.Now().UTC()
	store.Insert(ledger.Record{RunID: "r1", JobID: "job-7", Prompt: "castle", Requested: 2, Generations: 2, Kudos: 9, State: "completed", StartedAt: now, CompletedAt: now})
	store.Close()

	var buf bytes.Buffer
	if err := printHistory(&buf, path, 10); err != nil {
		t.Fatalf("printHistory: %v", err)
	}
	for _, want := range []string{"job-7", "castle", "2/2", "Total kudos spent: 9"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("history missing %q:\n%s", want, buf.String())
		}
	}
}
