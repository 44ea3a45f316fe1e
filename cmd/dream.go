package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aceteam-ai/dream-cli/internal/config"
	"github.com/aceteam-ai/dream-cli/internal/horde"
	"github.com/aceteam-ai/dream-cli/internal/ledger"
	"github.com/aceteam-ai/dream-cli/internal/materialize"
	"github.com/aceteam-ai/dream-cli/internal/request"
	"github.com/aceteam-ai/dream-cli/internal/ui"
)

const contactURL = "https://github.com/aceteam-ai/dream-cli"

// runOptions carries everything one generation needs from the command line.
type runOptions struct {
	load      config.LoadOptions
	overrides config.Overrides

	// ledgerPath is empty when the ledger is disabled
	ledgerPath string

	progress bool
	width    int
	links    bool
	stdout   io.Writer
	stderr   io.Writer

	// zero values use the lifecycle defaults
	pollInterval time.Duration
	retryDelay   time.Duration
}

// runGeneration loads the configuration, runs one job lifecycle, saves the
// results and records the run. The error is non-nil only for fatal failures;
// faulted, cancelled and dry-run jobs are reported and return nil.
func runGeneration(ctx context.Context, opts runOptions, interrupt <-chan struct{}) (*horde.Outcome, error) {
	cfg, err := config.Load(opts.load)
	if err != nil {
		return nil, err
	}
	cfg.Apply(opts.overrides)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	req, err := request.Build(cfg)
	if err != nil {
		return nil, err
	}
	log.Debugf("Request: %s", req.Summary())

	agent := cfg.ClientAgent
	if agent == "" {
		agent = horde.ClientAgent("dream-cli", Version, contactURL)
	}
	client := horde.NewClient(horde.ClientConfig{
		BaseURL:     cfg.Horde,
		APIKey:      cfg.APIKey,
		ClientAgent: agent,
		DebugFunc:   debugf("horde"),
	})

	lcConfig := horde.LifecycleConfig{
		PollInterval: opts.pollInterval,
		RetryDelay:   opts.retryDelay,
		LogFn:        logFn("lifecycle"),
	}
	if opts.progress {
		bar := ui.NewJobProgress(opts.stderr, cfg.Amount(), opts.width)
		defer bar.Close()
		lcConfig.OnStatus = bar.Update

		// log lines go above the bar instead of under the next redraw
		prev := log.Out
		log.SetOutput(bar)
		defer log.SetOutput(prev)
	}

	record := ledger.NewRecord(cfg.Horde, req)
	out, runErr := horde.NewLifecycle(client, lcConfig).Run(ctx, req, interrupt)

	status := ui.NewStatusLineTo(opts.stdout)
	saveErr := report(ctx, cfg, opts, out, runErr, status)

	if saveErr != nil && runErr == nil {
		record.Complete(out, saveErr)
	} else {
		record.Complete(out, runErr)
	}
	recordRun(opts.ledgerPath, record)

	if runErr != nil {
		return out, runErr
	}
	return out, saveErr
}

// report prints the outcome and saves whatever the job produced.
func report(ctx context.Context, cfg *config.Config, opts runOptions, out *horde.Outcome, runErr error, status *ui.StatusLine) error {
	if runErr != nil {
		return nil
	}

	switch out.State {
	case horde.StateSubmissionRejected:
		// dry runs and refusals come back without a job id
		status.Info(fmt.Sprintf("The horde returned no job: %s", out.Message))
		return nil
	case horde.StateFaulted:
		status.Fail(out.Err().Error())
		return nil
	case horde.StateCancelled:
		status.Warning(fmt.Sprintf("Job %s cancelled, saving %d finished image(s)", out.JobID, len(out.Result.Generations)))
	}

	m := materialize.New(materialize.Config{
		Filename: cfg.Filename,
		LogFn:    logFn("materialize"),
	})
	saved, err := m.Save(ctx, out.Result)
	for _, s := range saved {
		status.Success(savedMessage(s, out.Result.Kudos, opts.links))
	}
	if err != nil {
		return fmt.Errorf("save results of %s: %w", out.JobID, err)
	}
	return nil
}

func savedMessage(s materialize.Saved, kudos float64, links bool) string {
	censored := ""
	if s.Generation.Censored {
		censored = " (censored)"
	}
	name := s.Path
	if links {
		name = ui.FileLink(s.Path)
	}
	worker := s.Generation.WorkerID
	if s.Generation.WorkerName != "" {
		worker = s.Generation.WorkerName + " - " + worker
	}
	return fmt.Sprintf("Saved%s %s for %g kudos (via %s)", censored, name, kudos, worker)
}

// recordRun writes the run to the ledger. Ledger problems never fail a run.
func recordRun(path string, record ledger.Record) {
	if path == "" {
		return
	}
	store, err := ledger.OpenStore(path)
	if err != nil {
		log.Warnf("Could not open ledger: %v", err)
		return
	}
	defer store.Close()
	if err := store.Insert(record); err != nil {
		log.Warnf("Could not record run: %v", err)
	}
}
