package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"physlab.ai/internal/channel"
	"physlab.ai/internal/orchestrator"
	"physlab.ai/internal/runlog"
	"physlab.ai/internal/scenario"
	"physlab.ai/internal/sim"
)

func main() {
	var (
		scenarioPath = flag.String("scenario", "./configs/scenario.yaml", "scenario yaml path")
		url          = flag.String("url", "", "sim ws url (empty: run against an in-process world)")
		name         = flag.String("name", "orchestrator", "client name sent in the handshake")
		dataDir      = flag.String("data", "./data", "runtime data directory")
		runID        = flag.String("run", "", "run id (default: derived from the start time)")
		cadence      = flag.Int("cadence", 0, "override scenario cadence_hz")
		queryTimeout = flag.Duration("query_timeout", 2*time.Second, "sensor query timeout (remote only)")
		noLog        = flag.Bool("disable_runlog", false, "disable run event log and index")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[orchestrator] ", log.LstdFlags|log.Lmicroseconds)

	def, err := scenario.Load(*scenarioPath)
	if err != nil {
		logger.Fatalf("load scenario: %v", err)
	}
	if *cadence > 0 {
		def.CadenceHz = *cadence
	}

	// Channel: remote when a url is given, otherwise an in-process world.
	var ch channel.Channel
	if strings.TrimSpace(*url) != "" {
		remote, err := channel.Dial(*url, *name)
		if err != nil {
			logger.Fatalf("connect: %v", err)
		}
		remote.SetQueryTimeout(*queryTimeout)
		ch = remote
	} else {
		logger.Printf("no -url given; using in-process world")
		ch = channel.NewDirect(sim.NewWorld())
	}
	defer ch.Close()

	var opts []orchestrator.Option
	var rec *runlog.Recorder
	if !*noLog {
		rec, err = runlog.NewRecorder(*dataDir, *runID, def.Name)
		if err != nil {
			logger.Fatalf("open run log: %v", err)
		}
		opts = append(opts, orchestrator.WithSink(rec))
		logger.Printf("run id %s", rec.RunID)
	}

	o := orchestrator.New(def, logger, opts...)
	if err := o.Connect(ch); err != nil {
		logger.Fatalf("connect: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	report, runErr := o.Run(ctx)

	if rec != nil {
		if err := rec.Finish(report); err != nil {
			logger.Printf("finish run log: %v", err)
		}
	}

	logger.Printf("state=%s ticks=%d fired=%d sent=%d skipped=%d steps=%d sensor_retries=%d",
		report.State, report.Ticks, report.ActionsFired, report.CommandsSent,
		report.ActionsSkipped, report.StepsSent, report.SensorRetries)
	if runErr != nil && report.State == orchestrator.Failed {
		logger.Fatalf("run failed: %v", runErr)
	}
}
