package main

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zoobzio/scopez"
)

// errInjected marks the failures the run command simulates.
var errInjected = errors.New("injected failure")

type runOptions struct {
	Flows     int
	Steps     int
	Workers   int
	FailEvery int
	StepDelay time.Duration
}

type runResult struct {
	Flows  int
	Failed int
	// Umbrella is the id of the scope enclosing every flow.
	Umbrella string
}

var runOpts = runOptions{Flows: 10, Steps: 3, Workers: 4, FailEvery: 0}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run concurrent flows, each traced in its own scope",
	Long: `Run starts an umbrella scope and fans out concurrent flows beneath it.
Each flow hands its steps to a worker pool by scope id; the workers rejoin the
flow's scope so their events land in the flow's record.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		h, err := newHost(cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
		if err != nil {
			return err
		}

		res, runErr := runFlows(cmd.Context(), h.registry, runOpts)
		if err := h.Close(); err != nil {
			return errors.Join(runErr, fmt.Errorf("close host: %w", err))
		}
		if runErr != nil {
			return runErr
		}

		h.logger.Info("run finished", "flows", res.Flows, "failed", res.Failed, "umbrella", res.Umbrella)
		return nil
	},
}

func init() {
	runCmd.Flags().IntVar(&runOpts.Flows, "flows", runOpts.Flows, "number of concurrent flows")
	runCmd.Flags().IntVar(&runOpts.Steps, "steps", runOpts.Steps, "steps per flow handed to the worker pool")
	runCmd.Flags().IntVar(&runOpts.Workers, "workers", runOpts.Workers, "goroutines processing steps")
	runCmd.Flags().IntVar(&runOpts.FailEvery, "fail-every", runOpts.FailEvery, "fail every Nth flow (0 disables)")
	runCmd.Flags().DurationVar(&runOpts.StepDelay, "step-delay", runOpts.StepDelay, "simulated work per step")
	rootCmd.AddCommand(runCmd)
}

// step is a unit of work handed to a worker. The worker rejoins the flow's
// scope through its id and reports on done.
type step struct {
	scopeID string
	flow    int
	index   int
	done    chan error
}

// runFlows opens an umbrella scope, runs every flow beneath it and returns
// once all of them are finalized.
func runFlows(ctx context.Context, reg *scopez.Registry, opts runOptions) (runResult, error) {
	if opts.Flows < 1 || opts.Workers < 1 {
		return runResult{}, fmt.Errorf("flows and workers must be positive, got %d and %d", opts.Flows, opts.Workers)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, umbrella := reg.Begin(ctx, nil)
	defer umbrella.Close()
	scopez.Logf(ctx, "starting %d flows on %d workers", opts.Flows, opts.Workers)

	steps := make(chan step)
	workers, workerCtx := errgroup.WithContext(ctx)
	for w := 0; w < opts.Workers; w++ {
		workers.Go(func() error {
			for s := range steps {
				s.done <- processStep(workerCtx, reg, w, s, opts.StepDelay)
			}
			return nil
		})
	}

	var failed atomic.Int32
	flows, flowCtx := errgroup.WithContext(ctx)
	for flow := 0; flow < opts.Flows; flow++ {
		flows.Go(func() error {
			err := reg.Do(flowCtx, nil, func(ctx context.Context) error {
				return runFlow(ctx, flow, opts, steps)
			})
			if errors.Is(err, errInjected) {
				failed.Add(1)
				return nil
			}
			return err
		})
	}

	flowErr := flows.Wait()
	close(steps)
	if err := workers.Wait(); err != nil && flowErr == nil {
		flowErr = err
	}

	res := runResult{Flows: opts.Flows, Failed: int(failed.Load()), Umbrella: umbrella.ID()}
	scopez.Logf(ctx, "%d of %d flows failed", res.Failed, res.Flows)
	return res, flowErr
}

func runFlow(ctx context.Context, flow int, opts runOptions, steps chan<- step) error {
	scopez.Logf(ctx, "flow %d started", flow)

	for i := 0; i < opts.Steps; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		s := step{scopeID: scopez.Detach(ctx), flow: flow, index: i, done: make(chan error, 1)}
		select {
		case steps <- s:
		case <-ctx.Done():
			return ctx.Err()
		}
		if err := <-s.done; err != nil {
			return fmt.Errorf("flow %d step %d: %w", flow, i, err)
		}
	}

	if opts.FailEvery > 0 && (flow+1)%opts.FailEvery == 0 {
		return fmt.Errorf("flow %d: %w", flow, errInjected)
	}
	scopez.Logf(ctx, "flow %d finished", flow)
	return nil
}

func processStep(ctx context.Context, reg *scopez.Registry, worker int, s step, delay time.Duration) error {
	stepCtx := reg.Attach(ctx, s.scopeID)
	scopez.Logf(stepCtx, "worker %d processing step %d of flow %d", worker, s.index, s.flow)

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
