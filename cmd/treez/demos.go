package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zoobzio/treez"
)

func basicCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "basic",
		Short: "A server accepting two connections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tracer, err := f.newTracer(cmd, nil)
			if err != nil {
				return err
			}
			defer tracer.Close()
			runBasic(cmd.Context(), tracer)
			return nil
		},
	}
}

func runBasic(ctx context.Context, tracer *treez.Tracer) {
	net := tracer.WithTarget("server::net")

	ctx, server := tracer.StartSpan(ctx, "server", treez.F("host", "localhost"), treez.F("port", 8080))
	defer server.Finish()
	tracer.Info(ctx, "starting")
	tracer.Info(ctx, "listening")

	ctxA, peerA := net.StartSpan(ctx, "conn", treez.F("peer_addr", "82.9.9.9"), treez.F("port", 42381))
	net.Debug(ctxA, "connected")
	ctxB, peerB := net.StartSpan(ctx, "conn", treez.F("peer_addr", "8.8.8.8"), treez.F("port", 18230))
	net.Debug(ctxB, "connected")

	net.Info(ctxA, "message received", treez.F("length", 2))
	net.Warn(ctxB, "weak encryption requested", treez.F("algo", "xor"))
	net.Info(ctxB, "response sent", treez.F("length", 8))
	peerB.Finish()

	net.Error(ctxA, "peer closed the connection", treez.F("err", errors.New("connection reset")))
	peerA.Finish()

	tracer.Warn(ctx, "internal error")
	tracer.Info(ctx, "exit")
}

func concurrentCmd(f *flags) *cobra.Command {
	var workers, steps int
	cmd := &cobra.Command{
		Use:   "concurrent",
		Short: "Goroutines interleaving their spans on one output",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tracer, err := f.newTracer(cmd, nil)
			if err != nil {
				return err
			}
			defer tracer.Close()
			return runConcurrent(cmd.Context(), tracer, workers, steps)
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 3, "number of goroutines")
	cmd.Flags().IntVar(&steps, "steps", 3, "steps per goroutine")
	return cmd
}

func runConcurrent(ctx context.Context, tracer *treez.Tracer, workers, steps int) error {
	ctx, batch := tracer.StartSpan(ctx, "batch", treez.F("workers", workers))
	defer batch.Finish()

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			ctx := treez.WithThreadName(ctx, fmt.Sprintf("worker-%d", w))
			ctx, job := tracer.StartSpan(ctx, "job", treez.F("id", w))
			defer job.Finish()

			for s := 0; s < steps; s++ {
				stepCtx, step := tracer.StartSpanLevel(ctx, treez.LevelDebug, "step", treez.F("n", s))
				time.Sleep(time.Duration(w+1) * time.Millisecond)
				tracer.Info(stepCtx, "done")
				step.Finish()
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

func deferredCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "deferred",
		Short: "Spans without events are never printed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tracer, err := f.newTracer(cmd, func(c *treez.Config) { c.DeferredSpans = true })
			if err != nil {
				return err
			}
			defer tracer.Close()
			runDeferred(cmd.Context(), tracer)
			return nil
		},
	}
}

func runDeferred(ctx context.Context, tracer *treez.Tracer) {
	ctx, req := tracer.StartSpan(ctx, "request", treez.F("path", "/orders"))
	defer req.Finish()

	authCtx, auth := tracer.StartSpan(ctx, "auth")
	_, cache := tracer.StartSpan(authCtx, "cache_lookup")
	cache.Finish()
	auth.Finish()

	dbCtx, db := tracer.StartSpan(ctx, "db")
	queryCtx, query := tracer.StartSpan(dbCtx, "query", treez.F("table", "orders"))
	tracer.Warn(queryCtx, "slow query", treez.F("rows", 1200))
	query.Finish()
	db.Finish()
}

func wraparoundCmd(f *flags) *cobra.Command {
	var depth int
	cmd := &cobra.Command{
		Use:   "wraparound",
		Short: "Deep nesting folded by the wraparound",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tracer, err := f.newTracer(cmd, func(c *treez.Config) {
				if c.Wraparound == 0 {
					c.Wraparound = 3
				}
			})
			if err != nil {
				return err
			}
			defer tracer.Close()
			runWraparound(cmd.Context(), tracer, depth)
			return nil
		},
	}
	cmd.Flags().IntVar(&depth, "depth", 7, "nesting depth")
	return cmd
}

func runWraparound(ctx context.Context, tracer *treez.Tracer, depth int) {
	if depth <= 0 {
		tracer.Info(ctx, "bottom")
		return
	}
	ctx, span := tracer.StartSpan(ctx, "recurse", treez.F("depth", depth))
	defer span.Finish()
	tracer.Debug(ctx, "descending")
	runWraparound(ctx, tracer, depth-1)
}

func recursiveCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "recursive",
		Short: "A sink that logs while it is written to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sink := &loggingSink{out: cmd.OutOrStdout()}
			tracer, err := f.newTracer(cmd, func(c *treez.Config) {
				c.MakeWriter = func() io.Writer { return sink }
			})
			if err != nil {
				return err
			}
			defer tracer.Close()
			sink.tracer = tracer
			runRecursive(cmd.Context(), tracer)
			return nil
		},
	}
}

// loggingSink emits an event for every write. The layer drops those events
// instead of rendering into itself.
type loggingSink struct {
	tracer *treez.Tracer
	out    io.Writer
}

func (s *loggingSink) Write(p []byte) (int, error) {
	s.tracer.Trace(context.Background(), "sink write", treez.F("bytes", len(p)))
	return s.out.Write(p)
}

func runRecursive(ctx context.Context, tracer *treez.Tracer) {
	ctx, span := tracer.StartSpan(ctx, "outer")
	defer span.Finish()
	tracer.Info(ctx, "written once")
}
