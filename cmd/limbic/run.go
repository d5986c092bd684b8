package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/normanking/limbic/internal/bus"
	"github.com/normanking/limbic/internal/config"
	"github.com/normanking/limbic/internal/engine"
)

func runCmd() *cobra.Command {
	var metricsAddr, observerAddr string
	var noWatch, quiet bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the engine loop, reading JSON-lines inputs from stdin",
		Long: `Run the engine until SIGINT or SIGTERM. Each stdin line is one input:

  {"kind":"stimulus","stimulus":{"text_length":420,"sentiment_tags":["joy"],"content":"..."}}
  {"kind":"activity","activity":{"type":"command","intensity":0.6}}
  {"kind":"cognition","cognition":0.7}
  {"kind":"interrupt"}
  {"kind":"trigger","chain":"organizing"}
  {"kind":"recall","query":{"text":"release"},"k":3}

Modifiers after each stimulus and ranked recalls are written to stdout as
JSON-lines bus events. The state is snapshotted on an interval and on shutdown.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if metricsAddr != "" {
				cfg.Metrics.Addr = metricsAddr
			}
			if observerAddr != "" {
				cfg.Observer.Addr = observerAddr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := openSession(ctx, time.Now())
			if err != nil {
				return err
			}
			e := s.engine
			defer s.release()
			defer e.Close()

			if cfg.Metrics.Addr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.Handler())
				stopServer := serve(cfg.Metrics.Addr, mux, "metrics")
				defer stopServer()
			}
			if cfg.Observer.Addr != "" {
				obs := bus.NewObserver(e.Bus(), cfg.Observer, log)
				defer obs.Close()
				mux := http.NewServeMux()
				mux.Handle("/events", obs)
				stopServer := serve(cfg.Observer.Addr, mux, "observer")
				defer stopServer()
			}

			if !quiet {
				stopOutputs := emitOutputs(e.Bus().Feed, os.Stdout)
				defer stopOutputs()
			}

			reload := make(chan engine.Config, 1)
			if !noWatch {
				err := config.Watch(configPath(), log, func(c *config.Config) {
					select {
					case reload <- c.Config:
					default:
						log.Warn().Msg("config reload dropped, previous one still pending")
					}
				})
				if err != nil {
					log.Warn().Err(err).Msg("config hot reload disabled")
				}
			}

			return e.Run(ctx, engine.Loop{
				Inputs:           readInputs(ctx, os.Stdin),
				Reload:           reload,
				Snapshots:        s.snapshots,
				SnapshotInterval: cfg.Snapshot.Interval,
			})
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9464)")
	cmd.Flags().StringVar(&observerAddr, "observer-addr", "", "stream bus events over WebSocket at /events on this address")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not reload the config file on change")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not write modifiers and recalls to stdout")
	return cmd
}

// readInputs decodes one Input per line until r is exhausted or ctx is done.
// Malformed lines are logged and skipped.
func readInputs(ctx context.Context, r io.Reader) <-chan engine.Input {
	out := make(chan engine.Input)
	go func() {
		defer close(out)
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 64*1024), 1024*1024)
		line := 0
		for sc.Scan() {
			line++
			raw := sc.Bytes()
			if len(raw) == 0 {
				continue
			}
			var in engine.Input
			if err := json.Unmarshal(raw, &in); err != nil {
				log.Warn().Err(err).Int("line", line).Msg("skipping malformed input")
				continue
			}
			select {
			case out <- in:
			case <-ctx.Done():
				return
			}
		}
		if err := sc.Err(); err != nil {
			log.Warn().Err(err).Msg("stdin closed with error")
		}
	}()
	return out
}

// emitOutputs writes modifier and recall events to w, one JSON object per
// line, and returns a func that stops it.
func emitOutputs(f *bus.Feed, w io.Writer) func() {
	var mu sync.Mutex
	enc := json.NewEncoder(w)
	write := func(ev bus.Event) {
		mu.Lock()
		defer mu.Unlock()
		if err := enc.Encode(ev); err != nil {
			log.Warn().Err(err).Str("event", string(ev.Type)).Msg("writing output failed")
		}
	}
	ids := []bus.SubscriptionID{
		f.Subscribe(bus.EventModifiers, write),
		f.Subscribe(bus.EventMemoryRecalled, write),
	}
	return func() {
		for _, id := range ids {
			_ = f.Unsubscribe(id)
		}
	}
}

// serve starts an HTTP server in the background and returns its shutdown func.
func serve(addr string, h http.Handler, name string) func() {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", addr).Str("server", name).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("server", name).Msg("server failed")
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
