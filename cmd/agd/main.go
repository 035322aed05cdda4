// Command agd decomposes spectra into Gaussian components.
//
// Usage:
//
//	agd decompose [flags]
//	agd train [flags]
//
// Examples:
//
//	agd decompose --config agd.yaml --input spectra.json --output fit.json
//	agd decompose --alpha1 2.58 --alpha2 5.14 --single 3 < spectra.json
//	agd train --alpha1 2 --input training.json
//
// Settings come from the YAML file given by --config, then AGD_*
// environment variables, then flags.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/cwbudde/algo-gauss/internal/config"
	"github.com/cwbudde/algo-gauss/internal/logging"
	"github.com/cwbudde/algo-gauss/internal/metrics"
)

type globalFlags struct {
	configPath  string
	verbose     bool
	logJSON     bool
	metricsAddr string
}

// app carries what every subcommand needs.
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	metrics *metrics.Collectors
	stdin   io.Reader
	stdout  io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd := newRootCmd(os.Stdin, os.Stdout, os.Stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "agd:", err)
		os.Exit(1)
	}
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	var g globalFlags
	a := &app{stdin: stdin, stdout: stdout}

	root := &cobra.Command{
		Use:           "agd",
		Short:         "Autonomous Gaussian decomposition of spectra",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(g.configPath)
			if err != nil {
				return err
			}
			if g.verbose {
				cfg.Verbose = true
			}
			if g.logJSON {
				cfg.LogJSON = true
			}
			a.cfg = cfg
			a.log = logging.New(cfg.Level(), cfg.LogJSON, stderr)
			a.metrics = metrics.New()
			return nil
		},
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "settings file (YAML)")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "debug logging")
	pf.BoolVar(&g.logJSON, "log-json", false, "log as JSON")
	pf.StringVar(&g.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	root.AddCommand(newDecomposeCmd(a, &g), newTrainCmd(a))
	return root
}

// serveMetrics exposes the collectors until ctx ends. It returns a function
// that shuts the server down.
func (a *app) serveMetrics(ctx context.Context, addr string) (func(), error) {
	if addr == "" {
		return func() {}, nil
	}
	reg := prometheus.NewRegistry()
	if err := a.metrics.Register(reg); err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("metrics server", slog.String("error", err.Error()))
		}
	}()
	a.log.Info("serving metrics", slog.String("addr", addr))

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}, nil
}

// openInput returns stdin for "" or "-".
func (a *app) openInput(path string) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(a.stdin), nil
	}
	return os.Open(path)
}

// createOutput returns stdout for "" or "-".
func (a *app) createOutput(path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopWriteCloser{a.stdout}, nil
	}
	return os.Create(path)
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
