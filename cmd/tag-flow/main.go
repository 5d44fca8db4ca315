package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"

	"github.com/ritzau/tag-flow/pkg/catalog"
	"github.com/ritzau/tag-flow/pkg/config"
	"github.com/ritzau/tag-flow/pkg/fetch"
	"github.com/ritzau/tag-flow/pkg/graph"
	"github.com/ritzau/tag-flow/pkg/host"
	"github.com/ritzau/tag-flow/pkg/logging"
	"github.com/ritzau/tag-flow/pkg/metrics"
	"github.com/ritzau/tag-flow/pkg/output"
	"github.com/ritzau/tag-flow/pkg/pubsub"
	"github.com/ritzau/tag-flow/pkg/report"
	"github.com/ritzau/tag-flow/pkg/web"
	"github.com/ritzau/tag-flow/pkg/workspace"
)

func main() {
	// Parse command-line flags
	flags := pflag.NewFlagSet("tag-flow", pflag.ExitOnError)
	config.RegisterFlags(flags)
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logging.Setup(os.Stderr, logging.ParseLevel(cfg.Verbosity, cfg.VerboseCnt), cfg.JSONLogs)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logging.Error("tag-flow failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	cat, err := workspace.LoadCatalog(cfg.Workspace)
	if err != nil {
		return err
	}

	resolver, err := catalog.NewResolver(cfg.Colors.Start, cfg.Colors.End)
	if err != nil {
		return err
	}

	fetcher, err := newFetcher(cfg)
	if err != nil {
		return err
	}

	publisher := pubsub.NewReportPublisher()
	defer publisher.Close()

	if !cfg.WebMode {
		// One-shot runs do not touch the saved state
		controller := report.NewController(host.NewStandalone("", publisher), fetcher, resolver, cat)
		if err := initController(ctx, controller, cfg); err != nil {
			return err
		}
		return printReport(ctx, controller)
	}

	controllerOpts := []report.Option{report.WithDebounce(cfg.Debounce)}
	var serverOpts []web.Option
	if cfg.Metrics {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		controllerOpts = append(controllerOpts, report.WithMetrics(metrics.New(reg)))
		serverOpts = append(serverOpts, web.WithMetrics(metrics.Handler(reg)))
	}

	controller := report.NewController(host.NewStandalone(cfg.State, publisher), fetcher, resolver, cat, controllerOpts...)
	server := web.NewServer(controller, publisher, serverOpts...)
	controller.Start(ctx)

	if err := initController(ctx, controller, cfg); err != nil {
		return err
	}

	if cfg.Watch {
		watcher, err := workspace.NewWatcher(cfg.Workspace, cfg.Debounce, func(c *catalog.Catalog) {
			// Errors are reported to the UI by the controller
			_ = controller.SetCatalog(ctx, c)
		})
		if err != nil {
			return fmt.Errorf("watching workspace: %w", err)
		}
		watcher.Start(ctx)
	}

	return server.Start(ctx, cfg.Port)
}

// newFetcher queries the GraphQL endpoint when one is configured, else the
// fact sheet export on disk
func newFetcher(cfg *config.Config) (fetch.Fetcher, error) {
	if cfg.Endpoint != "" {
		logging.Info("using GraphQL endpoint", "endpoint", cfg.Endpoint)
		return fetch.NewGraphQLFetcher(cfg.Endpoint, cfg.Token), nil
	}

	factSheets, err := workspace.LoadFactSheets(cfg.Records)
	if err != nil {
		return nil, err
	}
	logging.Info("using fact sheet export", "path", cfg.Records, "factSheets", len(factSheets))
	return fetch.NewWorkspaceFetcher(factSheets), nil
}

// initController restores state and applies the selection given on the command line
func initController(ctx context.Context, controller *report.Controller, cfg *config.Config) error {
	if err := controller.Init(ctx); err != nil {
		return err
	}
	if cfg.FactSheetType != "" {
		if err := controller.SetFactSheetType(ctx, cfg.FactSheetType); err != nil {
			return err
		}
	}
	if cfg.TagGroup != "" {
		if err := controller.SetTagGroup(ctx, cfg.TagGroup); err != nil {
			return err
		}
	}
	if cfg.ShowUntagged {
		controller.SetShowUntagged(ctx, true)
	}
	return nil
}

func printReport(ctx context.Context, controller *report.Controller) error {
	if err := controller.Refresh(ctx); err != nil {
		return err
	}

	applied := controller.Applied()
	fg, err := graph.NewFlowGraph(applied.Dataset)
	if err != nil {
		return err
	}
	output.PrintFlowReport(os.Stdout, applied.Dataset, fg.CheckFlow())
	return nil
}
