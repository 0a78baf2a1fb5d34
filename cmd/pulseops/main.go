package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pulseops-lab/pulseops/internal/core/storage/postgres"
	"github.com/pulseops-lab/pulseops/internal/migrations"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

const defaultConfigPath = "pulseops.yaml"

func main() {
	if err := newCLI().Run(os.Args); err != nil {
		slog.Error("[Main] Exiting with error", "error", err)
		os.Exit(1)
	}
}

func newCLI() *cli.App {
	return &cli.App{
		Name:  "pulseops",
		Usage: "Event ingestion gateway and aggregation worker",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   defaultConfigPath,
				Usage:   "Path to the YAML configuration file",
				EnvVars: []string{"PULSEOPS_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "gateway",
				Usage: "Serve the ingestion and query API",
				Action: func(c *cli.Context) error {
					return serve(c, roleGateway)
				},
			},
			{
				Name:  "worker",
				Usage: "Consume events from the bus and maintain aggregates",
				Action: func(c *cli.Context) error {
					return serve(c, roleWorker)
				},
			},
			{
				Name:  "all",
				Usage: "Run the gateway and the worker in one process",
				Action: func(c *cli.Context) error {
					return serve(c, roleGateway|roleWorker)
				},
			},
			{
				Name:  "migrate",
				Usage: "Apply pending database migrations and exit",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "status", Usage: "Only print the applied schema version"},
				},
				Action: migrate,
			},
		},
	}
}

type role int

const (
	roleGateway role = 1 << iota
	roleWorker
)

func serve(c *cli.Context, r role) error {
	a, err := bootstrap(c)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.cfg.ValidateRoles(r&roleGateway != 0, r&roleWorker != 0); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.openStore(); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	srv, err := a.newServer()
	if err != nil {
		return err
	}

	if r&roleGateway != 0 {
		if err := a.wireGateway(srv); err != nil {
			return err
		}
	}

	if r&roleWorker != 0 {
		router, stats, err := a.wireWorker(srv, r&roleGateway == 0)
		if err != nil {
			return err
		}
		g.Go(func() error {
			defer stats.LogTotals()
			if err := router.Run(ctx); err != nil {
				return fmt.Errorf("worker router: %w", err)
			}
			return nil
		})

		// Subscriptions must exist before the gateway accepts events.
		select {
		case <-router.Running():
		case <-ctx.Done():
			return g.Wait()
		}
	}

	g.Go(func() error {
		return srv.Run(ctx)
	})

	slog.Info("[Main] PulseOps started",
		"gateway", r&roleGateway != 0,
		"worker", r&roleWorker != 0,
		"bus", a.cfg.Bus.Driver,
		"store", a.cfg.Database.Type)

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	slog.Info("[Main] Shutdown complete")
	return err
}

func migrate(c *cli.Context) error {
	a, err := bootstrap(c)
	if err != nil {
		return err
	}
	defer a.close()

	if a.cfg.Database.Type != "postgres" {
		return fmt.Errorf("migrate requires database.type postgres, got %q", a.cfg.Database.Type)
	}

	db, err := postgres.Open(a.cfg.Database.DSN, a.cfg.Database.MaxOpenConns, a.cfg.Database.MaxIdleConns)
	if err != nil {
		return err
	}
	a.onClose("database", db.Close)

	if !c.Bool("status") {
		if err := migrations.RunMigrations(db, true); err != nil {
			return err
		}
	}

	version, dirty, err := migrations.Status(db)
	if err != nil {
		return err
	}
	slog.Info("[Main] Schema version", "version", version, "dirty", dirty)
	return nil
}
