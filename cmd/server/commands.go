package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"healthwatch/internal/app"
	"healthwatch/internal/apperrors"
	"healthwatch/internal/fleet"
	"healthwatch/internal/logger"
	"healthwatch/internal/monitor"
	"healthwatch/internal/uptime"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the collection, evaluation and retention jobs and the ops API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig(v)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			log.Info("starting healthwatch", "addr", cfg.Addr, "driver", cfg.DB.Driver, "instance", cfg.InstanceID)

			a, err := app.New(cfg, log)
			if err != nil {
				log.Error("init failed", "err", err)
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if err := a.Run(ctx); err != nil {
				log.Error("shutdown with error", "err", err)
				return err
			}
			return nil
		},
	}
}

func newMigrateCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig(v)
			if err != nil {
				return err
			}
			sqldb, _, err := app.OpenStore(cfg)
			if err != nil {
				return err
			}
			log.Info("migrations applied", "driver", cfg.DB.Driver)
			return sqldb.Close()
		},
	}
}

func newSeedCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <fleet.yaml>",
		Short: "Register the systems and rules listed in a fleet file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := fleet.LoadFile(args[0])
			if err != nil {
				return err
			}
			mon, closeFn, log, err := offlineMonitor(v)
			if err != nil {
				return err
			}
			defer closeFn()

			res, err := fleet.Apply(cmd.Context(), mon, f, log.With("module", "fleet"))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered %d systems and %d rules, skipped %d existing\n", res.Systems, res.Rules, len(res.Skipped))
			return nil
		},
	}
}

func newUptimeCmd(v *viper.Viper) *cobra.Command {
	var (
		from, to string
		window   time.Duration
		slo      float64
	)
	cmd := &cobra.Command{
		Use:   "uptime <system id or name>",
		Short: "Print an availability report for one system",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			end := time.Now().UTC()
			if to != "" {
				t, err := time.Parse(time.RFC3339, to)
				if err != nil {
					return fmt.Errorf("--to: %w", err)
				}
				end = t
			}
			start := end.Add(-window)
			if from != "" {
				t, err := time.Parse(time.RFC3339, from)
				if err != nil {
					return fmt.Errorf("--from: %w", err)
				}
				start = t
			}

			mon, closeFn, _, err := offlineMonitor(v)
			if err != nil {
				return err
			}
			defer closeFn()

			id, err := resolveSystem(cmd.Context(), mon, args[0])
			if err != nil {
				return err
			}
			report, err := mon.UptimeReport(cmd.Context(), id, start, end, slo)
			if err != nil {
				return err
			}
			printReport(cmd, report)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "start of the window (RFC3339)")
	cmd.Flags().StringVar(&to, "to", "", "end of the window (RFC3339, default now)")
	cmd.Flags().DurationVar(&window, "window", 24*time.Hour, "window length when --from is not set")
	cmd.Flags().Float64Var(&slo, "slo", 0, "availability objective in percent (default from config)")
	return cmd
}

// offlineMonitor builds a monitor over the store without collectors or jobs.
func offlineMonitor(v *viper.Viper) (*monitor.Monitor, func(), *logger.Logger, error) {
	cfg, log, err := loadConfig(v)
	if err != nil {
		return nil, nil, nil, err
	}
	sqldb, repo, err := app.OpenStore(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	mon := monitor.New(repo, nil, nil, nil, nil, log.With("module", "monitor"), monitor.DefaultOptions())
	return mon, func() { _ = sqldb.Close() }, log, nil
}

func resolveSystem(ctx context.Context, mon *monitor.Monitor, ref string) (string, error) {
	if sys, err := mon.GetSystem(ctx, ref); err == nil {
		return sys.ID, nil
	} else if !apperrors.IsNotFound(err) {
		return "", err
	}
	systems, err := mon.ListSystems(ctx)
	if err != nil {
		return "", err
	}
	for _, s := range systems {
		if s.Name == ref {
			return s.ID, nil
		}
	}
	return "", apperrors.NewNotFoundError("system not found", map[string]interface{}{"ref": ref})
}

func printReport(cmd *cobra.Command, r uptime.Report) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	defer w.Flush()
	fmt.Fprintf(w, "system\t%s\n", r.SystemID)
	fmt.Fprintf(w, "window\t%s .. %s\n", r.From.Format(time.RFC3339), r.To.Format(time.RFC3339))
	fmt.Fprintf(w, "samples\t%d (%d ok, %d failed)\n", r.Total, r.Successful, r.Failed)
	fmt.Fprintf(w, "uptime\t%.2f%% (%s)\n", r.Percentage, r.Classification)
	fmt.Fprintf(w, "time-based uptime\t%.4f%%\n", r.TimeBased)
	fmt.Fprintf(w, "incident downtime\t%s\n", r.IncidentDowntime)
	fmt.Fprintf(w, "estimated downtime\t%s\n", r.EstimatedDowntime)
	fmt.Fprintf(w, "objective\t%.3f%% met=%t allowed=%s\n", r.Objective, r.MeetsObjective, r.AllowedDowntime)
}

