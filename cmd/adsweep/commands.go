package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"f0oster/adsweep/approval"
	"f0oster/adsweep/chatbot"
	"f0oster/adsweep/scheduler"
	"f0oster/adsweep/seed"
	"f0oster/adsweep/storage"
	"f0oster/adsweep/web"
	"f0oster/adsweep/workflow"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newRootCmd() *cobra.Command {
	var configName string

	root := &cobra.Command{
		Use:           "adsweep",
		Short:         "Find and disable stale directory accounts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configName, "config", "settings.env", "optional dotenv file read before the environment")

	withApp := func(run func(ctx context.Context, a *app, cmd *cobra.Command) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			a, err := newApp(ctx, configName)
			if err != nil {
				return err
			}
			defer a.Close()
			return run(ctx, a, cmd)
		}
	}

	root.AddCommand(
		newQueryCmd(withApp),
		newDisableCmd(withApp),
		newRemoveCmd(withApp),
		newNotifyCmd(withApp),
		newServeCmd(withApp),
		newSeedCmd(withApp),
	)
	return root
}

type appRunner func(run func(ctx context.Context, a *app, cmd *cobra.Command) error) func(*cobra.Command, []string) error

func newQueryCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "query",
		Short: "Scan the directory and upload the stale account reports",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command) error {
			result, err := a.service().Dispatch(ctx, workflow.Trigger{Action: workflow.ActionQuery})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		}),
	}
}

func newDisableCmd(withApp appRunner) *cobra.Command {
	var scanResults string
	cmd := &cobra.Command{
		Use:   "disable",
		Short: "Disable the stale accounts listed in a stored scan",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command) error {
			result, err := a.service().Dispatch(ctx, workflow.Trigger{Action: workflow.ActionDisable, LdapScanResults: scanResults})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		}),
	}
	cmd.Flags().StringVar(&scanResults, "scan-results", "", "object key of the raw scan results")
	_ = cmd.MarkFlagRequired("scan-results")
	return cmd
}

func newRemoveCmd(withApp appRunner) *cobra.Command {
	var scanResults string
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove the stale accounts in a stored scan from distribution lists",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command) error {
			result, err := a.service().Dispatch(ctx, workflow.Trigger{Action: workflow.ActionRemove, LdapScanResults: scanResults})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		}),
	}
	cmd.Flags().StringVar(&scanResults, "scan-results", "", "object key of the raw scan results")
	_ = cmd.MarkFlagRequired("scan-results")
	return cmd
}

func newNotifyCmd(withApp appRunner) *cobra.Command {
	var eventPath string
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Post an approval request, or update one, from an orchestrator event",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command) error {
			if err := a.cfg.ValidateChat(); err != nil {
				return err
			}
			raw, err := readEvent(cmd.InOrStdin(), eventPath)
			if err != nil {
				return err
			}
			ev, err := workflow.ParseNotifyEvent(raw)
			if err != nil {
				return err
			}
			notifier, err := a.notifier()
			if err != nil {
				return err
			}
			return workflow.Notify(ctx, notifier, ev, time.Now(), storage.DefaultPresignTTL)
		}),
	}
	cmd.Flags().StringVar(&eventPath, "event", "-", "event JSON file, or - for stdin")
	return cmd
}

func readEvent(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read event: %w", err)
	}
	return raw, nil
}

func newServeCmd(withApp appRunner) *cobra.Command {
	var schedule bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve chat callbacks and invocations, and run the scan schedule",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command) error {
			if err := a.cfg.ValidateChat(); err != nil {
				return err
			}
			svc := a.service()
			orch := a.orchestrator()
			listener := approval.NewListener(a.cfg.SlackSigningSecret, a.store, orch,
				approval.WithMaxSkew(a.cfg.WebhookMaxSkew),
				approval.WithListenerLogger(a.logger.Named("listener")),
			)
			bot := chatbot.New(a.slackClient(), orch, a.store, chatbot.WithLogger(a.logger.Named("chatbot")))

			server := web.NewServer(web.Options{
				Addr:          a.cfg.ListenAddr,
				SigningSecret: a.cfg.SlackSigningSecret,
				MaxSkew:       a.cfg.WebhookMaxSkew,
				Webhooks:      listener,
				Bot:           bot,
				Dispatcher:    svc,
				RateLimit:     web.RateLimitConfig{RequestsPerSecond: a.cfg.RateLimitRPS, Burst: a.cfg.RateLimitBurst},
				Logger:        a.logger.Named("web"),
			})

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return server.Run(gctx) })

			if schedule && a.cfg.ScanSchedule != "" {
				job := scheduler.StartExecution(orch)
				if a.cfg.SFNArn == "" {
					job = func(ctx context.Context) error {
						_, err := svc.Query(ctx)
						return err
					}
				}
				sched, err := scheduler.New(a.cfg.ScanSchedule, job, a.logger.Named("scheduler"))
				if err != nil {
					return err
				}
				g.Go(func() error { return sched.Run(gctx) })
			}

			return g.Wait()
		}),
	}
	cmd.Flags().BoolVar(&schedule, "schedule", true, "run scans on SCAN_SCHEDULE")
	return cmd
}

func newSeedCmd(withApp appRunner) *cobra.Command {
	var (
		usersPath    string
		disableCount int
		labelCount   int
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create test accounts and mark some disabled or flagged for testing",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command) error {
			users, err := seed.LoadUsers(usersPath)
			if err != nil {
				return err
			}
			opts := []seed.Option{seed.WithLogger(a.logger.Named("seed"))}
			if a.db != nil {
				opts = append(opts, seed.WithListStore(a.db))
			}
			seeder := seed.New(func() seed.Directory { return a.directory() }, opts...)
			res, err := seeder.Run(ctx, users, disableCount, labelCount)
			if err != nil {
				return err
			}
			a.logger.Info("seed complete", zap.Int("created", res.Created), zap.Int("disabled", res.Disabled),
				zap.Int("labelled", res.Labelled), zap.Int("distribution_lists", res.DistributionLists))
			return printJSON(cmd.OutOrStdout(), res)
		}),
	}
	cmd.Flags().StringVar(&usersPath, "users", "", "YAML or JSON user list")
	cmd.Flags().IntVar(&disableCount, "disable", 5, "standard users to disable at random")
	cmd.Flags().IntVar(&labelCount, "label", 20, "standard users to label with the test sentinel")
	_ = cmd.MarkFlagRequired("users")
	return cmd
}
