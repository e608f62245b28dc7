package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ombudsman_deadline_notifier/internal/app"
	"ombudsman_deadline_notifier/internal/domain/deadline"
	idb "ombudsman_deadline_notifier/internal/infra/database"
	"ombudsman_deadline_notifier/internal/infra/httpapi"
	"ombudsman_deadline_notifier/internal/infra/scheduler"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the daily scheduler and the admin HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			env, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer env.close()

			service, reg, err := env.pipeline()
			if err != nil {
				return err
			}

			// Initialize NotificationScheduler
			notifScheduler := scheduler.NewNotificationScheduler(service, env.log.WithField("component", "scheduler"), env.cfg.Location, env.cfg.CronSpecDaily, env.cfg.RunTimeout)
			if err := notifScheduler.Start(); err != nil {
				return err
			}

			srv := &http.Server{
				Addr:              env.cfg.HTTPAddr,
				Handler:           httpapi.NewServer(service, reg, env.cfg.RunTimeout, env.log.WithField("component", "http")),
				ReadHeaderTimeout: 10 * time.Second,
			}
			serveErr := make(chan error, 1)
			go func() {
				env.log.WithField("addr", srv.Addr).Info("Admin HTTP server listening")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serveErr <- err
				}
				close(serveErr)
			}()

			select {
			case <-ctx.Done():
			case err = <-serveErr:
			}

			env.log.Info("Shutting down application...")
			notifScheduler.Stop()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
				env.log.WithError(shutdownErr).Warn("HTTP server shutdown incomplete")
			}
			env.log.Info("Application shut down gracefully.")
			return err
		},
	}
}

func newRunCommand() *cobra.Command {
	var (
		date        string
		bucketNames []string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the notification pipeline once and print the summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			buckets := deadline.Buckets
			if len(bucketNames) > 0 {
				buckets = make([]deadline.Bucket, 0, len(bucketNames))
				for _, name := range bucketNames {
					b, ok := deadline.ParseBucket(name)
					if !ok {
						return fmt.Errorf("invalid --bucket %q: want one of %v", name, deadline.Buckets)
					}
					buckets = append(buckets, b)
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			env, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer env.close()

			service, _, err := env.pipeline()
			if err != nil {
				return err
			}

			today := service.Today()
			if date != "" {
				if today, err = deadline.ParseDate(date); err != nil {
					return fmt.Errorf("invalid --date %q: want YYYY-MM-DD", date)
				}
			}

			ctx, cancel := context.WithTimeout(ctx, env.cfg.RunTimeout)
			defer cancel()
			summary, err := service.RunBuckets(ctx, app.TriggerManual, today, buckets)
			if err != nil {
				return err
			}
			printSummary(cmd, summary)
			if summary.Failed() {
				return errors.New("one or more buckets were aborted, see log")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "evaluate deadlines as of this day (YYYY-MM-DD) instead of today")
	cmd.Flags().StringSliceVar(&bucketNames, "bucket", nil, "only run these buckets (due-in-15, due-today, overdue-60)")
	return cmd
}

func printSummary(cmd *cobra.Command, s *app.RunSummary) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s (%s) for %s: %d cases, %d closed, %d not due, %d without date, %d without protocol\n",
		s.RunID, s.Trigger, s.Today, s.Cases, s.Closed, s.NotDue, s.NoCreationDate, s.NoProtocol)
	for _, b := range s.Buckets {
		fmt.Fprintf(out, "  %-10s candidates=%d already_notified=%d sent=%d errors=%d already_handled=%d skipped=%d",
			b.Bucket, b.Candidates, b.AlreadyNotified, b.Sent, b.Errors, b.AlreadyHandled, b.Skipped)
		if b.Err != "" {
			fmt.Fprintf(out, " aborted: %s", b.Err)
		}
		fmt.Fprintln(out)
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the notifier's own schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer env.close()

			version, err := idb.Migrate(env.db)
			if err != nil {
				return err
			}
			env.log.WithField("version", version).Info("Schema is up to date")
			return nil
		},
	}
}

func newAuthorizeCommand() *cobra.Command {
	var refreshToken string
	cmd := &cobra.Command{
		Use:   "authorize",
		Short: "Store the mailbox refresh token and verify it",
		RunE: func(cmd *cobra.Command, args []string) error {
			if refreshToken == "" {
				refreshToken = os.Getenv("GOOGLE_REFRESH_TOKEN")
			}
			if refreshToken == "" {
				return errors.New("--refresh-token or GOOGLE_REFRESH_TOKEN is required")
			}

			env, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer env.close()
			if err := env.cfg.RequireDelivery(); err != nil {
				return err
			}

			creds := env.credentials()
			if err := creds.Authorize(cmd.Context(), refreshToken); err != nil {
				return fmt.Errorf("could not store credential: %w", err)
			}
			if _, err := creds.AccessToken(cmd.Context()); err != nil {
				return fmt.Errorf("credential stored but refresh failed: %w", err)
			}
			env.log.Info("Delivery credential authorized")
			return nil
		},
	}
	cmd.Flags().StringVar(&refreshToken, "refresh-token", "", "OAuth2 refresh token obtained from the consent flow")
	return cmd
}
