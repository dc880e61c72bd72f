// Package main is the PropDesk escalation service entrypoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/propdesk/propdesk/internal/api"
	"github.com/propdesk/propdesk/internal/cache"
	"github.com/propdesk/propdesk/internal/config"
	"github.com/propdesk/propdesk/internal/database"
	"github.com/propdesk/propdesk/internal/models"
	"github.com/propdesk/propdesk/internal/notifications"
	"github.com/propdesk/propdesk/internal/repository"
	"github.com/propdesk/propdesk/internal/services/escalation"
	"github.com/propdesk/propdesk/internal/snapshot"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "propdesk",
		Short:   "PropDesk escalation service",
		Version: version,
		Long: `PropDesk watches the property console's operational domains and raises
escalation events when configured rules match overdue, stale or unattended work.`,
	}
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(sweepCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the escalation engine and its HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return runServer(cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	return cmd
}

func sweepCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run a single evaluation pass and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			a, err := buildApp(cfg, log.Default())
			if err != nil {
				return err
			}
			defer a.cleanup()

			result, err := a.engine.RunSweep(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("sweep done: %d rule(s), %d emitted, %d suppressed\n",
				result.RulesEvaluated, result.EventsEmitted, result.Suppressed)

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return a.engine.Stop(shutdownCtx)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	return cmd
}

func runServer(cfg *config.Config) error {
	logger := log.New(os.Stdout, "", log.LstdFlags)

	a, err := buildApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.cleanup()

	router := api.NewRouter(api.NewEscalationHandlers(a.rules, a.events, a.engine))

	if err := a.engine.Start(); err != nil {
		return fmt.Errorf("start escalation engine: %w", err)
	}

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Printf("propdesk: listening on %s", cfg.Server.Addr)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logger.Printf("propdesk: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("propdesk: http shutdown: %v", err)
	}
	if err := a.engine.Stop(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logger.Printf("propdesk: engine shutdown: %v", err)
	}
	return nil
}

// app bundles the wired service graph behind one cleanup.
type app struct {
	engine  *escalation.Service
	rules   *repository.EscalationRuleRepository
	events  *repository.EscalationEventRepository
	cleanup func()
}

// buildApp assembles the escalation service and its collaborators from
// config.
func buildApp(cfg *config.Config, logger *log.Logger) (*app, error) {
	db, err := database.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := repository.EnsureSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	dbx, err := database.OpenX(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open snapshot database: %w", err)
	}

	redisCache, err := cache.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Printf("propdesk: redis unavailable, sweep status will not persist: %v", err)
	}

	directory := notifications.NewSQLDirectory(db)

	var dispatcher notifications.Dispatcher = &notifications.LogDispatcher{Logger: logger}
	if cfg.SMTP.Host != "" {
		dispatcher = notifications.NewSMTPDispatcher(notifications.SMTPConfig{
			Enabled:  true,
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			User:     cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			AuthType: "plain",
			TLS:      cfg.SMTP.StartTLS,
			From:     cfg.SMTP.From,
		}, directory)
	}

	var resolver notifications.RecipientResolver = directory
	if len(cfg.Notifications.Roles) > 0 {
		overrides := make(notifications.StaticResolver, len(cfg.Notifications.Roles))
		for role, userID := range cfg.Notifications.Roles {
			overrides[models.EscalationRole(role)] = userID
		}
		resolver = &notifications.OverrideResolver{Overrides: overrides, Fallback: directory}
	}

	rules := repository.NewEscalationRuleRepository(db)
	events := repository.NewEscalationEventRepository(db)

	engine := escalation.New(rules, events, snapshot.NewSQLProvider(dbx),
		escalation.WithLogger(logger),
		escalation.WithInterval(cfg.Escalation.Interval),
		escalation.WithWorkers(cfg.Escalation.Workers),
		escalation.WithSweepTimeout(cfg.Escalation.SweepTimeout),
		escalation.WithFetchTimeout(cfg.Escalation.FetchTimeout),
		escalation.WithDispatcher(dispatcher),
		escalation.WithRecipientResolver(resolver),
		escalation.WithCache(redisCache),
	)

	return &app{
		engine: engine,
		rules:  rules,
		events: events,
		cleanup: func() {
			dbx.Close()
			db.Close()
			if redisCache != nil {
				redisCache.Close()
			}
		},
	}, nil
}
