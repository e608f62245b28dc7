package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"ombudsman_deadline_notifier/internal/app"
	"ombudsman_deadline_notifier/internal/domain/directory"
	"ombudsman_deadline_notifier/internal/infra/config"
	idb "ombudsman_deadline_notifier/internal/infra/database"
	"ombudsman_deadline_notifier/internal/infra/delivery"
	"ombudsman_deadline_notifier/internal/infra/logger"
	"ombudsman_deadline_notifier/internal/infra/metrics"
)

// credentialSkew refreshes access tokens this long before they expire.
const credentialSkew = 2 * time.Minute

// environment is everything a command needs after startup.
type environment struct {
	cfg   *config.AppConfig
	log   *logrus.Logger
	db    *sql.DB
	close func()
}

func bootstrap(ctx context.Context) (*environment, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("could not load application configuration: %w", err)
	}
	log := logger.Init(cfg)
	log.WithFields(logrus.Fields{
		"log_level":   cfg.LogLevel,
		"environment": cfg.Environment,
		"timezone":    cfg.Location.String(),
	}).Info("Configuration loaded")

	db, err := idb.NewPostgresConnection(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}
	log.Info("Database connection established successfully.")

	return &environment{
		cfg:   cfg,
		log:   log,
		db:    db,
		close: func() { _ = db.Close() },
	}, nil
}

func (e *environment) credentials() *delivery.CredentialManager {
	refresher := delivery.OAuth2Refresher{Config: &oauth2.Config{
		ClientID:     e.cfg.GoogleClientID,
		ClientSecret: e.cfg.GoogleClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: e.cfg.GoogleTokenURL, AuthStyle: oauth2.AuthStyleInParams},
	}}
	store := idb.NewPostgresCredentialStore(e.db)
	return delivery.NewCredentialManager(store, refresher, credentialSkew, e.log.WithField("component", "credentials"))
}

// pipeline wires the notification service and its metrics registry.
func (e *environment) pipeline() (*app.NotificationService, *prometheus.Registry, error) {
	if err := e.cfg.RequireDelivery(); err != nil {
		return nil, nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewRecorder(reg)

	static, err := directory.LoadStaticTable(e.cfg.StaticDirectoryFile)
	if err != nil {
		return nil, nil, err
	}
	e.log.WithField("entries", len(static.Entries)).Info("Static department table loaded")

	// Initialize Repositories
	caseRepo := idb.NewPostgresCaseRepository(e.db, e.cfg.Location)
	ledgerRepo := idb.NewPostgresLedgerRepository(e.db)
	directoryRepo := idb.NewPostgresDirectoryRepository(e.db)

	// Initialize delivery
	provider := delivery.NewGmailProvider(e.cfg.MailFromName, e.cfg.MailFromAddress)
	client := delivery.NewClient(provider, e.credentials(), delivery.RetryPolicy{
		MaxAttempts:    e.cfg.RetryMaxAttempts,
		BaseDelay:      e.cfg.RetryBaseDelay,
		MaxDelay:       e.cfg.RetryMaxDelay,
		AttemptTimeout: e.cfg.SendTimeout,
	}, recorder, e.log.WithField("component", "delivery"))

	// Initialize NotificationService
	composer := app.NewComposer(e.cfg.DashboardURL)
	resolver := app.NewRecipientResolver(directoryRepo, static, e.cfg.DefaultRecipient, e.log.WithField("component", "recipients"))
	dispatcher := app.NewDispatcher(resolver, client, ledgerRepo, composer, e.cfg.DispatchConcurrency, recorder, e.log.WithField("component", "dispatcher"))
	escalation := app.NewEscalationSummarizer(client, composer, e.cfg.OversightRecipients, e.log.WithField("component", "escalation"))
	service := app.NewNotificationService(caseRepo, ledgerRepo, dispatcher, escalation, recorder, e.cfg.Location, e.log.WithField("component", "notifier"))

	return service, reg, nil
}
