package app

import (
	"context"
	"entryready/config"
	"entryready/internal/cache"
	"entryready/internal/database"
	"entryready/internal/events"
	"entryready/internal/handlers/middleware"
	"entryready/internal/logger"
	"entryready/internal/metrics"
	"entryready/internal/repositories"
	"entryready/internal/services"
	"entryready/internal/websockets"
	"errors"

	lifecycleController "entryready/internal/controllers/lifecycle"
	requirementsController "entryready/internal/controllers/requirements"
	travelerController "entryready/internal/controllers/traveler"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type App struct {
	Database   database.DB
	Middleware middleware.Middleware
	Websocket  *websockets.Manager
	EventBus   *events.EventBus
	Config     config.Config
	Registry   *prometheus.Registry
	Metrics    *metrics.Metrics

	stopRelay func()

	// Services
	TransactionService *services.TransactionService
	CacheInvalidation  *services.CacheInvalidationService
	Autosaver          *services.Autosaver
	Submitter          services.DACSubmitter

	// Repositories
	RuleRepo         repositories.RuleRepository
	PassportRepo     repositories.PassportRepository
	PersonalInfoRepo repositories.PersonalInfoRepository
	TravelInfoRepo   repositories.TravelInfoRepository
	FundItemRepo     repositories.FundItemRepository
	EntryInfoRepo    repositories.EntryInfoRepository
	DACRepo          repositories.DACRepository

	RequirementsCache cache.RequirementsCache

	// Controllers
	RequirementsController *requirementsController.RequirementsController
	LifecycleController    *lifecycleController.LifecycleController
	TravelerController     *travelerController.TravelerController
}

func New() (*App, error) {
	log := logger.New("app").Function("New")

	config, err := config.InitConfig()
	if err != nil {
		return &App{}, log.Err("failed to initialize config", err)
	}

	return Build(config)
}

// Build wires every component from an already loaded config. Invalid rule
// data aborts startup.
func Build(config config.Config) (*App, error) {
	log := logger.New("app").Function("Build")

	format := "console"
	if config.IsProduction() {
		format = "json"
	}
	logger.Init(config.LogLevel, format)

	db, err := database.New(config)
	if err != nil {
		return &App{}, log.Err("failed to create database", err)
	}

	app := &App{Database: db, Config: config}
	if err := app.build(); err != nil {
		_ = app.Close()
		return &App{}, err
	}

	return app, nil
}

func (a *App) build() error {
	log := logger.New("app").Function("build")
	ctx := context.Background()

	if _, err := a.Database.Migrate(); err != nil {
		return log.Err("failed to migrate database", err)
	}

	ruleSet, err := repositories.LoadRuleSet(ctx, a.Config.RulesPath)
	if err != nil {
		return log.Err("failed to load rules", err, "path", a.Config.RulesPath)
	}
	a.RuleRepo = repositories.NewRuleRepository()
	if err := a.RuleRepo.Replace(ruleSet); err != nil {
		return log.Err("failed to install rules", err)
	}

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Metrics = metrics.New(a.Registry)

	a.EventBus = events.New()
	if a.Database.Cache.Events != nil {
		a.stopRelay = a.EventBus.Relay(a.Database.Cache.Events, events.ChannelRules, events.ChannelEntries)
	}
	a.Middleware = middleware.New(a.Config)

	// Initialize services
	a.TransactionService = services.NewTransactionService(a.Database)

	// Initialize repositories
	a.PassportRepo = repositories.NewPassportRepository(a.Database)
	a.PersonalInfoRepo = repositories.NewPersonalInfoRepository(a.Database)
	a.TravelInfoRepo = repositories.NewTravelInfoRepository(a.Database)
	a.FundItemRepo = repositories.NewFundItemRepository(a.Database)
	a.EntryInfoRepo = repositories.NewEntryInfoRepository(a.Database)
	a.DACRepo = repositories.NewDACRepository(a.Database)

	a.RequirementsCache, err = cache.New(a.Config, a.Database, a.Metrics)
	if err != nil {
		return log.Err("failed to create requirements cache", err)
	}
	a.CacheInvalidation = services.NewCacheInvalidationService(a.EventBus, a.RequirementsCache)

	if a.Config.DACServiceURL == "" {
		log.Warn("DAC_SERVICE_URL is not set, submissions will fail as transient")
		a.Submitter = services.UnconfiguredDACSubmitter{}
	} else {
		a.Submitter = services.NewHTTPDACSubmitter(a.Config.DACServiceURL, a.Config.DACSubmitTimeout, a.Config.DACMaxAttempts)
	}

	// Initialize controllers with repositories and services
	a.RequirementsController = requirementsController.New(a.RuleRepo, a.RequirementsCache, a.EventBus, a.Metrics, nil)
	a.LifecycleController = lifecycleController.New(lifecycleController.Dependencies{
		Entries:      a.EntryInfoRepo,
		Passports:    a.PassportRepo,
		PersonalInfo: a.PersonalInfoRepo,
		TravelInfo:   a.TravelInfoRepo,
		DACs:         a.DACRepo,
		Rules:        a.RuleRepo,
		Requirements: a.RequirementsController,
		Submitter:    a.Submitter,
		Transactions: a.TransactionService,
		EventBus:     a.EventBus,
		Metrics:      a.Metrics,
	}, lifecycleController.Settings{
		CompletionThreshold: a.Config.CompletionThreshold,
		RequiredSections:    a.Config.Sections(),
	})

	a.Autosaver = services.NewAutosaver(a.Config.AutosaveWindow, a.LifecycleController.FlushEdits)
	a.TravelerController = travelerController.New(
		a.PassportRepo,
		a.PersonalInfoRepo,
		a.TravelInfoRepo,
		a.FundItemRepo,
		a.EntryInfoRepo,
		a.Autosaver,
	)

	if _, err := a.LifecycleController.RecoverInterrupted(ctx, a.Config.PendingSubmissionTimeout); err != nil {
		return log.Err("failed to recover interrupted submissions", err)
	}

	a.Websocket = websockets.New(a.EventBus)

	if err := a.validate(); err != nil {
		return log.Err("failed to validate app", err)
	}

	return nil
}

func (a *App) validate() error {
	log := logger.New("app").Function("validate")
	if a.Database.SQL == nil {
		return log.ErrMsg("database is nil")
	}

	if a.Config == (config.Config{}) {
		return log.ErrMsg("config is nil")
	}

	nilChecks := []any{
		a.Websocket,
		a.EventBus,
		a.Registry,
		a.TransactionService,
		a.CacheInvalidation,
		a.Autosaver,
		a.Submitter,
		a.RuleRepo,
		a.PassportRepo,
		a.EntryInfoRepo,
		a.DACRepo,
		a.RequirementsCache,
		a.RequirementsController,
		a.LifecycleController,
		a.TravelerController,
	}

	for _, check := range nilChecks {
		if check == nil {
			return log.ErrMsg("nil check failed")
		}
	}

	return nil
}

// Close flushes pending edits before tearing down the event bus and database.
func (a *App) Close() (err error) {
	if a.Autosaver != nil {
		err = errors.Join(err, a.Autosaver.Close())
	}

	if a.CacheInvalidation != nil {
		a.CacheInvalidation.Close()
	}

	if a.Websocket != nil {
		a.Websocket.Close()
	}

	if a.stopRelay != nil {
		a.stopRelay()
	}

	if a.EventBus != nil {
		err = errors.Join(err, a.EventBus.Close())
	}

	return errors.Join(err, a.Database.Close())
}
