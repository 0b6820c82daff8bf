package main

import (
	"context"

	"github.com/hsdfat8/fieldops/internal/adapters/factory"
	"github.com/hsdfat8/fieldops/internal/adapters/jsonstore"
	"github.com/hsdfat8/fieldops/internal/adapters/mqtt"
	"github.com/hsdfat8/fieldops/internal/adapters/sqlstore"
	"github.com/hsdfat8/fieldops/internal/config"
	"github.com/hsdfat8/fieldops/internal/domain/ports"
	"github.com/hsdfat8/fieldops/internal/domain/service"
	"github.com/hsdfat8/fieldops/internal/harness"
	"github.com/hsdfat8/fieldops/internal/logger"
	"github.com/hsdfat8/fieldops/internal/observability"
	"github.com/hsdfat8/fieldops/internal/simulator"
)

// Application holds the wired components
type Application struct {
	cfg        *config.Config
	logger     observability.Logger
	structured *sqlstore.Adapter // nil when database.type is none
	documents  *jsonstore.Store
	sim        *simulator.Simulator
	store      *service.RecordStore
	catalog    *service.LocationCatalog
	harness    *harness.Harness
	publisher  *mqtt.Publisher
}

// newApplication builds every component from cfg. An unreachable structured
// backend or broker is logged and tolerated; the service keeps running on the
// document backend.
func newApplication(ctx context.Context, cfg *config.Config) (*Application, error) {
	log := observability.New("fieldops", "")
	if cfg.Metrics.Enabled {
		logger.InitMetrics()
	}

	app := &Application{
		cfg:       cfg,
		logger:    log,
		documents: jsonstore.NewStore(cfg.Documents.Dir),
		sim:       simulator.New(cfg.SimulatorSettings()),
	}

	if cfg.StructuredEnabled() {
		adapter, err := factory.NewDatabaseAdapterFactory().CreateAdapter(cfg.DatabasePortsConfig())
		if err != nil {
			return nil, err
		}
		if err := adapter.Connect(ctx); err != nil {
			log.Warnw("Structured backend unavailable at startup, using document backend until it recovers",
				"type", cfg.Database.Type, "error", err)
		}
		app.structured = adapter
	} else {
		log.Infow("Structured backend disabled, all records use the document backend")
	}

	// a nil *sqlstore.Adapter must stay an untyped nil interface
	var (
		structured ports.StructuredBackend
		prober     harness.Prober
	)
	if app.structured != nil {
		structured = app.structured
		prober = app.structured
	}

	app.store = service.NewRecordStore(structured, app.documents, app.sim)
	app.harness = harness.New(prober, app.documents, app.sim)
	app.catalog = service.NewLocationCatalog(
		jsonstore.NewCatalogFile(cfg.Catalog.Path),
		service.WithPowerMeter(app.sim),
		service.WithNearestCacheSize(cfg.Catalog.NearestCacheSize),
	)
	if err := app.catalog.Load(); err != nil {
		app.Close()
		return nil, err
	}

	if cfg.MQTT.Enabled {
		pub, err := mqtt.Connect(mqtt.Config{
			Broker:         cfg.MQTT.Broker,
			ClientID:       cfg.MQTT.ClientID,
			Username:       cfg.MQTT.Username,
			Password:       cfg.MQTT.Password,
			Topic:          cfg.MQTT.Topic,
			QoS:            cfg.MQTT.QoS,
			Retained:       cfg.MQTT.Retained,
			ConnectTimeout: cfg.MQTT.ConnectTimeout,
		})
		if err != nil {
			log.Warnw("Mode publisher disabled", "broker", cfg.MQTT.Broker, "error", err)
		} else {
			app.publisher = pub
			app.sim.AddListener(pub)
			app.sim.AddPowerListener(pub)
			state := app.sim.State()
			if err := pub.PublishMode(ctx, string(state.Mode), string(state.PowerMode)); err != nil {
				log.Warnw("Failed to publish initial connectivity mode", "error", err)
			}
		}
	}

	log.Infow("Application initialized",
		"backend", app.store.ActiveBackend(ctx),
		"documents", cfg.Documents.Dir,
		"catalog", cfg.Catalog.Path,
		"connectivity_mode", app.sim.Mode(),
		"power_mode", app.sim.PowerMode(),
	)
	return app, nil
}

// Close releases every component; it is safe to call once after a failed build
func (a *Application) Close() {
	a.sim.Stop()
	if a.publisher != nil {
		_ = a.publisher.Close()
	}
	if a.structured != nil {
		if err := a.structured.Disconnect(context.Background()); err != nil {
			a.logger.Warnw("Failed to disconnect structured backend", "error", err)
		}
	}
}
