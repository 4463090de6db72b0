package cli

import (
	"context"
	"fmt"
	"time"

	"tradeGate/config"
	"tradeGate/internal/adapters/binanceclient"
	"tradeGate/internal/adapters/csvfeed"
	"tradeGate/internal/adapters/kafka"
	"tradeGate/internal/adapters/logger"
	"tradeGate/internal/adapters/sqlite"
	"tradeGate/internal/app"
	"tradeGate/internal/lifecycle"
	"tradeGate/internal/marketdata"
	"tradeGate/internal/portfolio"
	"tradeGate/internal/ports"
	"tradeGate/internal/risk"
	"tradeGate/internal/strategy"
	"tradeGate/internal/validation"
)

// runtime holds the wired components of one command invocation.
type runtime struct {
	cfg       *config.Config
	logger    *logger.Logger
	repo      *sqlite.Repository
	data      ports.MarketDataClient
	ledger    *portfolio.Ledger
	engine    *app.Engine
	publisher ports.EventPublisher
}

type runtimeOptions struct {
	clock func() time.Time       // Defaults to time.Now
	data  ports.MarketDataClient // Overrides DATA_SOURCE
	noBus bool                   // Skip Kafka even when brokers are configured
}

// newRuntime wires storage, market data, the event bus and the engine from cfg.
func newRuntime(ctx context.Context, cfg *config.Config, opts runtimeOptions) (*runtime, error) {
	if opts.clock == nil {
		opts.clock = time.Now
	}
	rt := &runtime{cfg: cfg}

	// 1. Logger
	rt.logger = logger.New(cfg.LogLevel, cfg.LogFormat)
	rt.logger.Debug(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 2. Repository (audit log and lifecycle archive)
	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: rt.logger})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database repository: %w", err)
	}
	rt.repo = repo

	// 3. Market data
	rt.data = opts.data
	if rt.data == nil {
		rt.data, err = newMarketData(cfg, rt.logger)
		if err != nil {
			rt.close(ctx)
			return nil, err
		}
	}
	snapshots, err := marketdata.NewSnapshotBuilder(rt.data, cfg.SnapshotConfig(), rt.logger)
	if err != nil {
		rt.close(ctx)
		return nil, fmt.Errorf("failed to initialize snapshot builder: %w", err)
	}

	// 4. Event bus
	if len(cfg.KafkaBrokers) > 0 && !opts.noBus {
		pub, err := kafka.NewPublisher(kafka.Config{
			Brokers:        cfg.KafkaBrokers,
			DecisionTopic:  cfg.KafkaDecisionTopic,
			LifecycleTopic: cfg.KafkaLifecycleTopic,
		}, rt.logger)
		if err != nil {
			rt.close(ctx)
			return nil, fmt.Errorf("failed to initialize Kafka publisher: %w", err)
		}
		rt.publisher = pub
	}

	// 5. Portfolio ledger
	rt.ledger, err = portfolio.NewLedger(cfg.InitialCapital, rt.logger, opts.clock)
	if err != nil {
		rt.close(ctx)
		return nil, fmt.Errorf("failed to initialize portfolio ledger: %w", err)
	}

	// 6. Decision stages
	components, err := newComponents(cfg, rt.logger, opts.clock)
	if err != nil {
		rt.close(ctx)
		return nil, err
	}

	// 7. Engine
	enginePorts := app.Ports{
		Data:      snapshots,
		Portfolio: rt.ledger,
		Audit:     rt.repo,
		Archive:   rt.repo,
		Publisher: rt.publisher,
	}
	rt.engine, err = app.NewEngine(rt.logger, enginePorts, components)
	if err != nil {
		rt.close(ctx)
		return nil, fmt.Errorf("failed to initialize engine: %w", err)
	}
	return rt, nil
}

func newMarketData(cfg *config.Config, log ports.Logger) (ports.MarketDataClient, error) {
	switch cfg.DataSource {
	case config.DataSourceCSV:
		feed, err := csvfeed.New(cfg.CSVDir, log)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize CSV feed: %w", err)
		}
		return feed, nil
	default:
		client, err := binanceclient.New(binanceclient.Config{
			APIKey:     cfg.APIKey,
			SecretKey:  cfg.SecretKey,
			UseTestnet: cfg.IsTestnet,
			Logger:     log,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Binance client: %w", err)
		}
		return client, nil
	}
}

func newComponents(cfg *config.Config, log ports.Logger, clock func() time.Time) (app.Components, error) {
	strat, err := strategy.New(cfg.Strategy, log)
	if err != nil {
		return app.Components{}, fmt.Errorf("failed to initialize strategy: %w", err)
	}
	stops, err := risk.NewStopResolver(cfg.Stops)
	if err != nil {
		return app.Components{}, fmt.Errorf("failed to initialize stop resolver: %w", err)
	}
	targets, err := risk.NewTargetPlanner(cfg.Targets)
	if err != nil {
		return app.Components{}, fmt.Errorf("failed to initialize target planner: %w", err)
	}
	sizer, err := risk.NewSizer(cfg.Sizing)
	if err != nil {
		return app.Components{}, fmt.Errorf("failed to initialize position sizer: %w", err)
	}
	pipeline, err := validation.NewPipeline(cfg.Policy, cfg.ValidationChecks, cfg.DisabledChecks, log)
	if err != nil {
		return app.Components{}, fmt.Errorf("failed to initialize validation pipeline: %w", err)
	}
	manager, err := lifecycle.NewManager(log, clock)
	if err != nil {
		return app.Components{}, fmt.Errorf("failed to initialize lifecycle manager: %w", err)
	}
	return app.Components{
		Strategy:  strat,
		Stops:     stops,
		Targets:   targets,
		Sizer:     sizer,
		Pipeline:  pipeline,
		Lifecycle: manager,
		Clock:     clock,
	}, nil
}

func (rt *runtime) close(ctx context.Context) {
	if rt.publisher != nil {
		if err := rt.publisher.Close(); err != nil {
			rt.logger.Error(ctx, err, "Error closing Kafka publisher")
		}
	}
	if rt.repo != nil {
		if err := rt.repo.Close(); err != nil {
			rt.logger.Error(ctx, err, "Error closing database repository")
		}
	}
}
