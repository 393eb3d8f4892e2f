package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/stakehouse/internal/chain"
	"github.com/alanyoungcy/stakehouse/internal/domain"
	"github.com/alanyoungcy/stakehouse/internal/engine"
	"github.com/alanyoungcy/stakehouse/internal/indexer"
	"github.com/alanyoungcy/stakehouse/internal/seeder"
	"github.com/alanyoungcy/stakehouse/internal/server"
	"github.com/alanyoungcy/stakehouse/internal/server/handler"
	"github.com/alanyoungcy/stakehouse/internal/server/ws"
	"github.com/alanyoungcy/stakehouse/internal/service"
)

// seedRetryInterval paces retries of seeding flows that failed part way.
const seedRetryInterval = time.Minute

// services bundles the domain services built on top of the ledger engine.
type services struct {
	eng     *engine.Engine
	markets *service.MarketService
	stakes  *service.StakeService
	payouts *service.PayoutService
	prices  *service.PriceService
	seeds   *service.SeedService
}

// ServeMode starts the HTTP + WebSocket API server, with liquidity seeding
// when a funded wallet is configured.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)

	svcs, err := a.buildServices(ctx, deps)
	if err != nil {
		return fmt.Errorf("serve mode: %w", err)
	}

	if a.cfg.Seeding.Enabled {
		if err := a.attachSeeder(ctx, g, deps, svcs); err != nil {
			return fmt.Errorf("serve mode: %w", err)
		}
	}

	a.startHTTPServer(ctx, g, deps, svcs)

	return g.Wait()
}

// IndexMode runs only the on-chain stake log indexer. No API is served and no
// transactions are sent, so no wallet is required.
func (a *App) IndexMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting index mode")

	g, ctx := errgroup.WithContext(ctx)

	if err := a.startIndexer(ctx, g, deps); err != nil {
		return fmt.Errorf("index mode: %w", err)
	}

	return g.Wait()
}

// FullMode starts all subsystems: the API server, liquidity seeding, and the
// on-chain log indexer.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	svcs, err := a.buildServices(ctx, deps)
	if err != nil {
		return fmt.Errorf("full mode: %w", err)
	}

	if a.cfg.Seeding.Enabled {
		if err := a.attachSeeder(ctx, g, deps, svcs); err != nil {
			return fmt.Errorf("full mode: %w", err)
		}
	}

	if a.cfg.Indexer.Enabled {
		if err := a.startIndexer(ctx, g, deps); err != nil {
			return fmt.Errorf("full mode: %w", err)
		}
	}

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, svcs)
	}

	return g.Wait()
}

// buildServices constructs the ledger engine and its services, then replays
// persisted markets and stakes into the engine.
func (a *App) buildServices(ctx context.Context, deps *Dependencies) (*services, error) {
	clock := domain.RealClock{}

	eng := engine.New(engine.Config{
		Owner:    a.cfg.Engine.Owner,
		MinStake: a.cfg.Engine.MinStake,
	}, clock, a.logger)

	svcs := &services{
		eng: eng,
		markets: service.NewMarketService(
			eng, deps.MarketStore, deps.StakeStore, deps.PayoutStore,
			deps.LockManager, deps.SignalBus, deps.Archiver, deps.Events,
			a.logger,
		),
		stakes: service.NewStakeService(
			eng, deps.MarketStore, deps.StakeStore, deps.PricePointStore,
			deps.PriceCache, deps.LockManager, deps.SignalBus, a.logger,
		),
		payouts: service.NewPayoutService(
			eng, deps.StakeStore, deps.PayoutStore,
			deps.LockManager, deps.SignalBus, a.logger,
		),
		prices: service.NewPriceService(
			eng, deps.PriceCache, deps.PricePointStore, clock, a.logger,
		),
	}

	if err := svcs.markets.Rehydrate(ctx); err != nil {
		return nil, fmt.Errorf("rehydrate ledger: %w", err)
	}
	return svcs, nil
}

// attachSeeder dials the chain with the operator wallet, wires the staged
// liquidity seeding flow into the service layer, and starts the background
// loop that resumes flows stuck after a failed stage.
func (a *App) attachSeeder(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs *services) error {
	cli, err := chain.Dial(ctx, chain.Config{
		RPCURL:        a.cfg.Chain.RPCURL,
		MarketAddress: a.cfg.Chain.MarketAddress,
		TokenAddress:  a.cfg.Chain.TokenAddress,
		Key: chain.KeyConfig{
			RawPrivateKey:    a.cfg.Wallet.PrivateKey,
			EncryptedKeyPath: a.cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      a.cfg.Wallet.KeyPassword,
		},
	})
	if err != nil {
		return err
	}
	a.closers = append(a.closers, cli.Close)

	token, err := chain.NewToken(cli,
		common.HexToAddress(a.cfg.Chain.TokenAddress),
		common.HexToAddress(a.cfg.Chain.MarketAddress),
	)
	if err != nil {
		return err
	}

	sdr := seeder.New(token, svcs.stakes, a.logger)
	svcs.seeds = service.NewSeedService(sdr, deps.Events, a.logger).
		WithDefaults(a.cfg.Seeding.Funder, a.cfg.Seeding.Amount)

	seeds := svcs.seeds
	g.Go(func() error {
		seeds.RetryLoop(ctx, seedRetryInterval)
		return nil
	})
	return nil
}

// startIndexer dials the chain read-only and adds the stake log sweep loop to
// the errgroup.
func (a *App) startIndexer(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	cli, err := chain.DialReadOnly(ctx, chain.Config{
		RPCURL: a.cfg.Chain.RPCURL,
	})
	if err != nil {
		return err
	}
	a.closers = append(a.closers, cli.Close)

	market, err := chain.NewMarket(cli, common.HexToAddress(a.cfg.Chain.MarketAddress))
	if err != nil {
		return err
	}

	ix := indexer.New(
		cli.Backend(), market,
		deps.PricePointStore, deps.Checkpoints,
		a.cfg.Indexer.StartBlock, a.logger,
	)
	ix.SetChunkSize(a.cfg.Indexer.ChunkSize)

	interval := a.cfg.Indexer.Interval.Duration
	g.Go(func() error {
		return ix.RunLoop(ctx, interval)
	})
	return nil
}

// startHTTPServer adds the API server and WebSocket hub goroutines to the
// given errgroup. The server is shut down gracefully when the context is
// cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs *services) {
	hub := ws.NewHub(deps.SignalBus, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	// Pass an untyped nil when seeding is off so the handler's nil check
	// disables the endpoint.
	var seeds handler.SeedService
	if svcs.seeds != nil {
		seeds = svcs.seeds
	}

	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(a.logger),
		Markets: handler.NewMarketHandler(svcs.markets, seeds, a.logger),
		Stakes:  handler.NewStakeHandler(svcs.stakes, a.logger),
		Payouts: handler.NewPayoutHandler(svcs.payouts, a.logger),
		Prices:  handler.NewPriceHandler(svcs.prices),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
