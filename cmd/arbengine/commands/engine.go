// Package commands wires the engine's components (spec §5 CONCURRENCY &
// RESOURCE MODEL) from a loaded pkg/config.Config and drives the cobra
// operator surface spec §6 names.
//
// Grounded on cmd/ai-arbitrage-service/main.go's dependency-construction
// order and graceful-shutdown-with-timeout pattern, merged with
// cmd/task-cli/commands/root.go's cobra/viper command-tree shape.
package commands

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/flowshift/arbengine/internal/admin"
	"github.com/flowshift/arbengine/internal/breaker"
	"github.com/flowshift/arbengine/internal/coordinator"
	"github.com/flowshift/arbengine/internal/domain"
	"github.com/flowshift/arbengine/internal/flashloan"
	"github.com/flowshift/arbengine/internal/oracle"
	"github.com/flowshift/arbengine/internal/orchestrator"
	"github.com/flowshift/arbengine/internal/queue"
	"github.com/flowshift/arbengine/internal/risk"
	"github.com/flowshift/arbengine/internal/scanner"
	"github.com/flowshift/arbengine/internal/telemetry"
	"github.com/flowshift/arbengine/internal/venue"
	"github.com/flowshift/arbengine/pkg/blockchain"
	"github.com/flowshift/arbengine/pkg/config"
	"github.com/flowshift/arbengine/pkg/logger"
	arbredis "github.com/flowshift/arbengine/pkg/redis"
)

// venueRegistry satisfies scanner.VenueRegistry/orchestrator.VenueLookup.
type venueRegistry struct {
	adapters map[int64]map[string]venue.Adapter
}

func (r *venueRegistry) Adapter(chainID int64, key string) (venue.Adapter, bool) {
	a, ok := r.adapters[chainID][key]
	return a, ok
}

// providerRegistry satisfies scanner.ProviderRegistry/orchestrator.ProviderLookup.
type providerRegistry struct {
	byChain map[int64][]flashloan.Adapter
	byKey   map[int64]map[string]flashloan.Adapter
}

func (r *providerRegistry) Providers(chainID int64) []flashloan.Adapter {
	return r.byChain[chainID]
}

func (r *providerRegistry) ProviderByKey(chainID int64, key string) (flashloan.Adapter, bool) {
	a, ok := r.byKey[chainID][key]
	return a, ok
}

// chainGasPrices reports the network-suggested gas price per chain in
// native units (wei / 1e18), backing scanner.GasPriceSource. The USD
// conversion for that price is
// a separate concern owned by scanner.Config.NativePriceUSD.
type chainGasPrices struct {
	pool *blockchain.Pool
}

func (g *chainGasPrices) GasPriceNative(ctx context.Context, chainID int64) (decimal.Decimal, error) {
	client, ok := g.pool.Get(chainID)
	if !ok {
		return decimal.Zero, fmt.Errorf("no client connected for chain %d", chainID)
	}
	price, err := client.GetGasPrice(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromBigInt(price, -18), nil
}

// noopSimulator satisfies orchestrator.Simulator when no real simulation
// collaborator (e.g. eth_call against a forked node) is configured: it
// reports the same fixed fallback margin for every transaction, without
// inspecting the transaction or the estimator's prediction.
type noopSimulator struct {
	fallback decimal.Decimal
}

func (s *noopSimulator) Simulate(ctx context.Context, tx flashloan.TxRequest) (decimal.Decimal, error) {
	return s.fallback, nil
}

// engine bundles every constructed component plus the admin handle, spec
// §5's single-process-many-goroutines topology.
type engine struct {
	cfg      *config.Config
	log      *logger.Logger
	coord    *coordinator.Coordinator
	prices   *oracle.Oracle
	venues   *venueRegistry
	provs    *providerRegistry
	q        *queue.Queue
	tel      *telemetry.Sink
	risk     *risk.Supervisor
	orch     *orchestrator.Orchestrator
	scans    []*scanner.Scanner
	pool     *blockchain.Pool
	redisW   *arbredis.Writer
	pairs    []domain.Pair
	breakers *breaker.Manager

	adminSocketPath string
	scanPeriod      time.Duration
	baseSimMode     bool

	mu             sync.Mutex
	forcedSimTicks int
}

// buildEngine constructs every component in dependency order: breaker
// manager first (no hidden process-wide state, spec §9), then the chain
// Pool, then C1-C10 and the adapters the Pool backs.
func buildEngine(cfg *config.Config, log *logger.Logger) (*engine, error) {
	breakers := breaker.NewManager(log)

	pool := blockchain.NewPool()
	for _, c := range cfg.Chains {
		client, err := blockchain.Dial(c.ChainID, c.RPCEndpoint, log)
		if err != nil {
			return nil, fmt.Errorf("dial chain %s (%d): %w", c.Name, c.ChainID, err)
		}
		pool.Add(client)
	}

	coordCfg := coordinator.DefaultConfig()
	coordCfg.Policy = coordinator.Policy(cfg.LoadBalancing)
	coordCfg.CircuitBreakerThreshold = cfg.CircuitBreakerThreshold
	coordCfg.CircuitBreakerCooldown = time.Duration(cfg.CircuitBreakerCooldownMs) * time.Millisecond
	coord := coordinator.New(coordCfg, breakers, log.Named("coordinator"))

	// Each configured data provider is registered with a CallFunc seam;
	// the actual HTTP/WebSocket client behind it is an external collaborator
	// this engine does not own (spec §1 "external data provider integration"
	// is out of scope), matching the Signer seam pkg/blockchain.Relay needs.
	for _, dp := range cfg.DataProviders {
		caps := make([]coordinator.Capability, 0, len(dp.Capabilities))
		for _, c := range dp.Capabilities {
			caps = append(caps, coordinator.Capability(c))
		}
		coord.Register(coordinator.ProviderConfig{
			Key:            dp.Key,
			Capabilities:   caps,
			Tier:           coordinator.Tier(dp.Priority),
			MaxConcurrency: dp.MaxConcurrency,
			Timeout:        time.Duration(dp.TimeoutMs) * time.Millisecond,
		}, func(ctx context.Context, method string, params interface{}) (interface{}, error) {
			return nil, fmt.Errorf("data provider %s not wired to a live client", dp.Key)
		})
	}

	priceOracle := oracle.New(oracle.DefaultConfig(), coord)

	tel := telemetry.New(log.Named("telemetry"), 1024)

	q := queue.New(queue.Config{CapacityPerChain: cfg.QueueCapacity}, tel, log.Named("queue"))

	riskSup := risk.New(risk.DefaultConfig(), breakers, tel, log.Named("risk"))
	for _, c := range cfg.Chains {
		if cap, ok := cfg.DailyGasBudgetNative[fmt.Sprintf("%d", c.ChainID)]; ok {
			riskSup.SetDailyGasBudget(c.ChainID, cap)
		}
	}
	riskSup.SetKillSwitch(cfg.KillSwitch)

	pairAddr := make(map[string]string)
	token0Of := make(map[string]string)
	tokenAddr := make(map[string]string)
	holderAddr := make(map[string]string)
	for _, v := range cfg.Venues {
		pairAddr[v.Key] = v.Factory
		token0Of[v.Key] = v.Router
	}
	for _, t := range cfg.Tokens {
		tokenAddr[t.Symbol] = t.Address
	}
	for _, p := range cfg.Providers {
		holderAddr[p.Key] = p.Contract
	}
	reserves := blockchain.NewPairReserves(poolCaller{pool}, pairAddr, token0Of)
	liquidity := blockchain.NewTokenBalances(poolCaller{pool}, tokenAddr, holderAddr)

	venues := &venueRegistry{adapters: make(map[int64]map[string]venue.Adapter)}
	for _, vc := range cfg.Venues {
		d := domain.Venue{ChainID: vc.ChainID, Key: vc.Key, Kind: domain.VenueKind(vc.Kind), RouterAddress: vc.Router, FactoryAddress: vc.Factory, FeeBasisPoints: vc.FeeBps}
		a, err := venue.NewAdapter(d, reserves)
		if err != nil {
			log.Warn("skipping unsupported venue kind", logger.String("venue", vc.Key), logger.Err(err))
			continue
		}
		if venues.adapters[vc.ChainID] == nil {
			venues.adapters[vc.ChainID] = make(map[string]venue.Adapter)
		}
		venues.adapters[vc.ChainID][vc.Key] = a
	}

	provs := &providerRegistry{byChain: make(map[int64][]flashloan.Adapter), byKey: make(map[int64]map[string]flashloan.Adapter)}
	for _, pc := range cfg.Providers {
		supported := make(map[string]bool, len(pc.SupportedTokens))
		for _, t := range pc.SupportedTokens {
			supported[t] = true
		}
		fraction, _ := pc.MaxBorrowFraction.Float64()
		d := domain.FlashLoanProvider{
			ChainID: pc.ChainID, Key: pc.Key, Kind: domain.ProviderKind(pc.Kind),
			ContractAddress: pc.Contract, FeeBasisPoints: pc.FeeBps,
			MaxBorrowFraction: fraction, SupportedTokens: supported, GasLimitHint: pc.GasLimitHint,
		}
		wallet := blockchain.NewWalletBalance(pool, pc.Contract)
		a, err := flashloan.NewAdapter(d, liquidity, wallet)
		if err != nil {
			log.Warn("skipping unsupported provider kind", logger.String("provider", pc.Key), logger.Err(err))
			continue
		}
		provs.byChain[pc.ChainID] = append(provs.byChain[pc.ChainID], a)
		if provs.byKey[pc.ChainID] == nil {
			provs.byKey[pc.ChainID] = make(map[string]flashloan.Adapter)
		}
		provs.byKey[pc.ChainID][pc.Key] = a
	}

	orchCfg := orchestrator.DefaultConfig()
	orchCfg.SimulationMode = cfg.SimulationMode
	orchCfg.MaxSlippage = cfg.MaxSlippage
	orchCfg.MinMarginBps = decimal.NewFromInt(cfg.MinMarginBps)
	orchCfg.PendingDeadline = time.Duration(cfg.PendingDeadlineMs) * time.Millisecond

	sim := &noopSimulator{fallback: decimal.Zero}
	relay := blockchain.NewRelay(pool, nil, "")

	orch := orchestrator.New(orchCfg, riskSup, tel, venues, provs, sim, relay, relay, log.Named("orchestrator"))

	var pairs []domain.Pair
	for _, pc := range cfg.Pairs {
		pairs = append(pairs, domain.Pair{
			ChainID: pc.ChainID, TokenA: pc.TokenA, TokenB: pc.TokenB,
			VenueKeys: pc.VenueKeys, ProviderKeys: pc.ProviderKeys,
			MinVolume24hUSD: pc.MinVolume24hUSD, MinTradeSizeUSD: pc.MinTradeSizeUSD,
		})
	}

	scanCfg := scanner.DefaultConfig()
	scanCfg.Period = time.Duration(cfg.ScanPeriodMs) * time.Millisecond
	scanCfg.MaxSlippage = cfg.MaxSlippage
	scanCfg.MinMarginBps = decimal.NewFromInt(cfg.MinMarginBps)
	if cfg.MaxTradeSize.IsPositive() {
		scanCfg.HardTradeSizeCapUSD = cfg.MaxTradeSize
	}

	gasPrices := &chainGasPrices{pool: pool}

	var scans []*scanner.Scanner
	for range cfg.Chains {
		scans = append(scans, scanner.New(scanCfg, pairs, gasPrices, priceOracle, venues, provs, q, tel, log.Named("scanner")))
	}

	var redisWriter *arbredis.Writer
	if cfg.RedisAddr != "" {
		client := arbredis.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		redisWriter = arbredis.NewWriter(arbredis.DefaultWriterConfig(), client, log.Named("redis"))
	}

	e := &engine{
		cfg: cfg, log: log, coord: coord, prices: priceOracle, venues: venues, provs: provs,
		q: q, tel: tel, risk: riskSup, orch: orch, scans: scans, pool: pool, redisW: redisWriter,
		pairs:           pairs,
		breakers:        breakers,
		adminSocketPath: "/tmp/arbengine.sock",
		scanPeriod:      scanCfg.Period,
		baseSimMode:     cfg.SimulationMode,
	}
	return e, nil
}

// chainBreakerName mirrors internal/risk's unexported breaker-naming
// convention ("chain-<id>") so Status can read the same *breaker.Breaker
// the Risk Supervisor consults, without risk.Supervisor needing to expose
// its *breaker.Manager.
func chainBreakerName(chainID int64) string {
	return fmt.Sprintf("chain-%d", chainID)
}

// poolCaller adapts *blockchain.Pool's per-chain Call into a chain-agnostic
// blockchain.Caller: every call goes to the first connected client in the
// order Pool.ChainIDs() returns, whichever venue or provider it is for, so
// with several chains connected calls are not routed by the venue's or
// provider's own chain. pkg/blockchain's Caller interface is chain-unaware
// so the ABI-decode logic it is built on stays unit-testable.
type poolCaller struct{ pool *blockchain.Pool }

func (p poolCaller) Call(ctx context.Context, to string, data []byte) ([]byte, error) {
	for _, chainID := range p.pool.ChainIDs() {
		client, ok := p.pool.Get(chainID)
		if ok {
			return client.Call(ctx, to, data)
		}
	}
	return nil, fmt.Errorf("no chain client available")
}

// run starts every background task and blocks until ctx is cancelled,
// spec §5: one Scanner task per enabled chain, one health-probe task per
// registered C1 provider, the admin listener, and (if configured) the
// Redis telemetry writer.
func (e *engine) run(ctx context.Context) error {
	var wg sync.WaitGroup

	for i, c := range e.cfg.Chains {
		s := e.scans[i]
		chainID := c.ChainID
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.RunForChain(ctx, chainID)
		}()
	}

	e.coord.RunHealthProbes(ctx, func(probeCtx context.Context, key string) error {
		return nil
	})

	wg.Add(1)
	go func() {
		defer wg.Done()
		e.runPriceRefresh(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		e.runForcedSimExpiry(ctx)
	}()

	for _, c := range e.cfg.Chains {
		chainID := c.ChainID
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.drainChain(ctx, chainID)
		}()
	}

	if e.redisW != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.redisW.Run(ctx, e.tel.Events())
		}()
	}

	srv := admin.NewServer(e.adminSocketPath, e, e.log)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Serve(ctx); err != nil {
			e.log.Warn("admin server stopped", logger.Err(err))
		}
	}()

	<-ctx.Done()
	wg.Wait()
	return nil
}

// drainChain pulls one opportunity at a time off chainID's queue lane and
// drives it through the orchestrator, releasing the lane's in-flight flag
// once the Execution reaches a terminal state (spec §4.7's at-most-one-
// Execution-per-chain-in-flight serialization).
func (e *engine) drainChain(ctx context.Context, chainID int64) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			opp, ok := e.q.TryDequeue(chainID)
			if !ok {
				continue
			}
			e.orch.Execute(ctx, opp)
			e.q.Release(chainID)
		}
	}
}

// runPriceRefresh periodically asks the Price Oracle (C2) to refresh
// every watched token, spec §4.2. The batch collaborator itself routes
// through the Provider Coordinator (C1); with no live data-provider
// client wired (see buildEngine's registration comment) every tick
// currently fails and is logged, leaving the oracle's cache empty until a
// real provider client is plugged into the registered CallFunc.
func (e *engine) runPriceRefresh(ctx context.Context) {
	tokens := make(map[domain.TokenKey]bool)
	for _, p := range e.pairs {
		tokens[domain.TokenKey{ChainID: p.ChainID, Symbol: p.TokenA}] = true
		tokens[domain.TokenKey{ChainID: p.ChainID, Symbol: p.TokenB}] = true
	}
	keys := make([]domain.TokenKey, 0, len(tokens))
	for k := range tokens {
		keys = append(keys, k)
	}

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := e.prices.Refresh(ctx, keys, func(batchCtx context.Context, tokens []domain.TokenKey) ([]domain.PricePoint, error) {
				return nil, fmt.Errorf("no live price-data provider client wired")
			})
			if err != nil {
				e.log.Warn("price refresh failed", logger.Err(err))
			}
		}
	}
}

// runForcedSimExpiry counts down a "simulate N" request one scan period
// at a time and restores the configured baseline simulationMode once N
// ticks have elapsed, spec §6's "force simulationMode for next N ticks".
func (e *engine) runForcedSimExpiry(ctx context.Context) {
	period := e.scanPeriod
	if period <= 0 {
		period = 5 * time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.mu.Lock()
			if e.forcedSimTicks > 0 {
				e.forcedSimTicks--
				if e.forcedSimTicks == 0 {
					e.cfg.SimulationMode = e.baseSimMode
					e.orch.SetSimulationMode(e.baseSimMode)
				}
			}
			e.mu.Unlock()
		}
	}
}

// Stop implements admin.Handler: sets the kill-switch.
func (e *engine) Stop() error {
	e.risk.SetKillSwitch(true)
	return nil
}

// Status implements admin.Handler.
func (e *engine) Status() admin.Status {
	st := admin.Status{
		KillSwitch:     e.risk.KillSwitch(),
		SimulationMode: e.orch.SimulationMode(),
		InFlight:       make(map[int64]int),
	}
	for _, c := range e.cfg.Chains {
		budget := e.risk.BudgetSnapshot(c.ChainID)
		budget.ChainID = c.ChainID // BudgetSnapshot is zero-valued until Admit runs once for the day
		breakerState := "closed"
		if b, ok := e.breakers.Get(chainBreakerName(c.ChainID)); ok {
			breakerState = string(b.State())
		}
		st.Chains = append(st.Chains, admin.BudgetsToChainStatus(budget, breakerState))
		st.InFlight[c.ChainID] = e.q.Len(c.ChainID)
	}
	return st
}

// Simulate implements admin.Handler: forces simulation mode for the next
// n scanner ticks by flipping the orchestrator's runtime simulation-mode
// flag and restoring it once n ticks have elapsed across all chains.
func (e *engine) Simulate(n int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.forcedSimTicks = n
	e.cfg.SimulationMode = true
	e.orch.SetSimulationMode(true)
	return nil
}
