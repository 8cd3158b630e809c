package main

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vantablack-labs/arbengine"
	"github.com/vantablack-labs/arbengine/configs"
	"github.com/vantablack-labs/arbengine/internal/arb"
	"github.com/vantablack-labs/arbengine/internal/blockbus"
	"github.com/vantablack-labs/arbengine/internal/db"
	"github.com/vantablack-labs/arbengine/internal/executor"
	"github.com/vantablack-labs/arbengine/internal/liquidation"
	"github.com/vantablack-labs/arbengine/internal/quote"
	"github.com/vantablack-labs/arbengine/internal/rpcrouter"
	"github.com/vantablack-labs/arbengine/internal/sentinel"
	"github.com/vantablack-labs/arbengine/internal/sink"
	"github.com/vantablack-labs/arbengine/pkg/contractclient"
	"github.com/vantablack-labs/arbengine/pkg/txlistener"
)

var tunablesPath string

func main() {
	root := &cobra.Command{
		Use:   "arbengine",
		Short: "Arbitrum cross-DEX arbitrage and liquidation engine",
		RunE:  run,
	}
	root.Flags().StringVar(&tunablesPath, "tunables", "configs/config.yaml", "optional YAML tunables overlay")

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("arbengine: fatal")
		if cfgErr, ok := err.(*configs.ConfigError); ok {
			os.Exit(cfgErr.ExitCode)
		}
		os.Exit(configs.ExitFatalSetup)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := configs.Load(tunablesPath)
	if err != nil {
		return err
	}
	configureLogging(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	backend, err := ethclient.DialContext(ctx, cfg.PrimaryRPC)
	if err != nil {
		return fmt.Errorf("arbengine: dial primary rpc: %w", err)
	}

	router := rpcrouter.New(cfg.PrimaryRPC, cfg.FallbackRPCs, blockNumberProber)
	router.StartRanker(ctx)
	defer router.Stop()

	recorder, err := db.OpenFromDSN(cfg.SQLDSN)
	if err != nil {
		return fmt.Errorf("arbengine: open event store: %w", err)
	}
	defer recorder.Close()

	metricsSink := sink.NewMetricsSink()
	fanout := sink.NewFanout(
		sink.NewLogSink(),
		metricsSink,
		recorder,
		sink.NewWebhookSink(cfg.TelegramBotToken, cfg.TelegramChatID, cfg.DiscordWebhook),
	)

	events := make(chan arbengine.Event, 256)
	go fanout.Drain(ctx, events)

	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux(metricsSink)}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("arbengine: metrics server stopped")
		}
	}()
	defer metricsSrv.Shutdown(context.Background())

	bus := blockbus.New(func(ctx context.Context) (uint64, error) {
		return backend.BlockNumber(ctx)
	})
	go bus.Run(ctx)

	sent := sentinel.New("ETHUSDT", 0.08, 60*time.Second, 1200*time.Second, "", "",
		func(ctx context.Context) (float64, error) { return binanceTicker(ctx, "ETHUSDT") },
		sentinel.WithSink(events))

	priceCache := newEthPriceCache()
	gasPriceWei := func(ctx context.Context) (*big.Int, error) { return backend.SuggestGasPrice(ctx) }

	multicallClient := contractclient.New(backend, quote.Multicall3Address, quote.Multicall3ABI)
	graph := buildGraph()
	engine := quote.NewEngine(multicallClient, graph.Venues)
	ledger := arb.NewRouteLedger()

	twoLeg := arb.NewTwoLegHunter(graph, engine, ledger, cfg.FlashloanUSDCAmount, cfg.MinProfitUSD, events, priceCache.get, gasPriceWei)
	triLeg := arb.NewTriLegHunter(graph, engine, ledger, hubTokens(), cfg.FlashloanUSDCAmount, cfg.MinProfitUSD, events, priceCache.get, gasPriceWei)

	var exec *executor.Executor
	if cfg.ExecutionEnabled {
		pk, err := crypto.HexToECDSA(trimHexPrefix(cfg.PrivateKey))
		if err != nil {
			return fmt.Errorf("arbengine: parse private key: %w", err)
		}
		listener := txlistener.New(backend, txlistener.WithPollInterval(3*time.Second), txlistener.WithTimeout(30*time.Second))
		exec = executor.New(backend, listener, pk, events)
		log.Info().Str("signer", exec.From().Hex()).Msg("arbengine: execution enabled")
	} else {
		log.Warn().Msg("arbengine: no private key configured, running in scan-only mode")
	}

	radiantHunter := liquidation.NewAaveHunter(multicallClient, aavePool(), aaveDataProvider(), aaveReserves(),
		liquidatorFor(exec, cfg.RadiantLiquidatorAddress), events)
	lodestarHunter := liquidation.NewCompoundHunter(multicallClient, compoundComptroller(), compoundCTokens(),
		liquidatorFor(exec, cfg.LodestarLiquidatorAddress), events)

	loadTargetsOnce("radiant_targets.json", radiantHunter)
	loadTargetsOnce("lodestar_targets.json", lodestarHunter)

	heights := bus.Subscribe()
	defer bus.Unsubscribe(heights)

	log.Info().Msg("arbengine: engine started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("arbengine: shutting down")
			return nil
		case height, ok := <-heights:
			if !ok {
				return nil
			}
			runScanCycle(ctx, sent, height, twoLeg, triLeg, radiantHunter, lodestarHunter, exec, graph, cfg)
		}
	}
}

func runScanCycle(ctx context.Context, sent *sentinel.Sentinel, height uint64,
	twoLeg *arb.TwoLegHunter, triLeg *arb.TriLegHunter,
	radiant, lodestar *liquidation.Hunter, exec *executor.Executor, graph *arb.Graph, cfg *configs.Config) {

	if err := radiant.SniperScan(ctx, height); err != nil {
		log.Warn().Err(err).Str("protocol", "radiant").Msg("arbengine: sniper scan failed")
	}
	if err := lodestar.SniperScan(ctx, height); err != nil {
		log.Warn().Err(err).Str("protocol", "lodestar").Msg("arbengine: sniper scan failed")
	}
	if radiant.DueForScout() {
		if err := radiant.ScoutScan(ctx, height); err != nil {
			log.Warn().Err(err).Str("protocol", "radiant").Msg("arbengine: scout scan failed")
		}
	}
	if lodestar.DueForScout() {
		if err := lodestar.ScoutScan(ctx, height); err != nil {
			log.Warn().Err(err).Str("protocol", "lodestar").Msg("arbengine: scout scan failed")
		}
	}

	if !sent.ShouldScan(ctx) {
		return
	}

	twoLegOpps, twoLegErr := twoLeg.Scan(ctx, height)
	if twoLegErr != nil {
		log.Warn().Err(twoLegErr).Msg("arbengine: two-leg scan failed")
	}
	for _, opp := range twoLegOpps {
		dispatchTwoLeg(ctx, exec, graph, cfg.DexArbitrageurAddress, height, opp)
	}

	triLegOpps, triLegErr := triLeg.Scan(ctx, height)
	if triLegErr != nil {
		log.Warn().Err(triLegErr).Msg("arbengine: tri-leg scan failed")
	}
	for _, opp := range triLegOpps {
		dispatchTriLeg(ctx, exec, graph, cfg.TriArbitrageurAddress, height, opp)
	}

	if twoLegErr == nil && triLegErr == nil {
		sent.UpdateLastPrice()
	}
}

// dispatchTwoLeg resolves a scored two-leg Opportunity's route legs
// against the venue/token registry and hands it to the executor,
// matching spec §4.8's two-leg payload assembly. A nil exec means
// execution is disabled; the hunter still scored and emitted the
// opportunity, it just never reaches the chain.
func dispatchTwoLeg(ctx context.Context, exec *executor.Executor, graph *arb.Graph, contract common.Address, height uint64, opp arb.Opportunity) {
	if exec == nil || contract == (common.Address{}) {
		return
	}
	legA, legB := opp.Route.Legs[0], opp.Route.Legs[1]
	usdc := graph.Tokens[graph.BaseToken].Address
	tokenOut := graph.Tokens[legA.TokenOut].Address
	buyRouter := graph.Venues[legA.Venue].RouterAddress
	sellRouter := graph.Venues[legB.Venue].RouterAddress

	_, err := exec.ExecuteTwoLeg(ctx, contract, usdc, buyRouter, sellRouter, tokenOut,
		opp.FlashloanAmount, legA.AmountOut, legA.Fee, legB.Fee,
		height, opp.Route.Fingerprint(), opp.GrossProfitUSD, opp.NetProfitUSD)
	if err != nil {
		log.Warn().Err(err).Str("fingerprint", opp.Route.Fingerprint()).Msg("arbengine: two-leg execution failed")
	}
}

// dispatchTriLeg resolves a scored tri-leg Opportunity's three-hop
// route into on-chain swap payloads and hands it to the executor,
// matching spec §4.8's tri-leg payload assembly (50 bps slippage on
// the first two hops, flashloan+fee minimum on the terminal hop).
func dispatchTriLeg(ctx context.Context, exec *executor.Executor, graph *arb.Graph, contract common.Address, height uint64, opp arb.Opportunity) {
	if exec == nil || contract == (common.Address{}) {
		return
	}
	flashloanFee := new(big.Int).Div(new(big.Int).Mul(opp.FlashloanAmount, big.NewInt(arb.AaveFlashloanFeeBps)), big.NewInt(10000))
	totalRepayMin := new(big.Int).Add(opp.FlashloanAmount, flashloanFee)

	routes, err := executor.BuildTriLegRoutes(opp.Route, graph.Tokens, graph.Venues, contract, opp.FlashloanAmount, totalRepayMin)
	if err != nil {
		log.Warn().Err(err).Str("fingerprint", opp.Route.Fingerprint()).Msg("arbengine: tri-leg route assembly failed")
		return
	}

	usdc := graph.Tokens[graph.BaseToken].Address
	_, err = exec.ExecuteTriLeg(ctx, contract, usdc, opp.FlashloanAmount, routes,
		height, opp.Route.Fingerprint(), opp.GrossProfitUSD, opp.NetProfitUSD)
	if err != nil {
		log.Warn().Err(err).Str("fingerprint", opp.Route.Fingerprint()).Msg("arbengine: tri-leg execution failed")
	}
}

// liquidatorFor returns a nil-safe Liquidator: when execution is
// disabled or contract is unset, liquidation hunters still score and
// emit opportunities, they simply never dispatch a flash loan.
func liquidatorFor(exec *executor.Executor, contract common.Address) liquidation.Liquidator {
	if exec == nil || contract == (common.Address{}) {
		return noopLiquidator{}
	}
	return executor.NewLiquidatorAdapter(exec, contract)
}

type noopLiquidator struct{}

func (noopLiquidator) Liquidate(context.Context, liquidation.Candidate) error {
	return fmt.Errorf("arbengine: execution disabled, liquidation not dispatched")
}

func loadTargetsOnce(path string, h *liquidation.Hunter) {
	t1, t2, err := liquidation.LoadTargetFile(path)
	if err != nil {
		log.Debug().Err(err).Str("path", path).Msg("arbengine: no target file, starting with empty watchlist")
		return
	}
	h.LoadTargets(t1, t2)
}

func blockNumberProber(ctx context.Context, url string) (time.Duration, error) {
	start := time.Now()
	c, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return 0, err
	}
	defer c.Close()
	if _, err := c.BlockNumber(ctx); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

func metricsMux(m *sink.MetricsSink) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return mux
}

func configureLogging(level string) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}

func trimHexPrefix(s string) string {
	if len(s) > 1 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
