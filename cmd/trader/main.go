package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gregtusar/basisarb/api"
	"github.com/gregtusar/basisarb/internal/config"
	"github.com/gregtusar/basisarb/pkg/arbitrage"
	"github.com/gregtusar/basisarb/pkg/binance"
	"github.com/gregtusar/basisarb/pkg/diary"
	"github.com/gregtusar/basisarb/pkg/notify"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "basis-arb",
		Short: "Spot/futures spread arbitrage trader",
		Long:  `Opens hedged spot margin and perpetual futures positions when their prices diverge and unwinds them when the spread reconverges`,
		RunE:  runTrader,
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return config.Load(cfgFile)
}

func runTrader(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, closeLog, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	recvWindow := time.Duration(cfg.Binance.RecvWindowMs) * time.Millisecond
	spotClient := binance.NewMarginClient(binance.Options{
		APIKey:            cfg.Binance.APIKey,
		APISecret:         cfg.Binance.APISecret,
		BaseURL:           cfg.Binance.SpotBaseURL,
		RecvWindow:        recvWindow,
		RequestsPerSecond: cfg.Binance.RequestsPerSecond,
	}, logger)
	futuresClient := binance.NewFuturesClient(binance.Options{
		APIKey:            cfg.Binance.APIKey,
		APISecret:         cfg.Binance.APISecret,
		BaseURL:           cfg.Binance.FuturesBaseURL,
		RecvWindow:        recvWindow,
		RequestsPerSecond: cfg.Binance.RequestsPerSecond,
	}, logger)

	spotInfo, err := spotClient.ExchangeInfo(ctx)
	if err != nil {
		return fmt.Errorf("failed to load spot exchange info: %w", err)
	}
	futuresInfo, err := futuresClient.ExchangeInfo(ctx)
	if err != nil {
		return fmt.Errorf("failed to load futures exchange info: %w", err)
	}

	symbols := cfg.Trading.Symbols
	if len(symbols) == 0 {
		symbols = binance.DiscoverSymbols(spotInfo, futuresInfo, cfg.Trading.CollateralAsset, cfg.Trading.SkipAssets)
	}
	if len(symbols) == 0 {
		return errors.New("no arbitrage symbols to trade")
	}
	logger.WithField("count", len(symbols)).Info("Tracking arbitrage symbols")

	board := arbitrage.NewSpreadBoard(symbols)
	for _, stream := range []*binance.PriceStream{
		binance.NewSpotPriceStream(cfg.Binance.SpotWSURL, board.Update, logger),
		binance.NewFuturesPriceStream(cfg.Binance.FuturesWSURL, board.Update, logger),
	} {
		go stream.Run(ctx)
	}

	senders := []notify.Sender{notify.NewLogSender(logger)}
	if cfg.Notify.Telegram.Token != "" && cfg.Notify.Telegram.ChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.Telegram.Token, cfg.Notify.Telegram.ChatID))
	}
	notifier := notify.NewAsyncNotifier(notify.NewNotifier(logger, senders...), 256, 15*time.Second, logger)
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := notifier.Close(flushCtx); err != nil {
			logger.WithError(err).Warn("Pending notifications were not delivered")
		}
	}()

	coordinator := arbitrage.NewExecutionCoordinator(
		spotClient,
		futuresClient,
		binance.NewLotSizer(spotInfo, futuresInfo),
		spotClient,
		notifier,
		arbitrage.CoordinatorConfig{
			MaxPairNotional:   cfg.Trading.MaxPairNotional,
			CollateralAsset:   cfg.Trading.CollateralAsset,
			IsolatedMargin:    cfg.Trading.IsolatedMargin,
			SlippageBufferPct: cfg.Trading.SlippageBufferPct,
		},
		logger,
	)
	governor := arbitrage.NewFailureGovernor(cfg.Trading.BanRetryCodes, notifier, logger)
	gate := arbitrage.NewExposureGate(cfg.Trading.MaxPairNotional, cfg.Trading.MaxTotalNotional)

	engine := arbitrage.NewEngine(arbitrage.EngineConfig{
		OpenThresholdPct:  cfg.Trading.OpenThresholdPct,
		CloseThresholdPct: cfg.Trading.CloseThresholdPct,
		TickInterval:      cfg.Trading.TickInterval(),
	}, coordinator, gate, governor, board, notifier, logger)

	if cfg.Diary.Enabled {
		d, err := diary.NewSheetsDiary(ctx, diary.Config{
			SpreadsheetID:   cfg.Diary.SpreadsheetID,
			SheetName:       cfg.Diary.SheetName,
			CredentialsFile: cfg.Diary.CredentialsFile,
		}, logger)
		if err != nil {
			return err
		}
		engine.SetDiary(d)
	}

	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}

	apiServer := api.NewServer(engine, board, cfg.API.JWTSecret, logger, strconv.Itoa(cfg.Server.Port))
	go func() {
		if err := apiServer.Start(ctx); err != nil {
			logger.WithError(err).Error("API server stopped")
		}
	}()

	logger.Info("Arbitrage trader is running. Press Ctrl+C to stop.")
	<-ctx.Done()
	logger.Info("Received shutdown signal")

	engine.Stop()
	if st := engine.Status(); st.Positions > 0 {
		logger.WithField("positions", st.Positions).Warn("Stopping with open positions")
	}
	logger.Info("Arbitrage trader stopped")
	return nil
}

func tokenCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the operator API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.API.JWTSecret == "" {
				return errors.New("api.jwt_secret is not configured")
			}
			token, err := api.IssueOperatorToken(cfg.API.JWTSecret, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "operator", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
