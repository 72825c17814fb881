package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gregtusar/basisarb/pkg/secrets"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Trading TradingConfig `mapstructure:"trading"`
	Binance BinanceConfig `mapstructure:"binance"`
	Notify  NotifyConfig  `mapstructure:"notify"`
	Diary   DiaryConfig   `mapstructure:"diary"`
	API     APIConfig     `mapstructure:"api"`
	Logging LoggingConfig `mapstructure:"logging"`
	GCP     GCPConfig     `mapstructure:"gcp"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type TradingConfig struct {
	MaxPairNotional     float64  `mapstructure:"max_pair_notional"`
	MaxTotalNotional    float64  `mapstructure:"max_total_notional"`
	OpenThresholdPct    float64  `mapstructure:"open_threshold_pct"` // 0 means twice the close threshold
	CloseThresholdPct   float64  `mapstructure:"close_threshold_pct"`
	CollateralAsset     string   `mapstructure:"collateral_asset"`
	TickIntervalSeconds float64  `mapstructure:"tick_interval_seconds"`
	SkipAssets          []string `mapstructure:"skip_assets"`
	Symbols             []string `mapstructure:"symbols"` // empty means discover
	IsolatedMargin      bool     `mapstructure:"isolated_margin"`
	BanRetryCodes       []int    `mapstructure:"ban_retry_codes"`
	SlippageBufferPct   float64  `mapstructure:"slippage_buffer_pct"`
}

func (t TradingConfig) TickInterval() time.Duration {
	return time.Duration(t.TickIntervalSeconds * float64(time.Second))
}

type BinanceConfig struct {
	APIKey            string  `mapstructure:"api_key"`
	APISecret         string  `mapstructure:"api_secret"`
	SpotBaseURL       string  `mapstructure:"spot_base_url"`
	FuturesBaseURL    string  `mapstructure:"futures_base_url"`
	SpotWSURL         string  `mapstructure:"spot_ws_url"`
	FuturesWSURL      string  `mapstructure:"futures_ws_url"`
	RecvWindowMs      int     `mapstructure:"recv_window_ms"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

type TelegramConfig struct {
	Token  string `mapstructure:"token"`
	ChatID string `mapstructure:"chat_id"`
}

type DiaryConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	SpreadsheetID   string `mapstructure:"spreadsheet_id"`
	SheetName       string `mapstructure:"sheet_name"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

type APIConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

type GCPConfig struct {
	ProjectID   string              `mapstructure:"project_id"`
	UseSecrets  bool                `mapstructure:"use_secrets"`
	SecretNames secrets.SecretNames `mapstructure:"secret_names"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/basis-arb")
	}

	v.SetEnvPrefix("BASIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&config)

	if config.GCP.UseSecrets && config.GCP.ProjectID != "" {
		ctx := context.Background()
		logger := logrus.New()
		if err := loadSecretsFromGCP(ctx, &config, logger); err != nil {
			return nil, fmt.Errorf("error loading secrets from GCP: %w", err)
		}
	}

	if config.Trading.OpenThresholdPct == 0 {
		config.Trading.OpenThresholdPct = 2 * config.Trading.CloseThresholdPct
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)

	v.SetDefault("trading.max_pair_notional", 25.0)
	v.SetDefault("trading.max_total_notional", 100.0)
	v.SetDefault("trading.open_threshold_pct", 0.0)
	v.SetDefault("trading.close_threshold_pct", 0.23)
	v.SetDefault("trading.collateral_asset", "USDT")
	v.SetDefault("trading.tick_interval_seconds", 1.0)
	v.SetDefault("trading.skip_assets", []string{"BTC", "ETH"})
	v.SetDefault("trading.symbols", []string{})
	v.SetDefault("trading.isolated_margin", false)
	v.SetDefault("trading.ban_retry_codes", []int{-3045})
	v.SetDefault("trading.slippage_buffer_pct", 0.5)

	v.SetDefault("binance.spot_base_url", "https://api.binance.com")
	v.SetDefault("binance.futures_base_url", "https://fapi.binance.com")
	v.SetDefault("binance.spot_ws_url", "wss://stream.binance.com:9443/ws")
	v.SetDefault("binance.futures_ws_url", "wss://fstream.binance.com/ws")
	v.SetDefault("binance.recv_window_ms", 5000)
	v.SetDefault("binance.requests_per_second", 10.0)

	v.SetDefault("diary.enabled", false)
	v.SetDefault("diary.sheet_name", "trading")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")

	v.SetDefault("gcp.use_secrets", false)
	v.SetDefault("gcp.project_id", "")

	secretNames := secrets.DefaultSecretNames()
	v.SetDefault("gcp.secret_names.binance_api_key", secretNames.BinanceAPIKey)
	v.SetDefault("gcp.secret_names.binance_api_secret", secretNames.BinanceAPISecret)
	v.SetDefault("gcp.secret_names.telegram_bot_token", secretNames.TelegramBotToken)
	v.SetDefault("gcp.secret_names.telegram_chat_id", secretNames.TelegramChatID)
	v.SetDefault("gcp.secret_names.api_jwt_secret", secretNames.APIJWTSecret)
}

func overrideFromEnv(config *Config) {
	if apiKey := os.Getenv("BINANCE_API_KEY"); apiKey != "" {
		config.Binance.APIKey = apiKey
	}
	if apiSecret := os.Getenv("BINANCE_API_SECRET"); apiSecret != "" {
		config.Binance.APISecret = apiSecret
	}

	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		config.Notify.Telegram.Token = token
	}
	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		config.Notify.Telegram.ChatID = chatID
	}

	if secret := os.Getenv("API_JWT_SECRET"); secret != "" {
		config.API.JWTSecret = secret
	}

	if projectID := os.Getenv("GCP_PROJECT_ID"); projectID != "" {
		config.GCP.ProjectID = projectID
	}
	if useSecrets, err := strconv.ParseBool(os.Getenv("GCP_USE_SECRETS")); err == nil && useSecrets {
		config.GCP.UseSecrets = true
	}
}

// secretSource is the subset of the secret manager used while loading.
type secretSource interface {
	GetSecretWithDefault(ctx context.Context, secretName, defaultValue string) string
}

func loadSecretsFromGCP(ctx context.Context, config *Config, logger *logrus.Logger) error {
	secretManager, err := secrets.NewGCPSecretManager(ctx, config.GCP.ProjectID, logger)
	if err != nil {
		return fmt.Errorf("failed to create secret manager: %w", err)
	}
	defer secretManager.Close()

	applySecrets(ctx, config, secretManager)
	logger.Info("Successfully loaded secrets from GCP Secret Manager")
	return nil
}

// applySecrets only fills values that are not already set.
func applySecrets(ctx context.Context, config *Config, src secretSource) {
	names := config.GCP.SecretNames
	fill := func(dst *string, name string) {
		if *dst == "" {
			*dst = src.GetSecretWithDefault(ctx, name, "")
		}
	}

	fill(&config.Binance.APIKey, names.BinanceAPIKey)
	fill(&config.Binance.APISecret, names.BinanceAPISecret)
	fill(&config.Notify.Telegram.Token, names.TelegramBotToken)
	fill(&config.Notify.Telegram.ChatID, names.TelegramChatID)
	fill(&config.API.JWTSecret, names.APIJWTSecret)
}

// Validate checks the trading options that the engine relies on.
func (c *Config) Validate() error {
	t := c.Trading
	var errs []error

	if t.CloseThresholdPct <= 0 {
		errs = append(errs, fmt.Errorf("trading.close_threshold_pct must be positive, got %g", t.CloseThresholdPct))
	}
	if t.OpenThresholdPct <= 0 {
		errs = append(errs, fmt.Errorf("trading.open_threshold_pct must be positive, got %g", t.OpenThresholdPct))
	}
	if t.OpenThresholdPct < t.CloseThresholdPct {
		errs = append(errs, fmt.Errorf("trading.open_threshold_pct (%g) must not be below close_threshold_pct (%g)",
			t.OpenThresholdPct, t.CloseThresholdPct))
	}
	if t.MaxPairNotional <= 0 {
		errs = append(errs, fmt.Errorf("trading.max_pair_notional must be positive, got %g", t.MaxPairNotional))
	}
	if t.MaxTotalNotional <= 0 {
		errs = append(errs, fmt.Errorf("trading.max_total_notional must be positive, got %g", t.MaxTotalNotional))
	}
	if t.MaxPairNotional > t.MaxTotalNotional {
		errs = append(errs, fmt.Errorf("trading.max_pair_notional (%g) exceeds max_total_notional (%g)",
			t.MaxPairNotional, t.MaxTotalNotional))
	}
	if t.SlippageBufferPct < 0 || t.SlippageBufferPct >= 100 {
		errs = append(errs, fmt.Errorf("trading.slippage_buffer_pct must be in [0, 100), got %g", t.SlippageBufferPct))
	}
	if t.TickIntervalSeconds <= 0 {
		errs = append(errs, fmt.Errorf("trading.tick_interval_seconds must be positive, got %g", t.TickIntervalSeconds))
	}
	if t.CollateralAsset == "" {
		errs = append(errs, errors.New("trading.collateral_asset is required"))
	}
	if c.Diary.Enabled && c.Diary.SpreadsheetID == "" {
		errs = append(errs, errors.New("diary.spreadsheet_id is required when the diary is enabled"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
