package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/sabipay/wallet/internal/provider"
	"github.com/sabipay/wallet/internal/provider/monnify"
	"github.com/sabipay/wallet/internal/provider/paystack"
	"github.com/sabipay/wallet/internal/store/gormstore"
	"github.com/sabipay/wallet/internal/walletapi"
	"github.com/sabipay/wallet/pkg/ledger"
)

const (
	flagDatabaseURL         = "database-url"
	flagListenAddr          = "listen-addr"
	flagAllowedOrigins      = "allowed-origins"
	flagSessionSigningKey   = "session-signing-key"
	flagSessionIssuer       = "session-issuer"
	flagSessionCookieName   = "session-cookie-name"
	flagAdminSigningKey     = "admin-signing-key"
	flagPaymentProvider     = "payment-provider"
	flagPaystackSecretKey   = "paystack-secret-key"
	flagMonnifyAPIKey       = "monnify-api-key"
	flagMonnifySecretKey    = "monnify-secret-key"
	flagMonnifyContractCode = "monnify-contract-code"
	flagCallbackURL         = "callback-url"
	flagFundingMinKobo      = "funding-min-kobo"
	flagFundingMaxKobo      = "funding-max-kobo"
	flagWithdrawalMinKobo   = "withdrawal-min-kobo"
	flagWithdrawalMaxKobo   = "withdrawal-max-kobo"
	flagWithdrawalFeeKobo   = "withdrawal-fee-kobo"

	defaultDatabaseURL = "sqlite:///tmp/wallet.db"
	defaultListenAddr  = ":8090"

	providerPaystack = "paystack"
	providerMonnify  = "monnify"
)

type runtimeConfig struct {
	DatabaseURL         string
	ListenAddr          string
	AllowedOrigins      string
	SessionSigningKey   string
	SessionIssuer       string
	SessionCookieName   string
	AdminSigningKey     string
	PaymentProvider     string
	PaystackSecretKey   string
	MonnifyAPIKey       string
	MonnifySecretKey    string
	MonnifyContractCode string
	CallbackURL         string
	FundingMinKobo      int64
	FundingMaxKobo      int64
	WithdrawalMinKobo   int64
	WithdrawalMaxKobo   int64
	WithdrawalFeeKobo   int64
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "walletd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "walletd",
		Short:         "Wallet ledger HTTP server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	cmd.Flags().String(flagDatabaseURL, defaultDatabaseURL, "PostgreSQL or sqlite connection string")
	cmd.Flags().String(flagListenAddr, defaultListenAddr, "HTTP listen address")
	cmd.Flags().String(flagAllowedOrigins, "", "comma separated CORS origins")
	cmd.Flags().String(flagSessionSigningKey, "", "HMAC key for session cookies")
	cmd.Flags().String(flagSessionIssuer, "", "expected session token issuer")
	cmd.Flags().String(flagSessionCookieName, "", "session cookie name")
	cmd.Flags().String(flagAdminSigningKey, "", "HMAC key for admin bearer tokens")
	cmd.Flags().String(flagPaymentProvider, providerPaystack, "payment gateway: paystack or monnify")
	cmd.Flags().String(flagPaystackSecretKey, "", "Paystack secret key")
	cmd.Flags().String(flagMonnifyAPIKey, "", "Monnify API key")
	cmd.Flags().String(flagMonnifySecretKey, "", "Monnify secret key")
	cmd.Flags().String(flagMonnifyContractCode, "", "Monnify contract code")
	cmd.Flags().String(flagCallbackURL, "", "URL the gateway redirects to after checkout")
	cmd.Flags().Int64(flagFundingMinKobo, 0, "minimum funding amount in kobo")
	cmd.Flags().Int64(flagFundingMaxKobo, 0, "maximum funding amount in kobo")
	cmd.Flags().Int64(flagWithdrawalMinKobo, 0, "minimum withdrawal amount in kobo")
	cmd.Flags().Int64(flagWithdrawalMaxKobo, 0, "maximum withdrawal amount in kobo")
	cmd.Flags().Int64(flagWithdrawalFeeKobo, 0, "flat withdrawal fee in kobo")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	bindings := map[string]string{
		flagDatabaseURL:         "DATABASE_URL",
		flagListenAddr:          "LISTEN_ADDR",
		flagAllowedOrigins:      "ALLOWED_ORIGINS",
		flagSessionSigningKey:   "SESSION_SIGNING_KEY",
		flagSessionIssuer:       "SESSION_ISSUER",
		flagSessionCookieName:   "SESSION_COOKIE_NAME",
		flagAdminSigningKey:     "ADMIN_SIGNING_KEY",
		flagPaymentProvider:     "PAYMENT_PROVIDER",
		flagPaystackSecretKey:   "PAYSTACK_SECRET_KEY",
		flagMonnifyAPIKey:       "MONNIFY_API_KEY",
		flagMonnifySecretKey:    "MONNIFY_SECRET_KEY",
		flagMonnifyContractCode: "MONNIFY_CONTRACT_CODE",
		flagCallbackURL:         "CALLBACK_URL",
		flagFundingMinKobo:      "FUNDING_MIN_KOBO",
		flagFundingMaxKobo:      "FUNDING_MAX_KOBO",
		flagWithdrawalMinKobo:   "WITHDRAWAL_MIN_KOBO",
		flagWithdrawalMaxKobo:   "WITHDRAWAL_MAX_KOBO",
		flagWithdrawalFeeKobo:   "WITHDRAWAL_FEE_KOBO",
	}
	for flagName, envName := range bindings {
		configKey := strings.ReplaceAll(flagName, "-", "_")
		if err := viper.BindEnv(configKey, envName); err != nil {
			return err
		}
		if err := viper.BindPFlag(configKey, cmd.Flags().Lookup(flagName)); err != nil {
			return err
		}
	}

	cfg.DatabaseURL = viper.GetString("database_url")
	cfg.ListenAddr = viper.GetString("listen_addr")
	cfg.AllowedOrigins = viper.GetString("allowed_origins")
	cfg.SessionSigningKey = viper.GetString("session_signing_key")
	cfg.SessionIssuer = viper.GetString("session_issuer")
	cfg.SessionCookieName = viper.GetString("session_cookie_name")
	cfg.AdminSigningKey = viper.GetString("admin_signing_key")
	cfg.PaymentProvider = viper.GetString("payment_provider")
	cfg.PaystackSecretKey = viper.GetString("paystack_secret_key")
	cfg.MonnifyAPIKey = viper.GetString("monnify_api_key")
	cfg.MonnifySecretKey = viper.GetString("monnify_secret_key")
	cfg.MonnifyContractCode = viper.GetString("monnify_contract_code")
	cfg.CallbackURL = viper.GetString("callback_url")
	cfg.FundingMinKobo = viper.GetInt64("funding_min_kobo")
	cfg.FundingMaxKobo = viper.GetInt64("funding_max_kobo")
	cfg.WithdrawalMinKobo = viper.GetInt64("withdrawal_min_kobo")
	cfg.WithdrawalMaxKobo = viper.GetInt64("withdrawal_max_kobo")
	cfg.WithdrawalFeeKobo = viper.GetInt64("withdrawal_fee_kobo")

	if cfg.DatabaseURL == "" {
		return fmt.Errorf("database url is required")
	}
	if cfg.SessionSigningKey == "" {
		return fmt.Errorf("session signing key is required")
	}
	if cfg.AdminSigningKey == "" {
		return fmt.Errorf("admin signing key is required")
	}
	switch cfg.PaymentProvider {
	case providerPaystack:
		if cfg.PaystackSecretKey == "" {
			return fmt.Errorf("paystack secret key is required")
		}
	case providerMonnify:
		if cfg.MonnifyAPIKey == "" || cfg.MonnifySecretKey == "" || cfg.MonnifyContractCode == "" {
			return fmt.Errorf("monnify api key, secret key, and contract code are required")
		}
	default:
		return fmt.Errorf("unsupported payment provider %q", cfg.PaymentProvider)
	}
	return nil
}

func runServer(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	gormDB, cleanup, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer func() { _ = cleanup() }()

	if err := gormstore.Migrate(gormDB); err != nil {
		return fmt.Errorf("schema migrate: %w", err)
	}
	store := gormstore.New(gormDB)

	serviceOptions := []ledger.ServiceOption{
		ledger.WithOperationLogger(ledger.NewZapOperationLogger(logger)),
	}
	if cfg.WithdrawalMinKobo > 0 || cfg.WithdrawalMaxKobo > 0 {
		serviceOptions = append(serviceOptions, ledger.WithWithdrawalLimits(cfg.WithdrawalMinKobo, cfg.WithdrawalMaxKobo))
	}
	if cfg.WithdrawalFeeKobo > 0 {
		serviceOptions = append(serviceOptions, ledger.WithWithdrawalFee(cfg.WithdrawalFeeKobo))
	}
	clock := func() int64 { return time.Now().UTC().Unix() }
	walletService, err := ledger.NewService(store, store, clock, serviceOptions...)
	if err != nil {
		return fmt.Errorf("ledger service init: %w", err)
	}

	paymentProvider, err := buildPaymentProvider(cfg, logger)
	if err != nil {
		return err
	}

	apiConfig := walletapi.Config{
		ListenAddr:        cfg.ListenAddr,
		AllowedOrigins:    walletapi.ParseAllowedOrigins(cfg.AllowedOrigins),
		SessionSigningKey: cfg.SessionSigningKey,
		SessionIssuer:     cfg.SessionIssuer,
		SessionCookieName: cfg.SessionCookieName,
		AdminSigningKey:   cfg.AdminSigningKey,
		CallbackURL:       cfg.CallbackURL,
		FundingMinKobo:    cfg.FundingMinKobo,
		FundingMaxKobo:    cfg.FundingMaxKobo,
	}
	return walletapi.Run(ctx, apiConfig, walletapi.Dependencies{
		Logger:   logger,
		Service:  walletService,
		Users:    store,
		Provider: paymentProvider,
		Retry:    provider.DefaultRetryPolicy(),
	})
}

func buildPaymentProvider(cfg *runtimeConfig, logger *zap.Logger) (provider.PaymentProvider, error) {
	switch cfg.PaymentProvider {
	case providerPaystack:
		return paystack.New(cfg.PaystackSecretKey, paystack.WithLogger(logger))
	case providerMonnify:
		return monnify.New(cfg.MonnifyAPIKey, cfg.MonnifySecretKey, cfg.MonnifyContractCode, monnify.WithLogger(logger))
	}
	return nil, fmt.Errorf("unsupported payment provider %q", cfg.PaymentProvider)
}

func openDatabase(ctx context.Context, dsn string) (*gorm.DB, func() error, error) {
	driver, sqlitePath, err := resolveDriver(dsn)
	if err != nil {
		return nil, nil, err
	}

	var db *gorm.DB
	switch driver {
	case "postgres":
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(sqlitePath), &gorm.Config{})
	default:
		return nil, nil, fmt.Errorf("unsupported database scheme %q", driver)
	}
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() error { return sqlDB.Close() }
	return db.WithContext(ctx), cleanup, nil
}

func resolveDriver(dsn string) (string, string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres", "", nil
	}
	if strings.HasPrefix(dsn, "sqlite://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := u.Path
		if path == "" {
			path = u.Host
		}
		if path == "" || path == "/" {
			path = "wallet.db"
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return "sqlite", sqlitePath, err
	}
	// Treat everything else as a direct sqlite path.
	sqlitePath, err := normalizeSQLitePath(dsn)
	return "sqlite", sqlitePath, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if strings.HasPrefix(path, "/") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	abs := filepath.Join(".", path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	return abs, nil
}
