package walletapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
	"go.uber.org/zap"

	"github.com/sabipay/wallet/internal/provider"
	"github.com/sabipay/wallet/pkg/ledger"
)

const authClaimsKey = "auth_claims"

// UserStore is the slice of the persistence layer the HTTP surface needs
// beyond the ledger service: keeping the user directory in sync with the
// session identity.
type UserStore interface {
	EnsureUser(ctx context.Context, record ledger.UserRecord) error
}

// Dependencies carries the collaborators the server is wired with.
type Dependencies struct {
	Logger   *zap.Logger
	Service  *ledger.Service
	Users    UserStore
	Provider provider.PaymentProvider
	Retry    provider.RetryPolicy
}

func (deps Dependencies) validate() error {
	if deps.Service == nil {
		return fmt.Errorf("ledger service is required")
	}
	if deps.Users == nil {
		return fmt.Errorf("user store is required")
	}
	if deps.Provider == nil {
		return fmt.Errorf("payment provider is required")
	}
	return nil
}

// Run boots the HTTP server and blocks until ctx is cancelled or the
// listener fails.
func Run(ctx context.Context, cfg Config, deps Dependencies) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := deps.validate(); err != nil {
		return err
	}
	logger := deps.Logger
	if logger == nil {
		var err error
		logger, err = zap.NewProduction()
		if err != nil {
			return fmt.Errorf("zap init: %w", err)
		}
		defer func() { _ = logger.Sync() }()
		deps.Logger = logger
	}

	sessionValidator, err := sessionvalidator.New(sessionvalidator.Config{
		SigningKey: []byte(cfg.SessionSigningKey),
		Issuer:     cfg.SessionIssuer,
		CookieName: cfg.SessionCookieName,
	})
	if err != nil {
		return fmt.Errorf("session validator: %w", err)
	}

	router := NewRouter(cfg, deps, sessionValidator)
	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("walletapi listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// NewRouter assembles the gin engine with all route groups attached.
func NewRouter(cfg Config, deps Dependencies, validator *sessionvalidator.Validator) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	handler := &httpHandler{
		logger:   logger,
		service:  deps.Service,
		users:    deps.Users,
		provider: deps.Provider,
		retry:    deps.Retry,
		cfg:      cfg,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/webhooks/payments", handler.handleWebhook)

	api := router.Group("/api")
	api.Use(validator.GinMiddleware(authClaimsKey))
	api.GET("/session", handler.handleSession)
	api.POST("/wallet", handler.handleWalletCreate)
	api.GET("/wallet", handler.handleWallet)
	api.GET("/transactions", handler.handleTransactions)
	api.POST("/funding", handler.handleFundingInitialize)
	api.GET("/funding/verify/:reference", handler.handleFundingVerify)
	api.POST("/withdrawals", handler.handleWithdrawalRequest)
	api.GET("/withdrawals/:id", handler.handleWithdrawalGet)

	admin := router.Group("/admin")
	admin.Use(adminAuthMiddleware(cfg.AdminSigningKey))
	admin.POST("/withdrawals/:id/approve", handler.handleWithdrawalApprove)
	admin.POST("/withdrawals/:id/reject", handler.handleWithdrawalReject)
	admin.POST("/withdrawals/:id/process", handler.handleWithdrawalProcess)
	admin.POST("/withdrawals/:id/complete", handler.handleWithdrawalComplete)
	admin.POST("/withdrawals/:id/fail", handler.handleWithdrawalFail)
	admin.POST("/accounts/:ledger_id/freeze", handler.handleFreeze)
	admin.POST("/accounts/:ledger_id/unfreeze", handler.handleUnfreeze)
	admin.GET("/accounts/:ledger_id/integrity", handler.handleIntegrity)
	admin.POST("/reversals", handler.handleReversal)
	admin.GET("/provider/balances", handler.handleProviderBalances)

	return router
}

type httpHandler struct {
	logger   *zap.Logger
	service  *ledger.Service
	users    UserStore
	provider provider.PaymentProvider
	retry    provider.RetryPolicy
	cfg      Config
}

func getClaims(ctx *gin.Context) *sessionvalidator.Claims {
	claimsValue, ok := ctx.Get(authClaimsKey)
	if !ok {
		return nil
	}
	claims, _ := claimsValue.(*sessionvalidator.Claims)
	return claims
}
