package app

import (
	"context"
	"time"

	"bankid-service/internal/bankid"
	"bankid-service/internal/config"
	"bankid-service/internal/middleware"
	"bankid-service/internal/ratelimit"
	"bankid-service/internal/session"
	"bankid-service/internal/verification"
	"bankid-service/internal/verify"
	"bankid-service/internal/verify/handler"

	"github.com/gin-gonic/gin"
)

const (
	rateLimitMax    = 10
	rateLimitWindow = time.Minute
)

func setupHTTP(ctx context.Context, cfg config.Config) (*gin.Engine, func() error, error) {

	infra, err := setupInfra(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	// ----------------------------
	// Dependencies
	// ----------------------------

	vendor, err := bankid.New(
		cfg.BankIDAPIURL,
		cfg.BankIDAPIUser,
		cfg.BankIDPassword,
		cfg.BankIDCompanyID,
	)
	if err != nil {
		return nil, nil, err
	}

	tokens, err := session.NewManager([]byte(cfg.SessionSecret))
	if err != nil {
		return nil, nil, err
	}

	var records verify.Recorder
	if infra.DB != nil {
		records = verification.NewStore(infra.DB)
	}

	service := verify.NewService(
		vendor,
		tokens,
		verify.NewTracker(session.TTL),
		records,
	)

	var limiter middleware.Limiter
	if infra.Redis != nil {
		limiter = ratelimit.New(infra.Redis.Client, rateLimitMax, rateLimitWindow)
	}

	verifyHandler := handler.NewHandler(service, cfg.IsProduction())

	// ----------------------------
	// Router
	// ----------------------------

	router := gin.New()
	router.Use(gin.Recovery())

	verifyHandler.RegisterRoutes(
		router,
		middleware.RateLimit(limiter, cfg.IsProduction()),
	)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// ----------------------------
	// Cleanup
	// ----------------------------

	return router, func() error {
		if infra.Redis != nil {
			if err := infra.Redis.Close(); err != nil {
				return err
			}
		}
		if infra.DB != nil {
			return infra.DB.Close()
		}
		return nil
	}, nil
}
