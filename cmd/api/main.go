package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"tripplanner/internal/auth"
	"tripplanner/internal/firestore"
	"tripplanner/internal/gemini"
	"tripplanner/internal/http/handlers"
	httpapi "tripplanner/internal/http/httpapi"
	"tripplanner/internal/infra"
	"tripplanner/internal/infra/geoip"
	"tripplanner/internal/itinerary"
	"tripplanner/internal/middleware"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}
	var lookup middleware.CountryLookup
	if resolver != nil {
		lookup = resolver.CountryCode
	}

	tokens := auth.NewTokenProvider(auth.Options{
		Credential: auth.Credential{
			ClientEmail:  cfg.ServiceAccountEmail,
			PrivateKeyID: cfg.ServiceAccountKeyID,
			PrivateKey:   cfg.ServiceAccountKey,
		},
		TokenURL: cfg.OAuthTokenURL,
	})

	store := firestore.NewClient(firestore.Options{
		BaseURL:    cfg.FirestoreBaseURL,
		ProjectID:  cfg.FirestoreProjectID,
		Collection: cfg.FirestoreCollection,
		Tokens:     tokens,
	})

	generator, err := gemini.NewClient(gemini.Options{
		APIKey:  cfg.GeminiAPIKey,
		Model:   cfg.GeminiModel,
		BaseURL: cfg.GeminiBaseURL,
		Timeout: cfg.GenerationTimeout,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("gemini client init failed")
	}

	service := itinerary.NewService(itinerary.Options{
		Store:             store,
		Generator:         generator,
		Logger:            logger,
		GenerationTimeout: cfg.GenerationTimeout,
	})

	app := handlers.NewApp(service, logger)
	router := httpapi.NewRouter(app, logger, lookup)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	if err := service.Drain(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("shutdown before all itinerary jobs finished")
	}
	logger.Info().Msg("server stopped")
}
