package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/local/sheetify/internal/ai"
	cfgpkg "github.com/local/sheetify/internal/config"
	logpkg "github.com/local/sheetify/internal/logger"
	"github.com/local/sheetify/internal/metrics"
	"github.com/local/sheetify/internal/storage"
	"github.com/local/sheetify/internal/store"
	"github.com/local/sheetify/internal/web"
)

func main() {
	_ = godotenv.Load()
	cfg := cfgpkg.FromEnv()

	// Init logging
	_ = logpkg.Init(logpkg.Options{
		Level:        cfg.Logging.Level,
		Pretty:       cfg.Logging.Pretty,
		File:         cfg.Logging.File,
		MaxSizeMB:    cfg.Logging.MaxSizeMB,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAgeDays:   cfg.Logging.MaxAgeDays,
		Compress:     cfg.Logging.Compress,
		SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
		AxiomAPIKey:  cfg.Axiom.APIKey,
		AxiomOrgID:   cfg.Axiom.OrgID,
		AxiomDataset: cfg.Axiom.Dataset,
		AxiomFlush:   cfg.Axiom.FlushInterval,
	})
	defer logpkg.Close()

	metrics.Init()

	// Session store
	st, err := store.NewSessionStore(cfg.RedisURL, cfg.Session.ProgressTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init redis session store")
	}
	defer st.Close()

	// Inference client
	if cfg.Gemini.APIKey == "" {
		log.Fatal().Msg("GOOGLE_GENERATIVE_AI_API_KEY not set")
	}
	client, err := ai.NewGeminiClient(context.Background(), cfg.Gemini.APIKey, cfg.Gemini.Model)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init gemini client")
	}
	defer client.Close()

	// Optional S3 archive
	var archiver web.Archiver
	if cfg.Archive.Bucket != "" {
		a, err := storage.NewArchiver(context.Background(), cfg.Archive.Bucket, cfg.Archive.Password)
		if err != nil {
			log.Warn().Err(err).Msg("sheet archive disabled")
		} else {
			archiver = a
		}
	}

	mux := http.NewServeMux()
	srv := web.New(st, client, archiver, cfg)
	srv.RegisterRoutes(mux)
	mux.Handle("/metrics", metrics.Handler())

	httpSrv := &http.Server{Addr: ":" + cfg.Port, Handler: mux}

	go func() {
		log.Info().Msgf("HTTP server listening on :%s", cfg.Port)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(ctx)
	fmt.Println("shutdown complete")
}
