package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/koksal000/engel/internal/call"
	"github.com/koksal000/engel/internal/config"
	"github.com/koksal000/engel/internal/httpserver"
	"github.com/koksal000/engel/internal/llm"
	"github.com/koksal000/engel/internal/referral"
	"github.com/koksal000/engel/internal/storage"
	"github.com/koksal000/engel/internal/store"
	"github.com/koksal000/engel/internal/tts"
)

func main() {
	// Include sub-second precision in all log timestamps
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	cfg := config.Load()
	ctx := context.Background()

	// Persistence. Postgres when configured, process memory otherwise.
	var apps store.Applications
	var calls store.Calls
	if cfg.DatabaseURL != "" {
		pg, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		defer pg.Close()
		apps, calls = pg, pg
	} else {
		mem := store.NewMemory()
		apps, calls = mem, mem
	}

	// Speech cache. Redis when configured, process memory otherwise.
	var speechCache store.SpeechCache = store.NewMemory()
	if cfg.RedisAddr != "" {
		rc, err := store.OpenRedisSpeechCache(ctx, cfg.RedisAddr)
		if err != nil {
			log.Printf("redis unavailable, speech cache is in-memory only: %v", err)
		} else {
			speechCache = rc
		}
	}

	// Photo storage.
	var photos storage.Photos
	if cfg.SupabaseURL != "" && cfg.SupabaseServiceRoleKey != "" {
		sb, err := storage.NewSupabase(cfg.SupabaseURL, cfg.SupabaseServiceRoleKey, cfg.SupabaseBucket)
		if err != nil {
			log.Fatalf("supabase: %v", err)
		}
		photos = sb
	} else {
		photos = storage.NewMemory()
	}

	gemini := llm.NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiModel)
	analyzer := llm.NewAnalyzer(gemini)
	consultant := llm.NewConsultant(gemini)

	var synth tts.Synthesizer = tts.Unavailable{}
	if cfg.GoogleTTSAPIKey != "" {
		g, err := tts.NewGoogle(ctx, cfg.GoogleTTSAPIKey, cfg.TTSLanguage, cfg.TTSVoice)
		if err != nil {
			log.Printf("google tts unavailable, calls will play silence: %v", err)
		} else {
			defer g.Close()
			synth = g
		}
	}
	cached := tts.NewCached(synth, speechCache)

	session := call.NewSession(calls, consultant, cached, cfg.RingTimeout)
	scheduler := call.NewScheduler(session, calls)
	referrals := referral.NewService(apps, scheduler, cfg.ApprovalProbability, cfg.CallDelayMin, cfg.CallDelayMax)

	srv := httpserver.New(httpserver.Options{
		Applications: apps,
		Calls:        calls,
		Analyzer:     analyzer,
		Photos:       photos,
		Referrals:    referrals,
		Session:      session,
		Capture: httpserver.CaptureConfig{
			SilenceTimeout: cfg.SilenceTimeout,
			InitialSilence: cfg.InitialSilence,
		},
	})

	// Start server in background
	serverErrors := make(chan error, 1)
	go func() {
		log.Printf("server listening on %s", cfg.HTTPAddress)
		serverErrors <- srv.Start(cfg.HTTPAddress)
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	case sig := <-sigChan:
		log.Printf("shutdown signal received: %v", sig)
	}

	scheduler.Cancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}
