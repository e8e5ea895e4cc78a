package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress string

	GeminiAPIKey string
	GeminiModel  string

	GoogleTTSAPIKey string
	TTSVoice        string
	TTSLanguage     string

	DatabaseURL string
	RedisAddr   string

	SupabaseURL            string
	SupabaseServiceRoleKey string
	SupabaseBucket         string

	// Call simulation knobs. The referral flow flips a coin with
	// ApprovalProbability and, on approval, schedules the call back after a
	// uniformly random delay in [CallDelayMin, CallDelayMax].
	ApprovalProbability float64
	CallDelayMin        time.Duration
	CallDelayMax        time.Duration

	// RingTimeout is how long an incoming call rings before it is missed.
	RingTimeout time.Duration

	// Silence endpointing for the speech capture engine.
	SilenceTimeout time.Duration
	InitialSilence time.Duration
}

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Error loading .env file")
	}

	addr := os.Getenv("HTTP_ADDRESS")
	if addr == "" {
		addr = ":8080"
	}

	geminiKey := os.Getenv("GEMINI_API_KEY")
	if geminiKey == "" {
		log.Println("Warning: GEMINI_API_KEY not set - assessment and dialogue will not work")
	}
	geminiModel := os.Getenv("GEMINI_MODEL_ID")
	if geminiModel == "" {
		geminiModel = "gemini-2.0-flash"
	}

	ttsKey := os.Getenv("GOOGLE_TTS_API_KEY")
	if ttsKey == "" {
		log.Println("Warning: GOOGLE_TTS_API_KEY not set - speech synthesis will not work")
	}
	voice := os.Getenv("TTS_VOICE")
	if voice == "" {
		voice = "tr-TR-Wavenet-E"
	}
	lang := os.Getenv("TTS_LANGUAGE")
	if lang == "" {
		lang = "tr-TR"
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Println("Warning: DATABASE_URL not set - using in-memory store")
	}
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		log.Println("Warning: REDIS_ADDR not set - speech cache is in-memory only")
	}

	supabaseURL := os.Getenv("SUPABASE_URL")
	supabaseKey := os.Getenv("SUPABASE_SERVICE_ROLE_KEY")
	supabaseBucket := os.Getenv("SUPABASE_BUCKET")
	if supabaseBucket == "" {
		supabaseBucket = "photos"
	}
	if supabaseURL == "" || supabaseKey == "" {
		log.Println("Warning: SUPABASE_URL / SUPABASE_SERVICE_ROLE_KEY not set - photo upload disabled")
	}

	cfg := Config{
		HTTPAddress:            addr,
		GeminiAPIKey:           geminiKey,
		GeminiModel:            geminiModel,
		GoogleTTSAPIKey:        ttsKey,
		TTSVoice:               voice,
		TTSLanguage:            lang,
		DatabaseURL:            dbURL,
		RedisAddr:              redisAddr,
		SupabaseURL:            supabaseURL,
		SupabaseServiceRoleKey: supabaseKey,
		SupabaseBucket:         supabaseBucket,
		ApprovalProbability:    envFloat("REFERRAL_APPROVAL_PROBABILITY", 0.5),
		CallDelayMin:           envDuration("CALL_DELAY_MIN", 30*time.Second),
		CallDelayMax:           envDuration("CALL_DELAY_MAX", 60*time.Second),
		RingTimeout:            envDuration("RING_TIMEOUT", 25*time.Second),
		SilenceTimeout:         envDuration("SILENCE_TIMEOUT", 2*time.Second),
		InitialSilence:         envDuration("INITIAL_SILENCE_TIMEOUT", 2200*time.Millisecond),
	}

	if cfg.CallDelayMax < cfg.CallDelayMin {
		log.Printf("Warning: CALL_DELAY_MAX < CALL_DELAY_MIN, clamping to %s", cfg.CallDelayMin)
		cfg.CallDelayMax = cfg.CallDelayMin
	}
	if cfg.ApprovalProbability < 0 || cfg.ApprovalProbability > 1 {
		log.Printf("Warning: REFERRAL_APPROVAL_PROBABILITY out of [0,1], using 0.5")
		cfg.ApprovalProbability = 0.5
	}

	log.Printf("config: HTTP_ADDRESS=%s", addr)
	return cfg
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		log.Printf("Warning: invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("Warning: invalid %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return f
}
