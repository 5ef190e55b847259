package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr      string
	PublicBaseURL string
	DatabaseURL   string
	SentryDSN     string
	LogLevel      string

	// Voice AI providers
	DeepgramAPIKey string
	OpenAIAPIKey   string
	HeyGenAPIKey   string

	// Reply planner
	OpenAIModel string

	// Avatar defaults, overridable per request
	AvatarID string
	VoiceID  string

	// STT settings
	STTEndpointingMs int // Deepgram endpointing in ms (silence threshold)

	// Utterance finalization fallback when no endpointing signal arrives
	UtteranceFallbackMs int

	// Relay WebSocket auth (disabled when empty)
	JWTSecret     string
	RelayTokenTTL time.Duration

	// CORS allow-list
	AllowedOrigins []string
}

func LoadConfigFromEnv() Config {
	relayTTL, err := time.ParseDuration(getenv("RELAY_TOKEN_TTL", "1h"))
	if err != nil {
		relayTTL = time.Hour
	}

	return Config{
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		PublicBaseURL: getenv("PUBLIC_BASE_URL", "http://localhost:8080"),
		DatabaseURL:   getenv("DATABASE_URL", ""),
		SentryDSN:     getenv("SENTRY_DSN", ""),
		LogLevel:      getenv("LOG_LEVEL", "info"),

		// Voice AI providers
		DeepgramAPIKey: getenv("DEEPGRAM_API_KEY", ""),
		OpenAIAPIKey:   getenv("OPENAI_API_KEY", ""),
		HeyGenAPIKey:   getenv("HEYGEN_API_KEY", ""),

		OpenAIModel: getenv("OPENAI_MODEL", "gpt-5-chat-latest"),

		AvatarID: getenv("AVATAR_ID", ""),
		VoiceID:  getenv("VOICE_ID", ""),

		STTEndpointingMs:    getenvIntClamped("STT_ENDPOINTING_MS", 100, 10, 5000),
		UtteranceFallbackMs: getenvIntClamped("UTTERANCE_FALLBACK_MS", 500, 100, 10000),

		JWTSecret:     os.Getenv("JWT_SECRET"), // No fallback; empty disables relay auth
		RelayTokenTTL: relayTTL,

		AllowedOrigins: parseOrigins(os.Getenv("ALLOWED_ORIGINS")),
	}
}

func parseOrigins(s string) []string {
	if s == "" {
		return nil
	}
	var origins []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntClamped(k string, def, min, max int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}
