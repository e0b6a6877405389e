package config

import (
	"flag"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	Env         string
	DatabaseURL string
	Provider    ProviderConfig
	Media       MediaConfig
}

// ProviderConfig selects and parameterizes the model gateways. When
// PerplexityKey is empty the research steps fall back to the Gemini client.
type ProviderConfig struct {
	GeminiKey     string
	GeminiModel   string
	PerplexityKey string
	PplxModel     string
	VisionModel   string
	ImageModel    string
	RPS           float64
}

type MediaConfig struct {
	Enabled   bool
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

func (m MediaConfig) CanUseS3() bool {
	return m.Endpoint != "" && m.AccessKey != "" && m.SecretKey != "" && m.Bucket != ""
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	port := flag.String("port", ":8081", "server port")
	flag.Parse()

	if envPort := os.Getenv("PORT"); envPort != "" {
		if strings.HasPrefix(envPort, ":") {
			*port = envPort
		} else {
			*port = ":" + envPort
		}
	}

	env := strings.TrimSpace(os.Getenv("APP_ENV"))
	if env == "" {
		env = "local"
	}

	cfg := &Config{
		Port:        *port,
		Env:         env,
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		Provider:    loadProviderConfig(),
		Media:       loadMediaConfig(env),
	}
	if strings.EqualFold(env, "local") {
		defaults := localConfig()
		if cfg.DatabaseURL == "" {
			cfg.DatabaseURL = defaults.DatabaseURL
		}
		if !cfg.Media.CanUseS3() {
			cfg.Media = defaults.Media
		}
	}
	return cfg, nil
}

func loadProviderConfig() ProviderConfig {
	rps := 1.0
	if raw := strings.TrimSpace(os.Getenv("PROVIDER_RPS")); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil && v > 0 {
			rps = v
		}
	}
	return ProviderConfig{
		GeminiKey:     strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		GeminiModel:   firstNonEmpty(strings.TrimSpace(os.Getenv("GEMINI_MODEL")), "gemini-2.0-flash"),
		PerplexityKey: strings.TrimSpace(os.Getenv("PERPLEXITY_API_KEY")),
		PplxModel:     firstNonEmpty(strings.TrimSpace(os.Getenv("PERPLEXITY_MODEL")), "sonar-pro"),
		VisionModel:   firstNonEmpty(strings.TrimSpace(os.Getenv("GEMINI_VISION_MODEL")), "gemini-2.0-flash"),
		ImageModel:    firstNonEmpty(strings.TrimSpace(os.Getenv("IMAGE_MODEL")), "imagen-3.0-generate-002"),
		RPS:           rps,
	}
}

func loadMediaConfig(env string) MediaConfig {
	endpoint := resolveMediaEndpoint(env)
	return MediaConfig{
		Enabled:   strings.EqualFold(strings.TrimSpace(env), "local") || endpoint != "",
		Endpoint:  endpoint,
		Region:    firstNonEmpty(strings.TrimSpace(os.Getenv("MEDIA_S3_REGION")), "us-east-1"),
		AccessKey: firstNonEmpty(strings.TrimSpace(os.Getenv("MEDIA_S3_ACCESS_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_USER"))),
		SecretKey: firstNonEmpty(strings.TrimSpace(os.Getenv("MEDIA_S3_SECRET_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_PASSWORD"))),
		Bucket:    firstNonEmpty(strings.TrimSpace(os.Getenv("MEDIA_S3_BUCKET")), "brandkit-media"),
		UseSSL:    resolveMediaUseSSL(env),
	}
}

func resolveMediaEndpoint(env string) string {
	if strings.EqualFold(strings.TrimSpace(env), "local") {
		return firstNonEmpty(strings.TrimSpace(os.Getenv("MEDIA_MINIO_ENDPOINT")), "minio:9000")
	}
	return strings.TrimSpace(os.Getenv("MEDIA_S3_ENDPOINT"))
}

func resolveMediaUseSSL(env string) bool {
	if strings.EqualFold(strings.TrimSpace(env), "local") {
		return false
	}
	raw := strings.TrimSpace(os.Getenv("MEDIA_S3_USE_SSL"))
	if raw == "" {
		return true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return true
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
