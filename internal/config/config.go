package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI string
	DBName   string
	Port     string
	GinMode  string

	CORSOrigins  []string
	MaxFileSize  int64
	AllowedTypes []string

	// JWT / Auth
	JWTSecret    string
	JWTExpiresIn string
	BcryptCost   int

	// Rate limiting
	RateLimitReqs   int
	RateLimitWindow int

	// Local model server (Ollama)
	OllamaBaseURL  string
	ChatModel      string
	EmbedModel     string
	OllamaTimeout  int
	ModelMaxTokens int

	// Embeddings configuration
	EmbeddingsProvider    string // "ollama" (default), "google"
	GeminiAPIKey          string
	GoogleEmbeddingsModel string

	// Vector index (Chroma)
	ChromaEnabled    bool
	ChromaURL        string
	ChromaCollection string
	VectorDimensions int
	RetrievalTopK    int

	// Chunking
	MaxChunkSize     int
	ChunkOverlap     int
	MinChunkSize     int
	Separators       []string
	ChunkCompression bool

	// Storage and caching
	FileStorageDir  string
	ExtractCacheDir string
	TempDir         string
	WatchDir        string
	RescanCron      string
	CacheTTLSeconds int

	// Conversation
	HistoryWindow int

	// Crawler
	CrawlMaxPages int
	CrawlTimeout  int
	CrawlRenderJS bool

	// Redis Configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		MongoURI: getEnv("MONGO_URI", "mongodb://localhost:27017/local_rag"),
		DBName:   getEnv("DB_NAME", "local_rag"),
		Port:     getEnv("PORT", "8080"),
		GinMode:  getEnv("GIN_MODE", "debug"),

		CORSOrigins:  strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080"), ","),
		MaxFileSize:  getEnvInt64("MAX_FILE_SIZE", 104857600), // 100MB
		AllowedTypes: strings.Split(getEnv("ALLOWED_FILE_TYPES", "application/pdf,text/plain,text/markdown"), ","),

		JWTSecret:    getEnv("JWT_SECRET", ""),
		JWTExpiresIn: getEnv("JWT_EXPIRES_IN", "24h"),
		BcryptCost:   getEnvInt("BCRYPT_COST", 12),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		// One local model runtime, two model identifiers: a chat model
		// and an embedding model.
		OllamaBaseURL:  getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		ChatModel:      getEnv("OLLAMA_CHAT_MODEL", "qwen2.5:7b"),
		EmbedModel:     getEnv("OLLAMA_EMBED_MODEL", "nomic-embed-text:v1.5"),
		OllamaTimeout:  getEnvInt("OLLAMA_TIMEOUT", 120),
		ModelMaxTokens: getEnvInt("MODEL_MAX_TOKENS", 2048),

		EmbeddingsProvider:    getEnv("EMBEDDINGS_PROVIDER", "ollama"),
		GeminiAPIKey:          getEnv("GEMINI_API_KEY", ""),
		GoogleEmbeddingsModel: getEnv("GOOGLE_EMBEDDINGS_MODEL", "text-embedding-004"),

		ChromaEnabled:    getEnvBool("CHROMA_ENABLED", true),
		ChromaURL:        getEnv("CHROMA_URL", "http://localhost:8000"),
		ChromaCollection: getEnv("CHROMA_COLLECTION", "workspace"),
		VectorDimensions: getEnvInt("VECTOR_DIM", 768),
		RetrievalTopK:    getEnvInt("RETRIEVAL_TOP_K", 4),

		MaxChunkSize:     getEnvInt("MAX_CHUNK_SIZE", 1000),
		ChunkOverlap:     getEnvInt("CHUNK_OVERLAP", 200),
		MinChunkSize:     getEnvInt("MIN_CHUNK_SIZE", 100),
		Separators:       splitSeparators(getEnv("CHUNK_SEPARATORS", `\n\n|\n|。|.| |`)),
		ChunkCompression: getEnvBool("CHUNK_COMPRESSION", false),

		FileStorageDir:  getEnv("FILE_STORAGE_DIR", "./storage"),
		ExtractCacheDir: getEnv("EXTRACT_CACHE_DIR", "./.cache"),
		TempDir:         getEnv("TEMP_DIR", "./temp"),
		WatchDir:        getEnv("WATCH_DIR", "./documents"),
		RescanCron:      getEnv("RESCAN_CRON", "*/15 * * * *"),
		CacheTTLSeconds: getEnvInt("CACHE_TTL", 3600),

		HistoryWindow: getEnvInt("HISTORY_WINDOW", 10),

		CrawlMaxPages: getEnvInt("CRAWL_MAX_PAGES", 50),
		CrawlTimeout:  getEnvInt("CRAWL_TIMEOUT", 300),
		CrawlRenderJS: getEnvBool("CRAWL_RENDER_JS", false),

		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
	}

	// Validate required fields
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required - set it in .env file")
	}

	if cfg.EmbeddingsProvider == "google" && cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required when EMBEDDINGS_PROVIDER=google")
	}

	if cfg.MaxChunkSize <= cfg.ChunkOverlap {
		return nil, fmt.Errorf("MAX_CHUNK_SIZE must be greater than CHUNK_OVERLAP")
	}

	return cfg, nil
}

// splitSeparators parses the pipe-delimited separator list. The literal
// \n escapes stay unexpanded in env vars so .env files remain readable.
// A trailing empty separator means "split anywhere" as a last resort.
func splitSeparators(raw string) []string {
	parts := strings.Split(raw, "|")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.ReplaceAll(p, `\n`, "\n"))
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
