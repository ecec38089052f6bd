package config

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port   string
	AppEnv string
	// BaseURL is the public origin used for OAuth redirects and post-login navigation.
	BaseURL     string
	CORSOrigins []string

	DatabaseURL  string
	DBMaxOpen    int
	DBMaxIdle    int
	RedisAddr    string
	OTPPerHour   int
	OTPTTL       time.Duration
	OTPAttempts  int
	ShutdownWait time.Duration

	JWTSecret     string
	SessionTTL    time.Duration
	EncryptionKey []byte
	BlindIndexKey []byte

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	MailDriver     string
	MailFrom       string
	SMTPHost       string
	SMTPPort       string
	SMTPUser       string
	SMTPPass       string
	SendGridAPIKey string

	GenAIAPIKey     string
	GenAIBaseURL    string
	GenAIModel      string
	GenAIEmbedModel string
	GenAITimeout    time.Duration
	GenAIRetries    int
}

func get(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getInt(k string, def int) int {
	v := get(k, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getDuration(k string, def time.Duration) time.Duration {
	v := get(k, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func getList(k string, def []string) []string {
	v := get(k, "")
	if v == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Load reads the process environment. Call godotenv.Load first to pick up a .env file.
func Load() *Config {
	port := get("PORT", "8080")
	return &Config{
		Port:        port,
		AppEnv:      get("APP_ENV", "development"),
		BaseURL:     strings.TrimRight(get("BASE_URL", "http://localhost:"+port), "/"),
		CORSOrigins: getList("CORS_ORIGINS", []string{"*"}),

		DatabaseURL:  get("DATABASE_URL", ""),
		DBMaxOpen:    getInt("DB_MAX_OPEN_CONNS", 10),
		DBMaxIdle:    getInt("DB_MAX_IDLE_CONNS", 5),
		RedisAddr:    get("REDIS_ADDR", ""),
		OTPPerHour:   getInt("OTP_REQUESTS_PER_HOUR", 5),
		OTPTTL:       getDuration("OTP_TTL", 10*time.Minute),
		OTPAttempts:  getInt("OTP_MAX_ATTEMPTS", 5),
		ShutdownWait: getDuration("SHUTDOWN_TIMEOUT", 5*time.Second),

		JWTSecret:     get("JWT_SECRET", get("NEXTAUTH_SECRET", "")),
		SessionTTL:    getDuration("SESSION_TTL", 24*time.Hour),
		EncryptionKey: decodeKey(get("ENCRYPTION_KEY", "")),
		BlindIndexKey: decodeKey(get("BLIND_INDEX_KEY", "")),

		GoogleClientID:     get("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: get("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  get("GOOGLE_REDIRECT_URL", ""),

		MailDriver:     strings.ToLower(get("MAIL_DRIVER", "smtp")),
		MailFrom:       get("MAIL_FROM", get("EMAIL_USER", "")),
		SMTPHost:       get("SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:       get("SMTP_PORT", "587"),
		SMTPUser:       get("EMAIL_USER", ""),
		SMTPPass:       get("EMAIL_PASS", ""),
		SendGridAPIKey: get("SENDGRID_API_KEY", ""),

		GenAIAPIKey:     get("GOOGLE_AI_API_KEY", get("GOOGLE_API_KEY", "")),
		GenAIBaseURL:    get("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
		GenAIModel:      get("GEMINI_MODEL", "gemini-1.5-flash"),
		GenAIEmbedModel: get("GEMINI_EMBED_MODEL", "text-embedding-004"),
		GenAITimeout:    getDuration("GEMINI_TIMEOUT", 60*time.Second),
		GenAIRetries:    getInt("GEMINI_MAX_RETRIES", 3),
	}
}

// decodeKey accepts a 64-char hex string or standard base64. Anything else yields nil.
func decodeKey(s string) []byte {
	if s == "" {
		return nil
	}
	if len(s) == 64 {
		if b, err := hex.DecodeString(s); err == nil {
			return b
		}
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "prod" || c.AppEnv == "production"
}

func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if len(c.EncryptionKey) != 32 {
		errs = append(errs, errors.New("ENCRYPTION_KEY must decode to 32 bytes"))
	}
	if len(c.BlindIndexKey) != 32 {
		errs = append(errs, errors.New("BLIND_INDEX_KEY must decode to 32 bytes"))
	}
	switch c.MailDriver {
	case "smtp":
		if c.SMTPUser == "" || c.SMTPPass == "" {
			errs = append(errs, errors.New("EMAIL_USER and EMAIL_PASS are required for the smtp mail driver"))
		}
	case "sendgrid":
		if c.SendGridAPIKey == "" {
			errs = append(errs, errors.New("SENDGRID_API_KEY is required for the sendgrid mail driver"))
		}
	case "log":
	default:
		errs = append(errs, fmt.Errorf("unknown MAIL_DRIVER %q", c.MailDriver))
	}
	if c.GenAIAPIKey == "" {
		errs = append(errs, errors.New("GOOGLE_AI_API_KEY is required"))
	}
	if c.OTPTTL <= 0 {
		errs = append(errs, errors.New("OTP_TTL must be positive"))
	}
	return errors.Join(errs...)
}
