package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Verification modes for the payment webhook. The mode is declared in
// configuration rather than inferred from a missing secret, so the
// security posture of a deployment is always explicit.
const (
	VerifyNone  = "none"
	VerifyToken = "token"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Identity IdentityConfig
	Trial    TrialConfig
	Payment  PaymentConfig
	WhatsApp WhatsAppConfig
	ChatRate ChatRateConfig
}

// IdentityConfig drives phone-number canonicalization. The default
// country assumption is deployment configuration, not a constant.
type IdentityConfig struct {
	DefaultCountryCode string
	MobilePrefix       string
	MinNationalDigits  int
}

// TrialConfig bounds the free trial granted on first contact.
type TrialConfig struct {
	Days              int
	Credits           int
	MaxQuestions      int
	WarningAtQuestion int
	UpgradeMessage    string
	WarningMessage    string
}

// PaymentConfig covers webhook verification and the order-lookup API.
type PaymentConfig struct {
	VerifyMode     string
	WebhookToken   string
	APIBaseURL     string
	APIToken       string
	DefaultCredits int
}

// WhatsAppConfig covers the Meta Cloud API surface.
type WhatsAppConfig struct {
	VerifyToken string
	PhoneID     string
	AccessToken string
	APIVersion  string
}

// ChatRateConfig enables the optional per-identity daily message limit.
type ChatRateConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	DailyLimit    int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "buddy"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "buddy"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 2),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 10),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 300),
		Identity: IdentityConfig{
			DefaultCountryCode: getenv("DEFAULT_COUNTRY_CODE", "31"),
			MobilePrefix:       getenv("DEFAULT_MOBILE_PREFIX", "6"),
			MinNationalDigits:  getenvInt("MIN_NATIONAL_DIGITS", 9),
		},
		Trial: TrialConfig{
			Days:              getenvInt("TRIAL_DAYS", 7),
			Credits:           getenvInt("TRIAL_CREDITS", 10),
			MaxQuestions:      getenvInt("TRIAL_MAX_QUESTIONS", 10),
			WarningAtQuestion: getenvInt("TRIAL_WARNING_AT_QUESTION", 7),
			UpgradeMessage: getenv("UPGRADE_REQUIRED_MESSAGE",
				"Je trial is afgelopen of je hebt geen credits meer. "+
					"Upgrade voor onbeperkte ondersteuning: https://iamafoodie.nl/atleet-buddy"),
			WarningMessage: getenv("TRIAL_WARNING_MESSAGE",
				"Je free trial eindigt bijna omdat je het maximaal aantal vragen hebt gesteld. "+
					"Je Buddy helpt je graag verder. Upgrade voor onbeperkte ondersteuning. "+
					"Kies het pakket dat bij je past: https://iamafoodie.nl/atleet-buddy"),
		},
		Payment: PaymentConfig{
			VerifyMode:     normalizeVerifyMode(getenv("PLUGPAY_VERIFY_MODE", VerifyToken)),
			WebhookToken:   strings.TrimSpace(getenv("PLUGPAY_WEBHOOK_TOKEN", "")),
			APIBaseURL:     strings.TrimRight(getenv("PLUGPAY_API_URL", "https://api.plugandpay.com"), "/"),
			APIToken:       strings.TrimSpace(getenv("PLUGPAY_API_TOKEN", "")),
			DefaultCredits: getenvInt("DEFAULT_PAYMENT_CREDITS", 50),
		},
		WhatsApp: WhatsAppConfig{
			VerifyToken: strings.TrimSpace(getenv("WEBHOOK_VERIFY_TOKEN", "")),
			PhoneID:     strings.TrimSpace(getenv("WHATSAPP_PHONE_ID", "")),
			AccessToken: strings.TrimSpace(getenv("WHATSAPP_ACCESS_TOKEN", "")),
			APIVersion:  getenv("WHATSAPP_API_VERSION", "v21.0"),
		},
		ChatRate: ChatRateConfig{
			Enabled:       getenvBool("CHAT_RATE_LIMIT_ENABLED", false),
			RedisAddr:     strings.TrimSpace(getenv("CHAT_RATE_LIMIT_REDIS_ADDR", "")),
			RedisPassword: getenv("CHAT_RATE_LIMIT_REDIS_PASSWORD", ""),
			RedisDB:       getenvInt("CHAT_RATE_LIMIT_REDIS_DB", 0),
			DailyLimit:    getenvInt("DAILY_MESSAGE_LIMIT", 50),
		},
	}

	return cfg
}

func normalizeVerifyMode(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case VerifyNone:
		return VerifyNone
	default:
		return VerifyToken
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}
