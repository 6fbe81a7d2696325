package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone = "UTC"
	configPathEnv   = "APPLICATION_SCANNER_CONFIG"

	spreadsheetIDEnv   = "SPREADSHEET_ID"
	sheetNameEnv       = "SHEET_NAME"
	sinkBackendEnv     = "SINK_BACKEND"
	databaseDSNEnv     = "DATABASE_DSN"
	llmProviderEnv     = "LLM_PROVIDER"
	llmModelEnv        = "LLM_MODEL"
	ollamaModelEnv     = "OLLAMA_MODEL"
	ollamaHostEnv      = "OLLAMA_HOST"
	llmAPIKeyEnv       = "LLM_API_KEY"
	anthropicAPIKeyEnv = "ANTHROPIC_API_KEY"
	stateFilePathEnv   = "STATE_FILE_PATH"
	ledgerBackendEnv   = "LEDGER_BACKEND"
	redisAddrEnv       = "REDIS_ADDR"
	redisPasswordEnv   = "REDIS_PASSWORD"
	credentialsPathEnv = "CREDENTIALS_PATH"
	tokenPathEnv       = "TOKEN_PATH"
	gmailRPSEnv        = "GMAIL_REQUESTS_PER_SECOND"
	sheetsWPMEnv       = "SHEETS_WRITES_PER_MINUTE"
	sheetsBatchEnv     = "SHEETS_BATCH_SIZE"
	telegramTokenEnv   = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv  = "TELEGRAM_CHAT_ID"
	logLevelEnv        = "LOG_LEVEL"
	logFormatEnv       = "LOG_FORMAT"
	pushgatewayEnv     = "PUSHGATEWAY_URL"
)

// Backend names.
const (
	SinkSheets   = "sheets"
	SinkPostgres = "postgres"
	SinkSQLite   = "sqlite"

	LedgerFile  = "file"
	LedgerRedis = "redis"

	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Ledger        LedgerConfig       `yaml:"ledger"`
	Google        GoogleConfig       `yaml:"google"`
	Gmail         GmailConfig        `yaml:"gmail"`
	LLM           LLMConfig          `yaml:"llm"`
	Sink          SinkConfig         `yaml:"sink"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Notifications NotificationConfig `yaml:"notifications"`
	Metrics       MetricsConfig      `yaml:"metrics"`
}

// LoggingConfig selects level and handler format (text or json).
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LedgerConfig describes where the processing ledger is kept.
type LedgerConfig struct {
	Backend    string      `yaml:"backend"`
	Path       string      `yaml:"path"`
	FlushEvery int         `yaml:"flushEvery"`
	Redis      RedisConfig `yaml:"redis"`
}

// RedisConfig holds connection details for the redis ledger backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

// GoogleConfig points at the OAuth client secret and the cached token.
type GoogleConfig struct {
	CredentialsPath string `yaml:"credentialsPath"`
	TokenPath       string `yaml:"tokenPath"`
}

// GmailConfig tunes the mail source.
type GmailConfig struct {
	BaseURL           string  `yaml:"baseUrl"`
	User              string  `yaml:"user"`
	Category          string  `yaml:"category"`
	PageSize          int     `yaml:"pageSize"`
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
}

// LLMConfig defines how to contact the extraction model.
type LLMConfig struct {
	Provider          string        `yaml:"provider"`
	Endpoint          string        `yaml:"endpoint"`
	Model             string        `yaml:"model"`
	APIKey            string        `yaml:"apiKey"`
	SystemPrompt      string        `yaml:"systemPrompt"`
	MaxBodyChars      int           `yaml:"maxBodyChars"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond"`
	Timeout           time.Duration `yaml:"timeout"`
}

// SinkConfig selects the tabular store.
type SinkConfig struct {
	Backend  string         `yaml:"backend"`
	Sheets   SheetsConfig   `yaml:"sheets"`
	Database DatabaseConfig `yaml:"database"`
}

// SheetsConfig targets one tab of a Google spreadsheet.
type SheetsConfig struct {
	BaseURL         string `yaml:"baseUrl"`
	SpreadsheetID   string `yaml:"spreadsheetId"`
	SheetName       string `yaml:"sheetName"`
	BatchSize       int    `yaml:"batchSize"`
	WritesPerMinute int    `yaml:"writesPerMinute"`
	RenameOnSuccess bool   `yaml:"renameOnSuccess"`
}

// DatabaseConfig describes the SQL sink connection.
type DatabaseConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

// SchedulerConfig defines when watch mode runs and which calendar day a message belongs to.
type SchedulerConfig struct {
	CronExpression string         `yaml:"cronExpression"`
	Timezone       string         `yaml:"timezone"`
	location       *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// Enabled reports whether both token and chat are set.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != ""
}

// MetricsConfig enables pushing run metrics.
type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgatewayUrl"`
	Job            string `yaml:"job"`
}

// Load reads .env files, YAML configuration (if present) and applies environment overrides.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("config: cannot read .env: %v", err)
	}

	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			fileCfg := defaultConfig()
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = fileCfg
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()
	cfg.Sink.Sheets.SpreadsheetID = ExtractSpreadsheetID(cfg.Sink.Sheets.SpreadsheetID)

	return cfg
}

// Validate reports configuration errors that must abort a run before any message is touched.
func (c Config) Validate() error {
	var errs []error

	switch c.Sink.Backend {
	case SinkSheets:
		if c.Sink.Sheets.SpreadsheetID == "" {
			errs = append(errs, errors.New("sink.sheets.spreadsheetId is required (set SPREADSHEET_ID or --spreadsheet-id)"))
		}
		if c.Sink.Sheets.SheetName == "" {
			errs = append(errs, errors.New("sink.sheets.sheetName is required"))
		}
	case SinkPostgres, SinkSQLite:
		if c.Sink.Database.DSN == "" {
			errs = append(errs, fmt.Errorf("sink.database.dsn is required for the %s sink (set DATABASE_DSN)", c.Sink.Backend))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown sink backend %q", c.Sink.Backend))
	}

	switch c.Ledger.Backend {
	case LedgerFile:
		if c.Ledger.Path == "" {
			errs = append(errs, errors.New("ledger.path is required"))
		}
	case LedgerRedis:
		if c.Ledger.Redis.Addr == "" {
			errs = append(errs, errors.New("ledger.redis.addr is required (set REDIS_ADDR)"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown ledger backend %q", c.Ledger.Backend))
	}
	if c.Ledger.FlushEvery <= 0 {
		errs = append(errs, errors.New("ledger.flushEvery must be positive"))
	}

	switch c.LLM.Provider {
	case ProviderOpenAI:
		if c.LLM.Endpoint == "" {
			errs = append(errs, errors.New("llm.endpoint is required"))
		}
	case ProviderAnthropic:
		if c.LLM.APIKey == "" {
			errs = append(errs, errors.New("llm.apiKey is required for the anthropic provider (set ANTHROPIC_API_KEY)"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown llm provider %q", c.LLM.Provider))
	}
	if c.LLM.Model == "" {
		errs = append(errs, errors.New("llm.model is required"))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

var spreadsheetURLExpr = regexp.MustCompile(`/d/([a-zA-Z0-9_-]+)`)

// ExtractSpreadsheetID accepts either a bare id or a full Sheets URL.
func ExtractSpreadsheetID(value string) string {
	value = strings.TrimSpace(value)
	if !strings.Contains(value, "docs.google.com") && !strings.Contains(value, "spreadsheets") {
		return value
	}
	if m := spreadsheetURLExpr.FindStringSubmatch(value); m != nil {
		return m[1]
	}
	return value
}

func (c *Config) applyEnvOverrides() {
	setString(&c.Sink.Sheets.SpreadsheetID, spreadsheetIDEnv)
	setString(&c.Sink.Sheets.SheetName, sheetNameEnv)
	setString(&c.Sink.Backend, sinkBackendEnv)
	setString(&c.Sink.Database.DSN, databaseDSNEnv)
	setInt(&c.Sink.Sheets.WritesPerMinute, sheetsWPMEnv)
	setInt(&c.Sink.Sheets.BatchSize, sheetsBatchEnv)

	setString(&c.LLM.Provider, llmProviderEnv)
	setString(&c.LLM.Model, ollamaModelEnv)
	setString(&c.LLM.Model, llmModelEnv)
	if v := os.Getenv(ollamaHostEnv); v != "" {
		c.LLM.Endpoint = strings.TrimRight(v, "/") + "/v1/chat/completions"
	}
	setString(&c.LLM.APIKey, llmAPIKeyEnv)
	if c.LLM.Provider == ProviderAnthropic {
		setString(&c.LLM.APIKey, anthropicAPIKeyEnv)
	}

	setString(&c.Ledger.Backend, ledgerBackendEnv)
	setString(&c.Ledger.Path, stateFilePathEnv)
	setString(&c.Ledger.Redis.Addr, redisAddrEnv)
	setString(&c.Ledger.Redis.Password, redisPasswordEnv)

	setString(&c.Google.CredentialsPath, credentialsPathEnv)
	setString(&c.Google.TokenPath, tokenPathEnv)
	if v := os.Getenv(gmailRPSEnv); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Gmail.RequestsPerSecond = f
		} else {
			log.Printf("config: %s=%q is not a number, ignoring", gmailRPSEnv, v)
		}
	}

	setString(&c.Notifications.Telegram.BotToken, telegramTokenEnv)
	setString(&c.Notifications.Telegram.ChatID, telegramChatIDEnv)

	setString(&c.Logging.Level, logLevelEnv)
	setString(&c.Logging.Format, logFormatEnv)
	setString(&c.Metrics.PushgatewayURL, pushgatewayEnv)
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func setInt(dst *int, env string) {
	v := os.Getenv(env)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("config: %s=%q is not an integer, ignoring", env, v)
		return
	}
	*dst = n
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Ledger: LedgerConfig{
			Backend:    LedgerFile,
			Path:       "processing_state.json",
			FlushEvery: 10,
			Redis:      RedisConfig{Addr: "", Key: "applicationscanner:ledger"},
		},
		Google: GoogleConfig{CredentialsPath: "credentials.json", TokenPath: "token.json"},
		Gmail: GmailConfig{
			BaseURL:           "https://gmail.googleapis.com/gmail/v1",
			User:              "me",
			Category:          "primary",
			PageSize:          100,
			RequestsPerSecond: 40,
		},
		LLM: LLMConfig{
			Provider:          ProviderOpenAI,
			Endpoint:          "http://localhost:11434/v1/chat/completions",
			Model:             "qwen2.5:3b",
			SystemPrompt:      "You are a data extraction assistant. Always respond with valid JSON only.",
			MaxBodyChars:      4000,
			RequestsPerSecond: 5,
			Timeout:           60 * time.Second,
		},
		Sink: SinkConfig{
			Backend: SinkSheets,
			Sheets: SheetsConfig{
				BaseURL:         "https://sheets.googleapis.com/v4",
				SheetName:       "Sheet1",
				BatchSize:       50,
				WritesPerMinute: 50,
				RenameOnSuccess: true,
			},
			Database: DatabaseConfig{Table: "applications"},
		},
		Scheduler: SchedulerConfig{CronExpression: "0 */6 * * *", Timezone: defaultTimezone, location: tz},
		Notifications: NotificationConfig{
			Telegram: TelegramConfig{BotToken: "", ChatID: ""},
		},
		Metrics: MetricsConfig{Job: "application_scanner"},
	}
}
