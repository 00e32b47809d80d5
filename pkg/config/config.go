package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	CORS         CORSConfig
	GCP          GCPConfig
	Evidence     EvidenceConfig
	Ledger       LedgerConfig
	Verification VerificationConfig
	Callback     CallbackConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Outbox       OutboxConfig
	Eventing     EventingConfig
	Cron         CronConfig
	RateLimit    RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Evidence.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Ledger.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SUPPLYTRACE_APP_ENV" required:"true"`
	Port         string `envconfig:"SUPPLYTRACE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SUPPLYTRACE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SUPPLYTRACE_LOG_WARN_STACK" default:"false"`
	MetricsAddr  string `envconfig:"SUPPLYTRACE_METRICS_ADDR"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"SUPPLYTRACE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"SUPPLYTRACE_DB_DSN"`
	Driver string `envconfig:"SUPPLYTRACE_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"SUPPLYTRACE_DB_HOST"`
	Port     int    `envconfig:"SUPPLYTRACE_DB_PORT" default:"5432"`
	User     string `envconfig:"SUPPLYTRACE_DB_USER"`
	Password string `envconfig:"SUPPLYTRACE_DB_PASSWORD"`
	Name     string `envconfig:"SUPPLYTRACE_DB_NAME"`
	SSLMode  string `envconfig:"SUPPLYTRACE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SUPPLYTRACE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SUPPLYTRACE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SUPPLYTRACE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SUPPLYTRACE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the local sqlite driver is selected.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"SUPPLYTRACE_REDIS_URL"`
	Address      string        `envconfig:"SUPPLYTRACE_REDIS_ADDR"`
	Password     string        `envconfig:"SUPPLYTRACE_REDIS_PASSWORD"`
	DB           int           `envconfig:"SUPPLYTRACE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SUPPLYTRACE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SUPPLYTRACE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SUPPLYTRACE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SUPPLYTRACE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SUPPLYTRACE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether any redis endpoint is configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"SUPPLYTRACE_AUTO_MIGRATE" default:"false"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"SUPPLYTRACE_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"SUPPLYTRACE_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"SUPPLYTRACE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"SUPPLYTRACE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type EvidenceConfig struct {
	Mode         string        `envconfig:"SUPPLYTRACE_EVIDENCE_MODE" default:"auto"`
	BucketName   string        `envconfig:"SUPPLYTRACE_EVIDENCE_BUCKET"`
	ObjectPrefix string        `envconfig:"SUPPLYTRACE_EVIDENCE_PREFIX" default:"evidence"`
	Timeout      time.Duration `envconfig:"SUPPLYTRACE_EVIDENCE_TIMEOUT" default:"10s"`
	MaxUploadMB  int           `envconfig:"SUPPLYTRACE_EVIDENCE_MAX_UPLOAD_MB" default:"10"`
	MaxFiles     int           `envconfig:"SUPPLYTRACE_EVIDENCE_MAX_FILES" default:"10"`
}

// UseReal reports whether the GCS-backed store should be constructed.
func (e EvidenceConfig) UseReal() bool {
	switch strings.ToLower(strings.TrimSpace(e.Mode)) {
	case ModeReal:
		return true
	case ModeMock:
		return false
	default:
		return strings.TrimSpace(e.BucketName) != ""
	}
}

// MaxUploadBytes returns the request body cap for evidence uploads.
func (e EvidenceConfig) MaxUploadBytes() int64 {
	if e.MaxUploadMB <= 0 {
		return 10 << 20
	}
	return int64(e.MaxUploadMB) << 20
}

func (e EvidenceConfig) validate() error {
	if err := validateMode(EnvEvidenceMode, e.Mode); err != nil {
		return err
	}
	if strings.EqualFold(strings.TrimSpace(e.Mode), ModeReal) && strings.TrimSpace(e.BucketName) == "" {
		return fmt.Errorf("%s is required when %s=%s", EnvEvidenceBucket, EnvEvidenceMode, ModeReal)
	}
	return nil
}

type LedgerConfig struct {
	Mode          string        `envconfig:"SUPPLYTRACE_LEDGER_MODE" default:"auto"`
	Timeout       time.Duration `envconfig:"SUPPLYTRACE_LEDGER_TIMEOUT" default:"5s"`
	AppendRetries int           `envconfig:"SUPPLYTRACE_LEDGER_APPEND_RETRIES" default:"5"`
}

// UseChain reports whether the database hash-chain ledger should be used.
// The chain needs nothing beyond the primary database, so auto selects it.
func (l LedgerConfig) UseChain() bool {
	return !strings.EqualFold(strings.TrimSpace(l.Mode), ModeMock)
}

func (l LedgerConfig) validate() error {
	return validateMode(EnvLedgerMode, l.Mode)
}

type VerificationConfig struct {
	Delay         time.Duration `envconfig:"SUPPLYTRACE_VERIFICATION_DELAY" default:"2s"`
	PollInterval  time.Duration `envconfig:"SUPPLYTRACE_VERIFICATION_POLL_INTERVAL" default:"1s"`
	MaxAttempts   int           `envconfig:"SUPPLYTRACE_VERIFICATION_MAX_ATTEMPTS" default:"5"`
	StaleAfter    time.Duration `envconfig:"SUPPLYTRACE_VERIFICATION_STALE_AFTER" default:"2m"`
	VerifiedRatio float64       `envconfig:"SUPPLYTRACE_VERIFICATION_VERIFIED_RATIO" default:"0.7"`
	WorkerID      string        `envconfig:"SUPPLYTRACE_WORKER_ID" default:"worker-0"`
}

type CallbackConfig struct {
	JWTSecret string `envconfig:"SUPPLYTRACE_CALLBACK_JWT_SECRET"`
	JWTIssuer string `envconfig:"SUPPLYTRACE_CALLBACK_JWT_ISSUER" default:"supplytrace-verifier"`
}

// AuthEnabled reports whether callback requests must carry a bearer token.
func (c CallbackConfig) AuthEnabled() bool {
	return strings.TrimSpace(c.JWTSecret) != ""
}

type PubSubConfig struct {
	SupplyEventsTopic     string `envconfig:"SUPPLYTRACE_PUBSUB_SUPPLY_EVENTS_TOPIC" default:"supply-events"`
	AnalyticsSubscription string `envconfig:"SUPPLYTRACE_PUBSUB_ANALYTICS_SUBSCRIPTION" default:"supply-events-analytics"`
}

type BigQueryConfig struct {
	Dataset     string `envconfig:"SUPPLYTRACE_BIGQUERY_DATASET" default:"supplytrace"`
	EventsTable string `envconfig:"SUPPLYTRACE_BIGQUERY_EVENTS_TABLE" default:"supply_events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"SUPPLYTRACE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"SUPPLYTRACE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"SUPPLYTRACE_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"SUPPLYTRACE_OUTBOX_RETENTION_DAYS" default:"30"`
}

type EventingConfig struct {
	IdempotencyTTL time.Duration `envconfig:"SUPPLYTRACE_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"SUPPLYTRACE_CRON_INTERVAL" default:"1m"`
	LockTTL  time.Duration `envconfig:"SUPPLYTRACE_CRON_LOCK_TTL" default:"5m"`
}

// RateLimitConfig throttles write endpoints per client IP. A zero limit
// disables the check.
type RateLimitConfig struct {
	Window           time.Duration `envconfig:"SUPPLYTRACE_RATE_LIMIT_WINDOW" default:"1m"`
	SubmissionsPerIP int           `envconfig:"SUPPLYTRACE_RATE_LIMIT_SUBMISSIONS" default:"120"`
	CallbacksPerIP   int           `envconfig:"SUPPLYTRACE_RATE_LIMIT_CALLBACKS" default:"600"`
}

func validateMode(env, mode string) error {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", ModeAuto, ModeReal, ModeMock:
		return nil
	default:
		return fmt.Errorf("%s must be one of %s, %s, %s (got %q)", env, ModeAuto, ModeReal, ModeMock, mode)
	}
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		return fmt.Errorf("%s is required for the sqlite driver", EnvDBDSN)
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range discreteDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
