package config

// EnvPrefix is handed to envconfig; every field carries its full variable name.
const EnvPrefix = "SUPPLYTRACE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"

	ModeAuto = "auto"
	ModeReal = "real"
	ModeMock = "mock"
)

const (
	EnvAppEnv   = "SUPPLYTRACE_APP_ENV"
	EnvPort     = "SUPPLYTRACE_APP_PORT"
	EnvLogLevel = "SUPPLYTRACE_LOG_LEVEL"

	EnvDBDSN    = "SUPPLYTRACE_DB_DSN"
	EnvDBDriver = "SUPPLYTRACE_DB_DRIVER"
	EnvDBHost   = "SUPPLYTRACE_DB_HOST"
	EnvDBPort   = "SUPPLYTRACE_DB_PORT"
	EnvDBUser   = "SUPPLYTRACE_DB_USER"
	EnvDBPass   = "SUPPLYTRACE_DB_PASSWORD"
	EnvDBName   = "SUPPLYTRACE_DB_NAME"

	EnvRedisURL = "SUPPLYTRACE_REDIS_URL"

	EnvGCPProjectID = "SUPPLYTRACE_GCP_PROJECT_ID"

	EnvEvidenceMode    = "SUPPLYTRACE_EVIDENCE_MODE"
	EnvEvidenceBucket  = "SUPPLYTRACE_EVIDENCE_BUCKET"
	EnvEvidenceTimeout = "SUPPLYTRACE_EVIDENCE_TIMEOUT"

	EnvLedgerMode    = "SUPPLYTRACE_LEDGER_MODE"
	EnvLedgerTimeout = "SUPPLYTRACE_LEDGER_TIMEOUT"

	EnvVerificationDelay = "SUPPLYTRACE_VERIFICATION_DELAY"
	EnvVerifiedRatio     = "SUPPLYTRACE_VERIFICATION_VERIFIED_RATIO"

	EnvCallbackJWTSecret = "SUPPLYTRACE_CALLBACK_JWT_SECRET"

	EnvCORSAllowedOrigins = "SUPPLYTRACE_CORS_ALLOWED_ORIGINS"
)

var discreteDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
