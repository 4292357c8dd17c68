package config

// EnvPrefix is passed to envconfig; individual fields carry explicit names so
// the prefix only matters for collection-level overrides.
const EnvPrefix = "RENEWALS"

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

// Environment variable names referenced outside struct tags.
const (
	EnvAppEnv   = "RENEWALS_APP_ENV"
	EnvPort     = "RENEWALS_APP_PORT"
	EnvDBDSN    = "RENEWALS_DB_DSN"
	EnvDBHost   = "RENEWALS_DB_HOST"
	EnvDBUser   = "RENEWALS_DB_USER"
	EnvDBName   = "RENEWALS_DB_NAME"
	EnvRedisURL = "RENEWALS_REDIS_URL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
