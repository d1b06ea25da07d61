package config

// Environment variable names shared by Load and by tooling that needs to
// reference them directly (tests, deploy scripts).
const (
	EnvPrefix = "SPROUTSWAP"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv     = "SPROUTSWAP_APP_ENV"
	EnvPort       = "SPROUTSWAP_APP_PORT"
	EnvDBDSN      = "SPROUTSWAP_DB_DSN"
	EnvDBHost     = "SPROUTSWAP_DB_HOST"
	EnvDBUser     = "SPROUTSWAP_DB_USER"
	EnvDBName     = "SPROUTSWAP_DB_NAME"
	EnvRedisURL   = "SPROUTSWAP_REDIS_URL"
	EnvJWTSecret  = "SPROUTSWAP_JWT_SECRET"
	EnvJWTIssuer  = "SPROUTSWAP_JWT_ISSUER"
	EnvJWTExpMins = "SPROUTSWAP_JWT_EXPIRATION_MINUTES"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
