package config

const (
	EnvPrefix = "SURFACEMARKET"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	LedgerProviderStripe = "stripe"
	LedgerProviderSquare = "square"
)

const (
	EnvAppEnv          = "SURFACEMARKET_APP_ENV"
	EnvPort            = "SURFACEMARKET_APP_PORT"
	EnvDBDSN           = "SURFACEMARKET_DB_DSN"
	EnvDBHost          = "SURFACEMARKET_DB_HOST"
	EnvDBPort          = "SURFACEMARKET_DB_PORT"
	EnvDBUser          = "SURFACEMARKET_DB_USER"
	EnvDBPassword      = "SURFACEMARKET_DB_PASSWORD"
	EnvDBName          = "SURFACEMARKET_DB_NAME"
	EnvRedisURL        = "SURFACEMARKET_REDIS_URL"
	EnvJWTSecret       = "SURFACEMARKET_JWT_SECRET"
	EnvJWTIssuer       = "SURFACEMARKET_JWT_ISSUER"
	EnvJWTExpMins      = "SURFACEMARKET_JWT_EXPIRATION_MINUTES"
	EnvGCPProjectID    = "SURFACEMARKET_GCP_PROJECT_ID"
	EnvEscrowTopic     = "SURFACEMARKET_PUBSUB_ESCROW_TOPIC"
	EnvAnalyticsTopic  = "SURFACEMARKET_PUBSUB_ANALYTICS_TOPIC"
	EnvAnalyticsSub    = "SURFACEMARKET_PUBSUB_ANALYTICS_SUBSCRIPTION"
	EnvAutoReleaseDays = "SURFACEMARKET_ESCROW_AUTO_RELEASE_DAYS"
	EnvLedgerProvider  = "SURFACEMARKET_LEDGER_PROVIDER"
	EnvLedgerTimeout   = "SURFACEMARKET_LEDGER_TIMEOUT"
	EnvAutoMigrate     = "SURFACEMARKET_AUTO_MIGRATE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
