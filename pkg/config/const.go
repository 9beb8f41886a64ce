package config

// EnvPrefix scopes all envconfig lookups.
const EnvPrefix = "STREAMCART"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "production"
)

const (
	EnvAppEnv       = "STREAMCART_APP_ENV"
	EnvPort         = "STREAMCART_APP_PORT"
	EnvDBDSN        = "STREAMCART_DB_DSN"
	EnvDBHost       = "STREAMCART_DB_HOST"
	EnvDBUser       = "STREAMCART_DB_USER"
	EnvDBName       = "STREAMCART_DB_NAME"
	EnvRedisURL     = "STREAMCART_REDIS_URL"
	EnvStripeSecret = "STREAMCART_STRIPE_SECRET"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
