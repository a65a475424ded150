package config

const EnvPrefix = "CARTRECOVERY"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	StoreSQL    = "sql"
	StoreMemory = "memory"

	RetentionKeep = "keep"
	RetentionDrop = "drop"

	defaultSQLiteDSN = "file:cartrecovery.db?_busy_timeout=5000"
)

const (
	EnvAppEnv   = "CARTRECOVERY_APP_ENV"
	EnvPort     = "CARTRECOVERY_APP_PORT"
	EnvLogLevel = "CARTRECOVERY_LOG_LEVEL"

	EnvDBDSN  = "CARTRECOVERY_DB_DSN"
	EnvDBHost = "CARTRECOVERY_DB_HOST"
	EnvDBUser = "CARTRECOVERY_DB_USER"
	EnvDBName = "CARTRECOVERY_DB_NAME"

	EnvRedisURL = "CARTRECOVERY_REDIS_URL"

	EnvAbandonThreshold = "CARTRECOVERY_ABANDON_THRESHOLD"
	EnvExpireThreshold  = "CARTRECOVERY_EXPIRE_THRESHOLD"
	EnvRetention        = "CARTRECOVERY_RETENTION"
	EnvCartStore        = "CARTRECOVERY_STORE"
	EnvUseSQLite        = "CARTRECOVERY_USE_SQLITE"

	EnvPubSubCartEventsTopic = "CARTRECOVERY_PUBSUB_CART_EVENTS_TOPIC"
	EnvBigQueryDataset       = "CARTRECOVERY_BIGQUERY_DATASET"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
