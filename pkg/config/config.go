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
	Cart         CartConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Cart.validate(); err != nil {
		return nil, err
	}
	if cfg.Cart.UsesMemoryStore() {
		return &cfg, nil
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CARTRECOVERY_APP_ENV" required:"true"`
	Port         string `envconfig:"CARTRECOVERY_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"CARTRECOVERY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CARTRECOVERY_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"CARTRECOVERY_LOG_FORMAT" default:"json"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"CARTRECOVERY_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"CARTRECOVERY_DB_DSN"`
	Driver string `envconfig:"CARTRECOVERY_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CARTRECOVERY_DB_HOST"`
	LegacyPort     int    `envconfig:"CARTRECOVERY_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CARTRECOVERY_DB_USER"`
	LegacyPassword string `envconfig:"CARTRECOVERY_DB_PASSWORD"`
	LegacyName     string `envconfig:"CARTRECOVERY_DB_NAME"`
	LegacySSLMode  string `envconfig:"CARTRECOVERY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CARTRECOVERY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CARTRECOVERY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CARTRECOVERY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CARTRECOVERY_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CARTRECOVERY_REDIS_URL"`
	Address      string        `envconfig:"CARTRECOVERY_REDIS_ADDR"`
	Password     string        `envconfig:"CARTRECOVERY_REDIS_PASSWORD"`
	DB           int           `envconfig:"CARTRECOVERY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CARTRECOVERY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CARTRECOVERY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CARTRECOVERY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CARTRECOVERY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CARTRECOVERY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether a Redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

// CartConfig carries the abandonment policy and session store selection.
type CartConfig struct {
	AbandonThreshold time.Duration `envconfig:"CARTRECOVERY_ABANDON_THRESHOLD" default:"1h"`
	ExpireThreshold  time.Duration `envconfig:"CARTRECOVERY_EXPIRE_THRESHOLD" default:"720h"`
	Retention        string        `envconfig:"CARTRECOVERY_RETENTION" default:"keep"`
	Currency         string        `envconfig:"CARTRECOVERY_CURRENCY" default:"USD"`
	InlineSweep      bool          `envconfig:"CARTRECOVERY_INLINE_SWEEP" default:"true"`
	SweepInterval    time.Duration `envconfig:"CARTRECOVERY_SWEEP_INTERVAL" default:"5m"`
	Store            string        `envconfig:"CARTRECOVERY_STORE" default:"sql"`
	StrictInvariants bool          `envconfig:"CARTRECOVERY_STRICT_INVARIANTS" default:"false"`
}

func (c CartConfig) validate() error {
	if c.AbandonThreshold <= 0 {
		return fmt.Errorf("%s must be positive", EnvAbandonThreshold)
	}
	if c.ExpireThreshold <= c.AbandonThreshold {
		return fmt.Errorf("%s must exceed %s", EnvExpireThreshold, EnvAbandonThreshold)
	}
	switch strings.ToLower(strings.TrimSpace(c.Retention)) {
	case RetentionKeep, RetentionDrop:
	default:
		return fmt.Errorf("%s must be %q or %q", EnvRetention, RetentionKeep, RetentionDrop)
	}
	switch strings.ToLower(strings.TrimSpace(c.Store)) {
	case StoreSQL, StoreMemory:
	default:
		return fmt.Errorf("%s must be %q or %q", EnvCartStore, StoreSQL, StoreMemory)
	}
	return nil
}

// UsesMemoryStore reports whether sessions live only in process memory.
func (c CartConfig) UsesMemoryStore() bool {
	return strings.EqualFold(strings.TrimSpace(c.Store), StoreMemory)
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"CARTRECOVERY_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"CARTRECOVERY_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	IdempotencyTTL time.Duration `envconfig:"CARTRECOVERY_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	AsyncBuffer    int           `envconfig:"CARTRECOVERY_EVENTING_ASYNC_BUFFER" default:"256"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"CARTRECOVERY_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"CARTRECOVERY_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"CARTRECOVERY_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	CartEventsTopic string `envconfig:"CARTRECOVERY_PUBSUB_CART_EVENTS_TOPIC"`
}

type BigQueryConfig struct {
	Dataset         string `envconfig:"CARTRECOVERY_BIGQUERY_DATASET"`
	CartEventsTable string `envconfig:"CARTRECOVERY_BIGQUERY_CART_EVENTS_TABLE" default:"cart_events"`
}

// Enabled reports whether cart events should be streamed to BigQuery.
func (b BigQueryConfig) Enabled() bool {
	return strings.TrimSpace(b.Dataset) != ""
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if useSQLite {
		db.Driver = DriverSQLite
		if db.DSN == "" {
			db.DSN = defaultSQLiteDSN
		}
		return nil
	}
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}
	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}
	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}
	db.DSN = u.String()
	return nil
}
