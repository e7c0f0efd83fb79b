package config

// Storage backends understood by the CLI.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageRedis    = "redis"
)

// App is the process-level configuration of the metastates CLI.
type App struct {
	Env         string `env:"APP_ENV" envDefault:"development"`
	ServiceName string `env:"APP_NAME" envDefault:"metastates"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	Storage     string `env:"METASTATES_STORAGE" envDefault:"sqlite"`
	SQLitePath  string `env:"METASTATES_SQLITE_PATH" envDefault:"metastates.db"`
	Definitions string `env:"METASTATES_DEFINITIONS" envDefault:"metastates.yaml"`

	// NATSURL enables transition events when set.
	NATSURL       string `env:"NATS_URL"`
	SubjectPrefix string `env:"NATS_SUBJECT_PREFIX" envDefault:"metastates"`
}
