package extension

// Store drivers understood by Config.Driver.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMongo    = "mongo"
	DriverRedis    = "redis"
)

// Config holds the credit ledger extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.creditledger" or "creditledger" keys).
type Config struct {
	// Driver selects the store backend (default: "memory").
	Driver string `json:"driver" mapstructure:"driver" yaml:"driver"`

	// DSN is the connection string for the selected driver. For redis it is
	// a redis:// URL.
	DSN string `json:"dsn" mapstructure:"dsn" yaml:"dsn"`

	// Database is the MongoDB database name (default: "creditledger").
	Database string `json:"database" mapstructure:"database" yaml:"database"`

	// RedisPrefix namespaces every redis key. Keep a {hash tag} in it when
	// running against a cluster.
	RedisPrefix string `json:"redis_prefix" mapstructure:"redis_prefix" yaml:"redis_prefix"`

	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// CommitMaxAttempts bounds retries of conflicting atomic updates.
	// 1 disables retrying (default: 5).
	CommitMaxAttempts int `json:"commit_max_attempts" mapstructure:"commit_max_attempts" yaml:"commit_max_attempts"`

	// PolicyFile is a YAML pricing and spending limit policy. When empty the
	// ledger trusts reported costs and applies no limits.
	PolicyFile string `json:"policy_file" mapstructure:"policy_file" yaml:"policy_file"`

	// KafkaBrokers and KafkaTopic enable the event publisher when both are set.
	KafkaBrokers []string `json:"kafka_brokers" mapstructure:"kafka_brokers" yaml:"kafka_brokers"`
	KafkaTopic   string   `json:"kafka_topic" mapstructure:"kafka_topic" yaml:"kafka_topic"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Driver:            DriverMemory,
		Database:          "creditledger",
		CommitMaxAttempts: 5,
	}
}
