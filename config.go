package cache

const (
	defaultRedisHost    = "localhost"
	defaultRedisPort    = 6379
	defaultSQLTable     = "cache_entries"
	defaultDynamoRegion = "us-east-1"
	defaultDynamoTable  = "cache_entries"
	defaultNATSBucket   = "cache"
)

// Config controls how a Backend is constructed.
type Config struct {
	Driver Driver

	// Prefix namespaces keys as prefix:key. Empty means the backend is owned outright.
	Prefix string

	// RedisHost, RedisPort and RedisDB select the server when RedisClient is nil.
	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string
	RedisClient   RedisClient

	// SQLDriverName is one of sqlite, pgx/postgres or mysql.
	SQLDriverName string
	SQLDSN        string
	SQLTable      string

	DynamoClient   DynamoAPI
	DynamoRegion   string
	DynamoEndpoint string
	DynamoTable    string

	// NATSKeyValue wins over NATSURL when both are set.
	NATSKeyValue NATSKeyValue
	NATSURL      string
	NATSBucket   string
}

func (c Config) withDefaults() Config {
	if c.Driver == "" {
		c.Driver = DriverRedis
	}
	if c.RedisHost == "" {
		c.RedisHost = defaultRedisHost
	}
	if c.RedisPort <= 0 {
		c.RedisPort = defaultRedisPort
	}
	if c.RedisDB < 0 {
		c.RedisDB = 0
	}
	if c.SQLTable == "" {
		c.SQLTable = defaultSQLTable
	}
	if c.DynamoRegion == "" {
		c.DynamoRegion = defaultDynamoRegion
	}
	if c.DynamoTable == "" {
		c.DynamoTable = defaultDynamoTable
	}
	if c.NATSBucket == "" {
		c.NATSBucket = defaultNATSBucket
	}
	return c
}
