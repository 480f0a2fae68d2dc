package cache

// Option mutates Config when constructing a backend.
type Option func(Config) Config

// WithPrefix sets the key namespace shared by every key the backend writes.
func WithPrefix(prefix string) Option {
	return func(cfg Config) Config {
		cfg.Prefix = prefix
		return cfg
	}
}

// WithRedisAddr selects the redis server used when no client is injected.
func WithRedisAddr(host string, port int) Option {
	return func(cfg Config) Config {
		cfg.RedisHost = host
		cfg.RedisPort = port
		return cfg
	}
}

// WithRedisDB selects the redis logical database.
func WithRedisDB(db int) Option {
	return func(cfg Config) Config {
		cfg.RedisDB = db
		return cfg
	}
}

func WithRedisPassword(password string) Option {
	return func(cfg Config) Config {
		cfg.RedisPassword = password
		return cfg
	}
}

// WithRedisClient injects a ready client; host, port and db are then ignored.
func WithRedisClient(client RedisClient) Option {
	return func(cfg Config) Config {
		cfg.RedisClient = client
		return cfg
	}
}

// WithSQL sets the database/sql driver name and DSN.
func WithSQL(driverName, dsn string) Option {
	return func(cfg Config) Config {
		cfg.SQLDriverName = driverName
		cfg.SQLDSN = dsn
		return cfg
	}
}

// WithSQLTable overrides the base table name. Lists live in <table>_lists.
func WithSQLTable(table string) Option {
	return func(cfg Config) Config {
		cfg.SQLTable = table
		return cfg
	}
}

func WithDynamoClient(client DynamoAPI) Option {
	return func(cfg Config) Config {
		cfg.DynamoClient = client
		return cfg
	}
}

func WithDynamoTable(table string) Option {
	return func(cfg Config) Config {
		cfg.DynamoTable = table
		return cfg
	}
}

// WithDynamoEndpoint points the generated client at region and, when set, a local endpoint.
func WithDynamoEndpoint(region, endpoint string) Option {
	return func(cfg Config) Config {
		cfg.DynamoRegion = region
		cfg.DynamoEndpoint = endpoint
		return cfg
	}
}

func WithNATSKeyValue(kv NATSKeyValue) Option {
	return func(cfg Config) Config {
		cfg.NATSKeyValue = kv
		return cfg
	}
}

// WithNATS connects to url and binds (or creates) the key-value bucket.
func WithNATS(url, bucket string) Option {
	return func(cfg Config) Config {
		cfg.NATSURL = url
		cfg.NATSBucket = bucket
		return cfg
	}
}
