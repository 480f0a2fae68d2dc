package cache

// Driver identifies the backend behind a Cache.
type Driver string

const (
	DriverMemory Driver = "memory"
	DriverRedis  Driver = "redis"
	DriverSQL    Driver = "sql"
	DriverDynamo Driver = "dynamodb"
	DriverNATS   Driver = "nats"
)
