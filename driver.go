package cachify

// Driver identifies a store backend.
type Driver string

const (
	DriverNull      Driver = "null"
	DriverFile      Driver = "file"
	DriverMemory    Driver = "memory"
	DriverMemcached Driver = "memcached"
	DriverDynamo    Driver = "dynamodb"
	DriverNATS      Driver = "nats"
	DriverRedis     Driver = "redis"
	DriverSQL       Driver = "sql"
)
