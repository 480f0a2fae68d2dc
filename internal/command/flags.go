package command

import (
	"fmt"
	"os"
	"strings"

	altsrc "github.com/urfave/cli-altsrc/v3"
	yaml "github.com/urfave/cli-altsrc/v3/yaml"
	"github.com/urfave/cli/v3"

	cache "github.com/goforj/cachejournal"
)

const defaultConfigFile = "cachejournal.yaml"

// configFile is the YAML file consulted after flags and env vars.
func configFile() string {
	if path := os.Getenv("CACHEJOURNAL_CONFIG"); path != "" {
		return path
	}
	return defaultConfigFile
}

// sources resolves a flag from CACHEJOURNAL_<ENV> first, then the key of the
// same name in the config file.
func sources(name string) cli.ValueSourceChain {
	env := "CACHEJOURNAL_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
	return cli.NewValueSourceChain(
		cli.EnvVar(env),
		yaml.YAML(name, altsrc.StringSourcer(configFile())),
	)
}

var validDrivers = []cache.Driver{
	cache.DriverRedis,
	cache.DriverMemory,
	cache.DriverSQL,
	cache.DriverDynamo,
	cache.DriverNATS,
}

func driverValidator(value string) error {
	for _, d := range validDrivers {
		if cache.Driver(value) == d {
			return nil
		}
	}
	return fmt.Errorf("driver must be one of %v", validDrivers)
}

// NewGlobalFlags returns the backend selection flags shared by every command.
func NewGlobalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:      "driver",
			Aliases:   []string{"d"},
			Usage:     "backend driver",
			Sources:   sources("driver"),
			Value:     string(cache.DriverRedis),
			Validator: driverValidator,
		},
		&cli.StringFlag{
			Name:    "prefix",
			Usage:   "key namespace; empty means the backend is owned outright and flushed whole",
			Sources: sources("prefix"),
		},
		&cli.StringFlag{
			Name:    "host",
			Usage:   "redis host",
			Sources: sources("host"),
			Value:   "localhost",
		},
		&cli.IntFlag{
			Name:    "port",
			Usage:   "redis port",
			Sources: sources("port"),
			Value:   6379,
		},
		&cli.IntFlag{
			Name:    "db",
			Usage:   "redis database",
			Sources: sources("db"),
		},
		&cli.StringFlag{
			Name:    "password",
			Usage:   "redis password",
			Sources: sources("password"),
		},
		&cli.StringFlag{
			Name:    "sql-driver",
			Usage:   "database/sql driver: sqlite, pgx or mysql",
			Sources: sources("sql-driver"),
			Value:   "sqlite",
		},
		&cli.StringFlag{
			Name:    "sql-dsn",
			Usage:   "database/sql data source name",
			Sources: sources("sql-dsn"),
		},
		&cli.StringFlag{
			Name:    "sql-table",
			Usage:   "base table name",
			Sources: sources("sql-table"),
		},
		&cli.StringFlag{
			Name:    "nats-url",
			Usage:   "NATS server URL",
			Sources: sources("nats-url"),
			Value:   "nats://127.0.0.1:4222",
		},
		&cli.StringFlag{
			Name:    "nats-bucket",
			Usage:   "JetStream key-value bucket",
			Sources: sources("nats-bucket"),
		},
		&cli.StringFlag{
			Name:    "dynamo-region",
			Usage:   "DynamoDB region",
			Sources: sources("dynamo-region"),
		},
		&cli.StringFlag{
			Name:    "dynamo-endpoint",
			Usage:   "DynamoDB endpoint override, e.g. dynamodb-local",
			Sources: sources("dynamo-endpoint"),
		},
		&cli.StringFlag{
			Name:    "dynamo-table",
			Usage:   "DynamoDB table",
			Sources: sources("dynamo-table"),
		},
	}
}

// backendConfig maps the global flags onto a cache.Config.
func backendConfig(cmd *cli.Command) cache.Config {
	return cache.Config{
		Driver:         cache.Driver(cmd.String("driver")),
		Prefix:         cmd.String("prefix"),
		RedisHost:      cmd.String("host"),
		RedisPort:      int(cmd.Int("port")),
		RedisDB:        int(cmd.Int("db")),
		RedisPassword:  cmd.String("password"),
		SQLDriverName:  cmd.String("sql-driver"),
		SQLDSN:         cmd.String("sql-dsn"),
		SQLTable:       cmd.String("sql-table"),
		NATSURL:        cmd.String("nats-url"),
		NATSBucket:     cmd.String("nats-bucket"),
		DynamoRegion:   cmd.String("dynamo-region"),
		DynamoEndpoint: cmd.String("dynamo-endpoint"),
		DynamoTable:    cmd.String("dynamo-table"),
	}
}
