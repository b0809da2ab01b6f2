// Package config loads service configuration from an optional YAML file
// overlaid by environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
	DriverLocal  = "local"
	DriverRedis  = "redis"
	DriverKafka  = "kafka"
)

type Config struct {
	Service     ServiceConfig     `yaml:"service"`
	HTTP        HTTPConfig        `yaml:"http"`
	GRPC        GRPCConfig        `yaml:"grpc"`
	Store       StoreConfig       `yaml:"store"`
	Lock        LockConfig        `yaml:"lock"`
	Broker      BrokerConfig      `yaml:"broker"`
	Mirror      MirrorConfig      `yaml:"mirror"`
	Tracing     TracingConfig     `yaml:"tracing"`
	Reservation ReservationConfig `yaml:"reservation"`
	Gateway     GatewayConfig     `yaml:"gateway"`
}

type ServiceConfig struct {
	Name     string `yaml:"name"`
	Env      string `yaml:"env"`
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type GRPCConfig struct {
	Addr string `yaml:"addr"`
}

type StoreConfig struct {
	Driver string `yaml:"driver"` // memory | sqlite
	DSN    string `yaml:"dsn"`
}

type LockConfig struct {
	Driver    string        `yaml:"driver"` // local | redis
	RedisAddr string        `yaml:"redis_addr"`
	TTL       time.Duration `yaml:"ttl"`
}

type BrokerConfig struct {
	Driver  string            `yaml:"driver"` // memory | kafka
	Brokers []string          `yaml:"brokers"`
	GroupID string            `yaml:"group_id"`
	Topics  map[string]string `yaml:"topics"` // event name -> topic
	// DeadLetterTopic receives messages whose handlers kept failing.
	DeadLetterTopic string `yaml:"dead_letter_topic"`
}

type MirrorConfig struct {
	Driver string `yaml:"driver"` // memory | mysql
	DSN    string `yaml:"dsn"`
}

type TracingConfig struct {
	JaegerEndpoint string `yaml:"jaeger_endpoint"`
}

type ReservationConfig struct {
	MaxWriteRetries int           `yaml:"max_write_retries"`
	RPCTimeout      time.Duration `yaml:"rpc_timeout"`
	PublishTimeout  time.Duration `yaml:"publish_timeout"`
}

type GatewayConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration used when nothing is set.
func Default(service string) Config {
	return Config{
		Service: ServiceConfig{Name: service, Env: "dev", LogLevel: "info"},
		HTTP:    HTTPConfig{Addr: ":8080", ShutdownTimeout: 10 * time.Second},
		GRPC:    GRPCConfig{Addr: ":9090"},
		Store:   StoreConfig{Driver: DriverMemory},
		Lock:    LockConfig{Driver: DriverLocal, TTL: 5 * time.Second},
		Broker: BrokerConfig{
			Driver:  DriverMemory,
			GroupID: service,
			Topics: map[string]string{
				"inventory.changed": "inventory-changed",
				"product.created":   "product-created",
			},
			DeadLetterTopic: "inventory-dead-letter",
		},
		Mirror: MirrorConfig{Driver: DriverMemory},
		Reservation: ReservationConfig{
			MaxWriteRetries: 5,
			RPCTimeout:      2 * time.Second,
			PublishTimeout:  300 * time.Millisecond,
		},
		Gateway: GatewayConfig{Addr: "localhost:9090"},
	}
}

// Load reads CONFIG_FILE when set, applies environment overrides and
// validates the result.
func Load(service string) (Config, error) {
	cfg := Default(service)
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrap(err, "config: read file")
		}
		if err := Parse(raw, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes YAML onto cfg, keeping fields the document leaves out.
func Parse(raw []byte, cfg *Config) error {
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return errors.Wrap(err, "config: parse yaml")
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrapf(err, "config: %s", key)
		}
		*dst = d
		return nil
	}

	str("SERVICE_NAME", &c.Service.Name)
	str("ENV", &c.Service.Env)
	str("LOG_LEVEL", &c.Service.LogLevel)
	str("LOG_FILE", &c.Service.LogFile)
	str("HTTP_ADDR", &c.HTTP.Addr)
	str("GRPC_ADDR", &c.GRPC.Addr)
	str("STORE_DRIVER", &c.Store.Driver)
	str("STORE_DSN", &c.Store.DSN)
	str("LOCK_DRIVER", &c.Lock.Driver)
	str("REDIS_ADDR", &c.Lock.RedisAddr)
	str("BROKER_DRIVER", &c.Broker.Driver)
	str("KAFKA_GROUP_ID", &c.Broker.GroupID)
	str("KAFKA_DEAD_LETTER_TOPIC", &c.Broker.DeadLetterTopic)
	str("MIRROR_DRIVER", &c.Mirror.Driver)
	str("MIRROR_DSN", &c.Mirror.DSN)
	str("JAEGER_ENDPOINT", &c.Tracing.JaegerEndpoint)
	str("GATEWAY_ADDR", &c.Gateway.Addr)
	if v, ok := lookup("KAFKA_BROKERS"); ok && v != "" {
		c.Broker.Brokers = splitList(v)
	}
	if v, ok := lookup("MAX_WRITE_RETRIES"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, "config: MAX_WRITE_RETRIES")
		}
		c.Reservation.MaxWriteRetries = n
	}
	for key, dst := range map[string]*time.Duration{
		"LOCK_TTL":              &c.Lock.TTL,
		"RPC_TIMEOUT":           &c.Reservation.RPCTimeout,
		"PUBLISH_TIMEOUT":       &c.Reservation.PublishTimeout,
		"HTTP_SHUTDOWN_TIMEOUT": &c.HTTP.ShutdownTimeout,
	} {
		if err := dur(key, dst); err != nil {
			return err
		}
	}
	return nil
}

func (c Config) Validate() error {
	var problems []string
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	check(c.Service.Name != "", "service.name is required")
	check(oneOf(c.Store.Driver, DriverMemory, DriverSQLite), "store.driver %q is not memory or sqlite", c.Store.Driver)
	check(c.Store.Driver != DriverSQLite || c.Store.DSN != "", "store.dsn is required for sqlite")
	check(oneOf(c.Lock.Driver, DriverLocal, DriverRedis), "lock.driver %q is not local or redis", c.Lock.Driver)
	check(c.Lock.Driver != DriverRedis || c.Lock.RedisAddr != "", "lock.redis_addr is required for redis")
	check(c.Lock.TTL > 0, "lock.ttl must be positive")
	check(oneOf(c.Broker.Driver, DriverMemory, DriverKafka), "broker.driver %q is not memory or kafka", c.Broker.Driver)
	check(c.Broker.Driver != DriverKafka || len(c.Broker.Brokers) > 0, "broker.brokers is required for kafka")
	check(oneOf(c.Mirror.Driver, DriverMemory, DriverMySQL), "mirror.driver %q is not memory or mysql", c.Mirror.Driver)
	check(c.Mirror.Driver != DriverMySQL || c.Mirror.DSN != "", "mirror.dsn is required for mysql")
	check(c.Reservation.MaxWriteRetries > 0, "reservation.max_write_retries must be positive")
	check(c.Reservation.RPCTimeout > 0, "reservation.rpc_timeout must be positive")
	check(c.Reservation.PublishTimeout > 0, "reservation.publish_timeout must be positive")
	check(c.HTTP.ShutdownTimeout > 0, "http.shutdown_timeout must be positive")

	if len(problems) > 0 {
		return errors.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
