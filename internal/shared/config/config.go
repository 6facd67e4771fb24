package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DriverSQLite  = "sqlite"
	DriverLevelDB = "leveldb"
	DriverRedis   = "redis"
	DriverTOML    = "toml"
	DriverMemory  = "memory"
)

type StoreConfig struct {
	Driver    string `toml:"driver"`
	Path      string `toml:"path"`
	RedisAddr string `toml:"redis_addr"`
	RedisDB   int    `toml:"redis_db"`
}

type TransportConfig struct {
	Timeout       time.Duration `toml:"timeout"`
	DefaultScheme string        `toml:"default_scheme"`
}

type DispatchConfig struct {
	Workers     int    `toml:"workers"`
	ToSelfDelay uint32 `toml:"to_self_delay"`
}

type AdminConfig struct {
	Address string `toml:"address"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

type Config struct {
	Store     StoreConfig     `toml:"store"`
	Transport TransportConfig `toml:"transport"`
	Dispatch  DispatchConfig  `toml:"dispatch"`
	Admin     AdminConfig     `toml:"admin"`
	Log       LogConfig       `toml:"log"`
}

func Default() Config {
	c := Config{}
	c.applyDefaults()
	return c
}

// Load decodes the TOML file at path over the defaults. A missing file is not
// an error.
func Load(path string) (Config, error) {
	c := Config{}
	if path != "" {
		_, err := toml.DecodeFile(path, &c)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return c, fmt.Errorf("failed to load config: %w", err)
		}
	}
	c.applyDefaults()
	if err := c.validate(); err != nil {
		return c, err
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Store.Driver == "" {
		c.Store.Driver = DriverSQLite
	}
	if c.Store.Path == "" {
		switch c.Store.Driver {
		case DriverSQLite:
			c.Store.Path = "wtclient.db"
		case DriverLevelDB:
			c.Store.Path = "wtclient.ldb"
		case DriverTOML:
			c.Store.Path = "wtclient.toml"
		}
	}
	if c.Store.Driver == DriverRedis && c.Store.RedisAddr == "" {
		c.Store.RedisAddr = "127.0.0.1:6379"
	}
	if c.Transport.Timeout == 0 {
		c.Transport.Timeout = 10 * time.Second
	}
	if c.Transport.DefaultScheme == "" {
		c.Transport.DefaultScheme = "http"
	}
	if c.Dispatch.Workers == 0 {
		c.Dispatch.Workers = 8
	}
	if c.Dispatch.ToSelfDelay == 0 {
		c.Dispatch.ToSelfDelay = 42
	}
	if c.Admin.Address == "" {
		c.Admin.Address = "127.0.0.1:9814"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case DriverSQLite, DriverLevelDB, DriverRedis, DriverTOML, DriverMemory:
	default:
		return fmt.Errorf("unknown store driver '%s'", c.Store.Driver)
	}
	switch c.Transport.DefaultScheme {
	case "http", "https":
	default:
		return fmt.Errorf("unsupported default scheme '%s'", c.Transport.DefaultScheme)
	}
	if c.Dispatch.Workers < 0 {
		return fmt.Errorf("dispatch workers must not be negative")
	}
	return nil
}
