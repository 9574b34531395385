// Package config loads daemon settings from an optional config file and
// PM_-prefixed environment variables, reads the first-run bootstrap
// variables, and prompts on the console when neither is available.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/op/go-logging"
	"github.com/spf13/viper"

	"github.com/sweeney/power-monitor/internal/gpio"
)

var log = logging.MustGetLogger("config")

// EnvPrefix prefixes every daemon setting read from the environment,
// e.g. PM_MQTT_BROKER for mqtt.broker.
const EnvPrefix = "PM"

// MQTTConfig configures the optional broker connection.
type MQTTConfig struct {
	Broker     string `mapstructure:"broker"`
	ClientID   string `mapstructure:"client_id"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	BufferSize int    `mapstructure:"buffer_size"`
}

// HTTPConfig configures the optional status page.
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// GPIOConfig configures the power-good input line.
type GPIOConfig struct {
	Chip      string `mapstructure:"chip"`
	Pin       int    `mapstructure:"pin"`
	ActiveLow bool   `mapstructure:"active_low"`
}

// SNMPConfig configures the UPS-MIB source.
type SNMPConfig struct {
	Host      string        `mapstructure:"host"`
	Port      uint16        `mapstructure:"port"`
	Community string        `mapstructure:"community"`
	Version   string        `mapstructure:"version"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// ModbusConfig configures the Modbus TCP source.
type ModbusConfig struct {
	Endpoint     string        `mapstructure:"endpoint"`
	SlaveID      uint8         `mapstructure:"slave_id"`
	SOCRegister  uint16        `mapstructure:"soc_register"`
	SOCScale     float64       `mapstructure:"soc_scale"`
	GridRegister uint16        `mapstructure:"grid_register"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// Config is the daemon configuration. The persisted registry state lives
// in DataFile and is not part of it.
type Config struct {
	DataFile        string        `mapstructure:"data_file"`
	LogLevel        string        `mapstructure:"log_level"`
	Heartbeat       time.Duration `mapstructure:"heartbeat"`
	DeliveryTimeout time.Duration `mapstructure:"delivery_timeout"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	SysfsRoot       string        `mapstructure:"sysfs_root"`

	MQTT   MQTTConfig   `mapstructure:"mqtt"`
	HTTP   HTTPConfig   `mapstructure:"http"`
	GPIO   GPIOConfig   `mapstructure:"gpio"`
	SNMP   SNMPConfig   `mapstructure:"snmp"`
	Modbus ModbusConfig `mapstructure:"modbus"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_file", "data.json")
	v.SetDefault("log_level", "INFO")
	v.SetDefault("heartbeat", 15*time.Minute)
	v.SetDefault("delivery_timeout", 10*time.Second)
	v.SetDefault("read_timeout", 5*time.Second)
	v.SetDefault("sysfs_root", "/sys/class/power_supply")

	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.client_id", "power-monitor")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.buffer_size", 100)

	v.SetDefault("http.addr", "")

	v.SetDefault("gpio.chip", gpio.DefaultChip)
	v.SetDefault("gpio.pin", gpio.DisabledPin)
	v.SetDefault("gpio.active_low", false)

	v.SetDefault("snmp.host", "")
	v.SetDefault("snmp.port", 161)
	v.SetDefault("snmp.community", "public")
	v.SetDefault("snmp.version", "2c")
	v.SetDefault("snmp.timeout", 2*time.Second)

	v.SetDefault("modbus.endpoint", "")
	v.SetDefault("modbus.slave_id", 1)
	v.SetDefault("modbus.soc_register", 0)
	v.SetDefault("modbus.soc_scale", 1.0)
	v.SetDefault("modbus.grid_register", 1)
	v.SetDefault("modbus.timeout", 2*time.Second)
}

// Load reads the config file at path (yaml, json or toml by extension) if
// path is not empty, then overlays PM_* environment variables.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		log.Debugf("loaded config from %s", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail later at runtime.
func (c Config) Validate() error {
	var errs []error
	if c.DataFile == "" {
		errs = append(errs, errors.New("data_file must not be empty"))
	}
	if _, err := logging.LogLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if c.Heartbeat < 0 {
		errs = append(errs, errors.New("heartbeat must not be negative"))
	}
	if c.DeliveryTimeout <= 0 {
		errs = append(errs, errors.New("delivery_timeout must be positive"))
	}
	if c.ReadTimeout <= 0 {
		errs = append(errs, errors.New("read_timeout must be positive"))
	}
	if c.GPIO.Pin < gpio.DisabledPin {
		errs = append(errs, fmt.Errorf("gpio.pin %d is invalid", c.GPIO.Pin))
	}
	switch c.SNMP.Version {
	case "1", "2c":
	default:
		errs = append(errs, fmt.Errorf("snmp.version %q is not 1 or 2c", c.SNMP.Version))
	}
	if c.Modbus.SOCScale <= 0 {
		errs = append(errs, errors.New("modbus.soc_scale must be positive"))
	}
	if c.MQTT.Broker != "" && c.MQTT.BufferSize <= 0 {
		errs = append(errs, errors.New("mqtt.buffer_size must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
