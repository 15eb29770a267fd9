package core

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config contains all of the configuration options available to the chat
// server and its supporting utilities.
type Config struct {
	// Hostname or IP address on which the server will listen for connections.
	Hostname string `mapstructure:"hostname"`
	// Port on which the server will listen. 0 lets the OS pick one.
	Port int `mapstructure:"port"`
	// Maximum number of concurrent connections the server will allow. 0 means no limit.
	MaxConnections int `mapstructure:"max_connections"`
	// How long the accept loop waits for a connection before checking whether
	// it should shut down.
	AcceptPollInterval time.Duration `mapstructure:"accept_poll_interval"`
	// Number of lifecycle events buffered per subscriber before new ones are dropped.
	SubscriberBuffer int `mapstructure:"subscriber_buffer"`

	Logging struct {
		// Full path to file to which logs will be written. Blank will write to stdout.
		LogFilePath string `mapstructure:"log_file_path"`
		// Minimum level of a log required to be written. Options: debug, info, warn, error
		LogLevel string `mapstructure:"log_level"`
	} `mapstructure:"logging"`

	Throttle struct {
		// Length of the window over which connections from one IP are counted.
		Window time.Duration `mapstructure:"window"`
		// Connections allowed from one IP per window. 0 disables throttling.
		MaxAccepts int `mapstructure:"max_accepts"`
	} `mapstructure:"throttle"`

	Debugging struct {
		// Enable extra info-providing mechanisms for the server.
		Enabled bool `mapstructure:"enabled"`
		// Port on which a pprof server will be started if debug mode is enabled.
		PprofPort int `mapstructure:"pprof_port"`
		// Log every frame read from or written to a client.
		FrameLoggingEnabled bool `mapstructure:"frame_logging_enabled"`
	} `mapstructure:"debugging"`
}

const envVarPrefix = "ROOMCHAT"

var defaults = map[string]interface{}{
	"hostname":                        "0.0.0.0",
	"port":                            7878,
	"max_connections":                 0,
	"accept_poll_interval":            "500ms",
	"subscriber_buffer":               16,
	"logging.log_file_path":           "",
	"logging.log_level":               "info",
	"throttle.window":                 "0s",
	"throttle.max_accepts":            0,
	"debugging.enabled":               false,
	"debugging.pprof_port":            6060,
	"debugging.frame_logging_enabled": false,
}

// DefaultConfig returns the configuration used when no config file or
// environment overrides are present.
func DefaultConfig() *Config {
	config, err := decodeConfig(newViper())
	if err != nil {
		// The defaults are static, so this only happens if they're broken.
		panic(fmt.Sprintf("invalid default config: %v", err))
	}
	return config
}

func newViper() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	return v
}

// LoadConfig reads config.yaml from configPath if there is one and applies
// any environment overrides on top of the defaults.
func LoadConfig(configPath string) (*Config, error) {
	v := newViper()
	v.AddConfigPath(configPath)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envVarPrefix)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// This allows us to set nested yaml config options through environment
	// variables. For example, logging.log_level can be set using: <envVarPrefix>_LOGGING_LOG_LEVEL
	for _, k := range v.AllKeys() {
		envVar := strings.ReplaceAll(strings.ToUpper(k), ".", "_")
		if err := v.BindEnv(k, envVarPrefix+"_"+envVar); err != nil {
			return nil, fmt.Errorf("error binding %s to %s: %w", k, envVarPrefix+"_"+envVar, err)
		}
	}

	return decodeConfig(v)
}

func decodeConfig(v *viper.Viper) (*Config, error) {
	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config object: %w", err)
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.AcceptPollInterval <= 0 {
		return fmt.Errorf("accept_poll_interval must be positive, got %v", c.AcceptPollInterval)
	}
	if c.MaxConnections < 0 || c.Throttle.MaxAccepts < 0 {
		return errors.New("connection limits cannot be negative")
	}
	return nil
}

// Address returns the host:port the server should bind to.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Hostname, strconv.Itoa(c.Port))
}

// PprofAddress returns the local address of the pprof server.
func (c *Config) PprofAddress() string {
	return fmt.Sprintf("localhost:%d", c.Debugging.PprofPort)
}
