package config

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/justachat/jachat-services/globals"
)

const (
	defaultCommandPrefix = "/"
	defaultHistorySize   = 100
)

// Config is the global configuration object which is filled via the
// configuration file, environment (JACHAT_ prefix) and command-line flags.
type Config struct {
	HistoryConfig     HistoryConfig     `mapstructure:"history"`
	OIDCConfigs       []OIDCConfig      `mapstructure:"oidc"`
	PersistenceConfig PersistenceConfig `mapstructure:"persistence"`
	RoomConfigs       []RoomConfig      `mapstructure:"room"`
	LogLevel          string            `mapstructure:"log_level"`
	CommandPrefix     string            `mapstructure:"command_prefix"`
	// OperPassword is the shared services-operator secret checked by the
	// oper command. Empty disables oper authentication entirely.
	OperPassword string `mapstructure:"oper_password"`
	// StatsCron is a cron spec for periodic network statistics
	// announcements into every room, empty disables them.
	StatsCron string `mapstructure:"stats_cron"`
}

// HistoryConfig configures the size of the immediate event history that is
// kept in memory in a ring buffer and sent to newly connected clients.
type HistoryConfig struct {
	HistorySize int `mapstructure:"history_size"`
}

// An OIDCConfig object configures an OpenID Connect provider that is used to
// authenticate users. Users provide an ID token and the name of the provider,
// the authentication is then performed via verification of the token.
type OIDCConfig struct {
	Name        string `mapstructure:"name"`
	ClientId    string `mapstructure:"client_id"`
	ProviderUrl string `mapstructure:"provider_url"` // f.e. "https://accounts.google.com", this is used to construct the discovery url and subsequently discover the openid endpoints
}

// PersistenceConfig selects the storage backend. Type is one of "sqlite",
// "postgres" or "buntdb", DSN is the backend-specific connection string
// (a file name for sqlite and buntdb).
type PersistenceConfig struct {
	Type string `mapstructure:"type"`
	DSN  string `mapstructure:"dsn"`
}

// Each named RoomConfig block overrides global settings for one room. The
// raw part is kept as-is so room-level settings can be extended without
// touching the global parser.
type RoomConfig struct {
	Name          string                 `mapstructure:"name"`
	StatsCron     string                 `mapstructure:"stats_cron"`
	RawRoomConfig map[string]interface{} `mapstructure:",remain"`
}

func GetFlagSet() *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("configuration", pflag.ContinueOnError)
	flagSet.StringP("oper-password", "o", "", "services operator password")
	flagSet.StringP("log-level", "l", "", "log level")
	return flagSet
}

// wordSepNormalizeFunc allows for normalization of the flag names (which use - as a separator)
func wordSepNormalizeFunc(f *pflag.FlagSet, name string) pflag.NormalizedName {
	from := "-"
	to := "_"
	name = strings.Replace(name, from, to, -1)
	return pflag.NormalizedName(name)
}

// ReadConfiguration reads and parses the configuration located at configPath,
// which can either point to a single TOML file or to a directory, in which
// case all *.toml files in this directory are concatenated. It returns a
// Config object.
func ReadConfiguration(configPath string, flagSet *pflag.FlagSet) (*Config, error) {
	cfg := Config{}
	flagSet.SetNormalizeFunc(wordSepNormalizeFunc)
	viper.SetDefault("command_prefix", defaultCommandPrefix)
	viper.SetDefault("history.history_size", defaultHistorySize)
	err := viper.BindPFlags(flagSet)
	if err != nil {
		globals.AppLogger.Error("could not bind flags (ignored)", "error", err)
	}
	viper.SetEnvPrefix("JACHAT")
	viper.AutomaticEnv()
	if configPath != "" {
		fi, err := os.Stat(configPath)
		if err != nil {
			return nil, err
		}
		contents := make([]byte, 0)
		files := []string{configPath}
		if fi.IsDir() {
			files, err = filepath.Glob(filepath.Join(configPath, "*.toml"))
			if err != nil {
				return nil, err
			}
		}
		for _, configFile := range files {
			fileContents, err := ioutil.ReadFile(configFile)
			if err != nil {
				return nil, err
			}
			contents = append(contents, fileContents...)
			contents = append(contents, '\n')
		}
		viper.SetConfigType("toml")
		err = viper.ReadConfig(bytes.NewBuffer(contents))
		if err != nil {
			globals.AppLogger.Error("could not read config:", "error", err)
		}
	}
	err = viper.Unmarshal(&cfg)
	if err != nil {
		globals.AppLogger.Error("could not unmarshal config:", "error", err)
	}
	return &cfg, nil
}

// RoomConfigFor returns the room override block for the given room name, or
// nil if the room has no dedicated configuration.
func (c *Config) RoomConfigFor(name string) *RoomConfig {
	for i := range c.RoomConfigs {
		if c.RoomConfigs[i].Name == name {
			return &c.RoomConfigs[i]
		}
	}
	return nil
}
