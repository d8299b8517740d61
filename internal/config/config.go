package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type AuthConfig struct {
	Secret    string `mapstructure:"secret"`
	Algorithm string `mapstructure:"algorithm"`
	Issuer    string `mapstructure:"issuer"`
	Audience  string `mapstructure:"audience"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

type Config struct {
	Mode   string `mapstructure:"mode"`
	Port   int    `mapstructure:"port"`
	Secret string `mapstructure:"secret"`

	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	PongWait   time.Duration `mapstructure:"pong_wait"`
	WriteWait  time.Duration `mapstructure:"write_wait"`
	SendBuffer int           `mapstructure:"send_buffer"`

	LoopBacklog     int           `mapstructure:"loop_backlog"`
	RoomTimeout     time.Duration `mapstructure:"room_timeout"`
	UpgradeLimit    int           `mapstructure:"upgrade_limit"`
	UpgradeInterval time.Duration `mapstructure:"upgrade_interval"`

	Auth AuthConfig `mapstructure:"auth"`
	Log  LogConfig  `mapstructure:"log"`

	ICEServers []webrtc.ICEServer `mapstructure:"-"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 3000)
	v.SetDefault("secret", "dial-session")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "20s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("write_wait", "5s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("loop_backlog", 1024)
	v.SetDefault("room_timeout", "90s")
	v.SetDefault("upgrade_limit", 20)
	v.SetDefault("upgrade_interval", "10s")

	v.SetDefault("auth.secret", "@dial/backend")
	v.SetDefault("auth.algorithm", "HS256")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.audience", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)

	v.SetDefault("ice_servers", DefaultICEServers)
}

// Load resolves the configuration from, lowest first: defaults, the yaml
// file, DIAL_* environment variables and command line flags.
func Load(args []string) (*Config, error) {
	fs := pflag.NewFlagSet("dial", pflag.ContinueOnError)
	fs.String("config", "", "path to a yaml config file")
	fs.String("mode", "release", "gin mode: debug, release or test")
	fs.Int("port", 3000, "http listen port")
	fs.String("log-level", "info", "log level")
	if err := fs.Parse(args); err != nil {
		return nil, errors.Wrap(err, "parse flags")
	}

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix("DIAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, flag := range map[string]string{"mode": "mode", "port": "port", "log.level": "log-level"} {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return nil, errors.Wrapf(err, "bind flag %s", flag)
		}
	}

	fileName, _ := fs.GetString("config")
	explicit := fileName != ""
	if !explicit {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		fileName = fmt.Sprintf("config/config.%s.yaml", env)
	}
	v.SetConfigFile(fileName)

	if err := v.ReadInConfig(); err != nil {
		if explicit {
			return nil, errors.Wrapf(err, "read config %s", fileName)
		}
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("config loaded")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config")
	}
	servers, err := decodeICEServers(v.Get("ice_servers"))
	if err != nil {
		return nil, err
	}
	cfg.ICEServers = servers

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Int("ice_servers", len(cfg.ICEServers)).Msg("config resolved")
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Mode {
	case "debug", "release", "test":
	default:
		return errors.Newf("unknown mode %q", c.Mode)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return errors.Newf("port %d out of range", c.Port)
	}
	if c.PingPeriod >= c.PongWait {
		return errors.Newf("ping_period %s must be shorter than pong_wait %s", c.PingPeriod, c.PongWait)
	}
	if c.Auth.Secret == "" {
		return errors.New("auth.secret is empty")
	}
	return nil
}
