package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	LogLevel      string  `yaml:"log-level" env-default:"info"`
	SocketPort    string  `yaml:"socket-port" env-default:"5555"`
	WebSocketPort string  `yaml:"websocket-port" env-default:""`
	TLS           TLS     `yaml:"tls"`
	Storage       Storage `yaml:"storage"`
	Game          Game    `yaml:"game"`
}

// TLS wraps the accept boundary when both files are set; otherwise the
// listener is plain TCP.
type TLS struct {
	CertFile string `yaml:"cert-file" env-default:""`
	KeyFile  string `yaml:"key-file" env-default:""`
}

func (that *TLS) Enabled() bool {
	return that.CertFile != "" && that.KeyFile != ""
}

type Storage struct {
	// Backend selects the profile store implementation: "sqlite" or "redis".
	Backend    string `yaml:"backend" env-default:"sqlite"`
	SQLitePath string `yaml:"sqlite-path" env-default:"caro.db"`
	Redis      Redis  `yaml:"redis"`
}

type Redis struct {
	Host string `yaml:"host" env-default:"localhost"`
	Port string `yaml:"port" env-default:"6379"`
}

func (that *Redis) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", that.Host, that.Port)
}

type Game struct {
	BoardSize            int `yaml:"board-size" env-default:"15"`
	DefaultTimeLimitSecs int `yaml:"default-time-limit" env-default:"30"`
	SweepIntervalSecs    int `yaml:"sweep-interval" env-default:"3"`
	InactivitySecs       int `yaml:"inactivity-timeout" env-default:"15"`
}

func (that *Game) DefaultTimeLimit() time.Duration {
	return time.Duration(that.DefaultTimeLimitSecs) * time.Second
}

func (that *Game) SweepInterval() time.Duration {
	return time.Duration(that.SweepIntervalSecs) * time.Second
}

func (that *Game) InactivityTimeout() time.Duration {
	return time.Duration(that.InactivitySecs) * time.Second
}

// MustLoad - load all configurations in config.yml file.
func MustLoad(path string) *Config {
	config := &Config{}

	if err := cleanenv.ReadConfig(path, config); err != nil {
		panic(fmt.Errorf("unable to load config file: %w", err))
	}

	return config
}
