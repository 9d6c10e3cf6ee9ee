package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	DB      DBConfig      `mapstructure:"db"`
	JWT     JWTConfig     `mapstructure:"jwt"`
	Storage StorageConfig `mapstructure:"storage"`
	AppHost string        `mapstructure:"host"`
	Listen  string        `mapstructure:"listen"`
}

type DBConfig struct {
	Source string `mapstructure:"source"`
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
}

// StorageConfig selects the blob backend: "s3" or "local".
type StorageConfig struct {
	Backend   string        `mapstructure:"backend"`
	URLExpiry time.Duration `mapstructure:"url_expiry"`

	// local backend
	Path string `mapstructure:"path"`

	// s3 backend
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

func Load() (*Config, error) {
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("/configs")
	viper.SetConfigName("settings")
	viper.SetConfigType("yml")

	viper.SetDefault("listen", ":8080")
	viper.SetDefault("host", "http://localhost:8080")
	viper.SetDefault("jwt.expiry", "1h")
	viper.SetDefault("storage.backend", "local")
	viper.SetDefault("storage.path", "./data/blobs")
	viper.SetDefault("storage.url_expiry", "15m")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
