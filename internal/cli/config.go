package cli

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the resolved configuration of serve and inspect.
type Config struct {
	// Address of the dataset to open. A new dataset is created when empty.
	Address string `yaml:"address,omitempty"`
	Name    string `yaml:"name"`
	Order   int    `yaml:"order"`
	Hash    string `yaml:"hash"`

	Store   string   `yaml:"store"`
	DataDir string   `yaml:"data-dir"`
	S3      S3Config `yaml:"s3,omitempty"`
	KeyFile string   `yaml:"key-file,omitempty"`

	Listen            string        `yaml:"listen"`
	HubURL            string        `yaml:"hub-url,omitempty"`
	ServeHub          bool          `yaml:"serve-hub"`
	BroadcastInterval time.Duration `yaml:"broadcast-interval"`
	LogLevel          string        `yaml:"log-level"`
}

type S3Config struct {
	Bucket   string `yaml:"bucket,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty"`
	Region   string `yaml:"region,omitempty"`
}

// configFromViper reads every key bound by the store and serve flags.
func configFromViper() Config {
	return Config{
		Address:           viper.GetString("address"),
		Name:              viper.GetString("name"),
		Order:             viper.GetInt("order"),
		Hash:              viper.GetString("hash"),
		Store:             viper.GetString("store"),
		DataDir:           viper.GetString("data-dir"),
		KeyFile:           viper.GetString("key-file"),
		Listen:            viper.GetString("listen"),
		HubURL:            viper.GetString("hub-url"),
		ServeHub:          viper.GetBool("serve-hub"),
		BroadcastInterval: viper.GetDuration("broadcast-interval"),
		LogLevel:          viper.GetString("log-level"),
		S3: S3Config{
			Bucket:   viper.GetString("s3-bucket"),
			Prefix:   viper.GetString("s3-prefix"),
			Endpoint: viper.GetString("s3-endpoint"),
			Region:   viper.GetString("s3-region"),
		},
	}
}

func (c Config) validate() error {
	switch c.Store {
	case storeMemory, storeFile, storeBolt, storeLevelDB, storePebble:
	case storeS3:
		if c.S3.Bucket == "" {
			return fmt.Errorf("store s3 needs --s3-bucket")
		}
	default:
		return fmt.Errorf("invalid store %q (expected one of: memory, file, bolt, leveldb, pebble, s3)", c.Store)
	}
	if c.HubURL != "" && c.ServeHub {
		return fmt.Errorf("--hub-url and --serve-hub are exclusive")
	}
	return nil
}

// String renders the configuration as YAML.
func (c Config) String() string {
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("%#v", c)
	}
	return string(b)
}
