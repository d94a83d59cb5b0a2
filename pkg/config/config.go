package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server          ServerConfig
	DB              DBConfig
	Rooms           RoomsConfig
	Typing          TypingConfig
	Uploads         UploadsConfig
	WS              WSConfig
	Log             LogConfig
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type ServerConfig struct {
	Address        string
	PublicURL      string   `mapstructure:"public_url"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DBConfig struct {
	Driver     string
	Host       string
	User       string
	Password   string
	Name       string
	Port       int
	SQLitePath string `mapstructure:"sqlite_path"`
}

// RoomsConfig 房間代碼、歷史長度與空房間保留時間
type RoomsConfig struct {
	CodeLength      int           `mapstructure:"code_length"`
	MaxCodeAttempts int           `mapstructure:"max_code_attempts"`
	MaxHistory      int           `mapstructure:"max_history"`
	Retention       time.Duration `mapstructure:"retention"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`
}

type TypingConfig struct {
	MinInterval time.Duration `mapstructure:"min_interval"`
}

type UploadsConfig struct {
	MaxBytes      int64  `mapstructure:"max_bytes"`
	Dir           string `mapstructure:"dir"`
	SigningSecret string `mapstructure:"signing_secret"`
	PurgeWithRoom bool   `mapstructure:"purge_with_room"`
}

type WSConfig struct {
	SendBuffer int   `mapstructure:"send_buffer"`
	ReadLimit  int64 `mapstructure:"read_limit"`
}

type LogConfig struct {
	Level  string
	Format string
}

// Load 從 ./pkg/config 或工作目錄讀取 config.yaml，並套用 CODECHAT_* 環境變數
// 找不到設定檔時使用預設值
func Load() (*Config, error) {
	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./pkg/config")
	v.AddConfigPath(".")
	return read(v)
}

// LoadFile 從指定路徑讀取設定
func LoadFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	return read(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("CODECHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func read(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.public_url", "")
	v.SetDefault("server.allowed_origins", []string{})

	v.SetDefault("db.driver", "postgres")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "")
	v.SetDefault("db.name", "codechat")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.sqlite_path", "codechat.db")

	v.SetDefault("rooms.code_length", 6)
	v.SetDefault("rooms.max_code_attempts", 32)
	v.SetDefault("rooms.max_history", 100)
	v.SetDefault("rooms.retention", 2*time.Minute)
	v.SetDefault("rooms.sweep_interval", 30*time.Second)

	v.SetDefault("typing.min_interval", 300*time.Millisecond)

	v.SetDefault("uploads.max_bytes", 16<<20)
	v.SetDefault("uploads.dir", "uploads")
	v.SetDefault("uploads.signing_secret", "change-me")
	v.SetDefault("uploads.purge_with_room", true)

	v.SetDefault("ws.send_buffer", 256)
	// 需大於超過上限的檔案經 base64 編碼後的大小，讓上傳驗證而不是連線回報錯誤
	v.SetDefault("ws.read_limit", 32<<20)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("shutdown_timeout", 30*time.Second)
}
