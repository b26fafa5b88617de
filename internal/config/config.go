package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"

	FeedLocal    = "local"
	FeedPostgres = "postgres"
)

type Config struct {
	Env      string   `yaml:"env" env:"APP_ENV" env-default:"local"`
	HTTP     HTTP     `yaml:"http"`
	Database Database `yaml:"database"`
	Game     Game     `yaml:"game"`
	Media    Media    `yaml:"media"`
}

type HTTP struct {
	Address         string        `yaml:"address" env:"HTTP_ADDR" env-default:":8080"`
	AllowedOrigins  []string      `yaml:"allowed_origins" env:"HTTP_ALLOWED_ORIGINS" env-separator:"," env-default:"*"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"10s"`
	SecureCookies   bool          `yaml:"secure_cookies" env:"HTTP_SECURE_COOKIES" env-default:"false"`
	// JoinRate is requests per minute per client IP on room create/join.
	JoinRate  int `yaml:"join_rate" env:"HTTP_JOIN_RATE" env-default:"30"`
	JoinBurst int `yaml:"join_burst" env:"HTTP_JOIN_BURST" env-default:"10"`
}

type Database struct {
	URL             string        `yaml:"url" env:"DATABASE_URL"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS" env-default:"10"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"DB_CONN_MAX_LIFETIME" env-default:"5m"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" env:"DB_CONN_MAX_IDLE_TIME" env-default:"1m"`
	// ChangeFeed selects where change notifications come from: "local"
	// publishes from this process, "postgres" listens for NOTIFY.
	ChangeFeed string `yaml:"change_feed" env:"CHANGE_FEED" env-default:"local"`
}

type Game struct {
	MaxPlayers       int  `yaml:"max_players" env:"GAME_MAX_PLAYERS" env-default:"8"`
	PhotosPerPlayer  int  `yaml:"photos_per_player" env:"GAME_PHOTOS_PER_PLAYER" env-default:"3"`
	MinPlayers       int  `yaml:"min_players" env:"GAME_MIN_PLAYERS" env-default:"2"`
	GuessSeconds     int  `yaml:"guess_seconds" env:"GAME_GUESS_SECONDS" env-default:"20"`
	BasePoints       int  `yaml:"base_points" env:"GAME_BASE_POINTS" env-default:"100"`
	BonusPerSecond   int  `yaml:"bonus_per_second" env:"GAME_BONUS_PER_SECOND" env-default:"5"`
	TrustClientTimer bool `yaml:"trust_client_timer" env:"GAME_TRUST_CLIENT_TIMER" env-default:"false"`
	AllowVideos      bool `yaml:"allow_videos" env:"GAME_ALLOW_VIDEOS" env-default:"false"`
}

type Media struct {
	Dir            string `yaml:"dir" env:"MEDIA_DIR" env-default:"media"`
	BaseURL        string `yaml:"base_url" env:"MEDIA_BASE_URL" env-default:"/media"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes" env:"MEDIA_MAX_UPLOAD_BYTES" env-default:"10485760"`
}

// LoadDotEnv loads environment variables from a .env file if present.
// Variables already set in the environment win.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

func Default() Config {
	return Config{
		Env: EnvLocal,
		HTTP: HTTP{
			Address:         ":8080",
			AllowedOrigins:  []string{"*"},
			ShutdownTimeout: 10 * time.Second,
			JoinRate:        30,
			JoinBurst:       10,
		},
		Database: Database{
			MaxOpenConns:    10,
			MaxIdleConns:    10,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: time.Minute,
			ChangeFeed:      FeedLocal,
		},
		Game: Game{
			MaxPlayers:      8,
			PhotosPerPlayer: 3,
			MinPlayers:      2,
			GuessSeconds:    20,
			BasePoints:      100,
			BonusPerSecond:  5,
		},
		Media: Media{
			Dir:            "media",
			BaseURL:        "/media",
			MaxUploadBytes: 10 << 20,
		},
	}
}

// Load reads the YAML file at path (when given) and then the environment.
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return Config{}, fmt.Errorf("config file %s: %w", path, err)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Env {
	case EnvLocal, EnvDev, EnvProd:
	default:
		return fmt.Errorf("unknown env %q", c.Env)
	}
	switch c.Database.ChangeFeed {
	case FeedLocal, FeedPostgres:
	default:
		return fmt.Errorf("unknown change feed %q", c.Database.ChangeFeed)
	}
	if c.Database.ChangeFeed == FeedPostgres && c.Database.URL == "" {
		return errors.New("postgres change feed needs DATABASE_URL")
	}
	g := c.Game
	if g.MinPlayers < 2 || g.MaxPlayers < g.MinPlayers {
		return fmt.Errorf("player limits %d..%d are invalid", g.MinPlayers, g.MaxPlayers)
	}
	if g.PhotosPerPlayer < 1 {
		return errors.New("photos per player must be positive")
	}
	if g.GuessSeconds < 1 || g.BasePoints < 0 || g.BonusPerSecond < 0 {
		return errors.New("scoring settings are invalid")
	}
	if c.Media.MaxUploadBytes <= 0 {
		return errors.New("media upload limit must be positive")
	}
	return nil
}
