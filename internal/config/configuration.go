package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every key when read from the environment.
const EnvPrefix = "TIDDL"

// FileEnv names the environment variable pointing at an optional config file.
const FileEnv = EnvPrefix + "_CONFIG"

// fileKey holds the config file path; the --config flag binds to it too.
const fileKey = "config"

type Config struct {
	// Authentication
	Token             string `mapstructure:"TOKEN" validate:"required_without=RefreshToken"`
	RefreshToken      string `mapstructure:"REFRESH_TOKEN"`
	ClientCredentials string `mapstructure:"CLIENT_CREDENTIALS"`
	CountryCode       string `mapstructure:"COUNTRY_CODE" validate:"len=2"`
	APIURL            string `mapstructure:"API_URL" validate:"omitempty,url"`
	AuthURL           string `mapstructure:"AUTH_URL" validate:"omitempty,url"`

	// Download
	TrackQuality    string  `mapstructure:"TRACK_QUALITY" validate:"oneof=low normal high max"`
	VideoQuality    string  `mapstructure:"VIDEO_QUALITY" validate:"oneof=sd hd fhd"`
	DownloadPath    string  `mapstructure:"DOWNLOAD_PATH" validate:"required"`
	ScanPath        string  `mapstructure:"SCAN_PATH"`
	Threads         int     `mapstructure:"THREADS" validate:"min=1,max=64"`
	SkipExisting    bool    `mapstructure:"SKIP_EXISTING"`
	SinglesFilter   string  `mapstructure:"SINGLES_FILTER" validate:"oneof=none only include"`
	VideosFilter    string  `mapstructure:"VIDEOS_FILTER" validate:"oneof=none only allow"`
	SkipErrors      bool    `mapstructure:"SKIP_ERRORS"`
	SkipUnavailable bool    `mapstructure:"SKIP_UNAVAILABLE"`
	PageSize        int     `mapstructure:"PAGE_SIZE" validate:"min=1,max=100"`
	RateLimit       float64 `mapstructure:"RATE_LIMIT" validate:"min=0"`
	FFmpegPath      string  `mapstructure:"FFMPEG_PATH" validate:"required"`

	// File name templates
	TemplateDefault  string `mapstructure:"TEMPLATE_DEFAULT" validate:"required"`
	TemplateTrack    string `mapstructure:"TEMPLATE_TRACK"`
	TemplateVideo    string `mapstructure:"TEMPLATE_VIDEO"`
	TemplateAlbum    string `mapstructure:"TEMPLATE_ALBUM"`
	TemplatePlaylist string `mapstructure:"TEMPLATE_PLAYLIST"`
	TemplateMix      string `mapstructure:"TEMPLATE_MIX"`

	// M3U playlists
	M3USave             bool     `mapstructure:"M3U_SAVE"`
	M3UAllowed          []string `mapstructure:"M3U_ALLOWED" validate:"dive,oneof=album playlist mix"`
	M3UTemplateAlbum    string   `mapstructure:"M3U_TEMPLATE_ALBUM" validate:"required_if=M3USave true"`
	M3UTemplatePlaylist string   `mapstructure:"M3U_TEMPLATE_PLAYLIST" validate:"required_if=M3USave true"`
	M3UTemplateMix      string   `mapstructure:"M3U_TEMPLATE_MIX" validate:"required_if=M3USave true"`

	// Cover files
	CoverSave             bool     `mapstructure:"COVER_SAVE"`
	CoverSize             int      `mapstructure:"COVER_SIZE" validate:"min=80,max=1280"`
	CoverAllowed          []string `mapstructure:"COVER_ALLOWED" validate:"dive,oneof=track album playlist"`
	CoverTemplateTrack    string   `mapstructure:"COVER_TEMPLATE_TRACK"`
	CoverTemplateAlbum    string   `mapstructure:"COVER_TEMPLATE_ALBUM"`
	CoverTemplatePlaylist string   `mapstructure:"COVER_TEMPLATE_PLAYLIST"`

	// Metadata
	MetadataEnable  bool `mapstructure:"METADATA_ENABLE"`
	MetadataLyrics  bool `mapstructure:"METADATA_LYRICS"`
	MetadataCover   bool `mapstructure:"METADATA_COVER"`
	MetadataReview  bool `mapstructure:"METADATA_REVIEW"`
	RewriteMetadata bool `mapstructure:"REWRITE_METADATA"`
	UpdateMtime     bool `mapstructure:"UPDATE_MTIME"`

	// Response cache
	CacheBackend string `mapstructure:"CACHE_BACKEND" validate:"oneof=sqlite memory redis none"`
	CachePath    string `mapstructure:"CACHE_PATH" validate:"required_if=CacheBackend sqlite"`
	RedisURL     string `mapstructure:"REDIS_URL" validate:"required_if=CacheBackend redis"`
	CacheRetries int    `mapstructure:"CACHE_RETRIES" validate:"min=0"`

	// Logging
	LogLevel  string `mapstructure:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	LogFormat string `mapstructure:"LOG_FORMAT" validate:"oneof=text json"`
}

// LogValue keeps credentials out of the logs.
func (c Config) LogValue() slog.Value {
	redact := func(s string) string {
		if s == "" {
			return ""
		}
		return "[redacted]"
	}
	return slog.GroupValue(
		slog.String("token", redact(c.Token)),
		slog.String("refresh_token", redact(c.RefreshToken)),
		slog.String("country_code", c.CountryCode),
		slog.String("track_quality", c.TrackQuality),
		slog.String("video_quality", c.VideoQuality),
		slog.String("download_path", c.DownloadPath),
		slog.String("scan_path", c.ScanPath),
		slog.Int("threads", c.Threads),
		slog.Bool("skip_existing", c.SkipExisting),
		slog.String("singles_filter", c.SinglesFilter),
		slog.String("videos_filter", c.VideosFilter),
		slog.String("cache_backend", c.CacheBackend),
		slog.String("log_level", c.LogLevel),
	)
}

// use reflect to bind environment variables based on mapstructure tags
func bindEnv(c Config) {
	typ := reflect.TypeOf(c)
	for i := 0; i < typ.NumField(); i++ {
		if tag := typ.Field(i).Tag.Get("mapstructure"); tag != "" {
			_ = viper.BindEnv(tag)
		}
	}
}

func setDefaults() {
	home, _ := os.UserHomeDir()
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		cacheDir = filepath.Join(home, ".cache")
	}

	viper.SetDefault("COUNTRY_CODE", "US")
	viper.SetDefault("TRACK_QUALITY", "high")
	viper.SetDefault("VIDEO_QUALITY", "fhd")
	viper.SetDefault("DOWNLOAD_PATH", filepath.Join(home, "Music", "tiddl"))
	viper.SetDefault("THREADS", 4)
	viper.SetDefault("SKIP_EXISTING", true)
	viper.SetDefault("SINGLES_FILTER", "none")
	viper.SetDefault("VIDEOS_FILTER", "none")
	viper.SetDefault("PAGE_SIZE", 20)
	viper.SetDefault("FFMPEG_PATH", "ffmpeg")

	viper.SetDefault("TEMPLATE_DEFAULT", "{album.artist}/{album.title}/{item.title}")
	viper.SetDefault("M3U_TEMPLATE_ALBUM", "{album.artist}/{album.title}/{album.title}")
	viper.SetDefault("M3U_TEMPLATE_PLAYLIST", "playlists/{playlist.title}/{playlist.title}")
	viper.SetDefault("M3U_TEMPLATE_MIX", "mixes/{mix_id}/{mix_id}")
	viper.SetDefault("COVER_SIZE", 1280)
	viper.SetDefault("COVER_TEMPLATE_TRACK", "{album.artist}/{album.title}/cover")
	viper.SetDefault("COVER_TEMPLATE_ALBUM", "{album.artist}/{album.title}/cover")
	viper.SetDefault("COVER_TEMPLATE_PLAYLIST", "playlists/{playlist.title}/cover")

	viper.SetDefault("METADATA_ENABLE", true)

	viper.SetDefault("CACHE_BACKEND", "sqlite")
	viper.SetDefault("CACHE_PATH", filepath.Join(cacheDir, "tiddl", "responses.db"))
	viper.SetDefault("CACHE_RETRIES", 10)

	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "text")
}

// LoadConfig reads defaults, the optional config file named by TIDDL_CONFIG,
// the environment and any flags already bound into viper, in increasing
// order of precedence.
func LoadConfig(ctx context.Context) (*Config, error) {
	viper.SetEnvPrefix(EnvPrefix)
	bindEnv(Config{})
	viper.AutomaticEnv()
	setDefaults()

	_ = viper.BindEnv(fileKey, FileEnv)
	if file := viper.GetString(fileKey); file != "" {
		viper.SetConfigFile(expandHome(file))
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		slog.Debug("Read config file", "path", viper.ConfigFileUsed())
	}

	cfg := Config{}
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.DownloadPath = expandHome(cfg.DownloadPath)
	cfg.ScanPath = expandHome(cfg.ScanPath)
	if cfg.ScanPath == "" {
		cfg.ScanPath = cfg.DownloadPath
	}
	cfg.CachePath = expandHome(cfg.CachePath)
	cfg.CountryCode = strings.ToUpper(cfg.CountryCode)

	slog.Debug("Loaded configuration", "config", cfg)

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
