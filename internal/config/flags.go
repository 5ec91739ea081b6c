package config

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flagKeys maps command line flags onto config keys.
var flagKeys = map[string]string{
	"config":        fileKey,
	"quality":       "TRACK_QUALITY",
	"video-quality": "VIDEO_QUALITY",
	"path":          "DOWNLOAD_PATH",
	"scan-path":     "SCAN_PATH",
	"threads":       "THREADS",
	"skip-existing": "SKIP_EXISTING",
	"skip-errors":   "SKIP_ERRORS",
	"singles":       "SINGLES_FILTER",
	"videos":        "VIDEOS_FILTER",
	"country":       "COUNTRY_CODE",
	"m3u":           "M3U_SAVE",
	"cover":         "COVER_SAVE",
	"no-metadata":   "",
	"log-level":     "LOG_LEVEL",
}

// RegisterFlags adds the command line overrides to fs. Flags only take
// effect when set, so unset flags fall through to the environment, the
// config file and the defaults.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "path to a config file (toml, yaml or json)")
	fs.StringP("quality", "q", "", "track quality: low, normal, high or max")
	fs.String("video-quality", "", "video quality: sd, hd or fhd")
	fs.StringP("path", "p", "", "download directory")
	fs.String("scan-path", "", "directory checked for existing files")
	fs.IntP("threads", "t", 4, "concurrent downloads")
	fs.Bool("skip-existing", true, "skip items whose file already exists")
	fs.BoolP("skip-errors", "s", false, "keep going when a resource fails")
	fs.String("singles", "", "artist singles: none, only or include")
	fs.String("videos", "", "videos: none, only or allow")
	fs.StringP("country", "c", "", "catalog country code")
	fs.Bool("m3u", false, "write playlist files for collections")
	fs.Bool("cover", false, "save cover images next to downloads")
	fs.Bool("no-metadata", false, "do not tag downloaded files")
	fs.StringP("log-level", "l", "", "debug, info, warn or error")
}

// BindFlags binds the flags registered by RegisterFlags into the config.
// Call it after fs has been parsed and before LoadConfig.
func BindFlags(fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			return fmt.Errorf("bind flags: unknown flag %q", name)
		}
		if key == "" {
			continue
		}
		if err := viper.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	if f := fs.Lookup("no-metadata"); f.Changed && f.Value.String() == "true" {
		viper.Set("METADATA_ENABLE", false)
	}
	return nil
}
