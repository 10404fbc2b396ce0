// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kkyr/fig"

	"github.com/wneessen/placetrack/internal/places"
	"github.com/wneessen/placetrack/internal/tracker"
)

const (
	configEnv      = "PLACETRACK"
	DefaultTextTpl = `{{if .Directions}}{{.Icon}} {{if .Route}}{{distance .Route.DistanceMeters}} · ` +
		`{{minutes .Route.DurationSeconds}}{{else}}{{loc "searching route"}}{{end}}{{else}}{{.Icon}} ` +
		`{{if .Address}}{{.Address}}{{else}}{{loc "unknown address"}}{{end}}{{end}}`
	DefaultTooltipTpl = `{{loc "Destination"}}: {{.Destination.Name}}{{if .Destination.Subtype}} ` +
		`({{.Destination.Subtype}}){{end}}{{if .Stars}} {{.Stars}}{{end}}` + "\n" +
		`{{loc "Current address"}}: {{if .Address}}{{.Address}}{{else}}-{{end}}` + "\n" +
		`{{if .Route}}{{loc "Distance"}}: {{distance .Route.DistanceMeters}}` + "\n" +
		`{{loc "Travel time"}}: {{minutes .Route.DurationSeconds}}` + "\n" +
		`{{loc "Arrival"}}: {{timeFormat .Arrival "15:04"}} ({{naturalTime .Arrival}})` + "\n" +
		`{{loc "Alternatives"}}: {{.Alternatives}}{{end}}{{if .Error}}{{loc "Error"}}: {{.Error}}{{end}}`

	// MaxJitterDistance is the largest accepted jitter distance in meters.
	MaxJitterDistance = 1000.0

	GeocoderNominatim      = "osm-nominatim"
	GeocoderOpenCage       = "opencage"
	RouterOSRM             = "osrm"
	RouterOpenRouteService = "openrouteservice"
)

var ErrMissingAPIKey = errors.New("API key required")

// Config represents the application's configuration structure.
type Config struct {
	// Allowed values: metric, imperial
	Units    string     `fig:"units" default:"metric"`
	Locale   string     `fig:"locale"`
	LogLevel slog.Level `fig:"loglevel" default:"0"`
	// Allowed values: passive, directions
	Mode  string `fig:"mode" default:"passive"`
	Place string `fig:"place"`
	// Allowed values: date, name
	Sort string `fig:"sort" default:"date"`

	Tracking struct {
		DirectionsThreshold float64 `fig:"directions_threshold" default:"20"`
		AddressThreshold    float64 `fig:"address_threshold" default:"50"`
		RegionMeters        float64 `fig:"region_meters" default:"2000"`
		JitterDistance      float64 `fig:"jitter_distance" default:"3"`
	} `fig:"tracking"`

	Intervals struct {
		Output        time.Duration `fig:"output" default:"30s"`
		LookupTimeout time.Duration `fig:"lookup_timeout" default:"30s"`
	} `fig:"intervals"`

	Templates struct {
		Text    string `fig:"text"`
		Tooltip string `fig:"tooltip"`
	} `fig:"templates"`

	GeoLocation struct {
		File                   string `fig:"file"`
		DesktopID              string `fig:"desktop_id" default:"placetrack"`
		GPSDHost               string `fig:"gpsd_host" default:"localhost"`
		GPSDPort               string `fig:"gpsd_port" default:"2947"`
		ICHNAEAEndpoint        string `fig:"ichnaea_endpoint"`
		DisableGeolocationFile bool   `fig:"disable_geolocation_file"`
		DisableGPSD            bool   `fig:"disable_gpsd"`
		DisableGeoClue         bool   `fig:"disable_geoclue"`
		DisableICHNAEA         bool   `fig:"disable_ichnaea"`
	} `fig:"geolocation"`

	Geocoder struct {
		// Allowed values: osm-nominatim, opencage
		Provider string        `fig:"provider" default:"osm-nominatim"`
		APIKey   string        `fig:"apikey"`
		HitTTL   time.Duration `fig:"hit_ttl" default:"1h"`
		MissTTL  time.Duration `fig:"miss_ttl" default:"5m"`
	} `fig:"geocoder"`

	Routing struct {
		// Allowed values: osrm, openrouteservice
		Provider string `fig:"provider" default:"osrm"`
		Endpoint string `fig:"endpoint"`
		APIKey   string `fig:"apikey"`
	} `fig:"routing"`

	Places []places.Place `fig:"places"`
}

func NewFromFile(path, file string) (*Config, error) {
	conf := new(Config)
	_, err := os.Stat(filepath.Join(path, file))
	if err != nil {
		return conf, fmt.Errorf("failed to read Config: %w", err)
	}
	if err = fig.Load(conf, fig.Dirs(path), fig.File(file), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load Config: %w", err)
	}

	return conf, conf.Validate()
}

func New() (*Config, error) {
	conf := new(Config)
	if err := fig.Load(conf, fig.AllowNoFile(), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load Config: %w", err)
	}

	return conf, conf.Validate()
}

// LoadDotEnv loads environment variables from the given .env files. Files that do not
// exist are skipped, variables that are already set are not overridden.
func LoadDotEnv(files ...string) error {
	for _, file := range files {
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load env file %q: %w", file, err)
		}
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Units != "metric" && c.Units != "imperial" {
		return fmt.Errorf("invalid units: %s", c.Units)
	}
	if c.Locale == "" {
		c.Locale = getLocale()
	}
	if _, err := tracker.ParseMode(c.Mode); err != nil {
		return fmt.Errorf("invalid mode: %w", err)
	}
	if _, err := places.ParseSortKey(c.Sort); err != nil {
		return fmt.Errorf("invalid sort order: %w", err)
	}
	if c.Tracking.DirectionsThreshold <= 0 || c.Tracking.AddressThreshold <= 0 {
		return fmt.Errorf("invalid tracking thresholds: %g/%g", c.Tracking.DirectionsThreshold,
			c.Tracking.AddressThreshold)
	}
	if c.Tracking.RegionMeters <= 0 {
		return fmt.Errorf("invalid region size: %g", c.Tracking.RegionMeters)
	}
	if !(c.Tracking.JitterDistance >= 0 && c.Tracking.JitterDistance <= MaxJitterDistance) {
		return fmt.Errorf("invalid jitter distance: %g (allowed range: 0-%g)", c.Tracking.JitterDistance,
			MaxJitterDistance)
	}
	if c.Intervals.Output <= 0 {
		return fmt.Errorf("invalid output interval: %s", c.Intervals.Output)
	}
	if c.Templates.Text == "" {
		c.Templates.Text = DefaultTextTpl
	}
	if c.Templates.Tooltip == "" {
		c.Templates.Tooltip = DefaultTooltipTpl
	}
	if c.GeoLocation.File == "" {
		home, _ := os.UserHomeDir()
		c.GeoLocation.File = filepath.Join(home, ".config", "placetrack", "geolocation")
	}

	switch c.Geocoder.Provider {
	case GeocoderNominatim:
	case GeocoderOpenCage:
		if c.Geocoder.APIKey == "" {
			return fmt.Errorf("geocoder %s: %w", c.Geocoder.Provider, ErrMissingAPIKey)
		}
	default:
		return fmt.Errorf("invalid geocoder provider: %s", c.Geocoder.Provider)
	}
	switch c.Routing.Provider {
	case RouterOSRM:
	case RouterOpenRouteService:
		if c.Routing.APIKey == "" {
			return fmt.Errorf("routing provider %s: %w", c.Routing.Provider, ErrMissingAPIKey)
		}
	default:
		return fmt.Errorf("invalid routing provider: %s", c.Routing.Provider)
	}

	return nil
}

func getLocale() string {
	locale := os.Getenv("LC_MESSAGES")
	if idx := strings.Index(locale, "."); idx != -1 {
		lang := locale[:idx]
		return strings.ReplaceAll(lang, "_", "-")
	}
	return locale
}
