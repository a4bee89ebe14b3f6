// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kkyr/fig"
)

const (
	configEnv         = "MAPSTATE"
	DefaultTextTpl    = "{{loc .Address.Address}}"
	DefaultTooltipTpl = "{{loc \"location\"}}: {{coord .Location.CurrentLocation}}\n" +
		"{{loc \"permission\"}}: {{loc .Location.AuthorizationStatus.String}}\n" +
		"{{loc \"updated\"}}: {{since .Location.LastAcceptedAt}}" +
		"{{with .Search.SelectedPlace}}\n{{loc \"selected\"}}: {{.Name}}{{end}}" +
		"{{if .Search.Query}}\n{{loc \"search\"}}: {{.Search.Query}}" +
		"{{if .Search.Results}}\n{{results .Search.Results}}{{end}}{{end}}"
)

// Authorization modes of the device location provider.
const (
	AuthPrompt     = "prompt"
	AuthWhenInUse  = "when_in_use"
	AuthAlways     = "always"
	AuthDenied     = "denied"
	AuthRestricted = "restricted"
)

// Supported geocoder providers.
const (
	GeocoderNominatim = "nominatim"
	GeocoderGoogle    = "google"
)

var ErrAPIKeyRequired = errors.New("geocoder requires an API key")

// Config represents the application's configuration structure.
type Config struct {
	Locale   string     `fig:"locale"`
	LogLevel slog.Level `fig:"loglevel" default:"0"`

	Location struct {
		MinInterval     time.Duration `fig:"min_interval" default:"5s"`
		MinDistance     float64       `fig:"min_distance" default:"50"`
		// DisableMinInterval and DisableMinDistance switch off the respective fix filter.
		DisableMinInterval bool `fig:"disable_min_interval"`
		DisableMinDistance bool `fig:"disable_min_distance"`
		FirstFixTimeout time.Duration `fig:"first_fix_timeout" default:"1m"`
		// Allowed values: prompt, when_in_use, always, denied, restricted
		Authorization          string `fig:"authorization" default:"prompt"`
		File                   string `fig:"file"`
		GPSDHost               string `fig:"gpsd_host" default:"localhost"`
		GPSDPort               string `fig:"gpsd_port" default:"2947"`
		ICHNAEAEndpoint        string `fig:"ichnaea_endpoint"`
		DisableGeolocationFile bool   `fig:"disable_geolocation_file"`
		DisableGPSD            bool   `fig:"disable_gpsd"`
		DisableICHNAEA         bool   `fig:"disable_ichnaea"`
	} `fig:"location"`

	Address struct {
		RefreshInterval time.Duration `fig:"refresh_interval" default:"30s"`
	} `fig:"address"`

	Search struct {
		Radius     float64       `fig:"radius" default:"1000"`
		Debounce   time.Duration `fig:"debounce" default:"500ms"`
		MaxResults int           `fig:"max_results" default:"20"`
		// SubmitOnly disables searching while typing.
		SubmitOnly bool `fig:"submit_only"`
	} `fig:"search"`

	GeoCoder struct {
		// Allowed values: nominatim, google
		Provider          string `fig:"provider" default:"nominatim"`
		APIKey            string `fig:"apikey"`
		RequestsPerSecond int    `fig:"requests_per_second" default:"1"`
	} `fig:"geocoder"`

	Intervals struct {
		Output         time.Duration `fig:"output" default:"30s"`
		NetworkTimeout time.Duration `fig:"network_timeout" default:"30s"`
	} `fig:"intervals"`

	Templates struct {
		Text    string `fig:"text"`
		Tooltip string `fig:"tooltip"`
	} `fig:"templates"`

	Metrics struct {
		Listen string `fig:"listen"`
	} `fig:"metrics"`

	SleepMonitor struct {
		Disable bool `fig:"disable"`
	} `fig:"sleep_monitor"`
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

func (c *Config) Validate() error {
	if c.Locale == "" {
		c.Locale = getLocale()
	}
	if c.Location.MinInterval < 0 {
		return fmt.Errorf("invalid minimum interval: %s", c.Location.MinInterval)
	}
	if c.Location.MinDistance < 0 {
		return fmt.Errorf("invalid minimum distance: %f", c.Location.MinDistance)
	}
	c.Location.Authorization = strings.ToLower(c.Location.Authorization)
	switch c.Location.Authorization {
	case AuthPrompt, AuthWhenInUse, AuthAlways, AuthDenied, AuthRestricted:
	default:
		return fmt.Errorf("invalid authorization mode: %s", c.Location.Authorization)
	}
	if c.Address.RefreshInterval < 0 {
		return fmt.Errorf("invalid address refresh interval: %s", c.Address.RefreshInterval)
	}
	if c.Search.Radius < 0 {
		return fmt.Errorf("invalid search radius: %f", c.Search.Radius)
	}
	if c.Search.Debounce < 0 {
		return fmt.Errorf("invalid search debounce: %s", c.Search.Debounce)
	}
	if c.Search.MaxResults < 0 {
		return fmt.Errorf("invalid maximum search results: %d", c.Search.MaxResults)
	}
	if c.Intervals.Output <= 0 {
		return fmt.Errorf("invalid output interval: %s", c.Intervals.Output)
	}
	c.GeoCoder.Provider = strings.ToLower(c.GeoCoder.Provider)
	switch c.GeoCoder.Provider {
	case GeocoderNominatim:
	case GeocoderGoogle:
		if c.GeoCoder.APIKey == "" {
			return fmt.Errorf("%s: %w", c.GeoCoder.Provider, ErrAPIKeyRequired)
		}
	default:
		return fmt.Errorf("unsupported geocoder: %s", c.GeoCoder.Provider)
	}
	if c.GeoCoder.RequestsPerSecond < 1 {
		c.GeoCoder.RequestsPerSecond = 1
	}
	if c.Templates.Text == "" {
		c.Templates.Text = DefaultTextTpl
	}
	if c.Templates.Tooltip == "" {
		c.Templates.Tooltip = DefaultTooltipTpl
	}
	if c.Location.File == "" {
		home, _ := os.UserHomeDir()
		c.Location.File = filepath.Join(home, ".config", "mapstate", "geolocation")
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
