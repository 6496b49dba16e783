package crawl

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/jonesrussell/newsflow/internal/logger"
)

// Selector addresses one piece of an article in a page. The plain form is a
// CSS selector whose text is taken; "selector@attr" takes an attribute
// instead.
type Selector string

// Split returns the CSS selector and the attribute name, empty when the
// element text is wanted.
func (s Selector) Split() (css, attr string) {
	raw := string(s)
	if i := strings.LastIndex(raw, "@"); i > 0 {
		return raw[:i], raw[i+1:]
	}
	return raw, ""
}

// ListConfig drives the generic list crawler for one source.
type ListConfig struct {
	URLs         []string `mapstructure:"urls"`
	LinkSelector string   `mapstructure:"link_selector"`
	URLPattern   string   `mapstructure:"url_pattern"` // optional filter regex
	PageDelay    string   `mapstructure:"page_delay"`  // sleep between index pages
}

// ArticleSelectors drive the generic article parser for one source.
type ArticleSelectors struct {
	Title       Selector `mapstructure:"title"`
	Content     Selector `mapstructure:"content"`
	Summary     Selector `mapstructure:"summary"`
	Author      Selector `mapstructure:"author"`
	Category    Selector `mapstructure:"category"`
	SubCategory Selector `mapstructure:"sub_category"`
	Tags        Selector `mapstructure:"tags"`
	Published   Selector `mapstructure:"published"`
	Images      Selector `mapstructure:"images"`

	// TimeFormats are tried in order against the published text; an
	// optional location name interprets zone-less formats.
	TimeFormats []string `mapstructure:"time_formats"`
	TimeZone    string   `mapstructure:"time_zone"`
}

// SourceConfig is one entry of sources.yml.
type SourceConfig struct {
	Name            string           `mapstructure:"name"`
	DisplayName     string           `mapstructure:"display_name"`
	RateLimit       string           `mapstructure:"rate_limit"`
	IntervalMinutes int              `mapstructure:"interval_minutes"`
	TimeoutSeconds  int              `mapstructure:"timeout_seconds"`
	UserAgent       string           `mapstructure:"user_agent"`
	List            ListConfig       `mapstructure:"list"`
	Article         ArticleSelectors `mapstructure:"article"`
}

// sourcesFile is the top-level shape of sources.yml.
type sourcesFile struct {
	Sources []map[string]any `yaml:"sources"`
}

// Validate checks the fields without which a generic crawler cannot operate.
func (c *SourceConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("source has no name")
	}
	if len(c.List.URLs) == 0 {
		return fmt.Errorf("source %s has no list urls", c.Name)
	}
	if c.List.LinkSelector == "" {
		return fmt.Errorf("source %s has no link selector", c.Name)
	}
	if c.Article.Title == "" || c.Article.Content == "" {
		return fmt.Errorf("source %s is missing title or content selectors", c.Name)
	}
	if c.RateLimit != "" {
		if _, err := time.ParseDuration(c.RateLimit); err != nil {
			return fmt.Errorf("source %s has invalid rate_limit %q: %w", c.Name, c.RateLimit, err)
		}
	}
	return nil
}

// LoadSources reads and validates sources.yml. Entries that fail to decode
// or validate are logged loudly and skipped; one broken source must not take
// down the rest.
func LoadSources(path string, log logger.Logger) ([]*SourceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sources file: %w", err)
	}

	var file sourcesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse sources file: %w", err)
	}

	configs := make([]*SourceConfig, 0, len(file.Sources))
	for i, raw := range file.Sources {
		cfg := &SourceConfig{}
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           cfg,
			WeaklyTypedInput: true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to build source decoder: %w", err)
		}
		if err := decoder.Decode(raw); err != nil {
			log.Error("skipping undecodable source entry",
				logger.Int("index", i),
				logger.Error(err),
			)
			continue
		}
		if err := cfg.Validate(); err != nil {
			log.Error("skipping invalid source entry",
				logger.Int("index", i),
				logger.Error(err),
			)
			continue
		}
		if cfg.DisplayName == "" {
			cfg.DisplayName = cfg.Name
		}
		configs = append(configs, cfg)
	}

	if len(configs) == 0 {
		return nil, fmt.Errorf("no usable sources in %s", path)
	}
	return configs, nil
}
