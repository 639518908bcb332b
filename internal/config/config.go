package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"stockroute/internal/distribution"
)

// FileName is the config file kept at the workspace root.
const FileName = "stockroute.yml"

// Config models stockroute.yml.
type Config struct {
	Warehouses []int `yaml:"warehouses"`
	Messages   struct {
		Greeting string `yaml:"greeting"`
		Closing  string `yaml:"closing"`
	} `yaml:"messages"`
	Distribution struct {
		KeepPlaceholdersOnLookupError bool `yaml:"keep_placeholders_on_lookup_error"`
	} `yaml:"distribution"`
	Uploads struct {
		MaxBytes   int64    `yaml:"max_bytes"`
		Extensions []string `yaml:"extensions"`
	} `yaml:"uploads"`
	Auth struct {
		TokenTTL time.Duration `yaml:"token_ttl"`
	} `yaml:"auth"`
	Seed struct {
		Stores []SeedStore `yaml:"stores"`
		Routes []SeedRoute `yaml:"routes"`
	} `yaml:"seed"`
	Events struct {
		Webhooks []WebhookConfig `yaml:"webhooks"`
		NATS     NATSConfig      `yaml:"nats"`
	} `yaml:"events"`
}

type SeedStore struct {
	ID            int    `yaml:"id"`
	Name          string `yaml:"name"`
	City          string `yaml:"city"`
	Address       string `yaml:"address"`
	ManagerName   string `yaml:"manager_name"`
	ManagerPhone  string `yaml:"manager_phone"`
	MainWarehouse bool   `yaml:"main_warehouse"`
}

type SeedRoute struct {
	DayOfWeek int    `yaml:"day_of_week"`
	Stores    string `yaml:"stores"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// NATSConfig points the event stream at a NATS Streaming cluster. Empty URL disables it.
type NATSConfig struct {
	URL       string `yaml:"url"`
	ClusterID string `yaml:"cluster_id"`
	ClientID  string `yaml:"client_id"`
	Subject   string `yaml:"subject"`
}

// SupportedExtensions are the spreadsheet formats the parser reads.
var SupportedExtensions = []string{".xlsx", ".csv"}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with sr init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOrDefault falls back to Default when the workspace has no config file.
func LoadOrDefault(workspace string) (*Config, error) {
	cfg, err := LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return Default(), nil
	}
	return cfg, nil
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if len(c.Warehouses) == 0 {
		return fmt.Errorf("config.warehouses is required")
	}
	seen := make(map[int]bool, len(c.Warehouses))
	for _, id := range c.Warehouses {
		if id <= 0 {
			return fmt.Errorf("config.warehouses contains invalid id %d", id)
		}
		if seen[id] {
			return fmt.Errorf("config.warehouses lists %d twice", id)
		}
		seen[id] = true
	}
	if c.Uploads.MaxBytes <= 0 {
		return fmt.Errorf("config.uploads.max_bytes must be positive")
	}
	if len(c.Uploads.Extensions) == 0 {
		return fmt.Errorf("config.uploads.extensions is required")
	}
	for _, ext := range c.Uploads.Extensions {
		if !supported(ext) {
			return fmt.Errorf("config.uploads.extensions: %q is not supported (use %s)", ext, strings.Join(SupportedExtensions, ", "))
		}
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("config.auth.token_ttl must be positive")
	}
	storeIDs := make(map[int]bool, len(c.Seed.Stores))
	for _, s := range c.Seed.Stores {
		if s.ID <= 0 {
			return fmt.Errorf("seed store has invalid id %d", s.ID)
		}
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("seed store %d has empty name", s.ID)
		}
		if storeIDs[s.ID] {
			return fmt.Errorf("seed store %d defined twice", s.ID)
		}
		storeIDs[s.ID] = true
	}
	days := make(map[int]bool, len(c.Seed.Routes))
	for _, r := range c.Seed.Routes {
		if r.DayOfWeek < 0 || r.DayOfWeek > 6 {
			return fmt.Errorf("seed route has invalid day of week %d (0-6)", r.DayOfWeek)
		}
		if days[r.DayOfWeek] {
			return fmt.Errorf("seed route for day %d defined twice", r.DayOfWeek)
		}
		days[r.DayOfWeek] = true
		if len(distribution.ParseStoreIDs(r.Stores)) == 0 {
			return fmt.Errorf("seed route for day %d has no store ids", r.DayOfWeek)
		}
	}
	for i, hook := range c.Events.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.events.webhooks[%d].url is required", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.events.webhooks[%d].timeout_seconds must not be negative", i)
		}
	}
	if n := c.Events.NATS; n.URL != "" {
		if n.ClusterID == "" || n.ClientID == "" {
			return fmt.Errorf("config.events.nats needs cluster_id and client_id")
		}
	}
	return nil
}

func supported(ext string) bool {
	for _, s := range SupportedExtensions {
		if strings.EqualFold(ext, s) {
			return true
		}
	}
	return false
}

// AllowsExtension reports whether uploads with ext are accepted.
func (c *Config) AllowsExtension(ext string) bool {
	for _, e := range c.Uploads.Extensions {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}

// Composer builds the message composer from the messages section.
func (c *Config) Composer() distribution.Composer {
	comp := distribution.DefaultComposer()
	if c.Messages.Greeting != "" {
		comp.Greeting = c.Messages.Greeting
	}
	if c.Messages.Closing != "" {
		comp.Closing = c.Messages.Closing
	}
	return comp
}

// NATSSubject returns the subject events are published on.
func (c *Config) NATSSubject() string {
	if c.Events.NATS.Subject != "" {
		return c.Events.NATS.Subject
	}
	return "stockroute.events"
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Sections left out of the
// file keep their defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `warehouses: [1, 69, 70, 79]

messages:
  greeting: "שלום!\nצריכים סחורה:"
  closing: "תודה רבה!"

distribution:
  keep_placeholders_on_lookup_error: false

uploads:
  max_bytes: 10485760
  extensions: [.xlsx, .csv]

auth:
  token_ttl: 168h

seed:
  stores:
    - {id: 1, name: "First warehouse", main_warehouse: true}
    - {id: 69, name: "Footwear and accessories warehouse", main_warehouse: true}
    - {id: 70, name: "Warehouse outlet", main_warehouse: true}
    - {id: 79, name: "Footwear and accessories warehouse - outlet", main_warehouse: true}
    - {id: 2, name: "Herzliya", city: "Herzliya"}
    - {id: 5, name: "Givatayim", city: "Givatayim"}
    - {id: 6, name: "Netanya", city: "Netanya"}
    - {id: 7, name: "Raanana", city: "Raanana"}
    - {id: 10, name: "Mamila", city: "Jerusalem"}
    - {id: 11, name: "Modein", city: "Modein"}
    - {id: 12, name: "Rehovot", city: "Rehovot"}
    - {id: 14, name: "Haifa", city: "Haifa"}
    - {id: 16, name: "Petah Tikva", city: "Petah Tikva"}
    - {id: 20, name: "Limited", city: "Tel Aviv"}
    - {id: 21, name: "Ashdod", city: "Ashdod"}
    - {id: 22, name: "Zichron Yakov", city: "Zichron Yakov"}
    - {id: 23, name: "TLV", city: "Tel Aviv"}
    - {id: 24, name: "Ayalon", city: "Ramat Gan"}
    - {id: 25, name: "Zaav", city: "Rishon LeZion"}
    - {id: 26, name: "Ramat Aviv", city: "Ramat Aviv"}
    - {id: 27, name: "Kvar saba", city: "Kvar saba"}
    - {id: 60, name: "Eilat", city: "Eilat"}
    - {id: 71, name: "Tel Giborim", city: "Tel Aviv"}
    - {id: 72, name: "Chutzot amifrats", city: "Haifa"}
  routes:
    - {day_of_week: 0, stores: "23, 20, 26, 2, 27, 16, 24, 5, 11, 10, 12, 21, 25"}
    - {day_of_week: 1, stores: "26, 7, 6, 22, 14, 72"}
    - {day_of_week: 2, stores: "23, 20, 26, 2, 11, 21, 25"}
    - {day_of_week: 3, stores: "26, 24, 16, 5, 10, 12"}
    - {day_of_week: 4, stores: "23, 20, 26, 2, 7, 27, 6, 11, 21, 25"}

events:
  webhooks: []
  nats:
    url: ""
    cluster_id: ""
    client_id: ""
    subject: stockroute.events
`
