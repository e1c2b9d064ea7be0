// Package config loads indexing runs from YAML files.
//
//	log:
//	  level: info
//	workers: 4
//	catalog:
//	  type: sqlite
//	  path: /var/lib/gridindex/catalog.db
//	collections:
//	  - name: gfs
//	    top_dir: /archive/gfs
//	    glob: "*.grib2"
//	    granularity: directory
//	    policy: test
//	    options:
//	      grid: 0p25
package config

import (
	"bytes"
	"errors"
	"io"
	"strings"

	"github.com/mwantia/gridindex/data"
	"github.com/mwantia/gridindex/log"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Config is a decoded configuration file. O holds the format options of
// every collection.
type Config[O any] struct {
	Log     LogConfig
	Workers int

	Catalog CatalogConfig
	Lock    LockConfig
	Publish PublishConfig

	Collections []data.CollectionConfig[O]
}

type LogConfig struct {
	Level   log.LogLevel `yaml:"level"`
	File    string       `yaml:"file"`
	JSON    bool         `yaml:"json"`
	NoColor bool         `yaml:"no_color"`
}

type CatalogConfig struct {
	// memory, sqlite or postgres; empty disables the catalog
	Type string `yaml:"type"`
	// Database file of the sqlite catalog
	Path string `yaml:"path"`
	// Connection string of the postgres catalog
	DSN string `yaml:"dsn"`
}

type LockConfig struct {
	// local (default) or consul
	Type string `yaml:"type"`

	Address    string `yaml:"address"`
	Token      string `yaml:"token"`
	Datacenter string `yaml:"datacenter"`
	Namespace  string `yaml:"namespace"`
	Prefix     string `yaml:"prefix"`
	SessionTTL string `yaml:"session_ttl"`
}

type PublishConfig struct {
	// s3 or dir; empty disables publishing
	Type string `yaml:"type"`

	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	SSL       bool   `yaml:"ssl"`

	// Target directory of the dir publisher
	Dir string `yaml:"dir"`
}

type fileConfig struct {
	Log         LogConfig          `yaml:"log"`
	Workers     int                `yaml:"workers"`
	Catalog     CatalogConfig      `yaml:"catalog"`
	Lock        LockConfig         `yaml:"lock"`
	Publish     PublishConfig      `yaml:"publish"`
	Collections []collectionConfig `yaml:"collections"`
}

type collectionConfig struct {
	Name        string            `yaml:"name"`
	TopDir      string            `yaml:"top_dir"`
	Glob        string            `yaml:"glob"`
	IndexDir    string            `yaml:"index_dir"`
	Granularity data.Granularity  `yaml:"granularity"`
	Policy      data.UpdatePolicy `yaml:"policy"`
	Options     yaml.Node         `yaml:"options"`
}

// Load reads and validates the configuration file at path.
func Load[O any](fsys afero.Fs, path string) (*Config[O], error) {
	content, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, data.InvalidConfig("failed to read '%s': %v", path, err)
	}
	return Parse[O](content)
}

// Parse decodes and validates a configuration document. Unknown fields
// outside of the collection options are rejected.
func Parse[O any](content []byte) (*Config[O], error) {
	raw := fileConfig{
		Log:     LogConfig{Level: log.Info},
		Workers: 1,
	}

	decoder := yaml.NewDecoder(bytes.NewReader(content))
	decoder.KnownFields(true)
	if err := decoder.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, data.InvalidConfig("empty configuration")
		}
		return nil, data.InvalidConfig("%v", err)
	}

	cfg := &Config[O]{
		Log:     raw.Log,
		Workers: raw.Workers,
		Catalog: raw.Catalog,
		Lock:    raw.Lock,
		Publish: raw.Publish,
	}

	if cfg.Workers < 1 {
		return nil, data.InvalidConfig("workers must be at least 1, got %d", cfg.Workers)
	}
	if err := cfg.Catalog.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Lock.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Publish.validate(); err != nil {
		return nil, err
	}

	if len(raw.Collections) == 0 {
		return nil, data.InvalidConfig("no collections configured")
	}

	seen := make(map[string]struct{}, len(raw.Collections))
	for _, rc := range raw.Collections {
		cc := data.CollectionConfig[O]{
			Name:        rc.Name,
			TopDir:      rc.TopDir,
			Glob:        rc.Glob,
			IndexDir:    rc.IndexDir,
			Granularity: rc.Granularity,
			Policy:      rc.Policy,
		}
		if !rc.Options.IsZero() {
			if err := rc.Options.Decode(&cc.Options); err != nil {
				return nil, data.InvalidConfig("options of collection '%s': %v", rc.Name, err)
			}
		}
		if err := cc.Validate(); err != nil {
			return nil, err
		}

		if _, exists := seen[cc.Name]; exists {
			return nil, data.InvalidConfig("duplicate collection '%s'", cc.Name)
		}
		// Unit names of "gfs" below "0p25" would equal those of "gfs-0p25"
		for name := range seen {
			if strings.HasPrefix(cc.Name, name+"-") || strings.HasPrefix(name, cc.Name+"-") {
				return nil, data.InvalidConfig("collections '%s' and '%s' share unit names", name, cc.Name)
			}
		}
		seen[cc.Name] = struct{}{}

		cfg.Collections = append(cfg.Collections, cc)
	}

	return cfg, nil
}

// Collection returns the collection with the given name.
func (c *Config[O]) Collection(name string) (data.CollectionConfig[O], bool) {
	for _, cc := range c.Collections {
		if cc.Name == name {
			return cc, true
		}
	}
	return data.CollectionConfig[O]{}, false
}

func (c *CatalogConfig) validate() error {
	switch c.Type {
	case "", "memory":
	case "sqlite":
		if c.Path == "" {
			return data.InvalidConfig("sqlite catalog requires a path")
		}
	case "postgres":
		if c.DSN == "" {
			return data.InvalidConfig("postgres catalog requires a dsn")
		}
	default:
		return data.InvalidConfig("unknown catalog type '%s'", c.Type)
	}
	return nil
}

func (c *LockConfig) validate() error {
	switch c.Type {
	case "", "local", "consul":
		return nil
	default:
		return data.InvalidConfig("unknown lock type '%s'", c.Type)
	}
}

func (c *PublishConfig) validate() error {
	switch c.Type {
	case "":
	case "s3":
		if c.Endpoint == "" || c.Bucket == "" {
			return data.InvalidConfig("s3 publisher requires endpoint and bucket")
		}
	case "dir":
		if c.Dir == "" {
			return data.InvalidConfig("dir publisher requires a dir")
		}
	default:
		return data.InvalidConfig("unknown publish type '%s'", c.Type)
	}
	return nil
}
