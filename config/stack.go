package config

import (
	"github.com/mwantia/gridindex/catalog"
	"github.com/mwantia/gridindex/catalog/memory"
	"github.com/mwantia/gridindex/catalog/postgres"
	"github.com/mwantia/gridindex/catalog/sqlite"
	"github.com/mwantia/gridindex/lock"
	"github.com/mwantia/gridindex/lock/consul"
	"github.com/mwantia/gridindex/log"
	"github.com/mwantia/gridindex/publish"
	"github.com/mwantia/gridindex/publish/s3"
	"github.com/spf13/afero"
)

// NewLogger creates the root logger described by the log section.
func (c LogConfig) NewLogger(name string, noTerminal bool) *log.Logger {
	logger := log.NewLogger(name, c.Level, c.File, noTerminal)
	logger.JSON = c.JSON
	logger.NoColor = c.NoColor
	return logger
}

// NewCatalog creates the configured catalog, or nil when disabled.
func (c CatalogConfig) NewCatalog() (catalog.Catalog, error) {
	switch c.Type {
	case "memory":
		return memory.NewMemoryCatalog(), nil
	case "sqlite":
		return sqlite.NewSQLiteCatalog(c.Path)
	case "postgres":
		return postgres.NewPostgresCatalog(c.DSN)
	default:
		return nil, nil
	}
}

// NewLocker creates the configured locker. The local locker is the default.
func (c LockConfig) NewLocker() (lock.Locker, error) {
	if c.Type != "consul" {
		return lock.NewLocal(), nil
	}

	return consul.NewConsulLocker(&consul.ConsulLockerConfig{
		Address:    c.Address,
		Token:      c.Token,
		Datacenter: c.Datacenter,
		Namespace:  c.Namespace,
		Prefix:     c.Prefix,
		SessionTTL: c.SessionTTL,
	})
}

// NewPublisher creates the configured publisher, or nil when disabled.
func (c PublishConfig) NewPublisher() (publish.Publisher, error) {
	switch c.Type {
	case "s3":
		return s3.NewS3Publisher(c.Endpoint, c.Bucket, c.Prefix, c.AccessKey, c.SecretKey, c.SSL)
	case "dir":
		return publish.NewDirPublisher(afero.NewOsFs(), c.Dir), nil
	default:
		return nil, nil
	}
}
