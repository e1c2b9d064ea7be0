package consul

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/consul/api"
	"github.com/mwantia/gridindex/data"
	"github.com/mwantia/gridindex/lock"
)

// ConsulLocker holds a Consul session lock for every acquired key, so that
// several hosts indexing the same archive never build one index at once.
type ConsulLocker struct {
	client *api.Client
	config *ConsulLockerConfig
}

// ConsulLockerConfig contains configuration options for the Consul locker
type ConsulLockerConfig struct {
	// Address of the Consul server (default: "127.0.0.1:8500")
	Address string

	// Token for Consul ACL authentication (optional)
	Token string

	// Datacenter to use (optional)
	Datacenter string

	// Namespace for Consul Enterprise (optional)
	Namespace string

	// Prefix for all lock keys (default: "gridindex/locks")
	Prefix string

	// Session TTL (default: "15s")
	SessionTTL string
}

var _ lock.Locker = (*ConsulLocker)(nil)

func NewConsulLocker(config *ConsulLockerConfig) (*ConsulLocker, error) {
	if config == nil {
		config = &ConsulLockerConfig{}
	}

	if config.Address == "" {
		config.Address = "127.0.0.1:8500"
	}
	if config.Prefix == "" {
		config.Prefix = "gridindex/locks"
	}
	if config.SessionTTL == "" {
		config.SessionTTL = "15s"
	}

	clientConfig := api.DefaultConfig()
	clientConfig.Address = config.Address
	if config.Token != "" {
		clientConfig.Token = config.Token
	}
	if config.Datacenter != "" {
		clientConfig.Datacenter = config.Datacenter
	}
	if config.Namespace != "" {
		clientConfig.Namespace = config.Namespace
	}

	client, err := api.NewClient(clientConfig)
	if err != nil {
		return nil, err
	}

	return &ConsulLocker{
		client: client,
		config: config,
	}, nil
}

// Key returns the Consul KV key guarding an index path.
func (cl *ConsulLocker) Key(key string) string {
	return strings.TrimSuffix(cl.config.Prefix, "/") + "/" + strings.TrimPrefix(key, "/")
}

// Acquire blocks until the session lock is held or ctx is done.
func (cl *ConsulLocker) Acquire(ctx context.Context, key string) (func(), error) {
	l, err := cl.client.LockOpts(&api.LockOptions{
		Key:        cl.Key(key),
		SessionTTL: cl.config.SessionTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", data.ErrLockFailed, err)
	}

	lost, err := l.Lock(ctx.Done())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", data.ErrLockFailed, err)
	}
	// A nil channel means the stop channel was closed before acquiring
	if lost == nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, data.ErrLockFailed
	}

	return func() {
		// The session is invalidated on its own once the TTL expires
		_ = l.Unlock()
	}, nil
}
