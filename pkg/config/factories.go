package config

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/mitchellh/mapstructure"

	"github.com/browncloud/davfs/internal/authz"
	"github.com/browncloud/davfs/internal/logger"
	"github.com/browncloud/davfs/pkg/registry"
	"github.com/browncloud/davfs/pkg/store/mounts"
	mountsBadger "github.com/browncloud/davfs/pkg/store/mounts/badger"
)

// CreateMountStore creates a mount store based on configuration.
//
// The Type field selects the implementation; the matching type-specific map
// is decoded into the store's own configuration struct.
//
// Supported types:
//   - "static": the mount list from the `mounts.static` section
//   - "badger": a BadgerDB database managed with davadm
func CreateMountStore(ctx context.Context, cfg *MountsConfig) (mounts.Store, error) {
	switch cfg.Store.Type {
	case "static":
		return createStaticMountStore(cfg.Static)
	case "badger":
		return createBadgerMountStore(cfg.Store.Badger)
	default:
		return nil, fmt.Errorf("unknown mount store type: %q", cfg.Store.Type)
	}
}

func createStaticMountStore(configured []MountConfig) (mounts.Store, error) {
	list := make([]*registry.Mount, 0, len(configured))
	for i, mc := range configured {
		m, err := mc.ToMount()
		if err != nil {
			return nil, fmt.Errorf("mounts.static[%d]: %w", i, err)
		}
		list = append(list, m)
	}
	return mounts.NewStaticStore(list), nil
}

func createBadgerMountStore(options map[string]any) (mounts.Store, error) {
	type BadgerMountStoreConfig struct {
		Path string `mapstructure:"path"`
	}

	var storeCfg BadgerMountStoreConfig
	if err := mapstructure.Decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode badger mount store config: %w", err)
	}
	if storeCfg.Path == "" {
		return nil, fmt.Errorf("badger mount store: path is required")
	}

	return mountsBadger.Open(storeCfg.Path)
}

// ToMount converts the configuration form of a mount into its runtime form,
// parsing the humanized quota string.
func (mc MountConfig) ToMount() (*registry.Mount, error) {
	var quotaBytes uint64
	if mc.Quota != "" {
		parsed, err := humanize.ParseBytes(mc.Quota)
		if err != nil {
			return nil, fmt.Errorf("invalid quota %q: %w", mc.Quota, err)
		}
		quotaBytes = parsed
	}

	return &registry.Mount{
		URLPrefix:  mc.URLPrefix,
		LocalRoot:  mc.LocalRoot,
		QuotaBytes: quotaBytes,
		MaxFiles:   mc.MaxFiles,
		Owner:      mc.Owner,
		ReadList:   mc.Read,
		WriteList:  mc.Write,
		DeleteList: mc.Delete,
		CreateList: mc.NewFile,
	}, nil
}

// BuildRegistry loads every mount from the store and registers it.
// Registration order follows the store's listing order, which decides
// prefix-length ties at resolution time.
func BuildRegistry(ctx context.Context, store mounts.Store) (*registry.Registry, error) {
	list, err := store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list mounts: %w", err)
	}

	reg := registry.NewRegistry()
	for _, m := range list {
		if err := reg.Register(m); err != nil {
			return nil, fmt.Errorf("failed to register mount %q: %w", m.URLPrefix, err)
		}
		logger.Info("registered mount %q -> %q (quota %s, max files %d)",
			m.URLPrefix, m.LocalRoot, describeQuota(m.QuotaBytes), m.MaxFiles)
	}
	return reg, nil
}

func describeQuota(quotaBytes uint64) string {
	if quotaBytes == 0 {
		return "unlimited"
	}
	return humanize.IBytes(quotaBytes)
}

// PolicyFromConfig maps the configured policy name onto the gate's type.
func PolicyFromConfig(cfg *AuthConfig) authz.Policy {
	if cfg.Policy == "static" {
		return authz.PolicyStatic
	}
	return authz.PolicyACL
}
