package engine

import (
	"context"
	"strings"
	"time"

	"github.com/stackql/stackql-deploy/pkg/engine/executor"
)

// pullProviders installs every provider the manifest declares, unless
// an equal or higher version is already present on the server.
// Versioned declarations take the form "google::v24.06.00251".
func (e *Engine) pullProviders(ctx context.Context) error {
	providers := e.manifest.Providers()
	if len(providers) == 0 {
		return nil
	}

	installed, err := e.exec.Query(ctx, "SHOW PROVIDERS", executor.QueryOptions{
		Retries:    0,
		RetryDelay: 5 * time.Second,
	})
	if err != nil {
		return err
	}

	for _, provider := range providers {
		name, version, versioned := strings.Cut(provider, "::")

		found := false
		higher := false
		for _, row := range installed {
			if row["name"] != name {
				continue
			}
			if !versioned {
				found = true
				break
			}
			if row["version"] == version {
				found = true
				break
			}
			if versionHigher(row["version"], version) {
				higher = true
			}
		}

		switch {
		case found:
			e.logger.Infof("provider '%s' is already installed.", provider)
		case higher:
			e.logger.Infof("provider '%s' - a higher version is already installed.", provider)
		default:
			e.logger.Infof("pulling provider '%s'...", provider)
			msg, err := e.exec.Command(ctx, "REGISTRY PULL "+provider, executor.CommandOptions{
				Retries:    0,
				RetryDelay: 5 * time.Second,
			})
			if err != nil {
				return err
			}
			if msg != "" {
				e.logger.Info(msg)
			}
		}
	}

	return nil
}

// versionHigher reports whether installed is a higher provider version
// than requested. Versions compare numerically with the "v" prefix and
// dots stripped; an unparseable version compares as zero.
func versionHigher(installed, requested string) bool {
	return versionOrdinal(installed) > versionOrdinal(requested)
}

func versionOrdinal(v string) uint64 {
	cleaned := strings.NewReplacer("v", "", ".", "").Replace(v)
	var n uint64
	for _, r := range cleaned {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + uint64(r-'0')
	}
	return n
}
