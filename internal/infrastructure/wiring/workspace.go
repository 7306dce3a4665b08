package wiring

import (
	"fmt"

	"github.com/lokus-ai/lokus-plugins/internal/infrastructure/config"
	"github.com/lokus-ai/lokus-plugins/pkg/storage"
)

// Workspace bundles core infrastructure dependencies.
type Workspace struct {
	Config    *config.Config
	Root      string
	History   *storage.FileEventStore
	Publisher *storage.InMemoryEventPublisher
}

// NewWorkspace resolves the plugin root and connects the reload history to
// a fresh event publisher.
func NewWorkspace(cfg *config.Config) (*Workspace, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	root, err := cfg.ResolveRoot()
	if err != nil {
		return nil, fmt.Errorf("resolve plugin root: %w", err)
	}
	historyDir, err := cfg.HistoryDir()
	if err != nil {
		return nil, fmt.Errorf("resolve history directory: %w", err)
	}

	history := storage.NewFileEventStore(historyDir)
	if err := history.Trim(cfg.HistoryMax); err != nil {
		return nil, fmt.Errorf("trim reload history: %w", err)
	}
	publisher := storage.NewInMemoryEventPublisher()
	publisher.Subscribe(history.Handler())

	return &Workspace{
		Config:    cfg,
		Root:      root,
		History:   history,
		Publisher: publisher,
	}, nil
}
