// Package client wires transport, storage, and services into the facade
// the CLI drives.
package client

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/daybookhq/scribe/internal/analytics"
	"github.com/daybookhq/scribe/internal/config"
	"github.com/daybookhq/scribe/internal/events"
	"github.com/daybookhq/scribe/internal/models"
	"github.com/daybookhq/scribe/internal/prefs"
	"github.com/daybookhq/scribe/internal/services/editor"
	"github.com/daybookhq/scribe/internal/services/records"
	"github.com/daybookhq/scribe/internal/services/session"
	"github.com/daybookhq/scribe/internal/state"
	"github.com/daybookhq/scribe/internal/storage"
	"github.com/daybookhq/scribe/internal/transport"
)

// Client provides the high-level API for scribe operations.
type Client struct {
	Session   *session.Service
	Records   *records.Service
	Editor    *editor.Service
	Prefs     *prefs.Service
	Analytics *analytics.Tracker
	Drafts    state.Store
	Work      storage.WorkDir

	config    *config.Config
	logger    *events.Logger
	transport transport.Transport
}

// New creates a scribe client.
func New(cfg *config.Config, logger *events.Logger) (*Client, error) {
	transportClient := transport.NewTransport(cfg, logger)

	draftStore, err := newDraftStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	workDir, err := storage.NewLocalWorkDir(cfg.Storage.WorkDir, logger)
	if err != nil {
		return nil, err
	}

	// Use configured token file path with tilde expansion
	tokenFile := expandPath(cfg.Auth.TokenFile)
	if tokenFile == "" {
		tokenFile = filepath.Join(cfg.Storage.DataDir, "token.json")
	}

	if err := os.MkdirAll(filepath.Dir(tokenFile), 0700); err != nil {
		logger.WithError(err).Warn("Failed to create token directory")
	}

	sessionService := session.NewService(transportClient, tokenFile, logger)
	recordsService := records.NewService(transportClient, logger)
	editorService := editor.NewService(recordsService, draftStore, transportClient, cfg, logger)
	prefsService := prefs.NewService(
		transportClient,
		prefs.NewLocalStore(expandPath(cfg.Storage.PrefsFile), logger),
		&cfg.Autosave,
		logger,
	)
	tracker := analytics.New(transportClient, &cfg.Analytics, logger)

	return &Client{
		Session:   sessionService,
		Records:   recordsService,
		Editor:    editorService,
		Prefs:     prefsService,
		Analytics: tracker,
		Drafts:    draftStore,
		Work:      workDir,
		config:    cfg,
		logger:    logger,
		transport: transportClient,
	}, nil
}

// newDraftStore picks the journal backend from config.
func newDraftStore(cfg *config.Config, logger *events.Logger) (state.Store, error) {
	switch cfg.Storage.Backend {
	case config.BackendSQLite:
		return state.NewSQLiteStore(expandPath(cfg.Storage.DatabaseFile), logger)
	case config.BackendJSON, "":
		return state.NewJSONStore(expandPath(cfg.Storage.DraftsDir), logger)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// MigrateDrafts copies every draft into the named backend. The source is
// left in place; point storage.backend at the target to switch over.
func (c *Client) MigrateDrafts(backend string) error {
	if backend == c.config.Storage.Backend {
		return fmt.Errorf("drafts already use the %s backend", backend)
	}

	targetCfg := *c.config
	targetCfg.Storage.Backend = backend

	target, err := newDraftStore(&targetCfg, c.logger)
	if err != nil {
		return err
	}
	defer target.Close()

	return c.Drafts.Migrate(target)
}

// OpenEditor authenticates and opens an edit session for a record.
func (c *Client) OpenEditor(ctx context.Context, kind models.RecordKind, id string, resume bool) (*editor.Session, error) {
	if err := c.Session.EnsureAuthenticated(ctx); err != nil {
		return nil, err
	}

	return c.Editor.Open(ctx, kind, id, resume)
}

// Close flushes pending work and releases resources.
func (c *Client) Close(ctx context.Context) error {
	var firstErr error

	if err := c.Prefs.Close(ctx); err != nil && firstErr == nil {
		firstErr = err
	}

	if err := c.Analytics.Close(ctx); err != nil && firstErr == nil {
		firstErr = err
	}

	if err := c.Drafts.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	if err := c.transport.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	return firstErr
}

// expandPath resolves a leading ~/ against the home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if homeDir, err := os.UserHomeDir(); err == nil {
			return filepath.Join(homeDir, path[2:])
		}
	}
	return path
}
