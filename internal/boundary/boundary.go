// Package boundary confines folder access to the subtree under a configured
// root folder. Membership is re-derived from the upstream ancestor chain on
// every check and never cached.
package boundary

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tonimelisma/synophoto/internal/apperr"
	"github.com/tonimelisma/synophoto/internal/config"
	"github.com/tonimelisma/synophoto/internal/records"
)

// NotFoundMessage is returned for folders outside the boundary, identical
// to the message for absent folders.
const NotFoundMessage = "Collection not found"

// ParentLister returns the ancestor chain of a folder. synology.Client
// implements it.
type ParentLister interface {
	ListParents(ctx context.Context, folderID, passphrase string) ([]records.Record, error)
}

// RootFunc returns the configured root folder id, empty for no boundary.
type RootFunc func() string

// FromHolder reads the root folder id from the current config snapshot.
func FromHolder(h *config.Holder) RootFunc {
	return func() string {
		return h.Config().Synology.RootFolderID
	}
}

// StaticRoot always returns id.
func StaticRoot(id string) RootFunc {
	return func() string { return id }
}

// Engine answers whether a folder lies within the configured root.
type Engine struct {
	parents ParentLister
	root    RootFunc
	logger  *slog.Logger
}

// New returns an Engine. A nil root disables the boundary.
func New(parents ParentLister, root RootFunc, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	if root == nil {
		root = StaticRoot("")
	}

	return &Engine{parents: parents, root: root, logger: logger}
}

// EffectiveRoot returns the configured root folder id, or "" when every
// folder is reachable.
func (e *Engine) EffectiveRoot() string {
	return strings.TrimSpace(e.root())
}

// IsWithin reports whether folderID is the root or one of its descendants.
// Upstream failures while fetching the ancestor chain deny access; other
// failures (cancellation, store outages) are returned.
func (e *Engine) IsWithin(ctx context.Context, folderID, passphrase string) (bool, error) {
	root := e.EffectiveRoot()
	if root == "" {
		return true, nil
	}

	wantRoot := records.NormalizeID(root)
	folder := records.NormalizeID(folderID)

	if folder == wantRoot {
		return true, nil
	}

	parents, err := e.parents.ListParents(ctx, folder, passphrase)
	if err != nil {
		if apperr.IsUpstream(err) {
			e.logger.Debug("ancestor lookup failed, denying folder",
				slog.String("folder_id", folder),
				slog.String("error", err.Error()),
			)

			return false, nil
		}

		return false, fmt.Errorf("boundary: listing parents of %s: %w", folder, err)
	}

	for _, p := range parents {
		if id, ok := p.ID(records.Folder); ok && id == wantRoot {
			return true, nil
		}
	}

	e.logger.Debug("folder outside root",
		slog.String("folder_id", folder),
		slog.Int("ancestors", len(parents)),
	)

	return false, nil
}

// AssertWithin returns a not-found error for folders outside the boundary.
func (e *Engine) AssertWithin(ctx context.Context, folderID, passphrase string) error {
	ok, err := e.IsWithin(ctx, folderID, passphrase)
	if err != nil {
		return err
	}

	if !ok {
		return apperr.NotFound(NotFoundMessage)
	}

	return nil
}

// ListRoot resolves the folder to list when the caller names none: the
// configured root, or "" for the upstream's own top level.
func (e *Engine) ListRoot(requested string) string {
	if requested != "" {
		return requested
	}

	return e.EffectiveRoot()
}
