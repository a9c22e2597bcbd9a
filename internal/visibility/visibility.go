// Package visibility decides which folders and items may be served. Folders
// are withheld by a name suffix, items by tags. Hidden entities are
// indistinguishable from absent ones.
package visibility

import (
	"strings"

	"github.com/tonimelisma/synophoto/internal/apperr"
	"github.com/tonimelisma/synophoto/internal/config"
	"github.com/tonimelisma/synophoto/internal/records"
)

// Not-found messages, shared with absent entities.
const (
	FolderNotFound = "Collection not found"
	ItemNotFound   = "Item not found"
)

// TagField is the additional field that carries item tags.
const TagField = "tag"

var (
	folderNameKeys = []string{"name", "title", "folder_name", "display_name"}
	tagKeys        = []string{"tag", "tags", "tag_list", "taglist"}
)

// Settings is one snapshot of the visibility rules.
type Settings struct {
	Mode       string
	HideTag    string
	ShowTag    string
	HideSuffix string
}

// DefaultSettings hides "(hide)" folders and items tagged "hide".
func DefaultSettings() Settings {
	return fromConfig(config.DefaultConfig().Visibility)
}

func fromConfig(v config.VisibilityConfig) Settings {
	return Settings{Mode: v.Mode, HideTag: v.HideTag, ShowTag: v.ShowTag, HideSuffix: v.HideSuffix}
}

// Policy applies Settings to raw upstream records.
type Policy struct {
	settings func() Settings
}

// New returns a Policy with fixed settings.
func New(s Settings) *Policy {
	return &Policy{settings: func() Settings { return s }}
}

// FromHolder returns a Policy that reads the current config on every call.
func FromHolder(h *config.Holder) *Policy {
	return &Policy{settings: func() Settings { return fromConfig(h.Config().Visibility) }}
}

// Settings returns the rules currently in force.
func (p *Policy) Settings() Settings {
	return p.settings()
}

// FolderHidden reports whether the folder's name ends with the hide suffix,
// ignoring case and surrounding space. Mode does not affect folders.
func (p *Policy) FolderHidden(rec records.Record) bool {
	v, ok := rec.First(folderNameKeys...)
	if !ok {
		return false
	}

	name, ok := records.Scalar(v)
	if !ok || name == "" {
		return false
	}

	suffix := strings.ToLower(strings.TrimSpace(p.settings().HideSuffix))
	if suffix == "" {
		return false
	}

	return strings.HasSuffix(strings.ToLower(strings.TrimSpace(name)), suffix)
}

// ItemHidden reports whether the item is withheld: in hide mode when it
// carries the hide tag, in show mode when it lacks the show tag.
func (p *Policy) ItemHidden(rec records.Record) bool {
	s := p.settings()

	if s.Mode == config.VisibilityShow {
		return !HasTag(rec, s.ShowTag)
	}

	return HasTag(rec, s.HideTag)
}

// FilterFolders returns the visible folders, preserving order.
func (p *Policy) FilterFolders(list []records.Record) []records.Record {
	return filter(list, p.FolderHidden)
}

// FilterItems returns the visible items, preserving order.
func (p *Policy) FilterItems(list []records.Record) []records.Record {
	return filter(list, p.ItemHidden)
}

// AssertFolder returns a not-found error for a hidden folder.
func (p *Policy) AssertFolder(rec records.Record) error {
	if p.FolderHidden(rec) {
		return apperr.NotFound(FolderNotFound)
	}

	return nil
}

// AssertItem returns a not-found error for a hidden item.
func (p *Policy) AssertItem(rec records.Record) error {
	if p.ItemHidden(rec) {
		return apperr.NotFound(ItemNotFound)
	}

	return nil
}

func filter(list []records.Record, hidden func(records.Record) bool) []records.Record {
	out := make([]records.Record, 0, len(list))

	for _, rec := range list {
		if !hidden(rec) {
			out = append(out, rec)
		}
	}

	return out
}
