package records

import (
	"slices"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// newNameCollator compares names the way people read them: digit runs by
// value ("img2" < "img10"), ignoring case and accents. Collators keep
// internal buffers, so each sort builds its own.
func newNameCollator() *collate.Collator {
	return collate.New(language.Und, collate.Numeric, collate.Loose)
}

// CompareNames orders a and b by natural name order.
func CompareNames(a, b string) int {
	return newNameCollator().CompareString(a, b)
}

// SortCollections returns a copy of cs ordered by title.
func SortCollections(cs []Collection, descending bool) []Collection {
	out := slices.Clone(cs)
	col := newNameCollator()

	slices.SortStableFunc(out, func(a, b Collection) int {
		return direction(col.CompareString(a.Title, b.Title), descending)
	})

	return out
}

// SortItems returns a copy of items ordered by filename.
func SortItems(items []MediaItem, descending bool) []MediaItem {
	out := slices.Clone(items)
	col := newNameCollator()

	slices.SortStableFunc(out, func(a, b MediaItem) int {
		return direction(col.CompareString(a.Filename, b.Filename), descending)
	})

	return out
}

func direction(cmp int, descending bool) int {
	if descending {
		return -cmp
	}

	return cmp
}
