package records

import "log/slog"

// NormalizeList cleans one page of upstream records:
// 1. Drop entries with no identifier under e's aliases.
// 2. Deduplicate by identifier, keeping the last occurrence in its original
// position.
func NormalizeList(list []Record, e Entity, logger *slog.Logger) []Record {
	if logger == nil {
		logger = slog.Default()
	}

	list = dropMissingIDs(list, e, logger)
	list = deduplicate(list, e, logger)

	return list
}

func dropMissingIDs(list []Record, e Entity, logger *slog.Logger) []Record {
	result := make([]Record, 0, len(list))

	for _, rec := range list {
		if _, ok := rec.ID(e); !ok {
			continue
		}

		result = append(result, rec)
	}

	if dropped := len(list) - len(result); dropped > 0 {
		logger.Debug("dropped records without identifier",
			slog.String("entity", e.String()),
			slog.Int("dropped_count", dropped),
		)
	}

	return result
}

func deduplicate(list []Record, e Entity, logger *slog.Logger) []Record {
	last := make(map[string]int, len(list))

	for i, rec := range list {
		id, _ := rec.ID(e)
		last[id] = i
	}

	if len(last) == len(list) {
		return list
	}

	result := make([]Record, 0, len(last))

	for i, rec := range list {
		id, _ := rec.ID(e)
		if last[id] == i {
			result = append(result, rec)
		}
	}

	logger.Debug("deduplicated records",
		slog.String("entity", e.String()),
		slog.Int("duplicate_count", len(list)-len(result)),
	)

	return result
}
