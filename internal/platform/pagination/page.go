// Package pagination normalizes limit/offset windows over ordered results.
package pagination

// PageSizeConfig configures page size normalization.
type PageSizeConfig struct {
	Default int
	Max     int
}

// ClampPageSize applies defaults and limits for page sizes.
func ClampPageSize(value int, cfg PageSizeConfig) int {
	pageSize := value
	if pageSize <= 0 {
		pageSize = cfg.Default
	}
	if cfg.Max > 0 && pageSize > cfg.Max {
		pageSize = cfg.Max
	}
	if pageSize <= 0 {
		pageSize = 1
	}
	return pageSize
}

// Window returns the [start, end) bounds of a limit/offset page over total
// items. Negative limit and offset count as zero, and an offset at or past
// total yields an empty window.
func Window(total, limit, offset int) (int, int) {
	if limit < 0 {
		limit = 0
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return total, total
	}
	end := total
	if limit < total-offset {
		end = offset + limit
	}
	return offset, end
}

// Slice returns the page of items selected by limit and offset. The result
// never aliases items.
func Slice[T any](items []T, limit, offset int) []T {
	start, end := Window(len(items), limit, offset)
	out := make([]T, end-start)
	copy(out, items[start:end])
	return out
}
