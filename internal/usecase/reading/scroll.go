package reading

import (
	"sort"

	"ananse-reader/internal/domain"
)

// ScrollFraction converts a scroll offset into a position in [0,1].
// It is 0 when the document fits the viewport.
func ScrollFraction(offset, documentHeight, viewportHeight float64) float64 {
	scrollable := documentHeight - viewportHeight
	if scrollable <= 0 {
		return 0
	}
	return domain.ClampFraction(offset / scrollable)
}

// PageFraction is ScrollFraction for paged reading: finishing page n of total
// counts as having scrolled through n/total of the chapter.
func PageFraction(page, total int) float64 {
	if total <= 0 {
		return 0
	}
	return domain.ClampFraction(float64(page) / float64(total))
}

// Neighbors returns the chapters before and after currentID in reading order.
func Neighbors(chapters []domain.Chapter, currentID string) (prev, next *domain.Chapter) {
	ordered := make([]domain.Chapter, len(chapters))
	copy(ordered, chapters)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })

	for i := range ordered {
		if ordered[i].ID != currentID {
			continue
		}
		if i > 0 {
			p := ordered[i-1]
			prev = &p
		}
		if i+1 < len(ordered) {
			n := ordered[i+1]
			next = &n
		}
		return prev, next
	}
	return nil, nil
}
