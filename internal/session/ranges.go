package session

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spherical/pagesnap/internal/domain"
)

// ParsePageRanges parses lists such as "1-3,5,8-" into ascending unique page
// numbers. Open ends extend to pageCount. Pages beyond pageCount are dropped.
func ParsePageRanges(ranges string, pageCount int) ([]int, error) {
	ranges = strings.TrimSpace(ranges)
	if ranges == "" {
		return nil, domain.ValidationError("page range is empty", nil)
	}

	seen := make(map[int]struct{})
	for _, part := range strings.Split(ranges, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		from, to, err := parseRange(part, pageCount)
		if err != nil {
			return nil, err
		}
		for p := from; p <= to && p <= pageCount; p++ {
			seen[p] = struct{}{}
		}
	}

	pages := make([]int, 0, len(seen))
	for p := range seen {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	return pages, nil
}

func parseRange(part string, pageCount int) (int, int, error) {
	lo, hi, isRange := strings.Cut(part, "-")
	if !isRange {
		n, err := parsePage(lo)
		return n, n, err
	}

	from, to := 1, pageCount
	var err error
	if s := strings.TrimSpace(lo); s != "" {
		if from, err = parsePage(s); err != nil {
			return 0, 0, err
		}
	}
	if s := strings.TrimSpace(hi); s != "" {
		if to, err = parsePage(s); err != nil {
			return 0, 0, err
		}
	}
	if from > to && strings.TrimSpace(hi) != "" {
		return 0, 0, domain.ValidationError(fmt.Sprintf("invalid page range %q: start is after end", part), nil)
	}
	return from, to, nil
}

func parsePage(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return 0, domain.ValidationError(fmt.Sprintf("invalid page number %q", s), err)
	}
	return n, nil
}
