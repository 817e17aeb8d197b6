package catalog

import (
	"sort"
	"time"
)

// Filter narrows a merged catalog. Undated posts always pass the date bounds.
type Filter struct {
	Start    *time.Time
	End      *time.Time
	PaidOnly bool
}

// Apply returns the posts that satisfy the filter, preserving order. The end
// bound is inclusive through the end of that day.
func (f Filter) Apply(posts []Post) []Post {
	out := posts
	if f.Start != nil {
		out = keep(out, func(p Post) bool {
			return !p.HasDate() || !p.Date.Before(*f.Start)
		})
	}
	if f.End != nil {
		limit := f.End.Add(24 * time.Hour)
		out = keep(out, func(p Post) bool {
			return !p.HasDate() || p.Date.Before(limit)
		})
	}
	if f.PaidOnly {
		out = keep(out, func(p Post) bool { return p.IsPaid })
	}
	return out
}

func keep(posts []Post, pred func(Post) bool) []Post {
	out := make([]Post, 0, len(posts))
	for _, p := range posts {
		if pred(p) {
			out = append(out, p)
		}
	}
	return out
}

// Dedupe drops later posts whose URL was already seen.
func Dedupe(posts []Post) []Post {
	seen := make(map[string]struct{}, len(posts))
	out := make([]Post, 0, len(posts))
	for _, p := range posts {
		if _, ok := seen[p.URL]; ok {
			continue
		}
		seen[p.URL] = struct{}{}
		out = append(out, p)
	}
	return out
}

// SortByDate orders posts newest first with undated posts last. Ties keep
// discovery order.
func SortByDate(posts []Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		a, b := posts[i], posts[j]
		switch {
		case a.HasDate() && b.HasDate():
			return a.Date.After(*b.Date)
		case a.HasDate():
			return true
		default:
			return false
		}
	})
}

// Merge applies dedupe, ordering and filtering to raw discovery output.
func Merge(raw []Post, f Filter) []Post {
	posts := Dedupe(raw)
	SortByDate(posts)
	return f.Apply(posts)
}
