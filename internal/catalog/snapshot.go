package catalog

import (
	"encoding/json"
	"fmt"
	"time"
)

// Snapshot is the catalog record written as metadata.json after every run.
type Snapshot struct {
	RunID        string    `json:"run_id"`
	Publication  string    `json:"publication"`
	URL          string    `json:"url"`
	DownloadedAt time.Time `json:"downloaded_at"`
	TotalPosts   int       `json:"total_posts"`
	Posts        []Post    `json:"posts"`
}

// NewSnapshot records the full catalog as of now.
func NewSnapshot(runID, publication, url string, now time.Time, posts []Post) Snapshot {
	if posts == nil {
		posts = []Post{}
	}
	return Snapshot{
		RunID:        runID,
		Publication:  publication,
		URL:          url,
		DownloadedAt: now.UTC(),
		TotalPosts:   len(posts),
		Posts:        posts,
	}
}

// Encode renders the snapshot as indented JSON.
func (s Snapshot) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return append(data, '\n'), nil
}
