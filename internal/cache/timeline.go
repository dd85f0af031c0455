package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ppiankov/claimdesk/internal/model"
)

// TimelineKey is the name the reconstructed timeline is saved under.
const TimelineKey = "timeline_reconstruction"

// TimelineStore persists the last saved timeline of a profile. Every session
// of the profile reads and writes the same entry.
type TimelineStore struct {
	cache   Cache
	profile string
}

// NewTimelineStore creates a store over c.
func NewTimelineStore(c Cache, profile string) *TimelineStore {
	if profile == "" {
		profile = "default"
	}
	return &TimelineStore{cache: c, profile: profile}
}

// SaveTimeline writes t, replacing any earlier timeline.
func (s *TimelineStore) SaveTimeline(ctx context.Context, t model.Timeline) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal timeline: %w", err)
	}
	return s.cache.Set(ctx, CacheKey(s.profile, TimelineKey), data, 0)
}

// LoadTimeline returns the saved timeline, if any. An unreadable entry is
// treated as absent.
func (s *TimelineStore) LoadTimeline(ctx context.Context) (*model.Timeline, bool, error) {
	data, found, err := s.cache.Get(ctx, CacheKey(s.profile, TimelineKey))
	if err != nil || !found {
		return nil, false, err
	}
	var t model.Timeline
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, false, nil
	}
	return &t, true, nil
}
