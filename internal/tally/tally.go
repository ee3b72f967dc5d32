// Package tally aggregates participation records into per-user presence totals.
package tally

import (
	"sort"
	"time"

	"github.com/foxseedlab/eventsync/internal/repository"
)

type Presence struct {
	UserID   int64
	Joins    int
	Duration time.Duration
}

// Summarize pairs each Joined record with the next Left record of the same user.
// A join still open at end is closed at end; a Left without a prior join counts from start.
// Records outside [start, end] are clamped. Results are ordered by descending duration, then user id.
func Summarize(records []repository.Participation, start, end time.Time) []Presence {
	sorted := make([]repository.Participation, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].OccurredAt.Equal(sorted[j].OccurredAt) {
			return sorted[i].ID < sorted[j].ID
		}
		return sorted[i].OccurredAt.Before(sorted[j].OccurredAt)
	})

	byUser := make(map[int64]*Presence)
	openSince := make(map[int64]time.Time)
	get := func(userID int64) *Presence {
		p, ok := byUser[userID]
		if !ok {
			p = &Presence{UserID: userID}
			byUser[userID] = p
		}
		return p
	}

	for _, rec := range sorted {
		at := clamp(rec.OccurredAt, start, end)
		p := get(rec.UserID)
		switch rec.Kind {
		case repository.ParticipationJoined:
			if _, open := openSince[rec.UserID]; open {
				continue
			}
			p.Joins++
			openSince[rec.UserID] = at
		case repository.ParticipationLeft:
			since, open := openSince[rec.UserID]
			if !open {
				since = start
			}
			p.Duration += at.Sub(since)
			delete(openSince, rec.UserID)
		}
	}
	for userID, since := range openSince {
		byUser[userID].Duration += end.Sub(since)
	}

	out := make([]Presence, 0, len(byUser))
	for _, p := range byUser {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Duration == out[j].Duration {
			return out[i].UserID < out[j].UserID
		}
		return out[i].Duration > out[j].Duration
	})
	return out
}

func clamp(t, start, end time.Time) time.Time {
	if !start.IsZero() && t.Before(start) {
		return start
	}
	if !end.IsZero() && t.After(end) {
		return end
	}
	return t
}

// Present returns the users whose latest record is a join, ordered by user id.
func Present(records []repository.Participation) []int64 {
	latest := make(map[int64]repository.Participation)
	for _, rec := range records {
		prev, ok := latest[rec.UserID]
		if !ok || rec.OccurredAt.After(prev.OccurredAt) || (rec.OccurredAt.Equal(prev.OccurredAt) && rec.ID > prev.ID) {
			latest[rec.UserID] = rec
		}
	}
	out := make([]int64, 0, len(latest))
	for userID, rec := range latest {
		if rec.Kind == repository.ParticipationJoined {
			out = append(out, userID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// DistinctUsers counts the users that appear in records.
func DistinctUsers(records []repository.Participation) int {
	seen := make(map[int64]struct{}, len(records))
	for _, rec := range records {
		seen[rec.UserID] = struct{}{}
	}
	return len(seen)
}
