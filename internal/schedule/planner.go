// Package schedule decides when previews and posts are due for a daily time
// table in a fixed timezone, and runs the publish cycle on those instants.
package schedule

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultTriggerWindow is how long after a post instant the post is still
// considered due. Polls further apart than this would miss posts.
const DefaultTriggerWindow = time.Minute

// keyRetention bounds how long fired trigger keys are remembered.
const keyRetention = 48 * time.Hour

// TimeOfDay is a wall-clock HH:MM.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t TimeOfDay) minutes() int {
	return t.Hour*60 + t.Minute
}

// ParseTimeOfDay parses "HH:MM" (24h clock).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parsed, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q, want HH:MM", s)
	}
	return TimeOfDay{Hour: parsed.Hour(), Minute: parsed.Minute()}, nil
}

// ParseTimes parses a list of post times. Each element may itself hold several
// comma-separated times. The result is sorted by time of day; duplicates are rejected.
func ParseTimes(values []string) ([]TimeOfDay, error) {
	var out []TimeOfDay
	seen := make(map[TimeOfDay]bool)

	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			t, err := ParseTimeOfDay(part)
			if err != nil {
				return nil, err
			}
			if seen[t] {
				return nil, fmt.Errorf("duplicate post time %s", t)
			}
			seen[t] = true
			out = append(out, t)
		}
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("no post times configured")
	}
	sort.Slice(out, func(i, j int) bool { return out[i].minutes() < out[j].minutes() })
	return out, nil
}

// Action is what a trigger does.
type Action int

const (
	ActionPreview Action = iota + 1
	ActionPost
)

func (a Action) String() string {
	switch a {
	case ActionPreview:
		return "preview"
	case ActionPost:
		return "post"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Trigger is one due preview or post.
type Trigger struct {
	Action Action
	// Target is the post instant the trigger belongs to (for previews, the upcoming post).
	Target time.Time
	// Key identifies the target day and time, e.g. "2026-10-15 12:00".
	Key string
}

// Planner computes due triggers and remembers which ones already fired, so each
// (date, time of day, action) fires at most once.
type Planner struct {
	times  []TimeOfDay
	lead   time.Duration
	window time.Duration
	loc    *time.Location

	mu    sync.Mutex
	fired map[firedKey]time.Time
}

type firedKey struct {
	action Action
	key    string
}

// NewPlanner creates a Planner. A zero lead disables previews; a non-positive
// window uses DefaultTriggerWindow.
func NewPlanner(times []TimeOfDay, lead, window time.Duration, loc *time.Location) *Planner {
	if window <= 0 {
		window = DefaultTriggerWindow
	}
	if loc == nil {
		loc = time.UTC
	}
	sorted := append([]TimeOfDay(nil), times...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].minutes() < sorted[j].minutes() })

	return &Planner{
		times:  sorted,
		lead:   lead,
		window: window,
		loc:    loc,
		fired:  make(map[firedKey]time.Time),
	}
}

// Due returns the triggers whose window contains now and marks them fired.
// Triggers are returned in chronological order of their instants.
func (p *Planner) Due(now time.Time) []Trigger {
	now = now.In(p.loc)

	p.mu.Lock()
	defer p.mu.Unlock()

	type candidate struct {
		at time.Time
		Trigger
	}
	var due []candidate

	for _, target := range p.targetsAround(now) {
		key := target.Format("2006-01-02 15:04")

		if p.lead > 0 {
			at := target.Add(-p.lead)
			if p.inPreview(now, at, target) && p.mark(ActionPreview, key, target) {
				due = append(due, candidate{at: at, Trigger: Trigger{Action: ActionPreview, Target: target, Key: key}})
			}
		}
		if p.inWindow(now, target) && p.mark(ActionPost, key, target) {
			due = append(due, candidate{at: target, Trigger: Trigger{Action: ActionPost, Target: target, Key: key}})
		}
	}

	p.prune(now)

	sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	out := make([]Trigger, len(due))
	for i, c := range due {
		out[i] = c.Trigger
	}
	return out
}

// Next returns the first post instant strictly after now.
func (p *Planner) Next(now time.Time) time.Time {
	now = now.In(p.loc)
	for _, target := range p.targetsAround(now) {
		if target.After(now) {
			return target
		}
	}
	// Unreachable with at least one time configured: tomorrow's targets are always after now.
	return time.Time{}
}

// targetsAround returns yesterday's, today's and tomorrow's post instants in order.
func (p *Planner) targetsAround(now time.Time) []time.Time {
	y, m, d := now.Date()
	out := make([]time.Time, 0, len(p.times)*3)
	for offset := -1; offset <= 1; offset++ {
		for _, t := range p.times {
			out = append(out, time.Date(y, m, d+offset, t.Hour, t.Minute, 0, 0, p.loc))
		}
	}
	return out
}

// inPreview reports whether now lies in [at, target). A preview is still sent
// late, e.g. after a restart inside the lead time, but never once the post is due.
func (p *Planner) inPreview(now, at, target time.Time) bool {
	return !now.Before(at) && now.Before(target)
}

func (p *Planner) inWindow(now, at time.Time) bool {
	return !now.Before(at) && now.Before(at.Add(p.window))
}

func (p *Planner) mark(action Action, key string, target time.Time) bool {
	k := firedKey{action: action, key: key}
	if _, ok := p.fired[k]; ok {
		return false
	}
	p.fired[k] = target
	return true
}

func (p *Planner) prune(now time.Time) {
	for k, target := range p.fired {
		if now.Sub(target) > keyRetention {
			delete(p.fired, k)
		}
	}
}
