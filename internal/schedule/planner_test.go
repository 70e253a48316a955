package schedule_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/postqueue/internal/schedule"
)

func mustTimes(t *testing.T, values ...string) []schedule.TimeOfDay {
	t.Helper()
	times, err := schedule.ParseTimes(values)
	require.NoError(t, err)
	return times
}

func TestParseTimes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   []string
		want    []string
		wantErr bool
	}{
		{name: "comma separated unordered", input: []string{"20:00,12:00, 16:00"}, want: []string{"12:00", "16:00", "20:00"}},
		{name: "list form", input: []string{"09:30", "08:05"}, want: []string{"08:05", "09:30"}},
		{name: "duplicate", input: []string{"12:00,12:00"}, wantErr: true},
		{name: "malformed", input: []string{"25:00"}, wantErr: true},
		{name: "garbage", input: []string{"noon"}, wantErr: true},
		{name: "empty", input: []string{" , "}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := schedule.ParseTimes(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)

			var strs []string
			for _, tod := range got {
				strs = append(strs, tod.String())
			}
			assert.Equal(t, tt.want, strs)
		})
	}
}

func actions(triggers []schedule.Trigger) []string {
	out := make([]string, 0, len(triggers))
	for _, t := range triggers {
		out = append(out, t.Action.String()+" "+t.Key)
	}
	return out
}

func TestPlanner_PreviewFiresOnceInWindow(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("MSK", 3*60*60)
	p := schedule.NewPlanner(mustTimes(t, "12:00,16:00,20:00"), 45*time.Minute, time.Minute, loc)

	day := func(h, m, s int) time.Time { return time.Date(2026, 10, 15, h, m, s, 0, loc) }

	assert.Empty(t, p.Due(day(11, 14, 30)))

	var fired []schedule.Trigger
	for ts := day(11, 15, 0); ts.Before(day(12, 0, 0)); ts = ts.Add(30 * time.Second) {
		fired = append(fired, p.Due(ts)...)
	}
	require.Len(t, fired, 1)
	assert.Equal(t, schedule.ActionPreview, fired[0].Action)
	assert.Equal(t, "2026-10-15 12:00", fired[0].Key)
	assert.True(t, fired[0].Target.Equal(day(12, 0, 0)))
}

func TestPlanner_LateStartStillSendsPreviewOnce(t *testing.T) {
	t.Parallel()

	loc := time.UTC
	day := func(h, m, s int) time.Time { return time.Date(2026, 10, 15, h, m, s, 0, loc) }
	p := schedule.NewPlanner(mustTimes(t, "12:00"), 45*time.Minute, time.Minute, loc)

	var fired []schedule.Trigger
	for ts := day(11, 20, 0); ts.Before(day(12, 5, 0)); ts = ts.Add(30 * time.Second) {
		fired = append(fired, p.Due(ts)...)
	}
	assert.Equal(t, []string{"preview 2026-10-15 12:00", "post 2026-10-15 12:00"}, actions(fired))

	// Started at the post instant: the post fires, the preview is skipped.
	atPost := schedule.NewPlanner(mustTimes(t, "12:00"), 45*time.Minute, time.Minute, loc)
	assert.Equal(t, []string{"post 2026-10-15 12:00"}, actions(atPost.Due(day(12, 0, 10))))

	// Started after the post window: nothing is backfilled.
	missed := schedule.NewPlanner(mustTimes(t, "12:00"), 45*time.Minute, time.Minute, loc)
	assert.Empty(t, missed.Due(day(12, 2, 0)))
}

func TestPlanner_PostFiresOncePerInstant(t *testing.T) {
	t.Parallel()

	loc := time.UTC
	p := schedule.NewPlanner(mustTimes(t, "12:00"), 45*time.Minute, time.Minute, loc)

	var fired []schedule.Trigger
	start := time.Date(2026, 10, 15, 11, 0, 0, 0, loc)
	for ts := start; ts.Before(start.Add(2 * time.Hour)); ts = ts.Add(30 * time.Second) {
		fired = append(fired, p.Due(ts)...)
	}
	assert.Equal(t, []string{"preview 2026-10-15 12:00", "post 2026-10-15 12:00"}, actions(fired))
}

func TestPlanner_FullDayAndNextDay(t *testing.T) {
	t.Parallel()

	loc := time.UTC
	p := schedule.NewPlanner(mustTimes(t, "16:00", "12:00"), 10*time.Minute, time.Minute, loc)

	var fired []schedule.Trigger
	start := time.Date(2026, 10, 15, 0, 0, 0, 0, loc)
	for ts := start; ts.Before(start.Add(48 * time.Hour)); ts = ts.Add(30 * time.Second) {
		fired = append(fired, p.Due(ts)...)
	}

	assert.Equal(t, []string{
		"preview 2026-10-15 12:00", "post 2026-10-15 12:00",
		"preview 2026-10-15 16:00", "post 2026-10-15 16:00",
		"preview 2026-10-16 12:00", "post 2026-10-16 12:00",
		"preview 2026-10-16 16:00", "post 2026-10-16 16:00",
	}, actions(fired))
}

func TestPlanner_PreviewCrossesMidnight(t *testing.T) {
	t.Parallel()

	loc := time.UTC
	p := schedule.NewPlanner(mustTimes(t, "00:15"), 45*time.Minute, time.Minute, loc)

	got := p.Due(time.Date(2026, 10, 15, 23, 30, 10, 0, loc))
	assert.Equal(t, []string{"preview 2026-10-16 00:15"}, actions(got))

	got = p.Due(time.Date(2026, 10, 16, 0, 15, 5, 0, loc))
	assert.Equal(t, []string{"post 2026-10-16 00:15"}, actions(got))
}

func TestPlanner_ZeroLeadDisablesPreview(t *testing.T) {
	t.Parallel()

	loc := time.UTC
	p := schedule.NewPlanner(mustTimes(t, "12:00"), 0, time.Minute, loc)

	var fired []schedule.Trigger
	start := time.Date(2026, 10, 15, 11, 0, 0, 0, loc)
	for ts := start; ts.Before(start.Add(2 * time.Hour)); ts = ts.Add(30 * time.Second) {
		fired = append(fired, p.Due(ts)...)
	}
	assert.Equal(t, []string{"post 2026-10-15 12:00"}, actions(fired))
}

func TestPlanner_UsesConfiguredTimezone(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("UTC+3", 3*60*60)
	p := schedule.NewPlanner(mustTimes(t, "12:00"), 0, time.Minute, loc)

	// 09:00 UTC is 12:00 in UTC+3.
	got := p.Due(time.Date(2026, 10, 15, 9, 0, 20, 0, time.UTC))
	assert.Equal(t, []string{"post 2026-10-15 12:00"}, actions(got))
}

func TestPlanner_Next(t *testing.T) {
	t.Parallel()

	loc := time.UTC
	p := schedule.NewPlanner(mustTimes(t, "12:00,20:00"), 0, time.Minute, loc)

	assert.Equal(t, time.Date(2026, 10, 15, 12, 0, 0, 0, loc), p.Next(time.Date(2026, 10, 15, 8, 0, 0, 0, loc)))
	assert.Equal(t, time.Date(2026, 10, 15, 20, 0, 0, 0, loc), p.Next(time.Date(2026, 10, 15, 12, 0, 0, 0, loc)))
	assert.Equal(t, time.Date(2026, 10, 16, 12, 0, 0, 0, loc), p.Next(time.Date(2026, 10, 15, 21, 0, 0, 0, loc)))
}
