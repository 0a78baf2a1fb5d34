package aggregation

import (
	"testing"
	"time"

	v1 "github.com/pulseops-lab/pulseops/internal/api/v1"
	"github.com/stretchr/testify/require"
)

func TestDayBucket(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want string
	}{
		{name: "last second of day", in: time.Date(2024, 3, 1, 23, 59, 59, 999, time.UTC), want: "2024-03-01"},
		{name: "first second of day", in: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), want: "2024-03-02"},
		{name: "offset converted to utc", in: time.Date(2024, 3, 1, 22, 0, 0, 0, time.FixedZone("EST", -5*3600)), want: "2024-03-02"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := DayBucket(tc.in)
			require.Equal(t, tc.want, got.Format(DateLayout))
			require.Equal(t, time.UTC, got.Location())
			require.Zero(t, got.Hour())
		})
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-03-01")
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), d)

	_, err = ParseDate("03/01/2024")
	require.Error(t, err)
}

func TestDimensions_CanonicalIsOrderIndependent(t *testing.T) {
	a := Dimensions{"event_name": "click", "plan": "pro"}
	b := Dimensions{"plan": "pro", "event_name": "click"}

	ca, err := a.Canonical()
	require.NoError(t, err)
	cb, err := b.Canonical()
	require.NoError(t, err)
	require.Equal(t, ca, cb)
	require.Equal(t, `{"event_name":"click","plan":"pro"}`, ca)

	empty, err := Dimensions{}.Canonical()
	require.NoError(t, err)
	require.Equal(t, "{}", empty)

	nilDims, err := Dimensions(nil).Canonical()
	require.NoError(t, err)
	require.Equal(t, "{}", nilDims)
}

func TestDeltasFor(t *testing.T) {
	evt := &v1.Event{
		ID:        "8a0f3c52-7f57-4e0b-9a43-4d4a30c1a0b1",
		OrgID:     "orgA",
		ProjectID: "proj",
		EventName: "signup",
		UserID:    "u1",
		Timestamp: time.Date(2024, 3, 1, 23, 59, 59, 0, time.UTC),
	}
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	t.Run("new active user includes dau", func(t *testing.T) {
		deltas := DeltasFor(evt, true)
		require.Len(t, deltas, 3)

		require.Equal(t, MetricDAU, deltas[0].Key.MetricName)
		require.Empty(t, deltas[0].Key.Dimensions)
		require.Equal(t, MetricEventCount, deltas[1].Key.MetricName)
		require.Equal(t, Dimensions{"event_name": "signup"}, deltas[1].Key.Dimensions)
		require.Equal(t, MetricTotalEvents, deltas[2].Key.MetricName)

		for _, d := range deltas {
			require.Equal(t, int64(1), d.Value)
			require.Equal(t, day, d.Key.Date)
			require.Equal(t, "orgA", d.Key.OrgID)
			require.Equal(t, "proj", d.Key.ProjectID)
		}
	})

	t.Run("returning user skips dau", func(t *testing.T) {
		deltas := DeltasFor(evt, false)
		require.Len(t, deltas, 2)
		require.Equal(t, MetricEventCount, deltas[0].Key.MetricName)
	})

	t.Run("anonymous event skips dau", func(t *testing.T) {
		anon := *evt
		anon.UserID = ""
		deltas := DeltasFor(&anon, true)
		require.Len(t, deltas, 2)
	})
}

func TestAggregateKey_String(t *testing.T) {
	k := AggregateKey{
		OrgID:      "orgA",
		ProjectID:  "p",
		MetricName: MetricEventCount,
		Date:       time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Dimensions: Dimensions{"event_name": "click"},
	}
	require.Equal(t, `orgA/p/event_count/2024-03-01/{"event_name":"click"}`, k.String())
}

func TestErrorRate(t *testing.T) {
	require.Equal(t, "0.00%", ErrorRate(0, 0))
	require.Equal(t, "0.00%", ErrorRate(0, 100))
	require.Equal(t, "1.00%", ErrorRate(1, 100))
	require.Equal(t, "33.33%", ErrorRate(1, 3))
	require.Equal(t, "100.00%", ErrorRate(7, 7))
}
