package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sagra-pos/internal/models"
)

func TestAdjustPortionManually(t *testing.T) {
	l := newTestLedger(t)
	l.AdjustPortionManually("pizza", -5)
	assert.Equal(t, 5, l.DailyPortions().Items["pizza"].Remaining)

	l.AdjustPortionManually("pizza", -1000)
	assert.Equal(t, 0, l.DailyPortions().Items["pizza"].Remaining)

	l.AdjustPortionManually("pizza", 4)
	assert.Equal(t, 4, l.DailyPortions().Items["pizza"].Remaining)

	l.AdjustPortionManually("missing", 4)
	_, ok := l.DailyPortions().Items["missing"]
	assert.False(t, ok)
}

func TestResetSinglePortion(t *testing.T) {
	catalog := testCatalog()
	catalog = append(catalog, models.MenuItem{
		Key: "lasagna", DisplayName: []string{"Lasagna"}, UnitPriceCents: 800,
		DailyPortionLimit: models.IntPtr(20), CriticalThreshold: models.IntPtr(5),
	})

	l := New(nil)
	l.Initialize(catalog)
	l.SetDailyPortions(FreshPortions("2026-08-14", catalog))
	l.AdjustPortionManually("pizza", -6)
	l.AdjustPortionManually("lasagna", -3)

	l.ResetSinglePortion("pizza", catalog)

	portions := l.DailyPortions()
	assert.Equal(t, 10, portions.Items["pizza"].Remaining)
	assert.Equal(t, 3, portions.Items["pizza"].CriticalThreshold)
	assert.Equal(t, 17, portions.Items["lasagna"].Remaining)
}

func TestForceReloadAllPortions(t *testing.T) {
	l := newTestLedger(t)
	l.AdjustPortionManually("pizza", -9)

	l.ForceReloadAllPortions(testCatalog())

	portions := l.DailyPortions()
	assert.Equal(t, "2026-08-14", portions.BusinessDay)
	assert.Equal(t, 10, portions.Items["pizza"].Remaining)
	assert.False(t, portions.Items["acqua"].IsLimited)
}

func TestScarceFlagInView(t *testing.T) {
	l := newTestLedger(t)
	l.AdjustPortionManually("pizza", -7)

	for _, line := range l.View().Lines {
		if line.Key == "pizza" {
			require.NotNil(t, line.Portion)
			assert.True(t, line.Scarce)
			return
		}
		assert.Nil(t, line.Portion)
	}
}

func TestRollover_BusinessDay(t *testing.T) {
	rome := time.FixedZone("CEST", 2*60*60)
	r := Rollover{Location: rome, Hour: 16}

	tests := []struct {
		name string
		now  time.Time
		want string
	}{
		{name: "before cutoff belongs to previous day", now: time.Date(2026, 8, 14, 15, 59, 0, 0, rome), want: "2026-08-13"},
		{name: "at cutoff starts new day", now: time.Date(2026, 8, 14, 16, 0, 0, 0, rome), want: "2026-08-14"},
		{name: "after midnight still previous day", now: time.Date(2026, 8, 15, 1, 30, 0, 0, rome), want: "2026-08-14"},
		{name: "utc input converted to reference zone", now: time.Date(2026, 8, 14, 14, 30, 0, 0, time.UTC), want: "2026-08-14"},
		{name: "month boundary", now: time.Date(2026, 9, 1, 9, 0, 0, 0, rome), want: "2026-08-31"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.BusinessDay(tt.now))
		})
	}
}

func TestRollover_Resolve(t *testing.T) {
	rome := time.FixedZone("CEST", 2*60*60)
	r := Rollover{Location: rome, Hour: 16}
	catalog := testCatalog()

	yesterday := FreshPortions("2026-08-13", catalog)
	yesterday.Items["pizza"] = models.PortionCounter{Remaining: 4, CriticalThreshold: 3, IsLimited: true}

	t.Run("persisted counter reused before cutoff", func(t *testing.T) {
		got, created := r.Resolve(time.Date(2026, 8, 14, 15, 59, 0, 0, rome), &yesterday, catalog)
		assert.False(t, created)
		assert.Equal(t, "2026-08-13", got.BusinessDay)
		assert.Equal(t, 4, got.Items["pizza"].Remaining)
	})

	t.Run("fresh counter after cutoff", func(t *testing.T) {
		got, created := r.Resolve(time.Date(2026, 8, 14, 16, 1, 0, 0, rome), &yesterday, catalog)
		assert.True(t, created)
		assert.Equal(t, "2026-08-14", got.BusinessDay)
		assert.Equal(t, 10, got.Items["pizza"].Remaining)
	})

	t.Run("no persisted counter", func(t *testing.T) {
		got, created := r.Resolve(time.Date(2026, 8, 14, 10, 0, 0, 0, rome), nil, catalog)
		assert.True(t, created)
		assert.Equal(t, "2026-08-13", got.BusinessDay)
		assert.Equal(t, 10, got.Items["pizza"].Remaining)
	})

	t.Run("new catalog item added to loaded counter", func(t *testing.T) {
		extended := append(models.Catalog{}, catalog...)
		extended = append(extended, models.MenuItem{Key: "torta", DailyPortionLimit: models.IntPtr(6)})

		got, created := r.Resolve(time.Date(2026, 8, 14, 15, 0, 0, 0, rome), &yesterday, extended)
		assert.False(t, created)
		assert.Equal(t, 4, got.Items["pizza"].Remaining)
		assert.Equal(t, 6, got.Items["torta"].Remaining)
		_, leaked := yesterday.Items["torta"]
		assert.False(t, leaked)
	})
}
