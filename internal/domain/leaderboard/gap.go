package leaderboard

import (
	"math"
	"sort"

	"github.com/stepbattle/stepbattle/internal/domain/competition"
	"github.com/stepbattle/stepbattle/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GAP TREND
// Отставание участника от суммы всей группы за день и его изменение между
// двумя последними днями, в которые участник отправлял шаги. Метрика дневная
// и не зависит от 14-дневных периодов.
// ══════════════════════════════════════════════════════════════════════════════

// GapTrend - результат сравнения двух последних дней.
type GapTrend struct {
	// Percent - изменение отставания в процентах, округлённое до 0.1.
	// Положительное значение - участник сокращает отставание.
	Percent float64

	Yesterday    shared.DateKey
	Today        shared.DateKey
	YesterdayGap int
	TodayGap     int
}

// GapTrendCalculator считает тренд отставания.
type GapTrendCalculator struct {
	reducer *competition.SubmissionReducer
}

// NewGapTrendCalculator создаёт калькулятор.
func NewGapTrendCalculator(reducer *competition.SubmissionReducer) *GapTrendCalculator {
	if reducer == nil {
		reducer = competition.NewSubmissionReducer()
	}
	return &GapTrendCalculator{reducer: reducer}
}

// GapChangePercent возвращает тренд или false при недостатке данных:
// меньше двух различных дней у участника или нулевое вчерашнее отставание.
// cohort - истории всех участников группы, включая самого участника.
func (c *GapTrendCalculator) GapChangePercent(
	participant []competition.SubmissionRecord,
	cohort [][]competition.SubmissionRecord,
) (GapTrend, bool) {
	days := distinctDays(participant)
	if len(days) < 2 {
		return GapTrend{}, false
	}
	today, yesterday := days[0], days[1]

	todayGap := c.cohortTotal(cohort, today) - c.dayValue(participant, today)
	yesterdayGap := c.cohortTotal(cohort, yesterday) - c.dayValue(participant, yesterday)
	if yesterdayGap == 0 {
		return GapTrend{}, false
	}

	pct := float64(yesterdayGap-todayGap) / float64(yesterdayGap) * 100
	return GapTrend{
		Percent:      roundTenth(pct),
		Yesterday:    yesterday,
		Today:        today,
		YesterdayGap: yesterdayGap,
		TodayGap:     todayGap,
	}, true
}

// roundTenth округляет до десятых; половина округляется вверх (-0.05 → 0).
func roundTenth(v float64) float64 {
	return math.Floor(v*10+0.5) / 10
}

// dayValue - значение участника за день: последняя запись дня.
func (c *GapTrendCalculator) dayValue(history []competition.SubmissionRecord, day shared.DateKey) int {
	start, err := day.Time()
	if err != nil {
		return 0
	}
	return c.reducer.EffectiveValue(history, competition.DayWindow(start))
}

func (c *GapTrendCalculator) cohortTotal(cohort [][]competition.SubmissionRecord, day shared.DateKey) int {
	total := 0
	for _, history := range cohort {
		total += c.dayValue(history, day)
	}
	return total
}

// distinctDays возвращает дни с отправками, от новых к старым.
func distinctDays(history []competition.SubmissionRecord) []shared.DateKey {
	seen := make(map[shared.DateKey]struct{}, len(history))
	days := make([]shared.DateKey, 0, len(history))
	for _, rec := range history {
		key := shared.DateKeyOf(rec.Timestamp)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		days = append(days, key)
	}
	// Формат YYYY-MM-DD сортируется лексикографически.
	sort.Slice(days, func(i, j int) bool { return days[i] > days[j] })
	return days
}
