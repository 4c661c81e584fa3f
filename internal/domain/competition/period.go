package competition

import (
	"iter"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// PERIOD CALCULATOR
// Границы периодов не хранятся: они каждый раз выводятся из якоря и "сейчас".
// Это инвариант - переобработка истории не может дать дрейф идентификаторов.
// ══════════════════════════════════════════════════════════════════════════════

// PeriodDays - длина периода соревнования в днях.
const PeriodDays = 14

// Period - один 14-дневный период. End = Start + 13 дней (последний день
// периода включительно); следующий период начинается ровно через 14 дней.
type Period struct {
	Index int
	Start time.Time
	End   time.Time
}

// Next возвращает следующий период.
func (p Period) Next() Period {
	start := p.Start.AddDate(0, 0, PeriodDays)
	return Period{Index: p.Index + 1, Start: start, End: start.AddDate(0, 0, PeriodDays-1)}
}

// Contains проверяет, что t попадает в период. Полуинтервал
// [Start, Start+14д) покрывает последний день целиком и не пересекается
// со следующим периодом.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.Start.AddDate(0, 0, PeriodDays))
}

// Window возвращает окно редьюсера, совпадающее с периодом.
func (p Period) Window() Window {
	return Window{Start: p.Start, End: p.Start.AddDate(0, 0, PeriodDays)}
}

// PeriodCalculator выводит последовательность периодов из даты старта.
// Не хранит состояния и безопасен для конкурентного использования.
type PeriodCalculator struct{}

// NewPeriodCalculator создаёт калькулятор периодов.
func NewPeriodCalculator() *PeriodCalculator {
	return &PeriodCalculator{}
}

// FirstPeriod возвращает первый период: он начинается за 13 дней до якоря.
func (c *PeriodCalculator) FirstPeriod(anchor time.Time) Period {
	start := anchor.UTC().AddDate(0, 0, -(PeriodDays - 1))
	return Period{Index: 0, Start: start, End: start.AddDate(0, 0, PeriodDays-1)}
}

// Periods лениво перечисляет периоды до now. Последовательность
// заканчивается, как только начало периода оказывается позже now, поэтому
// последний выданный период содержит now. Якорь в будущем даёт пустую
// последовательность.
func (c *PeriodCalculator) Periods(anchor, now time.Time) iter.Seq[Period] {
	return func(yield func(Period) bool) {
		for p := c.FirstPeriod(anchor); !p.Start.After(now); p = p.Next() {
			if !yield(p) {
				return
			}
		}
	}
}

// PeriodsUpTo возвращает все периоды до now включительно.
func (c *PeriodCalculator) PeriodsUpTo(anchor, now time.Time) []Period {
	var out []Period
	for p := range c.Periods(anchor, now) {
		out = append(out, p)
	}
	return out
}

// Current возвращает период, содержащий now.
func (c *PeriodCalculator) Current(anchor, now time.Time) (Period, bool) {
	var (
		last  Period
		found bool
	)
	for p := range c.Periods(anchor, now) {
		last, found = p, true
	}
	return last, found
}
