package competition

import "time"

// ══════════════════════════════════════════════════════════════════════════════
// AGGREGATION ENGINE
// Скользящий итог участника. Пересчитывается при каждом запросе и никогда не
// кешируется: границы периодов неявно сдвигаются вместе с now.
// ══════════════════════════════════════════════════════════════════════════════

// AggregationMode показывает, как был посчитан итог.
type AggregationMode string

const (
	// ModeCumulative - дата старта не задана, суммируются все записи.
	ModeCumulative AggregationMode = "cumulative"

	// ModePeriodic - сумма значений окон по всем периодам до now.
	ModePeriodic AggregationMode = "periodic"
)

// AggregationEngine считает скользящий итог по периодам.
type AggregationEngine struct {
	periods *PeriodCalculator
	reducer *SubmissionReducer
}

// NewAggregationEngine создаёт движок агрегации.
func NewAggregationEngine(periods *PeriodCalculator, reducer *SubmissionReducer) *AggregationEngine {
	if periods == nil {
		periods = NewPeriodCalculator()
	}
	if reducer == nil {
		reducer = NewSubmissionReducer()
	}
	return &AggregationEngine{periods: periods, reducer: reducer}
}

// RollingTotal возвращает итог участника на момент now.
func (e *AggregationEngine) RollingTotal(p *Participant, cfg *CompetitionConfig, now time.Time) int {
	total, _ := e.RollingTotalWithMode(p, cfg, now)
	return total
}

// RollingTotalWithMode возвращает итог и режим, которым он получен.
// Без якоря используется документированный накопительный режим.
func (e *AggregationEngine) RollingTotalWithMode(p *Participant, cfg *CompetitionConfig, now time.Time) (int, AggregationMode) {
	if p == nil {
		return 0, ModeCumulative
	}

	anchor, ok := cfg.Anchor()
	if !ok {
		total := 0
		for _, rec := range p.History {
			total += rec.StepCount
		}
		return nonNegative(total), ModeCumulative
	}

	total := 0
	for period := range e.periods.Periods(anchor, now) {
		total += e.reducer.EffectiveValue(p.History, period.Window())
	}
	return nonNegative(total), ModePeriodic
}

// LastCounted возвращает время самой поздней записи, вошедшей в итог
// RollingTotal на момент now. Окна те же, что и у итога: без якоря это вся
// история, иначе последняя запись каждого периода до now. Нулевое время -
// записей нет.
func (e *AggregationEngine) LastCounted(p *Participant, cfg *CompetitionConfig, now time.Time) time.Time {
	var last time.Time
	if p == nil {
		return last
	}

	anchor, ok := cfg.Anchor()
	if !ok {
		for _, rec := range p.History {
			if rec.Timestamp.After(last) {
				last = rec.Timestamp
			}
		}
		return last
	}

	for period := range e.periods.Periods(anchor, now) {
		if rec, ok := e.reducer.Latest(p.History, period.Window()); ok && rec.Timestamp.After(last) {
			last = rec.Timestamp
		}
	}
	return last
}

// PeriodBreakdown возвращает значение каждого периода до now.
func (e *AggregationEngine) PeriodBreakdown(p *Participant, anchor, now time.Time) []PeriodValue {
	var out []PeriodValue
	for period := range e.periods.Periods(anchor, now) {
		out = append(out, PeriodValue{
			Period: period,
			Steps:  e.reducer.EffectiveValue(p.History, period.Window()),
		})
	}
	return out
}

// PeriodValue - значение одного периода.
type PeriodValue struct {
	Period Period
	Steps  int
}

func nonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
