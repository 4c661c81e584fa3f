package competition

import (
	"time"

	"github.com/stepbattle/stepbattle/internal/domain/shared"
	"github.com/stepbattle/stepbattle/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBMISSION REDUCER
// Внутри одного окна учитывается только последняя отправка: новая отправка
// заменяет значение окна, а не прибавляется к нему. Между окнами значения
// суммируются (см. AggregationEngine).
// ══════════════════════════════════════════════════════════════════════════════

// Window - полуинтервал [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains проверяет, что t попадает в окно.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// DayWindow возвращает календарный день UTC, содержащий t.
func DayWindow(t time.Time) Window {
	start := timeutil.StartOfDay(t)
	return Window{Start: start, End: start.AddDate(0, 0, 1)}
}

// Key возвращает стабильный ключ окна для хранилища.
func (w Window) Key() string {
	if w.End.Sub(w.Start) == 24*time.Hour {
		return "day:" + string(shared.DateKeyOf(w.Start))
	}
	return "range:" + w.Start.UTC().Format(time.RFC3339) + "/" + w.End.UTC().Format(time.RFC3339)
}

// UpsertResult описывает результат замены или добавления записи.
type UpsertResult struct {
	History       []SubmissionRecord
	Replaced      bool
	PreviousValue *int
}

// SubmissionReducer сводит сырые отправки к одному значению на окно.
type SubmissionReducer struct{}

// NewSubmissionReducer создаёт редьюсер.
func NewSubmissionReducer() *SubmissionReducer {
	return &SubmissionReducer{}
}

// Latest возвращает самую свежую запись в окне.
func (r *SubmissionReducer) Latest(history []SubmissionRecord, w Window) (SubmissionRecord, bool) {
	var (
		latest SubmissionRecord
		found  bool
	)
	for _, rec := range history {
		if !w.Contains(rec.Timestamp) {
			continue
		}
		if !found || rec.Timestamp.After(latest.Timestamp) ||
			(rec.Timestamp.Equal(latest.Timestamp) && rec.ID > latest.ID) {
			latest, found = rec, true
		}
	}
	return latest, found
}

// EffectiveValue возвращает значение окна: шаги последней записи или 0.
func (r *SubmissionReducer) EffectiveValue(history []SubmissionRecord, w Window) int {
	rec, ok := r.Latest(history, w)
	if !ok {
		return 0
	}
	return rec.StepCount
}

// UpsertForWindow перезаписывает последнюю запись окна (значение и время)
// или добавляет новую, если окно пусто. Повторная отправка в том же окне
// даёт одну запись со значением последнего вызова. Исходный срез не меняется.
func (r *SubmissionReducer) UpsertForWindow(history []SubmissionRecord, w Window, incoming SubmissionRecord) UpsertResult {
	out := make([]SubmissionRecord, len(history))
	copy(out, history)

	existing, ok := r.Latest(out, w)
	if !ok {
		return UpsertResult{History: append(out, incoming)}
	}

	prev := existing.StepCount
	for i := range out {
		if out[i].ID == existing.ID {
			out[i].StepCount = incoming.StepCount
			out[i].Timestamp = incoming.Timestamp
			out[i].Source = incoming.Source
			break
		}
	}
	return UpsertResult{History: out, Replaced: true, PreviousValue: &prev}
}
