// Пакет telemetry — журнал операционных событий с ограниченным хранением.
//
// Два домена: migration (ёмкость 50) и runtime (ёмкость 100). Каждое событие
// добавляется в начало журнала домена, журнал обрезается до ёмкости, сводка
// домена (счётчики уровней и ключей, последняя ошибка, скользящая статистика
// длительностей) пересчитывается. Всё сразу сохраняется в kv.Store.
//
// Запись телеметрии никогда не возвращает ошибку: сбой хранилища пишется
// в slog и проглатывается. События дублируются в Prometheus.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/campus-directory/internal/domain/model"
	"github.com/bigkaa/campus-directory/internal/storage/kv"
)

// Domain — домен телеметрии.
type Domain string

const (
	DomainMigration Domain = "migration"
	DomainRuntime   Domain = "runtime"
)

// ParseDomain разбирает имя домена.
func ParseDomain(s string) (Domain, error) {
	switch Domain(s) {
	case DomainMigration, DomainRuntime:
		return Domain(s), nil
	default:
		return "", fmt.Errorf("неизвестный домен телеметрии %q, допустимые: migration, runtime", s)
	}
}

// Level — уровень события.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Entry — запись журнала.
type Entry struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	Key        string         `json:"key"`
	Level      Level          `json:"level"`
	Message    string         `json:"message"`
	Data       map[string]any `json:"data,omitempty"`
	DurationMs *float64       `json:"durationMs,omitempty"`
}

// DurationStats — статистика длительностей операции по последним N выборкам.
type DurationStats struct {
	Count   int       `json:"count"`
	Total   float64   `json:"total"`
	Min     float64   `json:"min"`
	Max     float64   `json:"max"`
	Average float64   `json:"average"`
	Samples []float64 `json:"samples"`
}

// LastError — снимок последнего события уровня error.
type LastError struct {
	Timestamp time.Time `json:"timestamp"`
	Key       string    `json:"key"`
	Message   string    `json:"message"`
}

// Summary — сводка домена.
type Summary struct {
	Levels    map[Level]int             `json:"levels"`
	Keys      map[string]int            `json:"keys"`
	LastError *LastError                `json:"lastError,omitempty"`
	Durations map[string]*DurationStats `json:"durations"`
	UpdatedAt time.Time                 `json:"updatedAt"`
}

func newSummary() *Summary {
	return &Summary{
		Levels:    make(map[Level]int),
		Keys:      make(map[string]int),
		Durations: make(map[string]*DurationStats),
	}
}

// InvalidationEvent — запись журнала инвалидаций.
type InvalidationEvent struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Edit      model.EditEvent `json:"edit"`
}

// Options — параметры хранения.
type Options struct {
	MigrationCap    int
	RuntimeCap      int
	InvalidationCap int
	DurationWindow  int
}

// DefaultOptions возвращает ёмкости по умолчанию.
func DefaultOptions() Options {
	return Options{
		MigrationCap:    50,
		RuntimeCap:      100,
		InvalidationCap: 50,
		DurationWindow:  50,
	}
}

// Log — журнал телеметрии обоих доменов.
type Log struct {
	store  kv.Store
	opts   Options
	logger *slog.Logger
	mu     sync.Mutex
	now    func() time.Time
}

// New создаёт журнал телеметрии поверх store.
// Нулевые значения opts заменяются значениями по умолчанию.
func New(store kv.Store, opts Options, logger *slog.Logger) *Log {
	def := DefaultOptions()
	if opts.MigrationCap <= 0 {
		opts.MigrationCap = def.MigrationCap
	}
	if opts.RuntimeCap <= 0 {
		opts.RuntimeCap = def.RuntimeCap
	}
	if opts.InvalidationCap <= 0 {
		opts.InvalidationCap = def.InvalidationCap
	}
	if opts.DurationWindow <= 0 {
		opts.DurationWindow = def.DurationWindow
	}
	return &Log{
		store:  store,
		opts:   opts,
		logger: logger.With(slog.String("component", "telemetry")),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Record записывает событие без длительности.
func (l *Log) Record(ctx context.Context, domain Domain, key string, level Level, message string, data map[string]any) {
	l.record(ctx, domain, key, level, message, data, nil)
}

// RecordTimed записывает событие с длительностью операции.
func (l *Log) RecordTimed(ctx context.Context, domain Domain, key string, level Level, message string, data map[string]any, d time.Duration) {
	ms := float64(d) / float64(time.Millisecond)
	l.record(ctx, domain, key, level, message, data, &ms)
}

func (l *Log) record(ctx context.Context, domain Domain, key string, level Level, message string, data map[string]any, durationMs *float64) {
	entry := Entry{
		ID:         uuid.New().String(),
		Timestamp:  l.now(),
		Key:        key,
		Level:      level,
		Message:    message,
		Data:       data,
		DurationMs: durationMs,
	}

	eventsTotal.WithLabelValues(string(domain), key, string(level)).Inc()
	if durationMs != nil {
		operationDuration.WithLabelValues(string(domain), key).Observe(*durationMs / 1000)
	}

	logKey, summaryKey, limit := l.keysFor(domain)

	l.mu.Lock()
	defer l.mu.Unlock()

	var entries []Entry
	l.load(ctx, logKey, &entries)
	entries = append([]Entry{entry}, entries...)
	if len(entries) > limit {
		entries = entries[:limit]
	}
	l.save(ctx, logKey, entries)

	summary := newSummary()
	l.load(ctx, summaryKey, summary)
	l.apply(summary, entry)
	l.save(ctx, summaryKey, summary)
}

// apply обновляет сводку событием.
func (l *Log) apply(s *Summary, e Entry) {
	if s.Levels == nil {
		s.Levels = make(map[Level]int)
	}
	if s.Keys == nil {
		s.Keys = make(map[string]int)
	}
	if s.Durations == nil {
		s.Durations = make(map[string]*DurationStats)
	}

	s.Levels[e.Level]++
	s.Keys[e.Key]++
	s.UpdatedAt = e.Timestamp

	if e.Level == LevelError {
		s.LastError = &LastError{Timestamp: e.Timestamp, Key: e.Key, Message: e.Message}
	}

	if e.DurationMs != nil {
		st := s.Durations[e.Key]
		if st == nil {
			st = &DurationStats{}
			s.Durations[e.Key] = st
		}
		st.Samples = append(st.Samples, *e.DurationMs)
		if len(st.Samples) > l.opts.DurationWindow {
			st.Samples = st.Samples[len(st.Samples)-l.opts.DurationWindow:]
		}
		st.recompute()
	}
}

// recompute пересчитывает агрегаты по окну выборок.
func (st *DurationStats) recompute() {
	st.Count = len(st.Samples)
	st.Total, st.Min, st.Max, st.Average = 0, 0, 0, 0
	for i, v := range st.Samples {
		st.Total += v
		if i == 0 || v < st.Min {
			st.Min = v
		}
		if i == 0 || v > st.Max {
			st.Max = v
		}
	}
	if st.Count > 0 {
		st.Average = st.Total / float64(st.Count)
	}
}

// Entries возвращает журнал домена (новые первыми).
func (l *Log) Entries(ctx context.Context, domain Domain) []Entry {
	logKey, _, _ := l.keysFor(domain)
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := []Entry{}
	l.load(ctx, logKey, &entries)
	return entries
}

// Summary возвращает сводку домена.
func (l *Log) Summary(ctx context.Context, domain Domain) *Summary {
	_, summaryKey, _ := l.keysFor(domain)
	l.mu.Lock()
	defer l.mu.Unlock()

	s := newSummary()
	l.load(ctx, summaryKey, s)
	return s
}

// RecordInvalidation добавляет событие в журнал инвалидаций.
func (l *Log) RecordInvalidation(ctx context.Context, edit model.EditEvent) {
	ev := InvalidationEvent{
		ID:        uuid.New().String(),
		Timestamp: l.now(),
		Edit:      edit,
	}
	invalidationsTotal.Inc()

	l.mu.Lock()
	defer l.mu.Unlock()

	var events []InvalidationEvent
	l.load(ctx, kv.KeyInvalidationLog, &events)
	events = append([]InvalidationEvent{ev}, events...)
	if len(events) > l.opts.InvalidationCap {
		events = events[:l.opts.InvalidationCap]
	}
	l.save(ctx, kv.KeyInvalidationLog, events)
}

// Invalidations возвращает журнал инвалидаций (новые первыми).
func (l *Log) Invalidations(ctx context.Context) []InvalidationEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	events := []InvalidationEvent{}
	l.load(ctx, kv.KeyInvalidationLog, &events)
	return events
}

func (l *Log) keysFor(domain Domain) (logKey, summaryKey string, limit int) {
	if domain == DomainMigration {
		return kv.KeyMigrationLog, kv.KeyMigrationSummary, l.opts.MigrationCap
	}
	return kv.KeyRuntimeLog, kv.KeyRuntimeSummary, l.opts.RuntimeCap
}

// load читает JSON-значение ключа в dst. Отсутствующее или повреждённое
// значение оставляет dst без изменений.
func (l *Log) load(ctx context.Context, key string, dst any) {
	raw, ok, err := l.store.Get(ctx, key)
	if err != nil {
		l.logger.Warn("Не удалось прочитать телеметрию",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return
	}
	if !ok || raw == "" {
		return
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		l.logger.Warn("Телеметрия повреждена, журнал начат заново",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

func (l *Log) save(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		l.logger.Error("Ошибка сериализации телеметрии",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := l.store.Set(ctx, key, string(raw)); err != nil {
		l.logger.Warn("Не удалось сохранить телеметрию",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}
