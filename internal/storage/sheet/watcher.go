package sheet

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bigkaa/campus-directory/internal/domain/model"
)

// EditHandler получает уведомление о правке листа.
type EditHandler func(ctx context.Context, edit model.EditEvent)

// WatcherStats — счётчики активности наблюдателя.
type WatcherStats struct {
	FSEvents      int       `json:"fsEvents"`
	Edits         int       `json:"edits"`
	OwnWrites     int       `json:"ownWrites"`
	Errors        int       `json:"errors"`
	LastEditAt    time.Time `json:"lastEditAt"`
	LastEditRange string    `json:"lastEditRange"`
}

// Watcher наблюдает за файлом листа через fsnotify и превращает
// изменения в EditEvent: после затишья длиной debounce текущий снимок
// листа сравнивается с предыдущим, первая отличающаяся ячейка даёт
// адрес A1 и старое/новое значения. Изменения без разницы в данных
// (перезапись тем же содержимым) и собственные записи table
// не порождают событий.
type Watcher struct {
	table    *CSVTable
	handler  EditHandler
	debounce time.Duration
	logger   *slog.Logger
	ready    chan struct{}

	mu        sync.Mutex
	last      [][]string
	pending   bool
	pendingAt time.Time
	stats     WatcherStats
}

// NewWatcher создаёт наблюдателя за листом table.
func NewWatcher(table *CSVTable, debounce time.Duration, handler EditHandler, logger *slog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Watcher{
		table:    table,
		handler:  handler,
		debounce: debounce,
		logger:   logger.With(slog.String("component", "sheet_watcher"), slog.String("sheet", table.Name())),
		ready:    make(chan struct{}),
	}
}

// Ready закрывается, когда наблюдение установлено и снят исходный снимок.
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Stats возвращает копию счётчиков.
func (w *Watcher) Stats() WatcherStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// Run блокирует до отмены ctx. Возвращает ошибку, только если
// наблюдение не удалось установить.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("ошибка создания fsnotify: %w", err)
	}
	defer fw.Close()

	if err := os.MkdirAll(w.table.dir, 0o750); err != nil {
		return fmt.Errorf("ошибка создания директории книги %s: %w", w.table.dir, err)
	}
	if err := fw.Add(w.table.dir); err != nil {
		return fmt.Errorf("ошибка наблюдения за %s: %w", w.table.dir, err)
	}

	w.mu.Lock()
	w.last = w.snapshot(ctx)
	w.mu.Unlock()
	close(w.ready)

	w.logger.Info("Наблюдение за листом запущено",
		slog.String("path", w.table.Path()),
		slog.Duration("debounce", w.debounce),
	)

	tick := min(w.debounce/2, 100*time.Millisecond)
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	target := filepath.Base(w.table.Path())
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Наблюдение за листом остановлено")
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.mu.Lock()
			w.stats.FSEvents++
			w.pending = true
			w.pendingAt = time.Now()
			w.mu.Unlock()

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()
			w.logger.Warn("Ошибка fsnotify", slog.String("error", err.Error()))

		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

// flush обрабатывает накопленные события после окна debounce.
func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	if !w.pending || time.Since(w.pendingAt) < w.debounce {
		w.mu.Unlock()
		return
	}
	w.pending = false
	cur := w.snapshot(ctx)
	if w.table.matchesOwnWrite(cur) {
		// Запись самого сервиса (миграция, восстановление): кэш уже актуален.
		w.last = cur
		w.stats.OwnWrites++
		w.mu.Unlock()
		return
	}
	edit, changed := Diff(w.last, cur)
	w.last = cur
	if changed {
		edit.SheetName = w.table.Name()
		w.stats.Edits++
		w.stats.LastEditAt = time.Now().UTC()
		w.stats.LastEditRange = edit.RangeAddress
	}
	w.mu.Unlock()

	if !changed {
		return
	}
	w.logger.Debug("Обнаружена правка листа",
		slog.String("range", edit.RangeAddress),
	)
	w.handler(ctx, edit)
}

// snapshot читает лист; отсутствующий или нечитаемый лист — nil.
func (w *Watcher) snapshot(ctx context.Context) [][]string {
	rows, err := w.table.ReadAll(ctx)
	if err != nil {
		return nil
	}
	return rows
}

// Diff сравнивает два снимка листа и возвращает первую отличающуюся
// ячейку (по строкам, затем по колонкам). Отсутствующая ячейка равна "".
func Diff(prev, cur [][]string) (model.EditEvent, bool) {
	nRows := max(len(prev), len(cur))
	for r := 0; r < nRows; r++ {
		var a, b []string
		if r < len(prev) {
			a = prev[r]
		}
		if r < len(cur) {
			b = cur[r]
		}
		nCols := max(len(a), len(b))
		for c := 0; c < nCols; c++ {
			oldV, newV := cellAt(a, c), cellAt(b, c)
			if oldV != newV {
				return model.EditEvent{
					RangeAddress: CellAddress(c, r),
					OldValue:     oldV,
					NewValue:     newV,
				}, true
			}
		}
	}
	return model.EditEvent{}, false
}
