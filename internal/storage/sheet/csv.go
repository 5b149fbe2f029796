package sheet

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/bigkaa/campus-directory/internal/domain/model"
	"github.com/bigkaa/campus-directory/internal/storage/fsutil"
)

// SheetExt — расширение файла листа.
const SheetExt = ".csv"

// CSVTable — лист книги, хранимый как CSV-файл.
// Запись атомарна (temp → fsync → rename), внешний редактор может
// править файл напрямую.
type CSVTable struct {
	dir    string
	name   string
	mu     sync.Mutex
	logger *slog.Logger

	// written — содержимое листа после последней собственной записи
	// или удаления (nil); owned — такая запись была.
	written [][]string
	owned   bool
}

// NewCSVTable создаёт адаптер листа name в директории книги dir.
func NewCSVTable(dir, name string, logger *slog.Logger) *CSVTable {
	return &CSVTable{
		dir:  dir,
		name: name,
		logger: logger.With(
			slog.String("component", "sheet"),
			slog.String("sheet", name),
		),
	}
}

// Name возвращает имя листа.
func (t *CSVTable) Name() string {
	return t.name
}

// Path возвращает путь к файлу листа.
func (t *CSVTable) Path() string {
	return filepath.Join(t.dir, t.name+SheetExt)
}

func (t *CSVTable) Exists(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := os.Stat(t.Path())
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ошибка проверки листа %s: %w", t.name, err)
	}
	return true, nil
}

func (t *CSVTable) Create(ctx context.Context, header []string, rows [][]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	all := make([][]string, 0, len(rows)+1)
	all = append(all, header)
	all = append(all, rows...)
	if err := t.write(all); err != nil {
		return err
	}

	t.logger.Info("Лист создан", slog.Int("rows", len(rows)))
	return nil
}

func (t *CSVTable) Delete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	err := os.Remove(t.Path())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("ошибка удаления листа %s: %w", t.name, err)
	}
	t.written, t.owned = nil, true
	t.logger.Info("Лист удалён")
	return nil
}

func (t *CSVTable) ReadAll(ctx context.Context) ([][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.read()
}

func (t *CSVTable) WriteCell(ctx context.Context, address, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	col, row, err := ParseCellAddress(address)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	rows, err := t.read()
	if err != nil {
		return err
	}
	// Пустая CSV-строка при чтении пропускается, поэтому новые строки
	// дополняются до ширины заголовка.
	for len(rows) <= row {
		rows = append(rows, make([]string, len(Header)))
	}
	for len(rows[row]) <= col {
		rows[row] = append(rows[row], "")
	}
	rows[row][col] = value
	return t.write(rows)
}

// read разбирает файл листа. Вызывается под t.mu.
func (t *CSVTable) read() ([][]string, error) {
	raw, err := os.ReadFile(t.Path())
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: лист %s", model.ErrTableMissing, t.name)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: лист %s не читается: %v", model.ErrTableCorrupt, t.name, err)
	}
	return parseCSV(raw, t.name)
}

// write сериализует строки и атомарно заменяет файл. Вызывается под t.mu.
func (t *CSVTable) write(rows [][]string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("ошибка сериализации листа %s: %w", t.name, err)
	}
	if err := fsutil.WriteFileAtomic(t.Path(), buf.Bytes(), 0o640); err != nil {
		return err
	}
	t.written, t.owned = cloneRows(rows), true
	return nil
}

// matchesOwnWrite сообщает, что снимок совпадает с последней записью
// этого адаптера (Create, Delete, WriteCell), а не внешнего редактора.
func (t *CSVTable) matchesOwnWrite(rows [][]string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.owned && slices.EqualFunc(t.written, rows, slices.Equal[[]string])
}

func cloneRows(rows [][]string) [][]string {
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = slices.Clone(r)
	}
	return out
}

// parseCSV разбирает содержимое листа; строки могут иметь разную длину.
func parseCSV(raw []byte, name string) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(raw))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: лист %s: %v", model.ErrTableCorrupt, name, err)
	}
	return rows, nil
}
