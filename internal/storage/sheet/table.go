// Пакет sheet — адаптеры табличных источников справочника.
//
// Внешняя таблица (Table) — редактируемая система записи: лист из двух
// колонок [Campus, Recipient]. Книга (workbook) хранится как директория,
// каждый лист — CSV-файл <name>.csv. Справочная таблица папок
// (ReferenceReader) — CSV [campus, folderId], только чтение.
package sheet

import (
	"context"
	"fmt"
	"strings"

	"github.com/bigkaa/campus-directory/internal/domain/model"
)

// Header — заголовок листа-зеркала справочника.
var Header = []string{"Campus", "Recipient"}

// Table — внешняя таблица справочника.
type Table interface {
	// Name возвращает имя листа.
	Name() string
	// Exists проверяет наличие листа.
	Exists(ctx context.Context) (bool, error)
	// Create создаёт лист с заголовком и строками данных.
	// Существующий лист перезаписывается.
	Create(ctx context.Context, header []string, rows [][]string) error
	// Delete удаляет лист. Удаление отсутствующего листа не ошибка.
	Delete(ctx context.Context) error
	// ReadAll читает весь лист одним запросом, включая заголовок (rows[0]).
	// Возвращает ошибку, оборачивающую model.ErrTableMissing или model.ErrTableCorrupt.
	ReadAll(ctx context.Context) ([][]string, error)
	// WriteCell записывает значение в ячейку по адресу A1.
	WriteCell(ctx context.Context, address, value string) error
}

// CheckHeader проверяет структуру прочитанного листа: непустой,
// первая строка совпадает с Header (без учёта регистра и пробелов).
func CheckHeader(rows [][]string) error {
	if len(rows) == 0 {
		return fmt.Errorf("%w: лист пуст", model.ErrTableCorrupt)
	}
	got := rows[0]
	if len(got) < len(Header) {
		return fmt.Errorf("%w: заголовок %v, ожидался %v", model.ErrTableCorrupt, got, Header)
	}
	for i, want := range Header {
		if !strings.EqualFold(strings.TrimSpace(got[i]), want) {
			return fmt.Errorf("%w: заголовок %v, ожидался %v", model.ErrTableCorrupt, got, Header)
		}
	}
	return nil
}
