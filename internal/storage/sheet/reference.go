package sheet

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/bigkaa/campus-directory/internal/domain/model"
	"github.com/bigkaa/campus-directory/internal/domain/validation"
)

// ReferenceReader — справочная таблица папок кампусов (только чтение).
type ReferenceReader interface {
	// ReadFolders возвращает campusKey → folderReference.
	ReadFolders(ctx context.Context) (map[string]string, error)
}

// CSVReference — справочная таблица в CSV-файле [campus, folderId].
// Первая строка пропускается, если это заголовок (первая ячейка "campus").
type CSVReference struct {
	path string
}

// NewCSVReference создаёт читатель справочной таблицы.
func NewCSVReference(path string) *CSVReference {
	return &CSVReference{path: path}
}

func (r *CSVReference) ReadFolders(ctx context.Context) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: справочная таблица %s", model.ErrTableMissing, r.path)
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения справочной таблицы %s: %w", r.path, err)
	}

	rows, err := parseCSV(raw, r.path)
	if err != nil {
		return nil, err
	}
	if len(rows) > 0 && strings.EqualFold(strings.TrimSpace(cellAt(rows[0], 0)), "campus") {
		rows = rows[1:]
	}

	folders := make(map[string]string, len(rows))
	for _, row := range rows {
		key := validation.NormalizeCampusKey(cellAt(row, 0))
		folder := strings.TrimSpace(cellAt(row, 1))
		if key == "" || folder == "" {
			continue
		}
		if _, dup := folders[key]; dup {
			continue
		}
		folders[key] = folder
	}
	return folders, nil
}

func cellAt(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}
