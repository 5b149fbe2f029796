// Пакет fsutil — файловые примитивы, общие для файловых адаптеров хранилища.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
)

// TempSuffix — суффикс временного файла при атомарной записи.
// Наблюдатели за директорией игнорируют файлы с этим суффиксом.
const TempSuffix = ".tmp"

// WriteFileAtomic записывает data в path атомарно: temp → fsync → rename.
// Читатель видит либо старое, либо новое содержимое целиком.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("ошибка создания директории %s: %w", filepath.Dir(path), err)
	}

	tmpPath := path + TempSuffix
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("ошибка создания temp-файла %s: %w", tmpPath, err)
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("ошибка записи temp-файла %s: %w", tmpPath, err)
	}

	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("ошибка fsync temp-файла %s: %w", tmpPath, err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("ошибка закрытия temp-файла %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("ошибка rename %s: %w", path, err)
	}
	return nil
}
