package fsutil

import (
	"os"
	"path/filepath"
	"testing"
)

// TestWriteFileAtomic_ReplacesContent проверяет перезапись и отсутствие temp-файла.
func TestWriteFileAtomic_ReplacesContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "data.json")

	if err := WriteFileAtomic(path, []byte("первая"), 0o640); err != nil {
		t.Fatalf("первая запись: %v", err)
	}
	if err := WriteFileAtomic(path, []byte("вторая"), 0o640); err != nil {
		t.Fatalf("вторая запись: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ошибка чтения: %v", err)
	}
	if string(got) != "вторая" {
		t.Errorf("содержимое %q, ожидалось %q", got, "вторая")
	}
	if _, err := os.Stat(path + TempSuffix); !os.IsNotExist(err) {
		t.Errorf("temp-файл не удалён: %v", err)
	}
}
