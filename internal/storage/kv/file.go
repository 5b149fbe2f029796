package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/bigkaa/campus-directory/internal/storage/fsutil"
)

// FileStore — Store поверх одного JSON-файла.
//
// Каждая запись перезаписывает файл целиком (атомарно: temp → fsync → rename),
// поэтому после сбоя файл содержит либо прежнее, либо новое состояние.
// Несколько процессов над одним файлом работают по правилу last-write-wins.
type FileStore struct {
	path   string
	mu     sync.Mutex
	logger *slog.Logger
}

// NewFileStore создаёт файловое хранилище. Файл создаётся при первой записи.
// Повреждённый файл обнаруживается при открытии.
func NewFileStore(path string, logger *slog.Logger) (*FileStore, error) {
	s := &FileStore{
		path:   path,
		logger: logger.With(slog.String("component", "kv_file")),
	}
	if _, err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path возвращает путь к файлу хранилища.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return "", false, err
	}
	v, ok := data[key]
	return v, ok, nil
}

func (s *FileStore) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return err
	}
	data[key] = value
	return s.save(data)
}

func (s *FileStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := data[key]; !ok {
		return nil
	}
	delete(data, key)
	return s.save(data)
}

// load читает файл. Отсутствующий файл — пустое хранилище.
func (s *FileStore) load() (map[string]string, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения хранилища %s: %w", s.path, err)
	}
	if len(raw) == 0 {
		return make(map[string]string), nil
	}

	data := make(map[string]string)
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("хранилище %s повреждено: %w", s.path, err)
	}
	return data, nil
}

func (s *FileStore) save(data map[string]string) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("ошибка сериализации хранилища: %w", err)
	}
	if err := fsutil.WriteFileAtomic(s.path, raw, 0o640); err != nil {
		return err
	}
	s.logger.Debug("Хранилище сохранено",
		slog.String("path", s.path),
		slog.Int("keys", len(data)),
	)
	return nil
}
