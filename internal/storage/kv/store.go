// Пакет kv — персистентное хранилище ключ-значение (Persistent Store).
//
// Справочник, флаг миграции и журналы телеметрии хранятся как строковые
// значения под фиксированными ключами. Реализации: in-memory (тесты),
// JSON-файл, SQLite (пакет sqlitekv), PostgreSQL (пакет repository).
package kv

import (
	"context"
	"errors"
)

// ErrStoreClosed — операция над закрытым хранилищем.
var ErrStoreClosed = errors.New("хранилище закрыто")

// Store — персистентное хранилище ключ-значение.
// Get возвращает (значение, true, nil) при наличии ключа и ("", false, nil)
// при его отсутствии. Delete отсутствующего ключа не считается ошибкой.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
