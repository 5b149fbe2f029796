// errors.go — таксономия ошибок справочника.
package model

import (
	"errors"
	"fmt"
	"strings"
)

// Ошибки уровня источников данных.
var (
	// ErrCacheCorrupt — payload кэша не разбирается или нарушает структуру.
	ErrCacheCorrupt = errors.New("кэш справочника повреждён")
	// ErrInvalidDirectory — справочник нарушает инварианты и не может быть сохранён.
	ErrInvalidDirectory = errors.New("некорректный справочник")
	// ErrTableMissing — внешняя таблица отсутствует.
	ErrTableMissing = errors.New("внешняя таблица отсутствует")
	// ErrTableCorrupt — внешняя таблица не проходит структурную проверку.
	ErrTableCorrupt = errors.New("внешняя таблица повреждена")
	// ErrMigrationFailed — миграция завершилась ошибкой.
	ErrMigrationFailed = errors.New("миграция не выполнена")
	// ErrRecoveryFailed — нет ни одного источника данных для восстановления.
	ErrRecoveryFailed = errors.New("восстановление невозможно")
	// ErrSourceEmpty — источник данных пуст.
	ErrSourceEmpty = errors.New("источник данных пуст")
)

// RowError — ошибка валидации строки таблицы (не фатальная, накапливается).
type RowError struct {
	// Row — номер строки (1-based, строка 1 — заголовок)
	Row int
	// Message — человекочитаемое описание
	Message string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("строка %d: %s", e.Row, e.Message)
}

// DecodeError — ошибка разбора или структурной проверки payload справочника.
type DecodeError struct {
	// Campus — ключ кампуса, на котором обнаружена проблема (может быть пустым)
	Campus string
	// Reason — описание проблемы
	Reason string
}

func (e *DecodeError) Error() string {
	if e.Campus != "" {
		return fmt.Sprintf("%s: кампус %q: %s", ErrCacheCorrupt, e.Campus, e.Reason)
	}
	return fmt.Sprintf("%s: %s", ErrCacheCorrupt, e.Reason)
}

// Unwrap позволяет проверять errors.Is(err, ErrCacheCorrupt).
func (e *DecodeError) Unwrap() error { return ErrCacheCorrupt }

// MigrationError — ошибка шага миграции.
type MigrationError struct {
	// Step — имя шага (состояния автомата), на котором произошла ошибка
	Step string
	Err  error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("%s на шаге %s: %v", ErrMigrationFailed, e.Step, e.Err)
}

// Is сопоставляет ошибку с ErrMigrationFailed.
func (e *MigrationError) Is(target error) bool { return target == ErrMigrationFailed }

func (e *MigrationError) Unwrap() error { return e.Err }

// Attempt — результат одной стратегии в цепочке источников.
type Attempt struct {
	// Strategy — имя стратегии (cache, table, seed)
	Strategy string `json:"strategy"`
	// Error — причина неудачи ("" — стратегия успешна)
	Error string `json:"error,omitempty"`
}

// RecoveryError — все стратегии цепочки источников исчерпаны.
type RecoveryError struct {
	Attempts []Attempt
}

func (e *RecoveryError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, a.Strategy+": "+a.Error)
	}
	return fmt.Sprintf("%s (%s)", ErrRecoveryFailed, strings.Join(parts, "; "))
}

// Is сопоставляет ошибку с ErrRecoveryFailed.
func (e *RecoveryError) Is(target error) bool { return target == ErrRecoveryFailed }
