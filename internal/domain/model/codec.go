// codec.go — версионированная схема хранения справочника.
//
// Формат payload в durable store:
//
//	{"schema": "campus-directory", "version": 1, "data": {...}}
//
// DecodeDirectory объединяет разбор JSON и структурную проверку
// в один шаг и возвращает *DecodeError при любом несоответствии.
package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

const (
	// SchemaName — имя схемы payload справочника.
	SchemaName = "campus-directory"
	// SchemaVersion — текущая версия схемы.
	SchemaVersion = 1
)

// envelope — внешняя обёртка payload.
type envelope struct {
	Schema  string          `json:"schema"`
	Version int             `json:"version"`
	Data    json.RawMessage `json:"data"`
}

// directoryV1 — данные справочника, версия 1.
// Кампусы хранятся списком, чтобы сохранить порядок.
type directoryV1 struct {
	Campuses          []campusV1 `json:"campuses"`
	LastUpdated       time.Time  `json:"lastUpdated"`
	MigrationComplete bool       `json:"migrationComplete"`
}

// campusV1 — запись кампуса, версия 1.
// Указатели позволяют отличить отсутствующее поле от пустого.
type campusV1 struct {
	Key             string    `json:"key"`
	Recipients      *[]string `json:"recipients"`
	FolderReference *string   `json:"folderReference"`
}

// EncodeDirectory сериализует справочник в версионированный payload.
func EncodeDirectory(d *Directory) ([]byte, error) {
	if d == nil {
		return nil, fmt.Errorf("%w: справочник nil", ErrInvalidDirectory)
	}
	data := directoryV1{
		Campuses:          make([]campusV1, 0, d.Len()),
		LastUpdated:       d.LastUpdated.UTC(),
		MigrationComplete: d.MigrationComplete,
	}
	for _, key := range d.Keys() {
		rec := d.Campuses[key]
		recipients := append([]string{}, rec.Recipients...)
		folder := rec.FolderReference
		data.Campuses = append(data.Campuses, campusV1{
			Key:             key,
			Recipients:      &recipients,
			FolderReference: &folder,
		})
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации справочника: %w", err)
	}
	return json.Marshal(envelope{Schema: SchemaName, Version: SchemaVersion, Data: raw})
}

// DecodeDirectory разбирает payload и проверяет структуру.
// emailProblem — правило формата адреса (validation.EmailProblem).
func DecodeDirectory(raw []byte, emailProblem func(string) string) (*Directory, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &DecodeError{Reason: "невалидный JSON: " + err.Error()}
	}
	if env.Schema != SchemaName {
		return nil, &DecodeError{Reason: fmt.Sprintf("неизвестная схема %q", env.Schema)}
	}
	if env.Version != SchemaVersion {
		return nil, &DecodeError{Reason: fmt.Sprintf("неподдерживаемая версия схемы %d", env.Version)}
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, &DecodeError{Reason: "отсутствует поле data"}
	}

	var data directoryV1
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, &DecodeError{Reason: "некорректная структура data: " + err.Error()}
	}

	d := NewDirectory()
	d.LastUpdated = data.LastUpdated
	d.MigrationComplete = data.MigrationComplete
	for i, c := range data.Campuses {
		if c.Key == "" {
			return nil, &DecodeError{Reason: "кампус #" + itoa(i+1) + ": пустой ключ"}
		}
		if _, dup := d.Campuses[c.Key]; dup {
			return nil, &DecodeError{Campus: c.Key, Reason: "повторяющийся ключ кампуса"}
		}
		if c.Recipients == nil {
			return nil, &DecodeError{Campus: c.Key, Reason: "поле recipients отсутствует или не является массивом"}
		}
		if c.FolderReference == nil {
			return nil, &DecodeError{Campus: c.Key, Reason: "поле folderReference отсутствует или не является строкой"}
		}
		d.Put(c.Key, CampusRecord{
			Recipients:      append([]string{}, (*c.Recipients)...),
			FolderReference: *c.FolderReference,
		})
	}

	if err := d.Check(emailProblem); err != nil {
		return nil, err
	}
	return d, nil
}

func itoa(n int) string { return strconv.Itoa(n) }
