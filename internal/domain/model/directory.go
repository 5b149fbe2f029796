// Пакет model — доменные модели справочника кампусов.
// Directory — единица истины кэша: campus → {получатели, папка}.
package model

import (
	"strings"
	"time"
)

// CampusRecord — запись одного кампуса справочника.
type CampusRecord struct {
	// Recipients — адреса получателей в порядке появления в таблице.
	// Дубликаты (без учёта регистра) не допускаются.
	Recipients []string `json:"recipients"`
	// FolderReference — идентификатор папки кампуса ("" — неизвестна)
	FolderReference string `json:"folderReference"`
}

// Directory — полный справочник кампусов.
// Порядок кампусов (Order) сохраняется, чтобы зеркало таблицы
// и восстановление давали детерминированный результат.
type Directory struct {
	// Campuses — campusKey → запись
	Campuses map[string]CampusRecord
	// Order — ключи кампусов в порядке вставки
	Order []string
	// LastUpdated — время последней записи в кэш
	LastUpdated time.Time
	// MigrationComplete — вторичное зеркало флага миграции (может отставать)
	MigrationComplete bool
}

// NewDirectory создаёт пустой справочник.
func NewDirectory() *Directory {
	return &Directory{Campuses: make(map[string]CampusRecord)}
}

// Put добавляет или заменяет запись кампуса.
// Новый ключ добавляется в конец Order, существующий сохраняет позицию.
func (d *Directory) Put(key string, rec CampusRecord) {
	if d.Campuses == nil {
		d.Campuses = make(map[string]CampusRecord)
	}
	if _, ok := d.Campuses[key]; !ok {
		d.Order = append(d.Order, key)
	}
	if rec.Recipients == nil {
		rec.Recipients = []string{}
	}
	d.Campuses[key] = rec
}

// Get возвращает копию записи кампуса.
func (d *Directory) Get(key string) (CampusRecord, bool) {
	if d == nil {
		return CampusRecord{}, false
	}
	rec, ok := d.Campuses[key]
	if !ok {
		return CampusRecord{}, false
	}
	return CampusRecord{
		Recipients:      append([]string{}, rec.Recipients...),
		FolderReference: rec.FolderReference,
	}, true
}

// Keys возвращает ключи кампусов в порядке вставки.
func (d *Directory) Keys() []string {
	if d == nil {
		return nil
	}
	keys := make([]string, 0, len(d.Order))
	for _, k := range d.Order {
		if _, ok := d.Campuses[k]; ok {
			keys = append(keys, k)
		}
	}
	return keys
}

// Len возвращает количество кампусов.
func (d *Directory) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Campuses)
}

// RecipientCount возвращает общее количество пар (кампус, получатель).
func (d *Directory) RecipientCount() int {
	if d == nil {
		return 0
	}
	n := 0
	for _, rec := range d.Campuses {
		n += len(rec.Recipients)
	}
	return n
}

// Rows разворачивает справочник в строки внешней таблицы:
// одна строка на пару (кампус, получатель), порядок кампусов сохраняется.
// Кампусы без получателей в таблицу не попадают.
func (d *Directory) Rows() [][]string {
	if d == nil {
		return nil
	}
	var rows [][]string
	for _, key := range d.Keys() {
		for _, r := range d.Campuses[key].Recipients {
			rows = append(rows, []string{key, r})
		}
	}
	return rows
}

// Clone возвращает глубокую копию справочника.
func (d *Directory) Clone() *Directory {
	if d == nil {
		return nil
	}
	c := &Directory{
		Campuses:          make(map[string]CampusRecord, len(d.Campuses)),
		Order:             append([]string{}, d.Order...),
		LastUpdated:       d.LastUpdated,
		MigrationComplete: d.MigrationComplete,
	}
	for k, rec := range d.Campuses {
		c.Campuses[k] = CampusRecord{
			Recipients:      append([]string{}, rec.Recipients...),
			FolderReference: rec.FolderReference,
		}
	}
	return c
}

// Check проверяет структурные инварианты справочника.
// emailProblem возвращает "" для корректного адреса или описание проблемы.
func (d *Directory) Check(emailProblem func(string) string) error {
	if d == nil {
		return &DecodeError{Reason: "справочник отсутствует"}
	}
	for key, rec := range d.Campuses {
		if strings.TrimSpace(key) == "" {
			return &DecodeError{Reason: "пустой ключ кампуса"}
		}
		seen := make(map[string]bool, len(rec.Recipients))
		for i, r := range rec.Recipients {
			if problem := emailProblem(r); problem != "" {
				return &DecodeError{Campus: key, Reason: "получатель #" + itoa(i+1) + " (" + r + "): " + problem}
			}
			folded := strings.ToLower(r)
			if seen[folded] {
				return &DecodeError{Campus: key, Reason: "дублирующийся получатель " + r}
			}
			seen[folded] = true
		}
	}
	return nil
}

// Lookup — результат поиска кампуса для внешних потребителей.
type Lookup struct {
	Recipients      []string `json:"recipients"`
	FolderReference string   `json:"folderReference"`
}

// EmptyLookup возвращает пустой результат (неизвестный или некорректный ключ).
func EmptyLookup() Lookup {
	return Lookup{Recipients: []string{}, FolderReference: ""}
}
