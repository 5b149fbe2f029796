// Пакет seed — встроенный исходный справочник (YAML).
package seed

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/bigkaa/campus-directory/internal/domain/model"
	"github.com/bigkaa/campus-directory/internal/domain/validation"
)

//go:embed seed.yaml
var seedYAML []byte

// Campus — запись исходного справочника.
type Campus struct {
	Key        string   `yaml:"key"`
	Folder     string   `yaml:"folder"`
	Recipients []string `yaml:"recipients"`
}

// Dataset — исходный справочник: таблица получателей и таблица папок.
type Dataset struct {
	Version  int      `yaml:"version"`
	Campuses []Campus `yaml:"campuses"`
}

// Load разбирает встроенный seed.yaml.
func Load() (*Dataset, error) {
	return Parse(seedYAML)
}

// Parse разбирает YAML исходного справочника и нормализует ключи.
// Кампусы с пустым ключом отбрасываются, повтор ключа — ошибка.
func Parse(raw []byte) (*Dataset, error) {
	var ds Dataset
	if err := yaml.Unmarshal(raw, &ds); err != nil {
		return nil, fmt.Errorf("ошибка разбора seed: %w", err)
	}
	if ds.Version != 1 {
		return nil, fmt.Errorf("неподдерживаемая версия seed: %d", ds.Version)
	}

	seen := make(map[string]bool, len(ds.Campuses))
	campuses := ds.Campuses[:0]
	for _, c := range ds.Campuses {
		c.Key = validation.NormalizeCampusKey(c.Key)
		if c.Key == "" {
			continue
		}
		if seen[c.Key] {
			return nil, fmt.Errorf("seed: повторяющийся кампус %q", c.Key)
		}
		seen[c.Key] = true
		for _, r := range c.Recipients {
			if problem := validation.EmailProblem(r); problem != "" {
				return nil, fmt.Errorf("seed: кампус %q: адрес %q: %s", c.Key, r, problem)
			}
		}
		campuses = append(campuses, c)
	}
	ds.Campuses = campuses
	return &ds, nil
}

// Empty возвращает пустой справочник (для тестов цепочки восстановления).
func Empty() *Dataset {
	return &Dataset{Version: 1}
}

// IsEmpty возвращает true, если в справочнике нет ни одного получателя.
func (ds *Dataset) IsEmpty() bool {
	for _, c := range ds.Campuses {
		if len(c.Recipients) > 0 {
			return false
		}
	}
	return true
}

// Keys возвращает ключи кампусов в исходном порядке.
func (ds *Dataset) Keys() []string {
	keys := make([]string, 0, len(ds.Campuses))
	for _, c := range ds.Campuses {
		keys = append(keys, c.Key)
	}
	return keys
}

// Recipients возвращает таблицу получателей: campusKey → адреса.
func (ds *Dataset) Recipients() map[string][]string {
	out := make(map[string][]string, len(ds.Campuses))
	for _, c := range ds.Campuses {
		out[c.Key] = append([]string{}, c.Recipients...)
	}
	return out
}

// Folders возвращает таблицу папок: campusKey → folderReference.
func (ds *Dataset) Folders() map[string]string {
	out := make(map[string]string, len(ds.Campuses))
	for _, c := range ds.Campuses {
		if c.Folder != "" {
			out[c.Key] = c.Folder
		}
	}
	return out
}

// Directory строит справочник из исходных данных в исходном порядке.
func (ds *Dataset) Directory() *model.Directory {
	d := model.NewDirectory()
	for _, c := range ds.Campuses {
		d.Put(c.Key, model.CampusRecord{
			Recipients:      append([]string{}, c.Recipients...),
			FolderReference: c.Folder,
		})
	}
	return d
}
