package service

import (
	"slices"
	"strings"

	"github.com/bigkaa/campus-directory/internal/domain/model"
)

// combineDirectory объединяет таблицу получателей и таблицу папок.
// Кампусы из order идут первыми в своём порядке; кампусы, известные только
// справочной таблице, добавляются в конец (по алфавиту) с пустым списком
// получателей. Повторы адресов внутри кампуса (без учёта регистра) отбрасываются.
func combineDirectory(order []string, recipients map[string][]string, folders map[string]string) *model.Directory {
	d := model.NewDirectory()
	for _, key := range order {
		d.Put(key, model.CampusRecord{
			Recipients:      dedupeRecipients(recipients[key]),
			FolderReference: folders[key],
		})
	}

	var extra []string
	for key := range folders {
		if _, ok := d.Campuses[key]; !ok {
			extra = append(extra, key)
		}
	}
	slices.Sort(extra)
	for _, key := range extra {
		d.Put(key, model.CampusRecord{Recipients: []string{}, FolderReference: folders[key]})
	}
	return d
}

func dedupeRecipients(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, r := range in {
		r = strings.TrimSpace(r)
		k := strings.ToLower(r)
		if r == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, r)
	}
	return out
}
