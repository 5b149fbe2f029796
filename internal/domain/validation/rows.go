package validation

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/bigkaa/campus-directory/internal/domain/model"
)

// NormalizeCampusKey приводит ключ кампуса к каноническому виду:
// NFC, без пробелов по краям, в нижнем регистре.
func NormalizeCampusKey(raw string) string {
	s := norm.NFC.String(strings.TrimSpace(raw))
	return cases.Lower(language.Und).String(s)
}

// foldEmail возвращает ключ адреса для сравнения без учёта регистра.
func foldEmail(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// ValidateEmails проверяет строки внешней таблицы.
// rows[0] — заголовок и пропускается. Номера строк в сообщениях 1-based
// (заголовок — строка 1). Ошибки строк накапливаются, обработка не прерывается.
//
// Правила:
//   - обе ячейки пусты — пустая строка, без ошибки;
//   - пуста одна ячейка — ошибка, строка исключается;
//   - адрес не проходит EmailProblem — ошибка, строка исключается;
//   - адрес повторяет ранее встреченный (без учёта регистра) — предупреждение,
//     строка сохраняется.
func ValidateEmails(rows [][]string) model.ValidationResult {
	res := model.ValidationResult{
		Valid:    []model.Entry{},
		Invalid:  []model.InvalidEntry{},
		Errors:   []string{},
		Warnings: []string{},
	}
	if len(rows) <= 1 {
		return res
	}

	firstSeen := make(map[string]int)
	for i := 1; i < len(rows); i++ {
		rowNum := i + 1
		campusRaw := strings.TrimSpace(cell(rows[i], 0))
		recipient := strings.TrimSpace(cell(rows[i], 1))
		res.Summary.Total++

		if campusRaw == "" && recipient == "" {
			res.Summary.Empty++
			continue
		}

		entry := model.Entry{Row: rowNum, Campus: NormalizeCampusKey(campusRaw), Recipient: recipient}

		if campusRaw == "" || recipient == "" {
			reason := "не указан кампус"
			if recipient == "" {
				reason = "не указан получатель"
			}
			res.Invalid = append(res.Invalid, model.InvalidEntry{Entry: entry, Reason: reason})
			res.Errors = append(res.Errors, (&model.RowError{Row: rowNum, Message: reason}).Error())
			continue
		}

		if problem := EmailProblem(recipient); problem != "" {
			reason := fmt.Sprintf("некорректный адрес %q: %s", recipient, problem)
			res.Invalid = append(res.Invalid, model.InvalidEntry{Entry: entry, Reason: reason})
			res.Errors = append(res.Errors, (&model.RowError{Row: rowNum, Message: reason}).Error())
			continue
		}

		folded := foldEmail(recipient)
		if prev, ok := firstSeen[folded]; ok {
			res.Summary.Duplicate++
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("строка %d: адрес %s уже встречался в строке %d", rowNum, recipient, prev))
		} else {
			firstSeen[folded] = rowNum
		}
		res.Valid = append(res.Valid, entry)
	}

	res.Summary.Valid = len(res.Valid)
	res.Summary.Invalid = len(res.Invalid)
	return res
}

// CampusCheck — результат сверки ключей кампусов с ожидаемым набором.
type CampusCheck struct {
	ValidCampuses   []string            `json:"validCampuses"`
	InvalidCampuses []string            `json:"invalidCampuses"`
	Warnings        []string            `json:"warnings"`
	Suggestions     map[string][]string `json:"suggestions"`
}

// maxSuggestDistance — максимальное расстояние Левенштейна для подсказки.
const maxSuggestDistance = 2

// ValidateCampusNames сверяет ключи кампусов из validRows с expectedKeys.
// Неизвестный ключ — предупреждение с подсказками, а не ошибка:
// справочник всё равно принимает такой кампус.
func ValidateCampusNames(validRows []model.Entry, expectedKeys []string) CampusCheck {
	check := CampusCheck{
		ValidCampuses:   []string{},
		InvalidCampuses: []string{},
		Warnings:        []string{},
		Suggestions:     make(map[string][]string),
	}

	expected := make([]string, 0, len(expectedKeys))
	expectedSet := make(map[string]bool, len(expectedKeys))
	for _, k := range expectedKeys {
		nk := NormalizeCampusKey(k)
		if nk == "" || expectedSet[nk] {
			continue
		}
		expectedSet[nk] = true
		expected = append(expected, nk)
	}

	seen := make(map[string]bool)
	for _, e := range validRows {
		key := NormalizeCampusKey(e.Campus)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true

		if expectedSet[key] {
			check.ValidCampuses = append(check.ValidCampuses, key)
			continue
		}

		check.InvalidCampuses = append(check.InvalidCampuses, key)
		suggestions := SuggestCampus(key, expected)
		if len(suggestions) > 0 {
			check.Suggestions[key] = suggestions
			check.Warnings = append(check.Warnings, fmt.Sprintf(
				"строка %d: неизвестный кампус %q, возможно: %s", e.Row, key, strings.Join(suggestions, ", ")))
		} else {
			check.Warnings = append(check.Warnings, fmt.Sprintf(
				"строка %d: неизвестный кампус %q", e.Row, key))
		}
	}
	return check
}

// SuggestCampus возвращает ожидаемые ключи, похожие на key:
// совпадение подстрокой в любую сторону или расстояние Левенштейна ≤ 2.
func SuggestCampus(key string, expected []string) []string {
	var out []string
	for _, e := range expected {
		if strings.Contains(e, key) || strings.Contains(key, e) || Levenshtein(key, e) <= maxSuggestDistance {
			out = append(out, e)
		}
	}
	return out
}

// DuplicateSummary — счётчики группировки строк.
type DuplicateSummary struct {
	Campuses   int `json:"campuses"`
	Recipients int `json:"recipients"`
	Duplicates int `json:"duplicates"`
}

// DuplicateResolution — получатели, сгруппированные по кампусам.
type DuplicateResolution struct {
	// Data — campusKey → получатели в порядке первого появления
	Data map[string][]string `json:"data"`
	// Order — ключи кампусов в порядке первого появления
	Order             []string         `json:"order"`
	DuplicateWarnings []string         `json:"duplicateWarnings"`
	Summary           DuplicateSummary `json:"summary"`
}

// ResolveDuplicateCampusRows группирует получателей по первому появлению кампуса.
// Повтор пары (кампус, получатель) отбрасывается с предупреждением, которое
// ссылается на строку ПЕРВОГО появления пары, сколько бы повторов ни было.
// Разные получатели одного кампуса сохраняются все.
func ResolveDuplicateCampusRows(validRows []model.Entry) DuplicateResolution {
	res := DuplicateResolution{
		Data:              make(map[string][]string),
		Order:             []string{},
		DuplicateWarnings: []string{},
	}

	firstRow := make(map[string]int)
	for _, e := range validRows {
		key := NormalizeCampusKey(e.Campus)
		if key == "" {
			continue
		}
		pair := key + "\x00" + foldEmail(e.Recipient)
		if prev, ok := firstRow[pair]; ok {
			res.Summary.Duplicates++
			res.DuplicateWarnings = append(res.DuplicateWarnings, fmt.Sprintf(
				"строка %d: пара (%s, %s) повторяет строку %d и пропущена", e.Row, key, e.Recipient, prev))
			continue
		}
		firstRow[pair] = e.Row

		if _, ok := res.Data[key]; !ok {
			res.Order = append(res.Order, key)
		}
		res.Data[key] = append(res.Data[key], e.Recipient)
		res.Summary.Recipients++
	}
	res.Summary.Campuses = len(res.Order)
	return res
}

// Levenshtein вычисляет редакционное расстояние между строками (по рунам).
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// cell возвращает ячейку строки или "" за пределами строки.
func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}
