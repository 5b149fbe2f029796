// Пакет validation — чистые функции проверки данных справочника:
// формат адресов, дубликаты строк, нечёткое сопоставление ключей кампусов.
// Пакет не выполняет ввод-вывод.
package validation

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	// localPartRe — допустимые символы локальной части (RFC 5322 atext + точка).
	localPartRe = regexp.MustCompile("^[A-Za-z0-9!#$%&'*+/=?^_`{|}~.-]+$")
	// domainLabelRe — метка домена: буквы, цифры, дефис не на краях.
	domainLabelRe = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9-]*[A-Za-z0-9])?$`)
	// tldRe — домен верхнего уровня: минимум две буквы.
	tldRe = regexp.MustCompile(`^[A-Za-z]{2,}$`)
)

// EmailProblem проверяет адрес по упрощённому RFC 5322.
// Возвращает "" для корректного адреса или описание проблемы.
func EmailProblem(raw string) string {
	s := strings.TrimSpace(raw)
	switch {
	case s == "":
		return "пустой адрес"
	case strings.IndexFunc(s, unicode.IsSpace) >= 0:
		return "адрес содержит пробельные символы"
	case !strings.Contains(s, "@"):
		return "отсутствует символ @"
	case strings.HasPrefix(s, "@"):
		return "адрес начинается с @"
	case strings.HasSuffix(s, "@"):
		return "адрес заканчивается на @"
	case strings.Count(s, "@") > 1:
		return "несколько символов @"
	case strings.Contains(s, ".."):
		return "две точки подряд"
	}

	at := strings.LastIndex(s, "@")
	local, domain := s[:at], s[at+1:]

	if strings.HasPrefix(local, ".") || strings.HasSuffix(local, ".") {
		return "локальная часть начинается или заканчивается точкой"
	}
	if !localPartRe.MatchString(local) {
		return "недопустимые символы в локальной части"
	}
	if !strings.Contains(domain, ".") {
		return "отсутствует домен верхнего уровня"
	}

	labels := strings.Split(domain, ".")
	tld := labels[len(labels)-1]
	if tld == "" {
		return "отсутствует домен верхнего уровня"
	}
	for _, label := range labels[:len(labels)-1] {
		if !domainLabelRe.MatchString(label) {
			return "недопустимые символы в домене"
		}
	}
	if !tldRe.MatchString(tld) {
		return "некорректный домен верхнего уровня"
	}
	return ""
}

// IsValidEmail возвращает true, если адрес проходит EmailProblem.
func IsValidEmail(s string) bool {
	return EmailProblem(s) == ""
}
