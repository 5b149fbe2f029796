package sheet

import (
	"fmt"
	"strconv"
	"strings"
)

// CellAddress возвращает адрес A1 для колонки col и строки row (оба 0-based).
func CellAddress(col, row int) string {
	return columnName(col) + strconv.Itoa(row+1)
}

// columnName: 0 → A, 25 → Z, 26 → AA.
func columnName(col int) string {
	var b []byte
	for n := col + 1; n > 0; n = (n - 1) / 26 {
		b = append([]byte{byte('A' + (n-1)%26)}, b...)
	}
	return string(b)
}

// ParseCellAddress разбирает адрес A1 в 0-based колонку и строку.
func ParseCellAddress(address string) (col, row int, err error) {
	s := strings.ToUpper(strings.TrimSpace(address))
	i := 0
	for i < len(s) && s[i] >= 'A' && s[i] <= 'Z' {
		col = col*26 + int(s[i]-'A'+1)
		i++
	}
	if i == 0 || i == len(s) {
		return 0, 0, fmt.Errorf("некорректный адрес ячейки %q", address)
	}
	n, convErr := strconv.Atoi(s[i:])
	if convErr != nil || n < 1 {
		return 0, 0, fmt.Errorf("некорректный номер строки в адресе %q", address)
	}
	return col - 1, n - 1, nil
}
