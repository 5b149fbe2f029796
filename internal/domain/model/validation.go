package model

// Entry — строка данных внешней таблицы.
type Entry struct {
	// Row — номер строки в таблице (1-based, строка 1 — заголовок)
	Row int `json:"row"`
	// Campus — нормализованный ключ кампуса
	Campus string `json:"campus"`
	// Recipient — адрес получателя (обрезанный)
	Recipient string `json:"recipient"`
}

// InvalidEntry — отклонённая строка с причиной.
type InvalidEntry struct {
	Entry
	Reason string `json:"reason"`
}

// ValidationSummary — счётчики результата валидации.
type ValidationSummary struct {
	Total     int `json:"total"`
	Valid     int `json:"valid"`
	Invalid   int `json:"invalid"`
	Empty     int `json:"empty"`
	Duplicate int `json:"duplicate"`
}

// ValidationResult — результат валидации строк таблицы.
// Не сохраняется, строится заново при каждом чтении таблицы.
type ValidationResult struct {
	Valid    []Entry           `json:"valid"`
	Invalid  []InvalidEntry    `json:"invalid"`
	Errors   []string          `json:"errors"`
	Warnings []string          `json:"warnings"`
	Summary  ValidationSummary `json:"summary"`
}

// EditEvent — уведомление о редактировании зеркальной таблицы.
type EditEvent struct {
	SheetName    string `json:"sheetName"`
	RangeAddress string `json:"rangeAddress"`
	OldValue     string `json:"oldValue"`
	NewValue     string `json:"newValue"`
}

// RecoveryAction — итоговое действие Recovery Manager.
type RecoveryAction string

const (
	// ActionNoRecoveryNeeded — таблица в порядке.
	ActionNoRecoveryNeeded RecoveryAction = "no_recovery_needed"
	// ActionRecovered — таблица пересоздана.
	ActionRecovered RecoveryAction = "recovered"
	// ActionRecoveryFailed — нет данных для восстановления.
	ActionRecoveryFailed RecoveryAction = "recovery_failed"
)

// RecoveryOutcome — результат проверки и восстановления внешней таблицы.
type RecoveryOutcome struct {
	Success bool           `json:"success"`
	Action  RecoveryAction `json:"action"`
	Details string         `json:"details"`
	// Source — стратегия, из которой восстановлена таблица (cache, seed)
	Source string `json:"source,omitempty"`
	// Rows — количество записанных строк данных
	Rows int `json:"rows,omitempty"`
	// Attempts — все опробованные стратегии с причинами неудач
	Attempts []Attempt `json:"attempts,omitempty"`
}
