// Пакет migration — конечный автомат одноразовой миграции справочника.
//
// Жизненный цикл строго последовательный:
//
//	not_started → extracting → combining → storing → creating_mirror → complete
//
// Из любого незавершённого состояния возможен переход в failed.
// complete и failed — конечные состояния. Автомат не реентерабелен:
// повторный запуск миграции создаёт новый экземпляр.
package migration

import (
	"fmt"
	"sync"
	"time"
)

// State — состояние миграции.
type State string

const (
	StateNotStarted     State = "not_started"
	StateExtracting     State = "extracting"
	StateCombining      State = "combining"
	StateStoring        State = "storing"
	StateCreatingMirror State = "creating_mirror"
	StateComplete       State = "complete"
	StateFailed         State = "failed"
)

// Sequence — штатная последовательность шагов после not_started.
var Sequence = []State{
	StateExtracting,
	StateCombining,
	StateStoring,
	StateCreatingMirror,
	StateComplete,
}

// validTransitions — матрица допустимых переходов.
var validTransitions = map[State]map[State]bool{
	StateNotStarted:     {StateExtracting: true, StateFailed: true},
	StateExtracting:     {StateCombining: true, StateFailed: true},
	StateCombining:      {StateStoring: true, StateFailed: true},
	StateStoring:        {StateCreatingMirror: true, StateFailed: true},
	StateCreatingMirror: {StateComplete: true, StateFailed: true},
	StateComplete:       {},
	StateFailed:         {},
}

// TransitionRecord — запись о переходе между состояниями.
type TransitionRecord struct {
	From      State     `json:"from"`
	To        State     `json:"to"`
	Timestamp time.Time `json:"timestamp"`
	// Reason — причина перехода в failed
	Reason string `json:"reason,omitempty"`
}

// StateMachine — автомат одного запуска миграции.
type StateMachine struct {
	mu      sync.Mutex
	current State
	history []TransitionRecord
}

// NewStateMachine создаёт автомат в состоянии not_started.
func NewStateMachine() *StateMachine {
	return &StateMachine{current: StateNotStarted}
}

// Current возвращает текущее состояние.
func (sm *StateMachine) Current() State {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.current
}

// TransitionTo выполняет переход в следующее состояние.
// Возвращает *TransitionError для недопустимого перехода.
func (sm *StateMachine) TransitionTo(target State) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.transitionLocked(target, "")
}

// Fail переводит автомат в failed с указанием причины.
func (sm *StateMachine) Fail(reason string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.transitionLocked(StateFailed, reason)
}

func (sm *StateMachine) transitionLocked(target State, reason string) error {
	if !validTransitions[sm.current][target] {
		return &TransitionError{
			Code:    "INVALID_TRANSITION",
			Message: fmt.Sprintf("переход %s → %s недопустим", sm.current, target),
		}
	}
	sm.history = append(sm.history, TransitionRecord{
		From:      sm.current,
		To:        target,
		Timestamp: time.Now().UTC(),
		Reason:    reason,
	})
	sm.current = target
	return nil
}

// IsTerminal возвращает true для complete и failed.
func (sm *StateMachine) IsTerminal() bool {
	s := sm.Current()
	return s == StateComplete || s == StateFailed
}

// History возвращает историю переходов (копия).
func (sm *StateMachine) History() []TransitionRecord {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	out := make([]TransitionRecord, len(sm.history))
	copy(out, sm.history)
	return out
}

// TransitionError — ошибка перехода между состояниями.
type TransitionError struct {
	Code    string
	Message string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
