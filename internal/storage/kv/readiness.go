package kv

import (
	"context"
	"fmt"
	"time"
)

// readinessProbeKey — ключ, читаемый при проверке готовности.
const readinessProbeKey = KeyMigrationComplete

// ReadinessChecker — проверка готовности хранилища для health endpoint.
// Реализует интерфейс handlers.ReadinessChecker.
type ReadinessChecker struct {
	store   Store
	backend string
}

// NewReadinessChecker создаёт проверку готовности для хранилища backend.
func NewReadinessChecker(store Store, backend string) *ReadinessChecker {
	return &ReadinessChecker{store: store, backend: backend}
}

// CheckReady выполняет пробное чтение.
// Возвращает статус ("ok", "fail") и сообщение.
func (c *ReadinessChecker) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if _, _, err := c.store.Get(ctx, readinessProbeKey); err != nil {
		return "fail", fmt.Sprintf("хранилище %s недоступно: %v", c.backend, err)
	}
	return "ok", fmt.Sprintf("хранилище %s доступно", c.backend)
}
