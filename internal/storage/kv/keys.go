package kv

// Ключи хранилища.
const (
	// KeyDirectory — сериализованный справочник (envelope).
	KeyDirectory = "campus_directory"
	// KeyMigrationComplete — флаг завершения миграции ("true"/"false").
	KeyMigrationComplete = "migration_complete"
	// KeyMigrationLastUpdated — время завершения миграции (RFC3339).
	KeyMigrationLastUpdated = "migration_last_updated"
	// KeyMigrationLog, KeyMigrationSummary — журнал и сводка миграции.
	KeyMigrationLog     = "migration_log"
	KeyMigrationSummary = "migration_summary"
	// KeyRuntimeLog, KeyRuntimeSummary — журнал и сводка runtime-операций.
	KeyRuntimeLog     = "runtime_log"
	KeyRuntimeSummary = "runtime_summary"
	// KeyInvalidationLog — журнал инвалидаций кэша.
	KeyInvalidationLog = "invalidation_log"
)
