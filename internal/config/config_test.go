package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

// setEnvs устанавливает переменные окружения на время теста.
func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	if cfg.Port != 8020 {
		t.Errorf("Port = %d, ожидается 8020", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, ожидается Info", cfg.LogLevel)
	}
	if cfg.StoreBackend != BackendFile {
		t.Errorf("StoreBackend = %q, ожидается file", cfg.StoreBackend)
	}
	if cfg.MirrorSheet != "CampusDirectory" {
		t.Errorf("MirrorSheet = %q, ожидается CampusDirectory", cfg.MirrorSheet)
	}
	if cfg.MigrationLogCap != 50 || cfg.RuntimeLogCap != 100 || cfg.InvalidationLogCap != 50 {
		t.Errorf("ёмкости журналов = %d/%d/%d, ожидается 50/100/50",
			cfg.MigrationLogCap, cfg.RuntimeLogCap, cfg.InvalidationLogCap)
	}
	if cfg.DurationWindow != 50 {
		t.Errorf("DurationWindow = %d, ожидается 50", cfg.DurationWindow)
	}
	if !cfg.WatchEnabled {
		t.Error("WatchEnabled по умолчанию должен быть true")
	}
	if cfg.WatchDebounce != 500*time.Millisecond {
		t.Errorf("WatchDebounce = %v, ожидается 500ms", cfg.WatchDebounce)
	}
	if cfg.AuthEnabled() {
		t.Error("аутентификация не должна быть включена без CD_JWT_JWKS_URL")
	}
	if len(cfg.AdminRoles) != 1 || cfg.AdminRoles[0] != "admin" {
		t.Errorf("AdminRoles = %v, ожидается [admin]", cfg.AdminRoles)
	}
}

func TestLoad_Postgres(t *testing.T) {
	setEnvs(t, map[string]string{
		"CD_STORE_BACKEND": "postgres",
		"CD_DB_HOST":       "localhost",
		"CD_DB_NAME":       "directory",
		"CD_DB_USER":       "directory",
		"CD_DB_PASSWORD":   "secret",
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}
	if cfg.DBPort != 5432 {
		t.Errorf("DBPort = %d, ожидается 5432", cfg.DBPort)
	}
	wantDSN := "host=localhost port=5432 dbname=directory user=directory password=secret sslmode=disable"
	if cfg.DatabaseDSN() != wantDSN {
		t.Errorf("DatabaseDSN() = %q, ожидается %q", cfg.DatabaseDSN(), wantDSN)
	}
	if strings.Contains(cfg.DatabaseURL(), "secret") {
		t.Errorf("DatabaseURL() не должен содержать пароль: %q", cfg.DatabaseURL())
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		envs    map[string]string
		wantVar string
	}{
		{"неизвестный бэкенд", map[string]string{"CD_STORE_BACKEND": "redis"}, "CD_STORE_BACKEND"},
		{"postgres без хоста", map[string]string{"CD_STORE_BACKEND": "postgres"}, "CD_DB_HOST"},
		{"порт не число", map[string]string{"CD_PORT": "abc"}, "CD_PORT"},
		{"порт вне диапазона", map[string]string{"CD_PORT": "70000"}, "CD_PORT"},
		{"уровень логов", map[string]string{"CD_LOG_LEVEL": "verbose"}, "CD_LOG_LEVEL"},
		{"формат логов", map[string]string{"CD_LOG_FORMAT": "xml"}, "CD_LOG_FORMAT"},
		{"нулевая ёмкость", map[string]string{"CD_RUNTIME_LOG_CAP": "0"}, "CD_RUNTIME_LOG_CAP"},
		{"debounce", map[string]string{"CD_WATCH_DEBOUNCE": "полсекунды"}, "CD_WATCH_DEBOUNCE"},
		{"watch bool", map[string]string{"CD_WATCH_ENABLED": "maybe"}, "CD_WATCH_ENABLED"},
		{"лист с путём", map[string]string{"CD_MIRROR_SHEET": "../etc"}, "CD_MIRROR_SHEET"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setEnvs(t, tt.envs)
			_, err := Load()
			if err == nil {
				t.Fatal("ожидалась ошибка")
			}
			if !strings.Contains(err.Error(), tt.wantVar) {
				t.Errorf("ошибка %q должна называть переменную %s", err, tt.wantVar)
			}
		})
	}
}

func TestParseCSV(t *testing.T) {
	got := parseCSV(" admin, ,operator ")
	if len(got) != 2 || got[0] != "admin" || got[1] != "operator" {
		t.Errorf("parseCSV = %v, ожидается [admin operator]", got)
	}
	if parseCSV("") != nil {
		t.Error("parseCSV(\"\") должен вернуть nil")
	}
}
