package service

import (
	"context"
	"time"

	"github.com/bigkaa/campus-directory/internal/telemetry"
)

// CacheStatus — состояние записи кэша без побочных эффектов.
type CacheStatus struct {
	Present     bool       `json:"present"`
	Corrupt     bool       `json:"corrupt"`
	Error       string     `json:"error,omitempty"`
	Campuses    int        `json:"campuses"`
	Recipients  int        `json:"recipients"`
	LastUpdated *time.Time `json:"lastUpdated,omitempty"`
}

// StatusReport — сводное состояние справочника для оператора.
type StatusReport struct {
	Migration     MigrationStatus                         `json:"migration"`
	Cache         CacheStatus                             `json:"cache"`
	Telemetry     map[telemetry.Domain]*telemetry.Summary `json:"telemetry"`
	Invalidations int                                     `json:"invalidations"`
}

// StatusService собирает отчёт о состоянии.
type StatusService struct {
	migration *MigrationService
	cache     *CacheService
	telemetry *telemetry.Log
}

// NewStatusService создаёт сервис отчёта о состоянии.
func NewStatusService(migration *MigrationService, cache *CacheService, tel *telemetry.Log) *StatusService {
	return &StatusService{migration: migration, cache: cache, telemetry: tel}
}

// Report читает состояние, ничего не изменяя.
func (s *StatusService) Report(ctx context.Context) (*StatusReport, error) {
	mig, err := s.migration.Status(ctx)
	if err != nil {
		return nil, err
	}

	report := &StatusReport{
		Migration: mig,
		Telemetry: make(map[telemetry.Domain]*telemetry.Summary, 2),
	}

	dir, err := s.cache.Peek(ctx)
	switch {
	case err != nil:
		report.Cache.Present = true
		report.Cache.Corrupt = true
		report.Cache.Error = err.Error()
	case dir != nil:
		report.Cache.Present = true
		report.Cache.Campuses = dir.Len()
		report.Cache.Recipients = dir.RecipientCount()
		ts := dir.LastUpdated
		report.Cache.LastUpdated = &ts
	}

	for _, d := range []telemetry.Domain{telemetry.DomainMigration, telemetry.DomainRuntime} {
		report.Telemetry[d] = s.telemetry.Summary(ctx, d)
	}
	report.Invalidations = len(s.telemetry.Invalidations(ctx))
	return report, nil
}
