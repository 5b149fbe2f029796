// folders.go — источник ссылок на папки кампусов.
//
// Основной источник — справочная таблица (sheet.ReferenceReader), её снимок
// кэшируется в expirable LRU. При отсутствии таблицы, ошибке чтения или
// пустом результате используется таблица папок из seed. Ошибки не пробрасываются.
package service

import (
	"context"
	"log/slog"
	"maps"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/campus-directory/internal/seed"
	"github.com/bigkaa/campus-directory/internal/storage/sheet"
	"github.com/bigkaa/campus-directory/internal/telemetry"
)

// Источники ссылок на папки.
const (
	FolderSourceReference = "reference"
	FolderSourceSeed      = "seed"
)

// folderSnapshotKey — ключ снимка справочной таблицы в LRU.
const folderSnapshotKey = "folders"

var (
	referenceCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cd_reference_cache_hits_total",
		Help: "Попадания в кэш справочной таблицы папок.",
	})
	referenceCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cd_reference_cache_misses_total",
		Help: "Промахи кэша справочной таблицы папок.",
	})
)

// FolderSource — ссылки на папки кампусов с резервом на seed.
type FolderSource struct {
	reader    sheet.ReferenceReader
	seed      *seed.Dataset
	cache     *expirable.LRU[string, map[string]string]
	telemetry *telemetry.Log
	logger    *slog.Logger
}

// NewFolderSource создаёт источник папок. reader может быть nil —
// тогда всегда используется seed.
func NewFolderSource(
	reader sheet.ReferenceReader,
	ds *seed.Dataset,
	cacheSize int,
	cacheTTL time.Duration,
	tel *telemetry.Log,
	logger *slog.Logger,
) *FolderSource {
	return &FolderSource{
		reader:    reader,
		seed:      ds,
		cache:     expirable.NewLRU[string, map[string]string](cacheSize, nil, cacheTTL),
		telemetry: tel,
		logger:    logger.With(slog.String("component", "folders")),
	}
}

// Folders возвращает campusKey → folderReference и имя источника.
func (f *FolderSource) Folders(ctx context.Context) (map[string]string, string) {
	if f.reader == nil {
		return f.seed.Folders(), FolderSourceSeed
	}

	if snap, ok := f.cache.Get(folderSnapshotKey); ok {
		referenceCacheHits.Inc()
		return maps.Clone(snap), FolderSourceReference
	}
	referenceCacheMisses.Inc()

	folders, err := f.reader.ReadFolders(ctx)
	if err != nil || len(folders) == 0 {
		data := map[string]any{"fallback": FolderSourceSeed}
		if err != nil {
			data["error"] = err.Error()
		}
		f.telemetry.Record(ctx, telemetry.DomainRuntime, "reference_read", telemetry.LevelWarning,
			"Справочная таблица недоступна, используются папки из seed", data)
		return f.seed.Folders(), FolderSourceSeed
	}

	f.cache.Add(folderSnapshotKey, folders)
	f.logger.Debug("Справочная таблица прочитана", slog.Int("folders", len(folders)))
	return maps.Clone(folders), FolderSourceReference
}

// Purge сбрасывает кэш справочной таблицы.
func (f *FolderSource) Purge() {
	f.cache.Purge()
}
