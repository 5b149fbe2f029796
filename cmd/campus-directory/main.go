// Точка входа Campus Directory — справочник получателей уведомлений кампусов.
// Команда serve загружает конфигурацию, открывает хранилище выбранного
// бэкенда, создаёт сервисный слой и API handlers, запускает наблюдение за
// листом-зеркалом, topologymetrics и HTTP-сервер с graceful shutdown.
// Остальные команды выполняют одну операцию и печатают результат в JSON.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/bigkaa/campus-directory/internal/api/handlers"
	"github.com/bigkaa/campus-directory/internal/api/middleware"
	"github.com/bigkaa/campus-directory/internal/config"
	"github.com/bigkaa/campus-directory/internal/domain/model"
	"github.com/bigkaa/campus-directory/internal/server"
	"github.com/bigkaa/campus-directory/internal/service"
	"github.com/bigkaa/campus-directory/internal/storage/sheet"
	"github.com/bigkaa/campus-directory/internal/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(&cli{}).ExecuteContext(ctx); err != nil {
		slog.Error("Ошибка выполнения команды", slog.String("error", err.Error()))
		stop()
		os.Exit(1)
	}
}

// cli — общее состояние команд: конфигурация и логгер.
type cli struct {
	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "campus-directory",
		Short:         "Справочник получателей уведомлений и папок кампусов",
		Version:       config.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd)
		},
	}

	root.AddCommand(
		c.serveCmd(),
		c.resolveCmd(),
		c.campusesCmd(),
		c.statusCmd(),
		c.recoverCmd(),
		c.refreshCmd(),
		c.migrateCmd(),
		c.resetMigrationCmd(),
		c.validateCmd(),
		c.editCellCmd(),
		c.telemetryCmd(),
	)
	return root
}

// setup загружает конфигурацию, если она не задана заранее.
// Разовые команды пишут логи в stderr, чтобы stdout оставался JSON.
func (c *cli) setup(cmd *cobra.Command) error {
	if c.cfg == nil {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("загрузка конфигурации: %w", err)
		}
		c.cfg = cfg
	}
	if c.logger != nil {
		return nil
	}
	if cmd.Name() == "serve" {
		c.logger = config.SetupLogger(c.cfg)
		return nil
	}
	c.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: c.cfg.LogLevel}))
	return nil
}

// withApp собирает зависимости на время выполнения команды.
func (c *cli) withApp(run func(ctx context.Context, cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), c.cfg, c.logger)
		if err != nil {
			return err
		}
		defer a.Close()
		return run(cmd.Context(), cmd, args, a)
	}
}

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Запустить операторский HTTP API",
		Args:  cobra.NoArgs,
		RunE:  c.withApp(c.serve),
	}
}

func (c *cli) serve(ctx context.Context, _ *cobra.Command, _ []string, a *app) error {
	cfg, logger := c.cfg, c.logger
	logger.Info("Campus Directory запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("store_backend", cfg.StoreBackend),
	)

	// 1. Первичная загрузка справочника (миграция при первом запуске)
	if dir, err := a.lookup.Directory(ctx); err != nil {
		logger.Warn("Справочник недоступен при старте", slog.String("error", err.Error()))
	} else {
		logger.Info("Справочник загружен", slog.Int("campuses", dir.Len()))
	}

	// 2. Операторская авторизация
	admin, err := c.adminMiddleware()
	if err != nil {
		return err
	}

	// 3. API handlers и HTTP-сервер
	healthHandler := handlers.NewHealthHandler(a.storeCheck)
	apiHandler := handlers.NewAPIHandler(healthHandler, a.services(), logger)
	srv := server.New(cfg, logger, apiHandler, admin,
		middleware.RequestLogger(logger),
		middleware.MetricsMiddleware(),
	)

	// 4. topologymetrics — мониторинг зависимостей (PostgreSQL + IdP)
	if a.pgDB != nil || cfg.AuthEnabled() {
		params := service.DephealthParams{
			ServiceID:     "campus-directory",
			Group:         cfg.DephealthGroup,
			DB:            a.pgDB,
			JWKSURL:       cfg.JWTJWKSURL,
			CheckInterval: cfg.DephealthCheckInterval,
		}
		if a.pgDB != nil {
			params.PgConnURL = cfg.DatabaseURL()
		}
		dephealthSvc, dhErr := service.NewDephealthService(params, logger)
		if dhErr != nil {
			logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
				slog.String("error", dhErr.Error()),
			)
		} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
		} else {
			defer dephealthSvc.Stop()
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	// 5. Наблюдение за правками листа-зеркала
	if cfg.WatchEnabled {
		watcher := sheet.NewWatcher(a.table, cfg.WatchDebounce, a.invalidation.Handler(), logger)
		g.Go(func() error { return watcher.Run(gctx) })
	}

	// 6. HTTP-сервер до сигнала завершения
	g.Go(func() error { return srv.Run(gctx) })

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Campus Directory остановлен")
	return nil
}

// adminMiddleware возвращает JWT-проверку операторских маршрутов.
// Без CD_JWT_JWKS_URL мутирующие операции не защищены.
func (c *cli) adminMiddleware() (func(http.Handler) http.Handler, error) {
	if !c.cfg.AuthEnabled() {
		c.logger.Warn("CD_JWT_JWKS_URL не задан, операторские операции доступны без аутентификации")
		return nil, nil
	}
	jwtAuth, err := middleware.NewJWTAuth(c.cfg.JWTJWKSURL, middleware.AuthOptions{
		Issuer:     c.cfg.JWTIssuer,
		RolesClaim: c.cfg.JWTRolesClaim,
		AdminRoles: c.cfg.AdminRoles,
		Leeway:     c.cfg.JWTLeeway,
	}, c.logger)
	if err != nil {
		return nil, fmt.Errorf("создание JWT middleware: %w", err)
	}
	c.logger.Info("JWT middleware инициализирован",
		slog.String("jwks_url", c.cfg.JWTJWKSURL),
		slog.String("issuer", c.cfg.JWTIssuer),
	)

	authn, authz := jwtAuth.Middleware(), jwtAuth.RequireAdmin()
	return func(next http.Handler) http.Handler {
		return authn(authz(next))
	}, nil
}

func (c *cli) resolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <campus>",
		Short: "Найти получателей и папку кампуса",
		Args:  cobra.ExactArgs(1),
		RunE: c.withApp(func(ctx context.Context, cmd *cobra.Command, args []string, a *app) error {
			return printJSON(cmd, a.lookup.Resolve(ctx, args[0]))
		}),
	}
}

func (c *cli) campusesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "campuses",
		Short: "Список ключей кампусов справочника",
		Args:  cobra.NoArgs,
		RunE: c.withApp(func(ctx context.Context, cmd *cobra.Command, _ []string, a *app) error {
			keys, err := a.lookup.Campuses(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, keys)
		}),
	}
}

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Состояние миграции, кэша и телеметрии",
		Args:  cobra.NoArgs,
		RunE: c.withApp(func(ctx context.Context, cmd *cobra.Command, _ []string, a *app) error {
			report, err := a.status.Report(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, report)
		}),
	}
}

func (c *cli) recoverCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Проверить внешнюю таблицу и восстановить её при необходимости",
		Args:  cobra.NoArgs,
		RunE: c.withApp(func(ctx context.Context, cmd *cobra.Command, _ []string, a *app) error {
			var outcome model.RecoveryOutcome
			if force {
				outcome = a.recovery.ForceRebuild(ctx)
			} else {
				outcome = a.recovery.ValidateAndRecover(ctx)
			}
			if err := printJSON(cmd, outcome); err != nil {
				return err
			}
			if !outcome.Success {
				return &model.RecoveryError{Attempts: outcome.Attempts}
			}
			return nil
		}),
	}
	cmd.Flags().BoolVar(&force, "force", false, "пересоздать таблицу даже если она в порядке")
	return cmd
}

func (c *cli) refreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Очистить кэш и перестроить справочник из внешней таблицы",
		Args:  cobra.NoArgs,
		RunE: c.withApp(func(ctx context.Context, cmd *cobra.Command, _ []string, a *app) error {
			dir, err := a.lookup.Refresh(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{
				"campuses":   dir.Len(),
				"recipients": dir.RecipientCount(),
			})
		}),
	}
}

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Выполнить одноразовую миграцию справочника",
		Args:  cobra.NoArgs,
		RunE: c.withApp(func(ctx context.Context, cmd *cobra.Command, _ []string, a *app) error {
			report, err := a.migration.Run(ctx)
			if report != nil {
				if printErr := printJSON(cmd, report); printErr != nil {
					return printErr
				}
			}
			return err
		}),
	}
}

func (c *cli) resetMigrationCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-migration",
		Short: "Сбросить флаг миграции (кэш и таблица не затрагиваются)",
		Args:  cobra.NoArgs,
		RunE: c.withApp(func(ctx context.Context, _ *cobra.Command, _ []string, a *app) error {
			if err := a.migration.Reset(ctx); err != nil {
				return err
			}
			c.logger.Info("Флаг миграции сброшен")
			return nil
		}),
	}
}

func (c *cli) validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Проверить строки внешней таблицы без изменений",
		Args:  cobra.NoArgs,
		RunE: c.withApp(func(ctx context.Context, cmd *cobra.Command, _ []string, a *app) error {
			report, err := a.lookup.InspectTable(ctx)
			if err != nil {
				return err
			}
			if err := printJSON(cmd, report); err != nil {
				return err
			}
			if n := report.Validation.Summary.Invalid; n > 0 {
				return fmt.Errorf("во внешней таблице %d некорректных строк", n)
			}
			return nil
		}),
	}
}

func (c *cli) editCellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "edit-cell <A1> <value>",
		Short: "Изменить ячейку листа-зеркала и сбросить кэш",
		Args:  cobra.ExactArgs(2),
		RunE: c.withApp(func(ctx context.Context, cmd *cobra.Command, args []string, a *app) error {
			address, value := args[0], args[1]
			col, row, err := sheet.ParseCellAddress(address)
			if err != nil {
				return err
			}

			var old string
			if rows, readErr := a.table.ReadAll(ctx); readErr == nil && row < len(rows) && col < len(rows[row]) {
				old = rows[row][col]
			}
			if err := a.table.WriteCell(ctx, address, value); err != nil {
				return err
			}

			invalidated := a.invalidation.HandleEdit(ctx, model.EditEvent{
				SheetName:    a.table.Name(),
				RangeAddress: address,
				OldValue:     old,
				NewValue:     value,
			})
			return printJSON(cmd, map[string]any{
				"sheetName":   a.table.Name(),
				"address":     address,
				"oldValue":    old,
				"newValue":    value,
				"invalidated": invalidated,
			})
		}),
	}
}

func (c *cli) telemetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "telemetry <migration|runtime>",
		Short: "Журнал и сводка телеметрии домена",
		Args:  cobra.ExactArgs(1),
		RunE: c.withApp(func(ctx context.Context, cmd *cobra.Command, args []string, a *app) error {
			domain, err := telemetry.ParseDomain(args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{
				"entries": a.telemetry.Entries(ctx, domain),
				"summary": a.telemetry.Summary(ctx, domain),
			})
		}),
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
