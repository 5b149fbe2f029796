// Пакет server — HTTP-сервер операторского API с graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/campus-directory/internal/config"
)

// RouteRegistrar регистрирует маршруты API на роутере.
type RouteRegistrar interface {
	Routes(r chi.Router, admin ...func(http.Handler) http.Handler)
}

// Server — HTTP-сервер Campus Directory.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт сервер. middlewares применяются ко всем маршрутам в порядке
// переданного среза, admin — только к мутирующим операциям (nil — без защиты).
func New(
	cfg *config.Config,
	logger *slog.Logger,
	api RouteRegistrar,
	admin func(http.Handler) http.Handler,
	middlewares ...func(http.Handler) http.Handler,
) *Server {
	router := chi.NewRouter()
	for _, mw := range middlewares {
		router.Use(mw)
	}
	api.Routes(router, admin)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		logger: logger.With(slog.String("component", "http_server")),
		cfg:    cfg,
	}
}

// Handler возвращает корневой обработчик (для тестов).
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run запускает сервер и блокирует до отмены ctx или ошибки сервера.
// После отмены ctx выполняется graceful shutdown с ShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен", slog.String("addr", s.httpServer.Addr))
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}
	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
