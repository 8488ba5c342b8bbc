package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pribylovaa/go-chat-auth/internal/http/handlers"
	"github.com/pribylovaa/go-chat-auth/internal/http/middleware"
	"github.com/pribylovaa/go-chat-auth/internal/metrics"
)

// AuthService - всё, что роутеру нужно от service.Service:
// сценарии для хендлеров и проверка access-токена для guard.
type AuthService interface {
	handlers.AuthService
	middleware.AccessVerifier
}

// Options - параметры сборки HTTP-роутера.
type Options struct {
	Logger  *slog.Logger
	Timeout time.Duration
	Cookie  handlers.CookieOptions
	Metrics *metrics.Metrics
}

// PublicRoutes - реестр маршрутов, доступных без access-токена.
// Заполняется при регистрации маршрутов, дальше только читается.
type PublicRoutes struct {
	routes map[string]struct{}
}

func NewPublicRoutes() *PublicRoutes {
	return &PublicRoutes{routes: make(map[string]struct{})}
}

// Add помечает METHOD path публичным.
func (p *PublicRoutes) Add(method, path string) {
	p.routes[method+" "+path] = struct{}{}
}

// IsPublic реализует middleware.PublicMatcher.
func (p *PublicRoutes) IsPublic(method, path string) bool {
	_, ok := p.routes[method+" "+path]
	return ok
}

// NewRouter собирает http.Handler с chi и подключёнными middleware/роутами.
func NewRouter(svc AuthService, opts Options) http.Handler {
	root := chi.NewRouter()
	public := NewPublicRoutes()

	// Middleware (внешний -> внутренний).
	root.Use(
		middleware.Recover(),             // безопасно ловим паники
		middleware.RequestID(),           // формируем/прокидываем X-Request-Id (до логирования!)
		middleware.Logging(opts.Logger),  // кладём request-scoped логгер в контекст и логируем
		middleware.Metrics(opts.Metrics), // длительность по шаблону маршрута
		middleware.Timeout(opts.Timeout), // общий дедлайн запроса
		middleware.Guard(svc, public),    // access-токен на всех непубличных маршрутах
	)

	h := handlers.New(svc, opts.Cookie, opts.Metrics)

	registerRoutes(root, h, public)
	return root
}

// registerRoutes - единая точка регистрации всех REST-эндпойнтов.
func registerRoutes(r chi.Router, h *handlers.Handlers, public *PublicRoutes) {
	open := func(method, path string, fn http.HandlerFunc) {
		r.Method(method, path, fn)
		public.Add(method, path)
	}

	// public
	open(http.MethodPost, "/auth/login", h.Login)
	open(http.MethodPost, "/auth/register", h.Register)
	open(http.MethodPost, "/auth/refresh", h.Refresh)

	// protected
	r.Post("/auth/logout", h.Logout)
	r.Post("/auth/logout/all", h.LogoutAll)
	r.Get("/auth/profile", h.Profile)
}
