package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/pulsemetric/insight/internal/auth/domain"
	"github.com/pulsemetric/insight/internal/auth/service"
	"github.com/pulsemetric/insight/internal/auth/store"
	"github.com/pulsemetric/insight/pkg/httpx"
	"github.com/pulsemetric/insight/pkg/jwtx"
	"github.com/pulsemetric/insight/pkg/slogx"

	_ "github.com/pulsemetric/insight/api/auth" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	verifier     jwtx.Verifier
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store            store.Store
	AuthService      *service.AuthService
	TokenService     *service.TokenService
	UserService      *service.UserService
	TwoFactorService *service.TwoFactorService
	ProvisionService *service.ProvisionService
}

func NewRouter(
	verifier jwtx.Verifier,
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		verifier:     verifier,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerTwoFactor()
	r.registerAdmin()
	r.registerProvision()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			Insight Auth Service API
//	@version		0.1.0
//	@description	Authentication service for the Insight analytics platform: credential verification, TOTP two-factor authentication with single-use backup codes, JWT access tokens, and opaque revocable refresh tokens.
//
//	@contact.name				PulseMetric Platform Team
//	@contact.url				https://github.com/pulsemetric/insight
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT access token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	loginHandler := &LoginHandler{AuthService: r.AuthService}
	refreshHandler := &RefreshHandler{TokenService: r.TokenService}
	logoutHandler := &LogoutHandler{TokenService: r.TokenService}

	// POST /v1/auth/login - strict rate limit by IP (credential guessing)
	r.Mux.Handle("POST /v1/auth/login",
		httpx.Chain(loginHandler,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// POST /v1/auth/refresh - moderate rate limit by IP
	r.Mux.Handle("POST /v1/auth/refresh",
		httpx.Chain(refreshHandler,
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	// POST /v1/auth/logout - moderate rate limit by IP
	r.Mux.Handle("POST /v1/auth/logout",
		httpx.Chain(logoutHandler,
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	userInfoHandler := &UserInfoHandler{UserService: r.UserService}
	passwordHandler := &PasswordHandler{UserService: r.UserService}

	// GET /v1/auth/me - lenient rate limit by user
	r.Mux.Handle("GET /v1/auth/me",
		httpx.Chain(userInfoHandler,
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByUser(httpx.LenientLimit),
		),
	)

	// POST /v1/auth/password - strict rate limit by user (password guessing)
	r.Mux.Handle("POST /v1/auth/password",
		httpx.Chain(passwordHandler,
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByUser(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerTwoFactor() {
	h := &TwoFactorHandler{TwoFactorService: r.TwoFactorService}

	// POST /v1/2fa/setup - moderate rate limit by user
	r.Mux.Handle("POST /v1/2fa/setup",
		httpx.Chain(http.HandlerFunc(h.HandleSetup),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)

	// POST /v1/2fa/verify - strict rate limit by user (prevent brute force of TOTP codes)
	r.Mux.Handle("POST /v1/2fa/verify",
		httpx.Chain(http.HandlerFunc(h.HandleVerify),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByUser(httpx.StrictLimit),
		),
	)

	// POST /v1/2fa/disable - strict rate limit by user (password re-confirmation)
	r.Mux.Handle("POST /v1/2fa/disable",
		httpx.Chain(http.HandlerFunc(h.HandleDisable),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByUser(httpx.StrictLimit),
		),
	)

	// POST /v1/2fa/backup-codes - moderate rate limit by user
	r.Mux.Handle("POST /v1/2fa/backup-codes",
		httpx.Chain(http.HandlerFunc(h.HandleRegenerateBackupCodes),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerAdmin() {
	h := &AccountStatusHandler{UserService: r.UserService}

	// POST /v1/users/{id}/status - admin role only
	r.Mux.Handle("POST /v1/users/{id}/status",
		httpx.Chain(h,
			httpx.AuthnMiddleware(r.verifier),
			httpx.RequireRole(domain.RoleAdmin),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerProvision() {
	// POST /v1/provision - strict rate limit by IP (setup endpoint)
	h := &ProvisionHandler{ProvisionService: r.ProvisionService}
	r.Mux.Handle("POST /v1/provision",
		httpx.Chain(h,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerSystem() {
	// Health check endpoints - lenient rate limits (monitoring systems may poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}
