package http

import (
	"github.com/accountd/server/internal/auth"
	"github.com/accountd/server/internal/http/handlers"
	"github.com/accountd/server/internal/middleware"
	"github.com/accountd/server/internal/repo"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates the HTTP router with all routes configured.
func NewRouter(
	authHandler *handlers.AuthHandler,
	profileHandler *handlers.ProfileHandler,
	jwtService *auth.JWTService,
	userRepo repo.UserRepo,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	healthHandler := handlers.NewHealthHandler()
	r.Get("/health", healthHandler.ServeHTTP)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.HandleRegister)
		r.Post("/verify-email", authHandler.HandleVerifyEmail)
		r.Post("/check-otp", authHandler.HandleCheckOTP)
		r.Post("/login", authHandler.HandleLogin)
		r.Post("/refresh", authHandler.HandleRefresh)
		r.Post("/logout", authHandler.HandleLogout)
		r.Post("/password-reset", authHandler.HandleRequestPasswordReset)
		r.Post("/password-reset-confirm", authHandler.HandleConfirmPasswordReset)
	})

	// Protected routes (require a valid access token)
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(jwtService, userRepo))
		r.Get("/profile", profileHandler.HandleGetProfile)
		r.Patch("/profile", profileHandler.HandleUpdateProfile)
		r.Post("/change-password", profileHandler.HandleChangePassword)
	})

	return r
}
