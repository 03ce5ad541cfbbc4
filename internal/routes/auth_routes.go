package routes

import (
	"github.com/go-chi/chi/v5"
	"resetd/internal/handlers"
	"resetd/internal/middleware"
)

func RegisterAuthRoutes(router chi.Router, authHandler *handlers.AuthHandler, jwtSecret string) {
	router.Route("/auth", func(r chi.Router) {
		r.Post("/signup", authHandler.Signup)
		r.Post("/login", authHandler.Login)
		r.Post("/forgot-password", authHandler.ForgotPassword)
		r.Post("/reset-password", authHandler.ResetPassword)

		r.Group(func(r chi.Router) {
			r.Use(middleware.JWTAuth(jwtSecret))
			r.Get("/me", authHandler.Me)
			r.Put("/me/password", authHandler.ChangePassword)
		})
	})
}
