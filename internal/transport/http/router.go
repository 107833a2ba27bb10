// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/opentrusty/tenantgate/internal/membership"
)

// RouterConfig tunes the outer middleware
type RouterConfig struct {
	RequestTimeout time.Duration
}

// NewRouter creates the HTTP router. Every authenticated request passes the
// onboarding gate before reaching a handler.
func NewRouter(h *Handler, rateLimiter *RateLimiter, cfg RouterConfig) *chi.Mux {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RateLimitMiddleware(rateLimiter))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(MetricsMiddleware)
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Get("/health", h.HealthCheck)
	r.Method(http.MethodGet, "/metrics", MetricsHandler())

	r.Group(func(r chi.Router) {
		r.Use(h.SessionMiddleware)
		r.Use(h.GateMiddleware)
		r.Use(h.LocaleMiddleware)
		r.Use(CSRFMiddleware)

		// Invitation links live outside the API prefix
		r.Route(membership.InviteAcceptPath+"/{actorID}/{token}", func(r chi.Router) {
			r.Get("/", h.GetInvite)
			r.Post("/", h.AcceptInvite)
		})

		r.Route("/api/v1", func(r chi.Router) {
			r.Post("/auth/register", h.Register)
			r.Post("/auth/login", h.Login)
			r.Post("/auth/logout", h.Logout)
			r.Post("/theme", h.SetTheme)
			r.Get("/account/revoked", h.Revoked)

			r.Group(func(r chi.Router) {
				r.Use(RequireAuth)

				r.Get("/onboarding/profile", h.GetProfileStep)
				r.Post("/onboarding/profile", h.SubmitProfileStep)
				r.Post("/onboarding/profile/skip", h.SkipProfileStep)
				r.Get("/onboarding/workspace", h.GetWorkspaceStep)
				r.Post("/onboarding/workspace", h.SubmitWorkspaceStep)

				r.Get("/dashboard", h.Dashboard)
				r.Get("/profile", h.GetProfile)
				r.Put("/profile", h.UpdateProfile)

				r.Route("/settings", func(r chi.Router) {
					r.Get("/tenant", h.GetTenant)
					r.Put("/tenant", h.UpdateTenant)

					r.Route("/members", func(r chi.Router) {
						r.Get("/", h.ListMembers)
						r.Post("/invite", h.InviteMember)
						r.Route("/{actorID}", func(r chi.Router) {
							r.Post("/promote", h.PromoteMember)
							r.Post("/revoke", h.RevokeMember)
							r.Post("/reengage", h.ReengageMember)
							r.Put("/role", h.SetMemberRole)
						})
					})
				})
			})
		})
	})

	return r
}
