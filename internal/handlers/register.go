// Package handlers registers the HTTP API of the service.
// Handlers are organized in subdirectories by audience (public,
// redeem, business, admin).
package handlers

import (
	"github.com/PancyStudios/DirectorioGo/internal/handlers/admin"
	"github.com/PancyStudios/DirectorioGo/internal/handlers/business"
	"github.com/PancyStudios/DirectorioGo/internal/handlers/public"
	"github.com/PancyStudios/DirectorioGo/internal/handlers/redeem"
	"github.com/PancyStudios/DirectorioGo/pkg/auth"
	"github.com/PancyStudios/DirectorioGo/pkg/coupons"
	"github.com/PancyStudios/DirectorioGo/pkg/database"
	"github.com/PancyStudios/DirectorioGo/pkg/logger"
	"github.com/PancyStudios/DirectorioGo/pkg/web"
)

// Deps are the services the handlers need
type Deps struct {
	Coupons   *coupons.Service
	Blocklist *database.Blocklist
	JWTSecret []byte
}

// RegisterAll registers every API route on s
func RegisterAll(s *web.Server, deps Deps) {
	logger.System("📋 Registrando rutas de la API...", "Handlers")

	if len(deps.JWTSecret) == 0 {
		logger.Warn("jwtSecret vacío: todas las rutas autenticadas responderán 401", "Handlers")
	}

	api := s.Group("/api", auth.Middleware(deps.JWTSecret))
	var blocked auth.Blocklist
	if deps.Blocklist != nil {
		blocked = deps.Blocklist
	}
	requireUser := auth.RequireUser(blocked)

	// Catalog and live updates
	public.Register(api, deps.Coupons)

	// Redemption and history of the signed-in user
	redeem.Register(api, deps.Coupons, requireUser)

	// Coupon management for business owners
	business.Register(api, deps.Coupons, requireUser)

	// Administration
	if deps.Blocklist != nil {
		admin.Register(api, deps.Blocklist, requireUser)
	}

	logger.Success("✅ Rutas de la API registradas correctamente", "Handlers")
}
