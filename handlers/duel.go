// handlers/duel.go
package handlers

import (
	"bubbles-duel/middleware"
	"bubbles-duel/services"

	"github.com/gofiber/fiber/v2"
)

// SetupDuelRoutes mounts the duel API under /api. apiToken may be empty,
// in which case the API is open to the browser client.
func SetupDuelRoutes(app *fiber.App, duelService *services.DuelService, apiToken string) {
	api := app.Group("/api", middleware.APITokenMiddleware(apiToken))

	api.Get("/duels/cooldowns/:userId", duelService.GetCooldown)

	api.Post("/duels", duelService.CreateDuel)
	api.Get("/duels/:id", duelService.GetDuel)
	api.Post("/duels/:id/join", duelService.JoinDuel)
	api.Post("/duels/:id/submit", duelService.SubmitDuel) // 409 on resubmit
}
