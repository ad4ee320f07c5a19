// handlers/static.go
package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
)

// SetupHealthRoute answers liveness probes.
func SetupHealthRoute(app *fiber.App) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": true})
	})
}

// SetupStaticRoutes serves the single-page app from root. Unknown paths get
// index.html so client-side links like /?duel=<id> keep working. Must be
// registered after the API routes.
func SetupStaticRoutes(app *fiber.App, root string) {
	app.Use("/", filesystem.New(filesystem.Config{
		Root:         http.Dir(root),
		Index:        "index.html",
		MaxAge:       3600,
		NotFoundFile: "index.html",
	}))
}
