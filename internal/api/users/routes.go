package users

import (
	"context"

	"github.com/gofiber/fiber/v3"

	"github.com/JhonesBR/go-ome/internal/store"
)

func InitializeRoutes(app *fiber.App, backend store.Backend) {
	app.Get("/v1/users", GetUsersHandler(context.Background(), backend))
	app.Post("/v1/users", CreateUserHandler(context.Background(), backend))
	app.Get("/v1/users/:id", GetUserByIDHandler(context.Background(), backend))
}
