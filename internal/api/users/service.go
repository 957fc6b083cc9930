package users

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/JhonesBR/go-ome/internal/helper"
	"github.com/JhonesBR/go-ome/internal/store"
)

func CreateUserHandler(ctx context.Context, backend store.Backend) fiber.Handler {
	return func(c fiber.Ctx) error {
		// Parse create user schema
		var user = CreateUserSchema{}
		if err := c.Bind().Body(&user); err != nil {
			return fiber.ErrBadRequest
		}
		if err := helper.ValidateInput(&user); err != nil {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"success": false,
				"error":   err.Error(),
			})
		}

		created, err := backend.CreateUser(ctx, user.Email)
		if errors.Is(err, store.ErrExists) {
			return fiber.NewError(fiber.StatusConflict, "User already exists")
		}
		if err != nil {
			return err
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"success": true,
			"user":    show(created),
		})
	}
}

func GetUsersHandler(ctx context.Context, backend store.Backend) fiber.Handler {
	return func(c fiber.Ctx) error {
		pagination := helper.GetPagination[UserShowSchema](c)

		users, err := backend.Users(ctx)
		if err != nil {
			return err
		}
		total := len(users)
		pagination.Total = &total

		offset := min(pagination.Offset(), total)
		end := min(offset+pagination.Size, total)
		for _, u := range users[offset:end] {
			pagination.Items = append(pagination.Items, show(u))
		}

		return c.JSON(pagination)
	}
}

func GetUserByIDHandler(ctx context.Context, backend store.Backend) fiber.Handler {
	return func(c fiber.Ctx) error {
		id, err := helper.ParamUUID(c, "id")
		if err != nil {
			return err
		}

		user, err := backend.User(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "User not found")
		}
		if err != nil {
			return err
		}

		return c.JSON(fiber.Map{
			"success": true,
			"user":    show(user),
		})
	}
}
