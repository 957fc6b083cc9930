package users

import (
	"time"

	"github.com/google/uuid"

	"github.com/JhonesBR/go-ome/internal/exchange"
)

type CreateUserSchema struct {
	Email string `json:"email" validate:"required,email"`
}

type UserShowSchema struct {
	Id      uuid.UUID `json:"id"`
	Email   string    `json:"email"`
	Created time.Time `json:"created"`
}

func show(u exchange.User) UserShowSchema {
	return UserShowSchema{Id: u.Id, Email: u.Email, Created: u.Created}
}
