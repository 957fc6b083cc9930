package helper

import (
	"context"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/JhonesBR/go-ome/internal/exchange"
	"github.com/JhonesBR/go-ome/internal/store"
)

type Pagination[T any] struct {
	Page  int  `json:"page"`
	Size  int  `json:"size"`
	Total *int `json:"total"`
	Items []T  `json:"items"`
}

func GetPagination[T any](c fiber.Ctx) Pagination[T] {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	if page < 1 {
		page = 1
	}

	size, _ := strconv.Atoi(c.Query("size", "50"))
	if size < 1 {
		size = 1
	} else if size > 100 {
		size = 100
	}

	return Pagination[T]{
		Page:  page,
		Size:  size,
		Total: nil,
		Items: []T{},
	}
}

// Offset is the number of items before the current page.
func (p Pagination[T]) Offset() int {
	return (p.Page - 1) * p.Size
}

var validate = validator.New()

func ValidateInput(input interface{}) error {
	return validate.Struct(input)
}

// ParamUUID reads a path parameter as a UUID.
func ParamUUID(c fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "Invalid "+name)
	}
	return id, nil
}

// QueryUUID reads an optional query parameter as a UUID. It returns nil when
// the parameter is absent.
func QueryUUID(c fiber.Ctx, name string) (*uuid.UUID, error) {
	v := c.Query(name)
	if v == "" {
		return nil, nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Invalid "+name)
	}
	return &id, nil
}

// QueryInt reads a positive integer query parameter, falling back to def when
// it is absent or not positive.
func QueryInt(c fiber.Ctx, name string, def int) int {
	n, err := strconv.Atoi(c.Query(name))
	if err != nil || n < 1 {
		return def
	}
	return n
}

// MarketLookup memoizes market lookups for the lifetime of one request.
func MarketLookup(ctx context.Context, s store.Store) func(id uuid.UUID) (exchange.Market, error) {
	seen := make(map[uuid.UUID]exchange.Market)
	return func(id uuid.UUID) (exchange.Market, error) {
		if m, ok := seen[id]; ok {
			return m, nil
		}
		m, err := s.Market(ctx, id)
		if err != nil {
			return exchange.Market{}, err
		}
		seen[id] = m
		return m, nil
	}
}
