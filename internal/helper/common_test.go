package helper

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPagination(t *testing.T) {
	tests := []struct {
		query      string
		page, size int
	}{
		{query: "", page: 1, size: 50},
		{query: "?page=3&size=20", page: 3, size: 20},
		{query: "?page=0&size=0", page: 1, size: 1},
		{query: "?page=x&size=500", page: 1, size: 100},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			app := fiber.New()
			var got Pagination[int]
			app.Get("/", func(c fiber.Ctx) error {
				got = GetPagination[int](c)
				return nil
			})
			_, err := app.Test(httptest.NewRequest("GET", "/"+tt.query, nil))
			require.NoError(t, err)
			assert.Equal(t, tt.page, got.Page)
			assert.Equal(t, tt.size, got.Size)
			assert.Equal(t, (tt.page-1)*tt.size, got.Offset())
			assert.NotNil(t, got.Items)
		})
	}
}

func TestUUIDParams(t *testing.T) {
	id := uuid.New()
	app := fiber.New()
	app.Get("/:id", func(c fiber.Ctx) error {
		if _, err := ParamUUID(c, "id"); err != nil {
			return err
		}
		q, err := QueryUUID(c, "userId")
		if err != nil {
			return err
		}
		if q == nil {
			return c.SendStatus(fiber.StatusNoContent)
		}
		return c.SendString(q.String())
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/"+id.String(), nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/"+id.String()+"?userId="+id.String(), nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/nope", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/"+id.String()+"?userId=nope", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestValidateInput(t *testing.T) {
	type schema struct {
		Email string `validate:"required,email"`
	}
	assert.NoError(t, ValidateInput(&schema{Email: "a@example.com"}))
	assert.Error(t, ValidateInput(&schema{Email: "nope"}))
	assert.Error(t, ValidateInput(&schema{}))
}
