package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "prismid/pkg/domain-errors"
)

func validCreate(category Category) CreateRequest {
	req := CreateRequest{
		Name:     "Ada Example",
		Email:    "Ada@Example.com",
		Category: category,
	}
	if category == CategoryIntern {
		start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
		end := start.AddDate(0, 6, 0)
		req.StartDate = &start
		req.EndDate = &end
	}
	return req
}

func TestCreateRequestNormalize(t *testing.T) {
	req := CreateRequest{
		Name:     "  Ada Example  ",
		Email:    " Ada@Example.COM ",
		Category: Category("intern"),
	}
	req.Normalize()

	assert.Equal(t, "Ada Example", req.Name)
	assert.Equal(t, "ada@example.com", req.Email)
	assert.Equal(t, CategoryIntern, req.Category)
}

func TestCreateRequestValidate(t *testing.T) {
	t.Run("valid intern", func(t *testing.T) {
		req := validCreate(CategoryIntern)
		req.Normalize()
		require.NoError(t, req.Validate())
	})

	t.Run("valid employee", func(t *testing.T) {
		req := validCreate(CategoryEmployee)
		req.Normalize()
		require.NoError(t, req.Validate())
	})

	t.Run("intern without dates", func(t *testing.T) {
		req := validCreate(CategoryIntern)
		req.StartDate = nil
		req.Normalize()
		err := req.Validate()
		require.Error(t, err)
		assert.True(t, dErrors.Is(err, dErrors.CodeValidation))
	})

	t.Run("intern with end before start", func(t *testing.T) {
		req := validCreate(CategoryIntern)
		flipped := req.StartDate.AddDate(0, -1, 0)
		req.EndDate = &flipped
		req.Normalize()
		require.Error(t, req.Validate())
	})

	t.Run("employee with internship dates", func(t *testing.T) {
		req := validCreate(CategoryEmployee)
		start := time.Now()
		req.StartDate = &start
		req.Normalize()
		require.Error(t, req.Validate())
	})

	t.Run("bad email", func(t *testing.T) {
		req := validCreate(CategoryEmployee)
		req.Email = "not-an-email"
		req.Normalize()
		require.Error(t, req.Validate())
	})

	t.Run("unknown category", func(t *testing.T) {
		req := validCreate(CategoryEmployee)
		req.Category = Category("CONTRACTOR")
		require.Error(t, req.Validate())
	})
}

func TestUpdateRequestValidate(t *testing.T) {
	empty := ""
	bad := "nope"
	good := "new@example.com"

	assert.Error(t, (&UpdateRequest{Name: &empty}).Validate())
	assert.Error(t, (&UpdateRequest{Email: &bad}).Validate())
	assert.NoError(t, (&UpdateRequest{Email: &good}).Validate())
	assert.NoError(t, (&UpdateRequest{}).Validate())
}
