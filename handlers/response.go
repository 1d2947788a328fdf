package handlers

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"loopfan-backend/apperrors"
	"loopfan-backend/models"
)

const (
	defaultPage  = 1
	defaultLimit = 20
	maxLimit     = 100
)

type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
}

func respond(c *gin.Context, status int, data interface{}) {
	c.JSON(status, envelope{Success: true, Data: data})
}

// fail hands err to the error middleware and stops the chain.
func fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// bindJSON binds and validates the body. Field violations are returned as-is
// for the error middleware to detail; anything else is a malformed body.
func bindJSON(c *gin.Context, obj interface{}) error {
	err := c.ShouldBindJSON(obj)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return err
	}
	return apperrors.Validation("Invalid request body")
}

// pageQuery reads page and limit. Missing or malformed values fall back to the
// defaults and limit is clamped to [1, 100].
func pageQuery(c *gin.Context) models.Page {
	page, err := strconv.Atoi(c.Query("page"))
	if err != nil || page < 1 {
		page = defaultPage
	}

	limit, err := strconv.Atoi(c.Query("limit"))
	switch {
	case err != nil:
		limit = defaultLimit
	case limit < 1:
		limit = 1
	case limit > maxLimit:
		limit = maxLimit
	}
	return models.Page{Page: page, Limit: limit}
}
