package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/cms-api/internal/middleware"
	"github.com/noah-isme/cms-api/internal/models"
	appErrors "github.com/noah-isme/cms-api/pkg/errors"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func identityFromContext(c *gin.Context) *models.Identity {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		return nil
	}
	return identity
}

// pageWindow converts page/page_size query parameters into limit and offset.
func pageWindow(c *gin.Context) (limit, offset int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	size, err := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(defaultPageSize)))
	if err != nil || size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return size, (page - 1) * size
}

func bindError(err error) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
}
