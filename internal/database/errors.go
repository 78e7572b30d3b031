package database

import (
	"errors"

	"github.com/thereayou/circlechat/pkg/apperror"
	"gorm.io/gorm"
)

// lookupErr maps a failed single-row lookup to NotFound or Transient.
func lookupErr(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperror.NotFound("%s not found", what)
	}
	return apperror.Transient("failed to load "+what, err)
}
