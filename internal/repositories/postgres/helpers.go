package postgres

import (
	"errors"

	"github.com/SAP-F-2025/content-import-service/internal/repositories"
	"gorm.io/gorm"
)

// translateError maps gorm's not-found error onto the repository sentinel
func translateError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return repositories.ErrNotFound
	}
	return err
}
