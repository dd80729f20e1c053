package chat

import (
	"errors"

	"socialdm/backend/internal/apperr"
	"socialdm/backend/internal/storage"
)

// storeErr converts gateway errors into the application taxonomy.
func storeErr(err error, notFound string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.NotFound(notFound)
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return apperr.Transient(err)
}
