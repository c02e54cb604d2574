package util

import "errors"

var (
	ErrUserNotFound      = errors.New("用户不存在")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrValidation        = errors.New("validation failed")
	ErrUnknownEventKind  = errors.New("unknown event kind")
	ErrDuplicateCounter  = errors.New("counter already registered")
	ErrLevelCatalog      = errors.New("invalid level catalog")
	ErrUnknownCatalogSrc = errors.New("unknown catalog source")
)
