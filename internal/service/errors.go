package service

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
	ErrInvalidID = errors.New("invalid identifier")
)

var (
	ErrAuthorNotFound       = fmt.Errorf("author %w", ErrNotFound)
	ErrUserNotFound         = fmt.Errorf("user %w", ErrNotFound)
	ErrAnnouncementNotFound = fmt.Errorf("announcement %w", ErrNotFound)
)
