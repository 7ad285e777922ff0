package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	// ErrLinkNotFound signals that the requested short link does not exist or
	// belongs to another owner.
	ErrLinkNotFound = errors.New("link not found")
	// ErrShortCodeTaken signals a unique violation on links.short_code.
	ErrShortCodeTaken = errors.New("short code already taken")
	// ErrUserNotFound signals an unknown user.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists signals a unique violation on username or email.
	ErrUserExists = errors.New("user already exists")
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
