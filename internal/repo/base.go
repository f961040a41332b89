package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// Base is embedded by the domain repositories. It carries either the root
// connection or the transaction a service handed down.
type Base struct {
	db *gorm.DB
}

func New(db *gorm.DB) Base {
	return Base{db: db}
}

// Bind returns a Base on tx. A nil tx keeps the current handle.
func (b Base) Bind(tx *gorm.DB) Base {
	if tx == nil {
		return b
	}
	return Base{db: tx}
}

// DB scopes the handle to ctx.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// Swapped reports whether a guarded update touched exactly one row. Callers
// use it for compare-and-set writes where zero rows means the guard failed.
func Swapped(res *gorm.DB) (bool, error) {
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
