package repository

import (
	"context"

	"github.com/smallbiznis/procura/pkg/db/option"
	"gorm.io/gorm"
)

// Repository is a thin generic store over a single gorm model.
type Repository[T any] interface {
	WithTrx(tx *gorm.DB) Repository[T]
	Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	Create(ctx context.Context, resource *T) error
	Count(ctx context.Context, query *T) (int64, error)
	BatchCreate(ctx context.Context, resources []*T) error
	DeleteWhere(ctx context.Context, query *T) error
}
