package repository

import (
	"context"
	"errors"
	"fmt"

	"crowdfund-escrow/pkg/db"
	"crowdfund-escrow/pkg/db/option"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository is the generic persistence port used by the services. FindOne
// returns (nil, nil) when no row matches.
type Repository[T any] interface {
	WithTrx(tx *gorm.DB) Repository[T]
	Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	Create(ctx context.Context, resource *T) error
	Update(ctx context.Context, resourceID string, resource any) error
	Save(ctx context.Context, resource *T) error
	BatchCreate(ctx context.Context, resources []*T) error
	BatchUpdate(ctx context.Context, resources []*T) error
	Count(ctx context.Context, query *T) (int64, error)
	Delete(ctx context.Context, query *T) (int64, error)
}

type store[T any] struct {
	db *gorm.DB
	tx *gorm.DB
}

func ProvideStore[T any](gdb *gorm.DB) Repository[T] {
	return &store[T]{db: gdb}
}

func (s *store[T]) WithTrx(tx *gorm.DB) Repository[T] {
	return &store[T]{db: s.db, tx: tx}
}

// conn prefers an explicit transaction, then one carried by ctx.
func (s *store[T]) conn(ctx context.Context) *gorm.DB {
	if s.tx != nil {
		return s.tx.WithContext(ctx)
	}
	return db.Conn(ctx, s.db)
}

func apply(tx *gorm.DB, opts []option.QueryOption) *gorm.DB {
	for _, opt := range opts {
		tx = opt(tx)
	}
	return tx
}

func (s *store[T]) Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error) {
	var out []*T
	tx := apply(s.conn(ctx).Model(new(T)).Where(query), opts)
	if err := tx.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *store[T]) FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error) {
	var out T
	tx := apply(s.conn(ctx).Model(new(T)).Where(query), opts)
	if err := tx.Take(&out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

func (s *store[T]) Create(ctx context.Context, resource *T) error {
	return s.conn(ctx).Create(resource).Error
}

func (s *store[T]) Update(ctx context.Context, resourceID string, resource any) error {
	tx := s.conn(ctx)
	pk, err := primaryKey[T](tx)
	if err != nil {
		return err
	}
	res := tx.Model(new(T)).Where(clause.Eq{Column: clause.Column{Name: pk}, Value: resourceID}).Updates(resource)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Save writes every column of resource, including zero values.
func (s *store[T]) Save(ctx context.Context, resource *T) error {
	return s.conn(ctx).Save(resource).Error
}

func (s *store[T]) BatchCreate(ctx context.Context, resources []*T) error {
	if len(resources) == 0 {
		return nil
	}
	return s.conn(ctx).Create(resources).Error
}

func (s *store[T]) BatchUpdate(ctx context.Context, resources []*T) error {
	tx := s.conn(ctx)
	for _, r := range resources {
		if err := tx.Save(r).Error; err != nil {
			return err
		}
	}
	return nil
}

func (s *store[T]) Count(ctx context.Context, query *T) (int64, error) {
	var n int64
	if err := s.conn(ctx).Model(new(T)).Where(query).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func primaryKey[T any](tx *gorm.DB) (string, error) {
	stmt := &gorm.Statement{DB: tx}
	if err := stmt.Parse(new(T)); err != nil {
		return "", err
	}
	if stmt.Schema.PrioritizedPrimaryField == nil {
		return "", fmt.Errorf("%s has no primary key", stmt.Schema.Name)
	}
	return stmt.Schema.PrioritizedPrimaryField.DBName, nil
}

// Delete removes rows matching query. gorm rejects an all-zero query with
// ErrMissingWhereClause.
func (s *store[T]) Delete(ctx context.Context, query *T) (int64, error) {
	res := s.conn(ctx).Where(query).Delete(new(T))
	return res.RowsAffected, res.Error
}
