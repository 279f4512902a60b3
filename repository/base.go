// Package repository provides data access for the costing domain models
package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// saveBatchSize bounds multi-row inserts during bulk imports
const saveBatchSize = 100

// BaseRepository carries the shared persistence plumbing for one model type.
// Reads and writes pick up an ambient transaction from the context when one
// is present, so a flow can span several repositories in a single commit.
type BaseRepository[T any, F any] struct {
	DB *gorm.DB
}

// NewBaseRepository creates a new base repository instance
func NewBaseRepository[T any, F any](db *gorm.DB) *BaseRepository[T, F] {
	return &BaseRepository[T, F]{DB: db}
}

// getDB resolves the connection for reads, preferring the ambient transaction
func (r *BaseRepository[T, F]) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(TxContextKey).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return r.DB
}

// getDBForWrite resolves the connection for writes. Without an ambient
// transaction it opens a fresh one and reports shouldCommit=true so the
// caller finishes it.
func (r *BaseRepository[T, F]) getDBForWrite(ctx context.Context) (*gorm.DB, bool, error) {
	if tx, ok := ctx.Value(TxContextKey).(*gorm.DB); ok && tx != nil {
		return tx, false, nil
	}

	tx := r.DB.Begin()
	if tx.Error != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}

	return tx, true, nil
}

// ByID fetches one row by primary key, nil when absent
func (r *BaseRepository[T, F]) ByID(ctx context.Context, id uint) (*T, error) {
	var row T
	if err := r.getDB(ctx).Last(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load row %d: %w", id, err)
	}

	return &row, nil
}

// Save inserts a new row
func (r *BaseRepository[T, F]) Save(ctx context.Context, row *T) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				db.Commit()
			}
		}()
	}

	if err = db.Create(row).Error; err != nil {
		return fmt.Errorf("failed to insert row: %w", err)
	}

	return nil
}

// SaveBatch inserts rows in chunks inside one write transaction
func (r *BaseRepository[T, F]) SaveBatch(ctx context.Context, rows []*T) error {
	if len(rows) == 0 {
		return nil
	}

	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				db.Commit()
			}
		}()
	}

	if err = db.CreateInBatches(rows, saveBatchSize).Error; err != nil {
		return fmt.Errorf("failed to insert batch: %w", err)
	}

	return nil
}

// WithTransaction runs fn with a transaction bound into the context; every
// repository call inside joins it. Rolls back on error or panic.
func WithTransaction(ctx context.Context, db *gorm.DB, fn func(context.Context) error) (err error) {
	tx := db.Begin()
	if tx.Error != nil {
		return fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			err = fmt.Errorf("panic in transaction: %v", r)
		}
	}()

	ctx = context.WithValue(ctx, TxContextKey, tx)

	if err := fn(ctx); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
