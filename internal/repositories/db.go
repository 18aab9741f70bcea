package repositories

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var ErrNotFound = errors.New("record not found")

// Database is satisfied by *pgxpool.Pool, pgx.Tx and pgxmock pools.
type Database interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxDatabase is a Database that can open transactions.
type TxDatabase interface {
	Database
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repositories groups repositories bound to one Database handle, either the
// pool or an open transaction.
type Repositories struct {
	PriceLists PriceListRepository
	Warehouses WarehouseRepository
	Stock      StockRepository
	Catalog    CatalogRepository
}

// Store hands out pool-bound repositories and runs work inside transactions.
type Store interface {
	Repos() Repositories
	WithTx(ctx context.Context, fn func(Repositories) error) error
}

type pgStore struct {
	db    TxDatabase
	repos Repositories
}

func NewStore(db TxDatabase) Store {
	return &pgStore{db: db, repos: newRepositories(db)}
}

func newRepositories(db Database) Repositories {
	return Repositories{
		PriceLists: NewPriceListRepo(db),
		Warehouses: NewWarehouseRepository(db),
		Stock:      NewStockRepo(db),
		Catalog:    NewCatalogRepo(db),
	}
}

func (s *pgStore) Repos() Repositories {
	return s.repos
}

// WithTx commits when fn returns nil and rolls back otherwise.
func (s *pgStore) WithTx(ctx context.Context, fn func(Repositories) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(newRepositories(tx)); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func sortedKeys(m map[uuid.UUID]uuid.UUID) []uuid.UUID {
	keys := make([]uuid.UUID, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i][:], keys[j][:]) < 0 })
	return keys
}
