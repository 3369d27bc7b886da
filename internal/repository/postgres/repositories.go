package postgres

import "github.com/jackc/pgx/v5/pgxpool"

// Repositories groups concrete PostgreSQL repository implementations.
type Repositories struct {
	Users    *UserRepository
	Sales    *SaleRepository
	Sources  *SourceRepository
	Rates    *RateRepository
	Failures *FailureRepository
}

// NewRepositories wires all repositories backed by the provided pool.
func NewRepositories(pool *pgxpool.Pool) *Repositories {
	return &Repositories{
		Users:    NewUserRepository(pool),
		Sales:    NewSaleRepository(pool),
		Sources:  NewSourceRepository(pool),
		Rates:    NewRateRepository(pool),
		Failures: NewFailureRepository(pool),
	}
}
