package postgres

import (
	"database/sql"

	"payungku-returns/internal/repository"

	_ "github.com/lib/pq"
)

type Store struct {
	db *sql.DB
	repository.ResumeCacheRepository
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:                    db,
		ResumeCacheRepository: NewResumeCacheRepository(db),
	}
}
