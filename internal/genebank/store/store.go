// Package store implements the genebank's optional disk-bank checkpoint
// sink (spec §6 disk_bank/save_freq/sav_min_num/sav_thr_mem/sav_thr_pop).
//
// Grounded on the teacher's internal/database.DBManager.Connect, which maps
// a dbType string to a database/sql driver name and opens a pooled *sql.DB;
// this package applies the same DSN-scheme dispatch to pick among the
// drivers the teacher's go.mod already carries. The genebank's in-memory
// registry (internal/genebank) remains authoritative at all times; Store is
// a write path for periodic checkpoints, never a read path for any GUI -
// the out-of-scope "persistent SQLite browser" (spec §1) is a separate,
// external reader of the file this package writes.
package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Store is the disk-bank checkpoint sink.
type Store struct {
	db     *sql.DB
	scheme string
}

// Open connects to dsn, inferring the driver from its scheme prefix exactly
// as DBManager.Connect maps a dbType string to a driver name. Recognised
// schemes: "sqlite://" (pure-Go modernc.org/sqlite, the default),
// "sqlite3://" (cgo mattn/go-sqlite3), "postgres://", "mysql://",
// "sqlserver://". The schema and statements in this file are written in
// SQLite's dialect (BLOB columns, "?" placeholders, ON CONFLICT upserts)
// and are not translated for the postgres, mysql or sqlserver drivers.
func Open(dsn string) (*Store, error) {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return nil, fmt.Errorf("store: dsn %q missing scheme", dsn)
	}
	var driver, connStr string
	switch scheme {
	case "sqlite", "":
		driver, connStr = "sqlite", rest
	case "sqlite3":
		driver, connStr = "sqlite3", rest
	case "postgres", "postgresql":
		driver, connStr = "postgres", dsn
	case "mysql":
		driver, connStr = "mysql", rest
	case "sqlserver":
		driver, connStr = "sqlserver", dsn
	default:
		return nil, fmt.Errorf("store: unsupported scheme %q", scheme)
	}
	db, err := sql.Open(driver, connStr)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", driver, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping %s: %w", driver, err)
	}
	s := &Store{db: db, scheme: scheme}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS genotypes (
		name TEXT PRIMARY KEY,
		size INTEGER NOT NULL,
		parent_name TEXT,
		origin_instruction INTEGER,
		current_population INTEGER,
		max_population INTEGER,
		genome BLOB,
		saved_at TIMESTAMP
	)`)
	return err
}

// Record is the value-typed checkpoint row for one genotype, decoupled from
// genebank.Genotype to keep this package free of an import-cycle-prone
// dependency on the registry.
type Record struct {
	Name              string
	Size              int
	ParentName        string
	OriginInstruction uint64
	CurrentPopulation int
	MaxPopulation     int
	Genome            []byte
}

// Save upserts a checkpoint row for one genotype.
func (s *Store) Save(r Record) error {
	_, err := s.db.Exec(`INSERT INTO genotypes
		(name, size, parent_name, origin_instruction, current_population, max_population, genome, saved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			current_population=excluded.current_population,
			max_population=excluded.max_population,
			saved_at=excluded.saved_at`,
		r.Name, r.Size, r.ParentName, r.OriginInstruction, r.CurrentPopulation, r.MaxPopulation, r.Genome, time.Now().UTC())
	return err
}

// SaveAll checkpoints many records inside one transaction, matching the
// teacher's Transaction(connID, fn) helper shape.
func (s *Store) SaveAll(records []Record) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	for _, r := range records {
		if _, err := tx.Exec(`INSERT INTO genotypes
			(name, size, parent_name, origin_instruction, current_population, max_population, genome, saved_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET
				current_population=excluded.current_population,
				max_population=excluded.max_population,
				saved_at=excluded.saved_at`,
			r.Name, r.Size, r.ParentName, r.OriginInstruction, r.CurrentPopulation, r.MaxPopulation, r.Genome, time.Now().UTC()); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Load fetches a previously checkpointed genotype by name.
func (s *Store) Load(name string) (Record, bool, error) {
	row := s.db.QueryRow(`SELECT name, size, parent_name, origin_instruction, current_population, max_population, genome FROM genotypes WHERE name = ?`, name)
	var r Record
	if err := row.Scan(&r.Name, &r.Size, &r.ParentName, &r.OriginInstruction, &r.CurrentPopulation, &r.MaxPopulation, &r.Genome); err != nil {
		if err == sql.ErrNoRows {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	return r, true, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }
