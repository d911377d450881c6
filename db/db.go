// Package db is the Object Model & Repository: the only component that
// mutates persistent state. Every other package goes through its typed
// operations rather than touching *sql.DB directly.
package db

import (
	"context"
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/fediglade/fediglade/util"
	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

// DB wraps the single *sql.DB handle for the process.
type DB struct {
	db *sql.DB
}

var (
	dbInstance *DB
	dbOnce     sync.Once
)

// GetDB returns the process-wide database handle, opening and migrating it
// on first call.
func GetDB() *DB {
	dbOnce.Do(func() {
		dbPath := util.ResolveFilePath("fediglade.db")
		log.Printf("using database at: %s", dbPath)

		conn, err := sql.Open("sqlite", dbPath)
		if err != nil {
			panic(err)
		}

		conn.SetMaxOpenConns(25)
		conn.SetMaxIdleConns(5)
		conn.SetConnMaxLifetime(time.Hour)

		var journalMode string
		if err := conn.QueryRow("PRAGMA journal_mode=WAL2").Scan(&journalMode); err != nil || journalMode == "delete" {
			if err := conn.QueryRow("PRAGMA journal_mode=WAL").Scan(&journalMode); err != nil {
				log.Printf("warning: failed to enable WAL mode: %v", err)
			} else {
				log.Printf("database journal mode: %s (WAL2 unsupported, using WAL)", journalMode)
			}
		} else {
			log.Printf("database journal mode: %s", journalMode)
		}

		conn.Exec("PRAGMA synchronous = NORMAL")
		conn.Exec("PRAGMA cache_size = -64000")
		conn.Exec("PRAGMA temp_store = MEMORY")
		conn.Exec("PRAGMA busy_timeout = 5000")
		conn.Exec("PRAGMA foreign_keys = ON")
		conn.Exec("PRAGMA auto_vacuum = INCREMENTAL")

		dbInstance = &DB{db: conn}

		if err := dbInstance.Migrate(); err != nil {
			panic(err)
		}
	})
	return dbInstance
}

// wrapTransaction runs f inside a transaction, retrying on SQLITE_BUSY.
func (d *DB) wrapTransaction(f func(tx *sql.Tx) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		log.Printf("error starting transaction: %s", err)
		return err
	}

	for {
		err = f(tx)
		if err != nil {
			if serr, ok := err.(*sqlite.Error); ok && serr.Code() == sqlitelib.SQLITE_BUSY {
				continue
			}
			log.Printf("error in transaction: %s", err)
			tx.Rollback()
			return err
		}
		if err = tx.Commit(); err != nil {
			log.Printf("error committing transaction: %s", err)
			return err
		}
		break
	}
	return nil
}
