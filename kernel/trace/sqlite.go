package trace

import (
	"database/sql"
	"fmt"
	"os"
	"sync"

	// Pure Go SQLite driver registered as "sqlite".
	_ "github.com/glebarez/go-sqlite"

	"github.com/rs/xid"
	"github.com/tebeka/atexit"

	"github.com/Poseidon-fan/Artemos/kernel/kfmt"
)

const defaultBatchSize = 4096

// SQLiteWriter is a writer that writes events to a SQLite database. Events are
// buffered and inserted in batches; anything still buffered is flushed when
// the program exits through atexit.
type SQLiteWriter struct {
	*sql.DB
	statement *sql.Stmt

	mu        sync.Mutex
	path      string
	pending   []Event
	batchSize int
}

// NewSQLiteWriter creates a writer for the database at path. An empty path
// picks a unique file name in the working directory.
func NewSQLiteWriter(path string) *SQLiteWriter {
	w := &SQLiteWriter{
		path:      path,
		batchSize: defaultBatchSize,
	}

	atexit.Register(func() { _ = w.Flush() })

	return w
}

// Path returns the database file name.
func (w *SQLiteWriter) Path() string { return w.path }

// Init creates the database and its schema. The file must not exist yet.
func (w *SQLiteWriter) Init() error {
	if w.path == "" {
		w.path = "artemos_trace_" + xid.New().String() + ".sqlite3"
	}

	if _, err := os.Stat(w.path); err == nil {
		return fmt.Errorf("file %s already exists", w.path)
	}

	db, err := sql.Open("sqlite", w.path)
	if err != nil {
		return err
	}
	w.DB = db

	if _, err = w.Exec(`
		create table trace
		(
			session  varchar(20) not null,
			seq      integer     not null,
			time     integer     not null,
			position varchar(64) not null,
			pid      integer,
			tid      integer,
			detail   text,
			primary key (session, seq)
		);
	`); err != nil {
		return err
	}

	if _, err = w.Exec(`create index trace_position_index on trace (position);`); err != nil {
		return err
	}

	w.statement, err = w.Prepare(`insert into trace values (?, ?, ?, ?, ?, ?, ?)`)
	return err
}

// Write implements Writer.
func (w *SQLiteWriter) Write(e Event) {
	w.mu.Lock()
	w.pending = append(w.pending, e)
	full := len(w.pending) >= w.batchSize
	w.mu.Unlock()

	if full {
		if err := w.Flush(); err != nil {
			kfmt.Warnf("[trace] dropping %d events: %s", w.pendingLen(), err)
			w.mu.Lock()
			w.pending = nil
			w.mu.Unlock()
		}
	}
}

func (w *SQLiteWriter) pendingLen() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Flush writes all the buffered events to the database in one transaction.
func (w *SQLiteWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.pending) == 0 || w.DB == nil {
		return nil
	}

	tx, err := w.Begin()
	if err != nil {
		return err
	}

	stmt := tx.Stmt(w.statement)
	for _, e := range w.pending {
		if _, err = stmt.Exec(e.Session, e.Seq, e.Time, e.Where, e.PID, e.TID, e.Detail); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert event %d: %w", e.Seq, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return err
	}
	w.pending = nil
	return nil
}

// Close flushes the pending events and closes the database.
func (w *SQLiteWriter) Close() error {
	if err := w.Flush(); err != nil {
		return err
	}
	if w.DB == nil {
		return nil
	}
	return w.DB.Close()
}
