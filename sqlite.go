package variation

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/carbocation/pfx"
	"github.com/jmoiron/sqlx"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS settings (
	id INTEGER PRIMARY KEY CHECK (id = 0),
	ploidy INTEGER NOT NULL,
	num_variations INTEGER NOT NULL,
	compression TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS samples (
	idx INTEGER PRIMARY KEY,
	name TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS fields (
	path TEXT PRIMARY KEY,
	value_type TEXT NOT NULL,
	trailing TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS metadata (
	path TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	value_type TEXT NOT NULL,
	number INTEGER NOT NULL,
	description TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS pages (
	path TEXT NOT NULL,
	row_start INTEGER NOT NULL,
	row_count INTEGER NOT NULL,
	data BLOB NOT NULL,
	PRIMARY KEY (path, row_start)
);
`

// SQLitePageFile keeps pages as BLOB rows of a SQLite database, one table row
// per page, and can be inspected with any SQLite client.
type SQLitePageFile struct {
	DB *sqlx.DB

	// samples is the sample list last read from or written to the file.
	samples []string
}

var _ PageFile = (*SQLitePageFile)(nil)

// sqliteSettings conforms to the single row of the "settings" table.
type sqliteSettings struct {
	Ploidy        int    `db:"ploidy"`
	NumVariations int    `db:"num_variations"`
	Compression   string `db:"compression"`
	CreatedAt     Time   `db:"created_at"`
}

type sqliteField struct {
	Path      string `db:"path"`
	ValueType string `db:"value_type"`
	Trailing  string `db:"trailing"`
}

type sqliteMetadata struct {
	Path        string `db:"path"`
	Kind        string `db:"kind"`
	ValueType   string `db:"value_type"`
	Number      int    `db:"number"`
	Description string `db:"description"`
}

// OpenSQLitePageFile opens or creates a SQLite page file at path.
func OpenSQLitePageFile(path string) (*SQLitePageFile, error) {
	// URI filenames have to begin with 'file:'; see
	// https://www.sqlite.org/c3ref/open.html
	if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}

	db, err := connectSQLite(path)
	if err != nil {
		return nil, pfx.Err(err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, pfx.Err(fmt.Errorf("unable to create schema: %w", err))
	}

	return &SQLitePageFile{DB: db}, nil
}

// OpenSQLite opens a Paged store backed by a SQLite file.
func OpenSQLite(path string, optFns ...func(o *PagedOptions)) (*Paged, error) {
	if err := prepareOpen(path, pagedOptions(optFns).Mode); err != nil {
		return nil, pfx.Err(err)
	}
	pf, err := OpenSQLitePageFile(path)
	if err != nil {
		return nil, pfx.Err(err)
	}
	p, err := NewPaged(pf, optFns...)
	if err != nil {
		pf.Close()
		return nil, pfx.Err(err)
	}
	return p, nil
}

func (s *SQLitePageFile) Close() error {
	return s.DB.Close()
}

func (s *SQLitePageFile) ReadHeader() (*PagedHeader, error) {
	settings := sqliteSettings{}
	if err := s.DB.Get(&settings, "SELECT ploidy, num_variations, compression, created_at FROM settings WHERE id = 0"); errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, pfx.Err(err)
	}

	c, err := ParseCompression(settings.Compression)
	if err != nil {
		return nil, pfx.Err(err)
	}
	h := newPagedHeader(c)
	h.Ploidy = settings.Ploidy
	h.NumVariations = settings.NumVariations
	h.CreatedAt = time.Time(settings.CreatedAt)

	if err := s.DB.Select(&h.Samples, "SELECT name FROM samples ORDER BY idx"); err != nil {
		return nil, pfx.Err(err)
	}
	s.samples = append([]string(nil), h.Samples...)

	fields := []sqliteField{}
	if err := s.DB.Select(&fields, "SELECT path, value_type, trailing FROM fields"); err != nil {
		return nil, pfx.Err(err)
	}
	for _, f := range fields {
		pf := &PagedField{}
		if err := pf.Type.UnmarshalText([]byte(f.ValueType)); err != nil {
			return nil, pfx.Err(err)
		}
		if err := json.Unmarshal([]byte(f.Trailing), &pf.Trailing); err != nil {
			return nil, pfx.Err(err)
		}
		h.Fields[f.Path] = pf
	}

	metas := []sqliteMetadata{}
	if err := s.DB.Select(&metas, "SELECT path, kind, value_type, number, description FROM metadata"); err != nil {
		return nil, pfx.Err(err)
	}
	for _, m := range metas {
		fm := FieldMetadata{Number: Number(m.Number), Description: m.Description}
		if err := fm.Kind.UnmarshalText([]byte(m.Kind)); err != nil {
			return nil, pfx.Err(err)
		}
		if err := fm.Type.UnmarshalText([]byte(m.ValueType)); err != nil {
			return nil, pfx.Err(err)
		}
		h.Metadata[m.Path] = fm
	}

	return h, nil
}

func (s *SQLitePageFile) ReadPages(path string, start, end int) ([]Page, error) {
	pages := []Page{}
	err := s.DB.Select(&pages, `SELECT path, row_start, row_count, data FROM pages
	WHERE path = ? AND row_start < ? AND row_start + row_count > ?
	ORDER BY row_start`, path, end, start)
	if err != nil {
		return nil, pfx.Err(err)
	}
	return pages, nil
}

func (s *SQLitePageFile) Commit(h *PagedHeader, pages []Page, dropped []string) error {
	tx, err := s.DB.Beginx()
	if err != nil {
		return pfx.Err(err)
	}
	defer tx.Rollback()

	for _, path := range dropped {
		if _, err := tx.Exec("DELETE FROM pages WHERE path = ?", path); err != nil {
			return pfx.Err(err)
		}
	}
	for _, pg := range pages {
		if _, err := tx.NamedExec(`INSERT INTO pages (path, row_start, row_count, data)
		VALUES (:path, :row_start, :row_count, :data)`, pg); err != nil {
			return pfx.Err(err)
		}
	}

	if _, err := tx.Exec(`INSERT OR REPLACE INTO settings (id, ploidy, num_variations, compression, created_at)
	VALUES (0, ?, ?, ?, ?)`, h.Ploidy, h.NumVariations, h.Compression.String(), Time(h.CreatedAt)); err != nil {
		return pfx.Err(err)
	}

	// Samples rarely change, so they are only written when they differ.
	if !slices.Equal(h.Samples, s.samples) {
		if _, err := tx.Exec("DELETE FROM samples"); err != nil {
			return pfx.Err(err)
		}
		for i, name := range h.Samples {
			if _, err := tx.Exec("INSERT INTO samples (idx, name) VALUES (?, ?)", i, name); err != nil {
				return pfx.Err(err)
			}
		}
	}

	if _, err := tx.Exec("DELETE FROM fields"); err != nil {
		return pfx.Err(err)
	}
	for path, f := range h.Fields {
		trailing, err := json.Marshal(f.Trailing)
		if err != nil {
			return pfx.Err(err)
		}
		row := sqliteField{Path: path, ValueType: f.Type.String(), Trailing: string(trailing)}
		if _, err := tx.NamedExec("INSERT INTO fields (path, value_type, trailing) VALUES (:path, :value_type, :trailing)", row); err != nil {
			return pfx.Err(err)
		}
	}

	if _, err := tx.Exec("DELETE FROM metadata"); err != nil {
		return pfx.Err(err)
	}
	for path, m := range h.Metadata {
		row := sqliteMetadata{Path: path, Kind: m.Kind.String(), ValueType: m.Type.String(), Number: int(m.Number), Description: m.Description}
		if _, err := tx.NamedExec(`INSERT INTO metadata (path, kind, value_type, number, description)
		VALUES (:path, :kind, :value_type, :number, :description)`, row); err != nil {
			return pfx.Err(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return pfx.Err(err)
	}
	s.samples = append([]string(nil), h.Samples...)
	return nil
}
