package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/perbu/emqu/pkg/emqu"
)

const sqliteSchema = `CREATE TABLE records (
    ordinal   INTEGER PRIMARY KEY,
    label     TEXT NOT NULL,
    embedding BLOB
)`

// SQLite keeps the records in a single table of a SQLite database file.
// Vectors are stored as little-endian float32 BLOBs.
type SQLite struct{}

func (SQLite) Format() string {
	return FormatSQLite
}

func (SQLite) Write(ctx context.Context, path string, records []emqu.Record) error {
	if _, err := dimensionOf(records); err != nil {
		return err
	}
	return replaceFile(path, func(tmp string) error {
		db, err := sql.Open("sqlite", tmp)
		if err != nil {
			return emqu.NewError(emqu.ErrIO, "open database", tmp, err)
		}
		if err := writeSQLite(ctx, db, records); err != nil {
			db.Close()
			return emqu.NewError(emqu.ErrIO, "write database", tmp, err)
		}
		if err := db.Close(); err != nil {
			return emqu.NewError(emqu.ErrIO, "close database", tmp, err)
		}
		return nil
	})
}

func writeSQLite(ctx context.Context, db *sql.DB, records []emqu.Record) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO records(ordinal, label, embedding) VALUES(?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, rec := range records {
		if _, err := stmt.ExecContext(ctx, i, rec.Label, EncodeVector(rec.Vector)); err != nil {
			return fmt.Errorf("insert record %d: %w", i, err)
		}
	}
	return tx.Commit()
}

func (SQLite) Read(ctx context.Context, path string) ([]emqu.Record, error) {
	if err := checkExists(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, emqu.NewError(emqu.ErrIO, "open database", path, err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `SELECT label, embedding FROM records ORDER BY ordinal`)
	if err != nil {
		return nil, emqu.NewError(emqu.ErrFormat, "query database", path, err)
	}
	defer rows.Close()

	records := []emqu.Record{}
	for rows.Next() {
		var (
			label string
			blob  []byte
		)
		if err := rows.Scan(&label, &blob); err != nil {
			return nil, emqu.NewError(emqu.ErrFormat, "scan record", path, err)
		}
		vec, err := DecodeVector(blob)
		if err != nil {
			return nil, emqu.NewError(emqu.ErrFormat, "decode record", path, err)
		}
		records = append(records, emqu.Record{Label: label, Vector: vec})
	}
	if err := rows.Err(); err != nil {
		return nil, emqu.NewError(emqu.ErrFormat, "read database", path, err)
	}
	if _, err := dimensionOf(records); err != nil {
		return nil, emqu.NewError(emqu.ErrFormat, "read database", path, err)
	}
	return records, nil
}
