package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/perbu/emqu/pkg/emqu"
)

const (
	FormatGob    = "gob"
	FormatJSON   = "json"
	FormatSQLite = "sqlite"
	FormatBolt   = "bolt"
)

// Formats lists the accepted values of the store format setting
var Formats = []string{FormatGob, FormatJSON, FormatSQLite, FormatBolt}

// Backend reads and writes a whole store at a path. Write replaces whatever was there.
type Backend interface {
	Write(ctx context.Context, path string, records []emqu.Record) error
	Read(ctx context.Context, path string) ([]emqu.Record, error)
	Format() string
}

// ForPath returns the backend for format, or infers it from the file extension when format is empty
func ForPath(path, format string) (Backend, error) {
	if format == "" {
		format = formatFromExt(path)
	}
	switch format {
	case FormatGob:
		return &FileBackend{Codec: Gob{}, format: FormatGob}, nil
	case FormatJSON:
		return &FileBackend{Codec: JSON{}, format: FormatJSON}, nil
	case FormatSQLite:
		return &SQLite{}, nil
	case FormatBolt:
		return &Bolt{}, nil
	default:
		return nil, emqu.NewError(emqu.ErrFormat, "select store", path, fmt.Errorf("%w %q", errUnknownFormat, format))
	}
}

func formatFromExt(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".db", ".sqlite", ".sqlite3":
		return FormatSQLite
	case ".bolt", ".bbolt":
		return FormatBolt
	default:
		return FormatGob
	}
}

// Write stores records at path using the backend selected by ForPath
func Write(ctx context.Context, path, format string, records []emqu.Record) error {
	b, err := ForPath(path, format)
	if err != nil {
		return err
	}
	return b.Write(ctx, path, records)
}

// Read loads the records at path using the backend selected by ForPath
func Read(ctx context.Context, path, format string) ([]emqu.Record, error) {
	b, err := ForPath(path, format)
	if err != nil {
		return nil, err
	}
	return b.Read(ctx, path)
}

// FileBackend writes a codec stream to a temporary file and renames it into place.
type FileBackend struct {
	Codec  Codec
	format string
}

func (b *FileBackend) Format() string {
	return b.format
}

func (b *FileBackend) Write(_ context.Context, path string, records []emqu.Record) error {
	if _, err := dimensionOf(records); err != nil {
		return err
	}
	if c, ok := b.Codec.(recordChecker); ok {
		if err := c.Check(records); err != nil {
			return err
		}
	}
	return replaceFile(path, func(tmp string) error {
		file, err := os.Create(tmp)
		if err != nil {
			return emqu.NewError(emqu.ErrIO, "create", tmp, err)
		}
		if err := b.Codec.Encode(file, records); err != nil {
			file.Close()
			return emqu.NewError(emqu.ErrIO, "write", tmp, err)
		}
		if err := file.Close(); err != nil {
			return emqu.NewError(emqu.ErrIO, "close", tmp, err)
		}
		return nil
	})
}

func (b *FileBackend) Read(_ context.Context, path string) ([]emqu.Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, emqu.NewError(emqu.ErrIO, "open", path, err)
	}
	defer file.Close()

	records, err := b.Codec.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return records, nil
}

// replaceFile lets write produce the new content at a temporary path next to path, then
// renames it over path. The temporary file is removed on failure.
func replaceFile(path string, write func(tmp string) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return emqu.NewError(emqu.ErrIO, "create directory", filepath.Dir(path), err)
	}
	tmp := path + ".tmp"
	if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
		return emqu.NewError(emqu.ErrIO, "remove", tmp, err)
	}
	if err := write(tmp); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	// Atomic rename
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return emqu.NewError(emqu.ErrIO, "rename", path, err)
	}
	return nil
}

// checkExists turns a missing or unreadable store into an I/O error before a database driver sees it
func checkExists(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return emqu.NewError(emqu.ErrIO, "open", path, err)
	}
	if info.IsDir() {
		return emqu.Errorf(emqu.ErrIO, "open", "%s is a directory", path)
	}
	return nil
}
