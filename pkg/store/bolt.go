package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/perbu/emqu/pkg/emqu"
)

var (
	bucketRecords = []byte("records")
	bucketMeta    = []byte("meta")
	keyDimension  = []byte("dimension")
)

// Bolt keeps the records in a bbolt file. Keys are big-endian ordinals so a
// cursor walk returns the records in store order.
type Bolt struct{}

func (Bolt) Format() string {
	return FormatBolt
}

func (Bolt) Write(_ context.Context, path string, records []emqu.Record) error {
	dim, err := dimensionOf(records)
	if err != nil {
		return err
	}
	return replaceFile(path, func(tmp string) error {
		db, err := bbolt.Open(tmp, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
		if err != nil {
			return emqu.NewError(emqu.ErrIO, "open database", tmp, err)
		}
		err = db.Update(func(tx *bbolt.Tx) error {
			meta, err := tx.CreateBucket(bucketMeta)
			if err != nil {
				return err
			}
			if err := meta.Put(keyDimension, binary.BigEndian.AppendUint64(nil, uint64(dim))); err != nil {
				return err
			}
			b, err := tx.CreateBucket(bucketRecords)
			if err != nil {
				return err
			}
			for i, rec := range records {
				if err := b.Put(binary.BigEndian.AppendUint64(nil, uint64(i)), encodeBoltRecord(rec)); err != nil {
					return fmt.Errorf("put record %d: %w", i, err)
				}
			}
			return nil
		})
		if err != nil {
			db.Close()
			return emqu.NewError(emqu.ErrIO, "write database", tmp, err)
		}
		if err := db.Close(); err != nil {
			return emqu.NewError(emqu.ErrIO, "close database", tmp, err)
		}
		return nil
	})
}

func (Bolt) Read(_ context.Context, path string) ([]emqu.Record, error) {
	if err := checkExists(path); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second, ReadOnly: true})
	if err != nil {
		return nil, emqu.NewError(emqu.ErrFormat, "open database", path, err)
	}
	defer db.Close()

	records := []emqu.Record{}
	err = db.View(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		b := tx.Bucket(bucketRecords)
		if meta == nil || b == nil {
			return fmt.Errorf("missing buckets")
		}
		rawDim := meta.Get(keyDimension)
		if len(rawDim) != 8 {
			return fmt.Errorf("missing dimension")
		}
		dim := int(binary.BigEndian.Uint64(rawDim))

		return b.ForEach(func(k, v []byte) error {
			if len(k) != 8 || binary.BigEndian.Uint64(k) != uint64(len(records)) {
				return fmt.Errorf("unexpected key %x at position %d", k, len(records))
			}
			rec, err := decodeBoltRecord(v)
			if err != nil {
				return fmt.Errorf("record %d: %w", len(records), err)
			}
			if len(rec.Vector) != dim {
				return fmt.Errorf("record %d has %d dimensions, header says %d", len(records), len(rec.Vector), dim)
			}
			records = append(records, rec)
			return nil
		})
	})
	if err != nil {
		return nil, emqu.NewError(emqu.ErrFormat, "read database", path, err)
	}
	return records, nil
}

// encodeBoltRecord lays out a record as a uvarint label length, the label and the vector blob
func encodeBoltRecord(rec emqu.Record) []byte {
	buf := binary.AppendUvarint(nil, uint64(len(rec.Label)))
	buf = append(buf, rec.Label...)
	return append(buf, EncodeVector(rec.Vector)...)
}

func decodeBoltRecord(v []byte) (emqu.Record, error) {
	n, size := binary.Uvarint(v)
	if size <= 0 || uint64(len(v)-size) < n {
		return emqu.Record{}, fmt.Errorf("truncated label")
	}
	label := string(v[size : size+int(n)])
	vec, err := DecodeVector(v[size+int(n):])
	if err != nil {
		return emqu.Record{}, err
	}
	return emqu.Record{Label: label, Vector: vec}, nil
}
