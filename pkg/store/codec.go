// Package store persists the embedding records produced by the embed command.
package store

import (
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/perbu/emqu/pkg/emqu"
)

// Codec serializes a full record sequence to a stream and back.
type Codec interface {
	Encode(w io.Writer, records []emqu.Record) error
	Decode(r io.Reader) ([]emqu.Record, error)
}

// recordChecker is implemented by codecs that cannot represent every record.
// FileBackend calls it before the destination is touched.
type recordChecker interface {
	Check(records []emqu.Record) error
}

const gobVersion = 1

// gobPayload is the on-disk layout of the gob codec
type gobPayload struct {
	Version   int
	Dimension int
	Labels    []string
	Vectors   [][]float32
}

// Gob is the default codec.
type Gob struct{}

func (Gob) Encode(w io.Writer, records []emqu.Record) error {
	dim, err := dimensionOf(records)
	if err != nil {
		return err
	}
	payload := gobPayload{
		Version:   gobVersion,
		Dimension: dim,
		Labels:    make([]string, len(records)),
		Vectors:   make([][]float32, len(records)),
	}
	for i, rec := range records {
		payload.Labels[i] = rec.Label
		payload.Vectors[i] = rec.Vector
	}
	if err := gob.NewEncoder(w).Encode(payload); err != nil {
		return fmt.Errorf("encode gob: %w", err)
	}
	return nil
}

func (Gob) Decode(r io.Reader) ([]emqu.Record, error) {
	var payload gobPayload
	if err := gob.NewDecoder(r).Decode(&payload); err != nil {
		return nil, emqu.NewError(emqu.ErrFormat, "decode gob", "", err)
	}
	if payload.Version != gobVersion {
		return nil, emqu.Errorf(emqu.ErrFormat, "decode gob", "unsupported store version %d", payload.Version)
	}
	if len(payload.Labels) != len(payload.Vectors) {
		return nil, emqu.Errorf(emqu.ErrFormat, "decode gob",
			"%d labels for %d vectors", len(payload.Labels), len(payload.Vectors))
	}
	records := make([]emqu.Record, len(payload.Labels))
	for i := range payload.Labels {
		vec := payload.Vectors[i]
		if vec == nil {
			vec = []float32{}
		}
		if len(vec) != payload.Dimension {
			return nil, emqu.Errorf(emqu.ErrFormat, "decode gob",
				"record %d has %d dimensions, header says %d", i, len(vec), payload.Dimension)
		}
		records[i] = emqu.Record{Label: payload.Labels[i], Vector: vec}
	}
	return records, nil
}

// JSON writes the records as an array of [label, vector] pairs.
// Labels must be valid UTF-8.
type JSON struct{}

// Check rejects labels that encoding/json would rewrite to U+FFFD.
func (JSON) Check(records []emqu.Record) error {
	for i := range records {
		if !utf8.ValidString(records[i].Label) {
			return emqu.Errorf(emqu.ErrFormat, "encode json",
				"record %d label is not valid UTF-8; use the gob, sqlite or bolt format", i)
		}
	}
	return nil
}

func (j JSON) Encode(w io.Writer, records []emqu.Record) error {
	if _, err := dimensionOf(records); err != nil {
		return err
	}
	if err := j.Check(records); err != nil {
		return err
	}
	pairs := make([][2]any, len(records))
	for i, rec := range records {
		vec := rec.Vector
		if vec == nil {
			vec = []float32{}
		}
		pairs[i] = [2]any{rec.Label, vec}
	}
	if err := json.NewEncoder(w).Encode(pairs); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

func (JSON) Decode(r io.Reader) ([]emqu.Record, error) {
	var pairs []json.RawMessage
	if err := json.NewDecoder(r).Decode(&pairs); err != nil {
		return nil, emqu.NewError(emqu.ErrFormat, "decode json", "", err)
	}
	records := make([]emqu.Record, len(pairs))
	for i, raw := range pairs {
		var pair []json.RawMessage
		if err := json.Unmarshal(raw, &pair); err != nil {
			return nil, emqu.NewError(emqu.ErrFormat, "decode json", "", fmt.Errorf("record %d: %w", i, err))
		}
		if len(pair) != 2 {
			return nil, emqu.Errorf(emqu.ErrFormat, "decode json", "record %d has %d elements, want 2", i, len(pair))
		}
		rec := emqu.Record{Vector: []float32{}}
		if err := json.Unmarshal(pair[0], &rec.Label); err != nil {
			return nil, emqu.NewError(emqu.ErrFormat, "decode json", "", fmt.Errorf("record %d label: %w", i, err))
		}
		if err := json.Unmarshal(pair[1], &rec.Vector); err != nil {
			return nil, emqu.NewError(emqu.ErrFormat, "decode json", "", fmt.Errorf("record %d vector: %w", i, err))
		}
		if rec.Vector == nil {
			return nil, emqu.Errorf(emqu.ErrFormat, "decode json", "record %d has no vector", i)
		}
		records[i] = rec
	}
	if _, err := dimensionOf(records); err != nil {
		return nil, emqu.NewError(emqu.ErrFormat, "decode json", "", err)
	}
	return records, nil
}

// dimensionOf returns the shared vector length of records
func dimensionOf(records []emqu.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	dim := len(records[0].Vector)
	for i := range records {
		if len(records[i].Vector) != dim {
			return 0, emqu.Errorf(emqu.ErrDimensionMismatch, "check records",
				"record %d has %d dimensions, record 0 has %d", i, len(records[i].Vector), dim)
		}
	}
	return dim, nil
}

var errUnknownFormat = errors.New("unknown store format")
