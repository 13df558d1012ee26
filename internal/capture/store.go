// Package capture persists raw datagrams seen by a circuit endpoint.
//
// Each capture name is a bbolt bucket. Keys are the bucket's own 8 byte
// big-endian sequence, values are CBOR records.
package capture

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/rs/zerolog/log"
	bolt "go.etcd.io/bbolt"
)

type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

var (
	ErrBucketNotFound = errors.New("capture: bucket not found")
	ErrRecordNotFound = errors.New("capture: record not found")
	ErrInvalidBucket  = errors.New("capture: invalid bucket name")
	ErrRecordTooLarge = errors.New("capture: record too large")
)

const (
	keySize = 8
	// MaxRecordSize bounds both a datagram accepted by Append and a stored
	// value handed to the CBOR decoder.
	MaxRecordSize = 1 << 20
	// maxStoredValue leaves room for the timestamp, direction and remote.
	maxStoredValue = MaxRecordSize + 1024
)

// Record is one captured datagram.
type Record struct {
	At        time.Time `cbor:"1,keyasint"`
	Direction Direction `cbor:"2,keyasint"`
	Remote    string    `cbor:"3,keyasint"`
	Raw       []byte    `cbor:"4,keyasint"`
}

// Entry is a stored record with its id.
type Entry struct {
	ID uint64
	Record
}

type BucketInfo struct {
	Name    string
	Records int
}

// Store is safe for concurrent use; bbolt serializes writers.
type Store struct {
	db  *bolt.DB
	enc cbor.EncMode
	dec cbor.DecMode
}

// Open creates or opens the capture database at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("capture: open %s: %w", path, err)
	}
	enc, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		db.Close()
		return nil, err
	}
	dec, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		db.Close()
		return nil, err
	}
	log.Debug().Str("path", path).Msg("capture.Open")
	return &Store{db: db, enc: enc, dec: dec}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func checkBucket(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrInvalidBucket
	}
	return nil
}

func encodeKey(id uint64) []byte {
	var k [keySize]byte
	binary.BigEndian.PutUint64(k[:], id)
	return k[:]
}

// Append stores rec under the next id of bucket.
func (s *Store) Append(bucket string, rec Record) (uint64, error) {
	if err := checkBucket(bucket); err != nil {
		return 0, err
	}
	if len(rec.Raw) > MaxRecordSize {
		return 0, fmt.Errorf("%w: %d bytes", ErrRecordTooLarge, len(rec.Raw))
	}
	if rec.At.IsZero() {
		rec.At = time.Now().UTC()
	}
	val, err := s.enc.Marshal(rec)
	if err != nil {
		return 0, fmt.Errorf("capture: encode: %w", err)
	}
	var id uint64
	err = s.db.Update(func(tx *bolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return err
		}
		id, err = bkt.NextSequence()
		if err != nil {
			return err
		}
		return bkt.Put(encodeKey(id), val)
	})
	if err != nil {
		return 0, fmt.Errorf("capture: append %s: %w", bucket, err)
	}
	return id, nil
}

func (s *Store) decode(k, v []byte) (Entry, error) {
	var e Entry
	if len(k) != keySize {
		return e, fmt.Errorf("capture: malformed key %x", k)
	}
	e.ID = binary.BigEndian.Uint64(k)
	if len(v) > maxStoredValue {
		return e, fmt.Errorf("%w: record %d holds %d bytes", ErrRecordTooLarge, e.ID, len(v))
	}
	if err := s.dec.Unmarshal(v, &e.Record); err != nil {
		return e, fmt.Errorf("capture: decode record %d: %w", e.ID, err)
	}
	return e, nil
}

// List returns up to limit of the newest records of bucket, oldest first.
// A limit <= 0 returns every record.
func (s *Store) List(bucket string, limit int) ([]Entry, error) {
	if err := checkBucket(bucket); err != nil {
		return nil, err
	}
	var out []Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(bucket))
		if bkt == nil {
			return fmt.Errorf("%w: %s", ErrBucketNotFound, bucket)
		}
		c := bkt.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(out) >= limit {
				break
			}
			e, err := s.decode(k, v)
			if err != nil {
				return err
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Get returns one record by id.
func (s *Store) Get(bucket string, id uint64) (Entry, error) {
	if err := checkBucket(bucket); err != nil {
		return Entry{}, err
	}
	var out Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(bucket))
		if bkt == nil {
			return fmt.Errorf("%w: %s", ErrBucketNotFound, bucket)
		}
		k := encodeKey(id)
		v := bkt.Get(k)
		if v == nil {
			return fmt.Errorf("%w: %s/%d", ErrRecordNotFound, bucket, id)
		}
		e, err := s.decode(k, v)
		out = e
		return err
	})
	return out, err
}

// Buckets lists capture names with their record counts.
func (s *Store) Buckets() ([]BucketInfo, error) {
	var out []BucketInfo
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, b *bolt.Bucket) error {
			out = append(out, BucketInfo{Name: string(name), Records: b.Stats().KeyN})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
