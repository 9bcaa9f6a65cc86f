package invoice

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var (
	recordsBucket      = []byte("invoices")
	fingerprintsBucket = []byte("fingerprints")
)

// DB defines the interface for the parsed invoice archive
type DB interface {
	// SaveRecord inserts or replaces a record and its fingerprint index entry
	SaveRecord(record *Record) error

	// GetRecord retrieves a record by ID
	GetRecord(id string) (*Record, error)

	// FindByFingerprint retrieves the record archived for a content fingerprint
	FindByFingerprint(fingerprint string) (*Record, error)

	// ListRecords returns all records
	ListRecords() ([]*Record, error)

	// DeleteRecord removes a record and its fingerprint index entry
	DeleteRecord(id string) error

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB opens (or creates) the archive at path
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{recordsBucket, fingerprintsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// SaveRecord stores record keyed by ID and indexes it by fingerprint
func (b *BoltDB) SaveRecord(record *Record) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshaling record: %w", err)
		}
		if err := tx.Bucket(recordsBucket).Put([]byte(record.ID), data); err != nil {
			return err
		}
		if record.Fingerprint == "" {
			return nil
		}
		return tx.Bucket(fingerprintsBucket).Put([]byte(record.Fingerprint), []byte(record.ID))
	})
}

// GetRecord retrieves a record by ID
func (b *BoltDB) GetRecord(id string) (*Record, error) {
	var record *Record
	err := b.db.View(func(tx *bbolt.Tx) error {
		var err error
		record, err = getRecord(tx, []byte(id))
		return err
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// FindByFingerprint looks up a record through the fingerprint index
func (b *BoltDB) FindByFingerprint(fingerprint string) (*Record, error) {
	var record *Record
	err := b.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket(fingerprintsBucket).Get([]byte(fingerprint))
		if id == nil {
			return fmt.Errorf("fingerprint %s: %w", fingerprint, ErrRecordNotFound)
		}
		var err error
		record, err = getRecord(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func getRecord(tx *bbolt.Tx, id []byte) (*Record, error) {
	data := tx.Bucket(recordsBucket).Get(id)
	if data == nil {
		return nil, fmt.Errorf("record %s: %w", id, ErrRecordNotFound)
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("unmarshaling record: %w", err)
	}
	return &record, nil
}

// ListRecords returns all records
func (b *BoltDB) ListRecords() ([]*Record, error) {
	records := make([]*Record, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(recordsBucket).ForEach(func(k, v []byte) error {
			var record Record
			if err := json.Unmarshal(v, &record); err != nil {
				return fmt.Errorf("unmarshaling record: %w", err)
			}
			records = append(records, &record)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// DeleteRecord removes a record and its index entry. Deleting a missing record is not an error.
func (b *BoltDB) DeleteRecord(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		records := tx.Bucket(recordsBucket)
		if data := records.Get([]byte(id)); data != nil {
			var record Record
			if err := json.Unmarshal(data, &record); err == nil && record.Fingerprint != "" {
				if err := tx.Bucket(fingerprintsBucket).Delete([]byte(record.Fingerprint)); err != nil {
					return err
				}
			}
		}
		return records.Delete([]byte(id))
	})
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
