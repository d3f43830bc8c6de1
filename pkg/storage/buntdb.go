package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/raykavin/rsdash/pkg/core"
	"github.com/tidwall/buntdb"
)

const payloadKeyPrefix = "payload:"

// PayloadCache keeps decoded update payloads per year using BuntDB.
// Entries expire after the configured TTL; a zero TTL keeps them forever.
type PayloadCache struct {
	db  *buntdb.DB
	ttl time.Duration
}

// FromMemory creates an in-memory cache
func FromMemory(ttl time.Duration) (*PayloadCache, error) {
	return NewPayloadCache(":memory:", ttl)
}

// FromFile creates a file-based cache
func FromFile(file string, ttl time.Duration) (*PayloadCache, error) {
	return NewPayloadCache(file, ttl)
}

// NewPayloadCache opens the BuntDB database at sourceFile
func NewPayloadCache(sourceFile string, ttl time.Duration) (*PayloadCache, error) {
	db, err := buntdb.Open(sourceFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open buntdb: %w", err)
	}

	return &PayloadCache{db: db, ttl: ttl}, nil
}

func payloadKey(year string) string {
	return payloadKeyPrefix + year
}

// Get returns the cached payload for year, ok is false on a miss
func (c *PayloadCache) Get(year string) (*core.Payload, bool, error) {
	var content string

	err := c.db.View(func(tx *buntdb.Tx) error {
		var err error
		content, err = tx.Get(payloadKey(year))
		return err
	})
	if errors.Is(err, buntdb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read payload: %w", err)
	}

	var payload core.Payload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	return &payload, true, nil
}

// Put stores payload for year, replacing any previous entry
func (c *PayloadCache) Put(year string, payload *core.Payload) error {
	content, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	var options *buntdb.SetOptions
	if c.ttl > 0 {
		options = &buntdb.SetOptions{Expires: true, TTL: c.ttl}
	}

	return c.db.Update(func(tx *buntdb.Tx) error {
		if _, _, err := tx.Set(payloadKey(year), string(content), options); err != nil {
			return fmt.Errorf("failed to store payload: %w", err)
		}
		return nil
	})
}

// Years lists the years currently held in the cache in ascending order
func (c *PayloadCache) Years() ([]string, error) {
	years := make([]string, 0)

	err := c.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(payloadKeyPrefix+"*", func(key, _ string) bool {
			years = append(years, key[len(payloadKeyPrefix):])
			return true
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate over payloads: %w", err)
	}

	return years, nil
}

// Invalidate drops every cached payload
func (c *PayloadCache) Invalidate() error {
	years, err := c.Years()
	if err != nil {
		return err
	}

	return c.db.Update(func(tx *buntdb.Tx) error {
		for _, year := range years {
			if _, err := tx.Delete(payloadKey(year)); err != nil && !errors.Is(err, buntdb.ErrNotFound) {
				return fmt.Errorf("failed to delete payload %s: %w", year, err)
			}
		}
		return nil
	})
}

// Close closes the database connection
func (c *PayloadCache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
