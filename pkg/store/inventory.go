// Package store provides file-backed access to the operational data the
// agents read and write: the stock ledger, daily sales reports, and the
// append-only decision log.
package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kafeai/brigade/pkg/errors"
)

// Item is one stock line.
type Item struct {
	Name     string  `json:"item"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit,omitempty"`
}

// InventoryDoc is the full stock ledger document.
type InventoryDoc struct {
	Inventory []Item         `json:"inventory"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Find returns the index of the item with the given name, or -1.
func (d *InventoryDoc) Find(name string) int {
	for i, item := range d.Inventory {
		if item.Name == name {
			return i
		}
	}
	return -1
}

// InventoryStore reads and rewrites the stock ledger as a whole document.
// Partial updates are not supported: order execution merges its quantities
// into the loaded document and writes it back in one operation.
type InventoryStore struct {
	path string
	mu   sync.Mutex
}

// NewInventoryStore creates a store over the stock ledger file.
func NewInventoryStore(path string) *InventoryStore {
	return &InventoryStore{path: path}
}

// Read returns the current ledger. A missing file yields an empty document.
func (s *InventoryStore) Read(_ context.Context) (*InventoryDoc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// Apply merges quantity additions into the ledger and writes it back.
// Unknown item names create new lines. The metadata last_updated stamp is
// set to the time of this write, not the decision time.
func (s *InventoryStore) Apply(_ context.Context, additions map[string]float64) (*InventoryDoc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	for name, qty := range additions {
		if i := doc.Find(name); i >= 0 {
			doc.Inventory[i].Quantity += qty
		} else {
			doc.Inventory = append(doc.Inventory, Item{Name: name, Quantity: qty})
		}
	}
	if doc.Metadata == nil {
		doc.Metadata = make(map[string]any)
	}
	doc.Metadata["last_updated"] = time.Now().UTC().Format(time.RFC3339)

	if err := s.write(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *InventoryStore) read() (*InventoryDoc, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &InventoryDoc{}, nil
		}
		return nil, errors.New(errors.CodeStoreError, "read stock ledger", err)
	}
	var doc InventoryDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.New(errors.CodeStoreError, "decode stock ledger", err)
	}
	return &doc, nil
}

func (s *InventoryStore) write(doc *InventoryDoc) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.New(errors.CodeStoreError, "create stock dir", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return errors.New(errors.CodeStoreError, "write stock ledger", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.New(errors.CodeStoreError, "replace stock ledger", err)
	}
	return nil
}
