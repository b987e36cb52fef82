package order

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

const (
	DefaultStoreFileName = ".stellar-swap-orders.json"
)

// Store is the process-wide registry of orders keyed by order id. Orders are
// written once at creation, read by the coordinator, and only their status
// changes afterwards. A JSON snapshot keeps orders (and their secrets)
// available across CLI invocations; pruning is left to the operator.
//
// The store also arbitrates workflow ownership: at most one coordinator
// workflow may be in flight per order id at any time.
type Store struct {
	filePath string
	mu       sync.RWMutex
	orders   map[common.Hash]*Order
	inflight map[common.Hash]bool
}

type storeSnapshot struct {
	Orders map[string]*Order `json:"orders"`
}

// NewStore creates a store backed by the given snapshot file. An empty path
// defaults to DefaultStoreFileName in the user's home directory.
func NewStore(filePath string) (*Store, error) {
	if filePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		filePath = filepath.Join(home, DefaultStoreFileName)
	}

	store := &Store{
		filePath: filePath,
		orders:   make(map[common.Hash]*Order),
		inflight: make(map[common.Hash]bool),
	}

	if err := store.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load orders: %w", err)
		}
	}

	return store, nil
}

// NewMemoryStore creates a store with no snapshot file, for tests and dry
// runs.
func NewMemoryStore() *Store {
	return &Store{
		orders:   make(map[common.Hash]*Order),
		inflight: make(map[common.Hash]bool),
	}
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	var snapshot storeSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("failed to unmarshal orders: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, ord := range snapshot.Orders {
		s.orders[common.HexToHash(key)] = ord
	}

	return nil
}

// saveLocked writes the snapshot; callers must hold at least a read lock.
func (s *Store) saveLocked() error {
	if s.filePath == "" {
		return nil
	}

	snapshot := storeSnapshot{Orders: make(map[string]*Order, len(s.orders))}
	for id, ord := range s.orders {
		snapshot.Orders[id.Hex()] = ord
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal orders: %w", err)
	}

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Write to temporary file first, then rename for atomic write. Secrets
	// live in this file, hence 0600.
	tempFile := s.filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write orders: %w", err)
	}

	if err := os.Rename(tempFile, s.filePath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// Create adds a new order. Creating an id that already exists is an error,
// which also serializes duplicate creation attempts for the same id.
func (s *Store) Create(ord *Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[ord.ID]; exists {
		return fmt.Errorf("order %s already exists", ord.ID.Hex())
	}

	s.orders[ord.ID] = ord
	return s.saveLocked()
}

// Get retrieves an order by id.
func (s *Store) Get(id common.Hash) (*Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ord, exists := s.orders[id]
	if !exists {
		return nil, fmt.Errorf("order %s not found", id.Hex())
	}

	return ord, nil
}

// Update persists a changed order. Orders in a terminal status only accept
// idempotent rewrites of the same status.
func (s *Store) Update(ord *Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.orders[ord.ID]
	if !exists {
		return fmt.Errorf("order %s not found", ord.ID.Hex())
	}
	if existing.Status.Terminal() && existing.Status != ord.Status {
		return fmt.Errorf("order %s is already %s", ord.ID.Hex(), existing.Status)
	}

	s.orders[ord.ID] = ord
	return s.saveLocked()
}

// List returns all orders.
func (s *Store) List() []*Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]*Order, 0, len(s.orders))
	for _, ord := range s.orders {
		orders = append(orders, ord)
	}

	return orders
}

// ListByStatus returns orders filtered by status.
func (s *Store) ListByStatus(status Status) []*Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]*Order, 0)
	for _, ord := range s.orders {
		if ord.Status == status {
			orders = append(orders, ord)
		}
	}

	return orders
}

// Exists checks if an order with the given id exists.
func (s *Store) Exists(id common.Hash) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.orders[id]
	return exists
}

// Count returns the total number of orders.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.orders)
}

// Acquire marks an order's workflow as in flight. It fails if the order does
// not exist or another workflow already owns it.
func (s *Store) Acquire(id common.Hash) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ord, exists := s.orders[id]
	if !exists {
		return nil, fmt.Errorf("order %s not found", id.Hex())
	}
	if s.inflight[id] {
		return nil, fmt.Errorf("order %s already has a workflow in flight", id.Hex())
	}

	s.inflight[id] = true
	return ord, nil
}

// Release returns workflow ownership of an order.
func (s *Store) Release(id common.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.inflight, id)
}

// FilePath returns the snapshot file path.
func (s *Store) FilePath() string {
	return s.filePath
}
