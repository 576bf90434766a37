package difficulty

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ardanlabs/powledger/foundation/blockchain/codec"
	"github.com/ardanlabs/powledger/foundation/blockchain/storage"
)

// limitKey is the store key holding the current MAIN limit.
var limitKey = []byte("difficulty/MAIN")

// Controller keeps the current MAIN limit in the store and hands out
// category thresholds derived from it.
type Controller struct {
	store storage.Store
	mu    sync.RWMutex
}

// NewController constructs a controller over the store.
func NewController(store storage.Store) *Controller {
	return &Controller{
		store: store,
	}
}

// Limit returns the current MAIN limit, codec.DefaultLimit when none was
// stored yet.
func (c *Controller) Limit() (*big.Int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.limit()
}

func (c *Controller) limit() (*big.Int, error) {
	b, err := c.store.Get(limitKey)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return new(big.Int).Set(codec.DefaultLimit), nil
	case err != nil:
		return nil, fmt.Errorf("read limit: %w", err)
	}

	if len(b) != codec.LimitSize {
		return nil, fmt.Errorf("read limit: stored limit has %d bytes", len(b))
	}

	return new(big.Int).SetBytes(b), nil
}

// SetLimit stores a new MAIN limit.
func (c *Controller) SetLimit(limit *big.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.setLimit(limit)
}

func (c *Controller) setLimit(limit *big.Int) error {
	b, err := codec.LimitToBytes(limit)
	if err != nil {
		return fmt.Errorf("store limit: %w", err)
	}

	return c.store.Set(limitKey, b[:])
}

// LimitBytes returns the current MAIN limit in the form a block carries.
func (c *Controller) LimitBytes() ([codec.LimitSize]byte, error) {
	limit, err := c.Limit()
	if err != nil {
		return [codec.LimitSize]byte{}, err
	}

	return codec.LimitToBytes(limit)
}

// Threshold returns the current threshold of the category.
func (c *Controller) Threshold(cat Category) (*big.Int, error) {
	limit, err := c.Limit()
	if err != nil {
		return nil, err
	}

	return Threshold(limit, cat), nil
}

// ApplyRetarget recomputes the MAIN limit from the timestamps of a window
// of blocks and stores it.
func (c *Controller) ApplyRetarget(timestamps []int64) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, err := c.limit()
	if err != nil {
		return nil, err
	}

	next, err := Retarget(current, timestamps)
	if err != nil {
		return nil, err
	}

	if err := c.setLimit(next); err != nil {
		return nil, err
	}

	return next, nil
}
