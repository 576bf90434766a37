// Package schema is the registry of transaction types. Every type is a
// tagged variant registered at startup. A handle decodes the payload of a
// message and extracts the keys the ledger indexes it by.
package schema

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ardanlabs/powledger/foundation/blockchain/codec"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Set of errors returned by the registry.
var (
	ErrUnknownType  = errors.New("unknown transaction type")
	ErrTypeMismatch = errors.New("message is addressed to another type")
	ErrRuleFailed   = errors.New("rule failed")
)

// Item is a decoded transaction payload.
type Item interface {
	MarshalBinary() ([]byte, error)

	// QueryKey returns the values identifying the logical entity the item
	// updates. Items sharing them supersede each other.
	QueryKey() [][]byte

	// UniqueKeys returns the values no two items of one batch may share.
	UniqueKeys() [][]byte

	// Fields exposes the payload to rule evaluation.
	Fields() map[string]any
}

// Evaluator evaluates a business rule against an item's fields.
type Evaluator interface {
	Evaluate(expression string, fields map[string]any) (bool, error)
}

// =============================================================================

// TypeID returns the id of the type with the specified name.
func TypeID(name string) common.Hash {
	return sha256.Sum256([]byte(name))
}

// ParseTypeID returns the type id written either as a hex id or as the
// name of the type.
func ParseTypeID(s string) common.Hash {
	if b, err := hexutil.Decode(s); err == nil && len(b) == common.HashLength {
		return common.BytesToHash(b)
	}
	return TypeID(s)
}

// ShortID returns the short form of a type id carried in a message's to field.
func ShortID(typeID common.Hash) common.Address {
	return common.BytesToAddress(typeID[:codec.AddressLength])
}

// LatestKey hashes the query key values into the canonical latest-key.
func LatestKey(values [][]byte) common.Hash {
	h := sha256.New()
	for _, v := range values {
		h.Write(v)
	}
	return common.BytesToHash(h.Sum(nil))
}

// =============================================================================

// Handle is the registered form of a type.
type Handle struct {
	Name   string
	ID     common.Hash
	Rules  []string
	decode func(data []byte) (Item, error)
}

// NewHandle constructs a handle for the named type.
func NewHandle(name string, decode func(data []byte) (Item, error), rules ...string) Handle {
	return Handle{
		Name:   name,
		ID:     TypeID(name),
		Rules:  rules,
		decode: decode,
	}
}

// Short returns the short id of the handle's type.
func (h Handle) Short() common.Address {
	return ShortID(h.ID)
}

// Encode returns the payload bytes of the item.
func (h Handle) Encode(item Item) ([]byte, error) {
	return item.MarshalBinary()
}

// Decode returns the item held in the payload bytes.
func (h Handle) Decode(data []byte) (Item, error) {
	item, err := h.decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", h.Name, err)
	}
	return item, nil
}

// Message decodes a transaction, an encoded message, and its payload.
func (h Handle) Message(tx []byte) (codec.Message, Item, error) {
	msg, err := codec.Decode[codec.Message](tx)
	if err != nil {
		return codec.Message{}, nil, err
	}

	if msg.To != h.Short() {
		return codec.Message{}, nil, fmt.Errorf("%w: %s", ErrTypeMismatch, h.Name)
	}

	item, err := h.Decode(msg.Data)
	if err != nil {
		return codec.Message{}, nil, err
	}

	return msg, item, nil
}

// QueryKey returns the latest-key of the transaction.
func (h Handle) QueryKey(tx []byte) (common.Hash, error) {
	_, item, err := h.Message(tx)
	if err != nil {
		return common.Hash{}, err
	}
	return LatestKey(item.QueryKey()), nil
}

// UniqueKeys returns the unique keys of the transaction.
func (h Handle) UniqueKeys(tx []byte) ([][]byte, error) {
	_, item, err := h.Message(tx)
	if err != nil {
		return nil, err
	}
	return item.UniqueKeys(), nil
}

// Evaluate runs every rule of the type against the item.
func (h Handle) Evaluate(ev Evaluator, item Item) error {
	fields := item.Fields()
	for _, rule := range h.Rules {
		ok, err := ev.Evaluate(rule, fields)
		if err != nil {
			return fmt.Errorf("%s: rule %q: %w", h.Name, rule, err)
		}
		if !ok {
			return fmt.Errorf("%w: %s: %q", ErrRuleFailed, h.Name, rule)
		}
	}
	return nil
}

// =============================================================================

// Registry resolves type ids into handles.
type Registry struct {
	mu      sync.RWMutex
	byID    map[common.Hash]Handle
	byShort map[common.Address]Handle
}

// NewRegistry constructs a registry holding the specified handles.
func NewRegistry(handles ...Handle) *Registry {
	r := Registry{
		byID:    make(map[common.Hash]Handle),
		byShort: make(map[common.Address]Handle),
	}

	for _, h := range handles {
		r.Register(h)
	}

	return &r
}

// Default constructs a registry holding the built in types.
func Default() *Registry {
	return NewRegistry(CoinHandle(), NFTHandle())
}

// Register adds or replaces a handle.
func (r *Registry) Register(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byID[h.ID] = h
	r.byShort[h.Short()] = h
}

// Resolve returns the handle of the type id.
func (r *Registry) Resolve(typeID common.Hash) (Handle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, exists := r.byID[typeID]
	if !exists {
		return Handle{}, fmt.Errorf("%w: %s", ErrUnknownType, typeID)
	}
	return h, nil
}

// ResolveShort returns the handle whose short id a message is addressed to.
func (r *Registry) ResolveShort(short common.Address) (Handle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, exists := r.byShort[short]
	if !exists {
		return Handle{}, fmt.Errorf("%w: short id %s", ErrUnknownType, short)
	}
	return h, nil
}

// Handles returns every registered handle ordered by name.
func (r *Registry) Handles() []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	hs := make([]Handle, 0, len(r.byID))
	for _, h := range r.byID {
		hs = append(hs, h)
	}
	sort.Slice(hs, func(i, j int) bool { return hs[i].Name < hs[j].Name })
	return hs
}
