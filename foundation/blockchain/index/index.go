// Package index maintains the latest index over the store: committed items
// by content hash, counters listing the items of a latest-key, of a block
// and of a block height per type, and the blocks themselves.
//
// A counter under key K holding n lists its items in the slots
// sha256(K || 0) .. sha256(K || n-1), each slot holding an item hash.
package index

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ardanlabs/powledger/foundation/blockchain/codec"
	"github.com/ardanlabs/powledger/foundation/blockchain/pow"
	"github.com/ardanlabs/powledger/foundation/blockchain/schema"
	"github.com/ardanlabs/powledger/foundation/blockchain/storage"
	"github.com/ethereum/go-ethereum/common"
)

// ErrNoBlocks is returned when the index holds no block yet.
var ErrNoBlocks = errors.New("no blocks stored")

// EventHandler defines a function that is called when events occur in the
// processing of the index.
type EventHandler func(v string, args ...any)

// Fetcher requests records this node does not hold from its peers.
type Fetcher interface {
	RequestByHash(ctx context.Context, hashes []common.Hash) ([][]byte, error)
}

// Index is the latest index over a store.
type Index struct {
	store     storage.Store
	fetcher   Fetcher
	evHandler EventHandler
}

// New constructs an index over the store. The fetcher may be nil.
func New(store storage.Store, fetcher Fetcher, ev EventHandler) *Index {
	if ev == nil {
		ev = func(string, ...any) {}
	}

	return &Index{
		store:     store,
		fetcher:   fetcher,
		evHandler: ev,
	}
}

// Store returns the underlying store.
func (idx *Index) Store() storage.Store {
	return idx.store
}

// =============================================================================

func itemKey(tx []byte) []byte {
	return storage.Key(tx)
}

func blockTypeKey(blockHash common.Hash, typeID common.Hash) []byte {
	return storage.Key(blockHash[:], typeID[:])
}

func heightTypeKey(blockIndex int64, typeID common.Hash) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(blockIndex))
	return storage.Key([]byte("height"), b[:], typeID[:])
}

func slotKey(counter []byte, slot uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], slot)
	return storage.Key(counter, b[:])
}

// =============================================================================

// PushItems commits the transactions of one type in the block with the
// specified hash and height.
func (idx *Index) PushItems(blockHash common.Hash, blockIndex int64, h schema.Handle, txs [][]byte) error {
	for i, tx := range txs {
		latest, err := h.QueryKey(tx)
		if err != nil {
			return fmt.Errorf("push item %d: %w", i, err)
		}

		rec := codec.ItemRecord{
			BlockHash:   blockHash,
			BlockIndex:  blockIndex,
			Transaction: tx,
		}
		data, err := rec.MarshalBinary()
		if err != nil {
			return fmt.Errorf("push item %d: %w", i, err)
		}

		key := itemKey(tx)
		if err := idx.store.Set(key, data); err != nil {
			return fmt.Errorf("push item %d: %w", i, err)
		}

		counters := [][]byte{latest[:], blockTypeKey(blockHash, h.ID), heightTypeKey(blockIndex, h.ID)}
		for _, counter := range counters {
			slot, err := idx.store.Increment(counter)
			if err != nil {
				return fmt.Errorf("push item %d: %w", i, err)
			}
			if err := idx.store.Set(slotKey(counter, slot), key); err != nil {
				return fmt.Errorf("push item %d: %w", i, err)
			}
		}
	}

	idx.evHandler("index: PushItems: blk[%d]: type[%s]: items[%d]", blockIndex, h.Name, len(txs))

	return nil
}

// PopItems reverts PushItems for the same arguments. Items are removed in
// reverse order so every counter returns to its previous value.
func (idx *Index) PopItems(blockHash common.Hash, blockIndex int64, h schema.Handle, txs [][]byte) error {
	for i := len(txs) - 1; i >= 0; i-- {
		tx := txs[i]

		latest, err := h.QueryKey(tx)
		if err != nil {
			return fmt.Errorf("pop item %d: %w", i, err)
		}

		counters := [][]byte{latest[:], blockTypeKey(blockHash, h.ID), heightTypeKey(blockIndex, h.ID)}
		for _, counter := range counters {
			prev, err := idx.store.Decrement(counter)
			if err != nil {
				return fmt.Errorf("pop item %d: %w", i, err)
			}
			if err := idx.store.Remove(slotKey(counter, prev-1)); err != nil {
				return fmt.Errorf("pop item %d: %w", i, err)
			}
		}

		if err := idx.store.Remove(itemKey(tx)); err != nil {
			return fmt.Errorf("pop item %d: %w", i, err)
		}
	}

	idx.evHandler("index: PopItems: blk[%d]: type[%s]: items[%d]", blockIndex, h.Name, len(txs))

	return nil
}

// Latest returns the most recent item committed under the latest-key.
func (idx *Index) Latest(latestKey common.Hash) (codec.ItemRecord, error) {
	n, err := storage.Counter(idx.store, latestKey[:])
	if err != nil {
		return codec.ItemRecord{}, err
	}
	if n == 0 {
		return codec.ItemRecord{}, fmt.Errorf("latest %s: %w", latestKey, storage.ErrNotFound)
	}

	return idx.slot(latestKey[:], n-1)
}

// ItemsByIndex returns the items of the type committed at the block height.
func (idx *Index) ItemsByIndex(blockIndex int64, typeID common.Hash) ([]codec.ItemRecord, error) {
	return idx.items(heightTypeKey(blockIndex, typeID))
}

// ItemsByBlock returns the items of the type committed by the block.
func (idx *Index) ItemsByBlock(blockHash common.Hash, typeID common.Hash) ([]codec.ItemRecord, error) {
	return idx.items(blockTypeKey(blockHash, typeID))
}

// CountByIndex returns the number of items of the type committed at the
// block height.
func (idx *Index) CountByIndex(blockIndex int64, typeID common.Hash) (uint64, error) {
	return storage.Counter(idx.store, heightTypeKey(blockIndex, typeID))
}

// Item returns the committed record of the transaction.
func (idx *Index) Item(tx []byte) (codec.ItemRecord, error) {
	return idx.record(itemKey(tx))
}

// ItemByHash returns the committed record of the transaction with the
// content hash.
func (idx *Index) ItemByHash(hash common.Hash) (codec.ItemRecord, error) {
	return idx.record(hash[:])
}

func (idx *Index) items(counter []byte) ([]codec.ItemRecord, error) {
	n, err := storage.Counter(idx.store, counter)
	if err != nil {
		return nil, err
	}

	recs := make([]codec.ItemRecord, 0, n)
	for slot := uint64(0); slot < n; slot++ {
		rec, err := idx.slot(counter, slot)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}

	return recs, nil
}

func (idx *Index) slot(counter []byte, slot uint64) (codec.ItemRecord, error) {
	key, err := idx.store.Get(slotKey(counter, slot))
	if err != nil {
		return codec.ItemRecord{}, fmt.Errorf("slot %d: %w", slot, err)
	}

	return idx.record(key)
}

func (idx *Index) record(key []byte) (codec.ItemRecord, error) {
	data, err := idx.store.Get(key)
	if err != nil {
		return codec.ItemRecord{}, fmt.Errorf("item: %w", err)
	}

	return codec.Decode[codec.ItemRecord](data)
}

// =============================================================================

var latestBlockKey = []byte("latestBlock")

func blockIDKey(id int64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(id))
	return storage.Key([]byte("MainBlock"), b[:])
}

func blockKey(hash common.Hash) []byte {
	return storage.Key([]byte("block"), hash[:])
}

func paddingKey(blockHash common.Hash, typeID common.Hash) []byte {
	return storage.Key([]byte("padding"), blockHash[:], typeID[:])
}

// StoreBlock stores the encoded block under its hash and its id. The latest
// block moves forward when the block is higher than the current one.
func (idx *Index) StoreBlock(hash common.Hash, encoded []byte) error {
	return idx.storeBlock(hash, encoded, true)
}

func (idx *Index) storeBlock(hash common.Hash, encoded []byte, advance bool) error {
	block, err := codec.Decode[codec.MainBlock](encoded)
	if err != nil {
		return fmt.Errorf("store block: %w", err)
	}

	if err := idx.store.Set(blockKey(hash), encoded); err != nil {
		return fmt.Errorf("store block: %w", err)
	}
	if err := idx.store.Set(blockIDKey(block.ID), hash[:]); err != nil {
		return fmt.Errorf("store block: %w", err)
	}

	if !advance {
		return nil
	}

	_, latest, err := idx.LatestBlock()
	switch {
	case errors.Is(err, ErrNoBlocks):
	case err != nil:
		return fmt.Errorf("store block: %w", err)
	case latest.ID >= block.ID:
		return nil
	}

	if err := idx.store.Set(latestBlockKey, hash[:]); err != nil {
		return fmt.Errorf("store block: %w", err)
	}

	idx.evHandler("index: StoreBlock: blk[%d]: hash[%s]", block.ID, hash)

	return nil
}

// SetLatestBlock points the latest block at the block with the hash.
func (idx *Index) SetLatestBlock(hash common.Hash) error {
	return idx.store.Set(latestBlockKey, hash[:])
}

// BlockByHash returns the encoded and decoded block with the hash. A block
// missing locally is requested from peers when a fetcher is attached, and
// kept only when its digest matches the hash.
func (idx *Index) BlockByHash(ctx context.Context, hash common.Hash) ([]byte, codec.MainBlock, error) {
	encoded, err := idx.store.Get(blockKey(hash))
	if errors.Is(err, storage.ErrNotFound) && idx.fetcher != nil {
		encoded, err = idx.fetch(ctx, hash)
	}
	if err != nil {
		return nil, codec.MainBlock{}, fmt.Errorf("block %s: %w", hash, err)
	}

	block, err := codec.Decode[codec.MainBlock](encoded)
	if err != nil {
		return nil, codec.MainBlock{}, fmt.Errorf("block %s: %w", hash, err)
	}

	return encoded, block, nil
}

// LocalBlock returns the encoded block with the hash without asking peers.
func (idx *Index) LocalBlock(hash common.Hash) ([]byte, error) {
	encoded, err := idx.store.Get(blockKey(hash))
	if err != nil {
		return nil, fmt.Errorf("block %s: %w", hash, err)
	}
	return encoded, nil
}

// BlockByID returns the block stored for the height.
func (idx *Index) BlockByID(ctx context.Context, id int64) (common.Hash, []byte, codec.MainBlock, error) {
	hash, err := storage.Hash(idx.store, blockIDKey(id))
	if err != nil {
		return common.Hash{}, nil, codec.MainBlock{}, fmt.Errorf("block %d: %w", id, err)
	}

	encoded, block, err := idx.BlockByHash(ctx, hash)
	if err != nil {
		return common.Hash{}, nil, codec.MainBlock{}, err
	}

	return hash, encoded, block, nil
}

// LatestBlock returns the hash and the block at the tip of the chain.
func (idx *Index) LatestBlock() (common.Hash, codec.MainBlock, error) {
	hash, err := storage.Hash(idx.store, latestBlockKey)
	if errors.Is(err, storage.ErrNotFound) {
		return common.Hash{}, codec.MainBlock{}, ErrNoBlocks
	}
	if err != nil {
		return common.Hash{}, codec.MainBlock{}, err
	}

	encoded, err := idx.store.Get(blockKey(hash))
	if err != nil {
		return common.Hash{}, codec.MainBlock{}, fmt.Errorf("latest block: %w", err)
	}

	block, err := codec.Decode[codec.MainBlock](encoded)
	if err != nil {
		return common.Hash{}, codec.MainBlock{}, fmt.Errorf("latest block: %w", err)
	}

	return hash, block, nil
}

// StoreSmallPadding keeps the small padding of a type committed by a block.
func (idx *Index) StoreSmallPadding(blockHash common.Hash, typeID common.Hash, records []codec.Padding) error {
	data, err := codec.PaddingList(records).MarshalBinary()
	if err != nil {
		return err
	}

	return idx.store.Set(paddingKey(blockHash, typeID), data)
}

// SmallPadding returns the small padding of a type committed by a block.
func (idx *Index) SmallPadding(blockHash common.Hash, typeID common.Hash) ([]codec.Padding, error) {
	data, err := idx.store.Get(paddingKey(blockHash, typeID))
	if err != nil {
		return nil, fmt.Errorf("small padding: %w", err)
	}

	var pl codec.PaddingList
	if err := pl.UnmarshalBinary(data); err != nil {
		return nil, err
	}

	return pl, nil
}

func (idx *Index) fetch(ctx context.Context, hash common.Hash) ([]byte, error) {
	idx.evHandler("index: fetch: requesting block[%s] from peers", hash)

	found, err := idx.fetcher.RequestByHash(ctx, []common.Hash{hash})
	if err != nil {
		return nil, err
	}

	if len(found) != 1 || found[0] == nil {
		return nil, storage.ErrNotFound
	}

	if digest := pow.Hash(found[0]); common.BytesToHash(digest) != hash {
		return nil, fmt.Errorf("fetched block does not hash to %s", hash)
	}

	if err := idx.storeBlock(hash, found[0], false); err != nil {
		return nil, err
	}

	return found[0], nil
}
