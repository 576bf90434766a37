// Package pow implements the memory hard proof of work used to admit blocks,
// blob summaries, padding and messages. A record is solved when the Argon2id
// digest of its encoding, read as a big endian unsigned integer, is below
// the threshold of its difficulty category.
package pow

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ardanlabs/powledger/foundation/blockchain/codec"
	"github.com/ardanlabs/powledger/foundation/metrics"
	"golang.org/x/crypto/argon2"
	"golang.org/x/sync/errgroup"
)

// Argon2id parameters. Mining and verification must agree on all of them.
const (
	Iterations  = 1
	MemoryKiB   = 64 * 1024
	Parallelism = 1
	KeyLength   = 32
)

// salt is fixed so every node derives the same digest for the same bytes.
var salt = []byte("powledger/argon2id/salt/v1.0")

// Set of errors returned by the engine.
var (
	ErrCancelled         = errors.New("mining cancelled")
	ErrInvalidDifficulty = errors.New("invalid difficulty")
)

// reportEvery is the number of attempts between progress events.
const reportEvery = 64

// =============================================================================

// EventHandler defines a function that is called when events occur in the
// processing of mining.
type EventHandler func(v string, args ...any)

// Record constrains T to a codec record whose nonce can be written while
// mining.
type Record[T any] interface {
	*T
	codec.Minable
}

// Result is a solved record together with the exact bytes that were hashed.
type Result[T any] struct {
	Record   T
	Encoded  []byte
	Digest   *big.Int
	Attempts uint64
}

// Hash returns the Argon2id digest of the encoded record.
func Hash(encoded []byte) []byte {
	return argon2.IDKey(encoded, salt, Iterations, MemoryKiB, Parallelism, KeyLength)
}

// Digest returns the Argon2id digest of the encoded record as an integer.
func Digest(encoded []byte) *big.Int {
	return new(big.Int).SetBytes(Hash(encoded))
}

// Solved reports whether a digest is below the threshold.
func Solved(digest *big.Int, threshold *big.Int) bool {
	return digest.Cmp(threshold) < 0
}

// =============================================================================

// Miner holds the settings shared by every mining session it runs. Sessions
// are independent of each other, so one Miner can serve concurrent sessions
// for different categories.
//
// A deterministic miner runs a single search from nonce zero, so every node
// mining the same record finds the same solution.
type Miner struct {
	Workers       int
	Label         string
	Deterministic bool
	EvHandler     EventHandler
}

func (m Miner) ev(v string, args ...any) {
	if m.EvHandler != nil {
		m.EvHandler(v, args...)
	}
}

func (m Miner) workers() int {
	if m.Workers < 1 {
		return 1
	}
	return m.Workers
}

// Mine searches for a nonce starting after start. The encoded record is
// decoded into a private copy, so concurrent sessions never share state. The
// search stops with ErrCancelled when the context is done.
func Mine[T any, P Record[T]](ctx context.Context, m Miner, encoded []byte, start uint64, threshold *big.Int) (Result[T], error) {
	var rec T
	p := P(&rec)
	if err := p.UnmarshalBinary(encoded); err != nil {
		return Result[T]{}, fmt.Errorf("mine: %w", err)
	}

	obs := metrics.NewMiner(m.Label)
	var reported uint64

	nonce := start
	var attempts uint64
	for {
		if ctx.Err() != nil {
			obs.ObserveAttempts(int(attempts - reported))
			m.ev("pow: Mine: %s: CANCELLED: attempts[%d]", m.Label, attempts)
			return Result[T]{}, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
		}

		attempts++
		nonce++
		p.SetNonce(codec.NonceFromUint64(nonce))

		data, err := p.MarshalBinary()
		if err != nil {
			return Result[T]{}, fmt.Errorf("mine: %w", err)
		}

		digest := Digest(data)
		if attempts%reportEvery == 0 {
			obs.ObserveAttempts(int(attempts - reported))
			reported = attempts
			m.ev("pow: Mine: %s: attempts[%d]", m.Label, attempts)
		}

		if !Solved(digest, threshold) {
			continue
		}

		obs.ObserveAttempts(int(attempts - reported))
		m.ev("pow: Mine: %s: SOLVED: nonce[%d]: attempts[%d]", m.Label, nonce, attempts)

		return Result[T]{
			Record:   rec,
			Encoded:  data,
			Digest:   digest,
			Attempts: attempts,
		}, nil
	}
}

// Race runs one search per worker, each from an independent random start.
// The first solution wins and the session context is cancelled for the
// rest. A worker in the middle of a hash finishes it before it stops.
func Race[T any, P Record[T]](ctx context.Context, m Miner, encoded []byte, threshold *big.Int) (res Result[T], err error) {
	started := time.Now()
	obs := metrics.NewMiner(m.Label)
	defer func() { obs.ObserveSolve(err, started) }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	n := m.workers()
	if m.Deterministic {
		n = 1
	}
	m.ev("pow: Race: %s: started: workers[%d]", m.Label, n)

	results := make(chan Result[T], n)

	var g errgroup.Group
	for i := 0; i < n; i++ {
		var start uint64
		if !m.Deterministic {
			if start, err = RandomStart(); err != nil {
				return Result[T]{}, err
			}
		}

		g.Go(func() error {
			r, err := Mine[T, P](ctx, m, encoded, start, threshold)
			if err != nil {
				return err
			}

			results <- r
			cancel()
			return nil
		})
	}

	werr := g.Wait()
	close(results)

	if r, ok := <-results; ok {
		m.ev("pow: Race: %s: completed: duration[%v]", m.Label, time.Since(started))
		return r, nil
	}

	return Result[T]{}, werr
}

// MineRecord encodes the record and races the configured workers for it.
func MineRecord[T any, P Record[T]](ctx context.Context, m Miner, rec P, threshold *big.Int) (Result[T], error) {
	encoded, err := rec.MarshalBinary()
	if err != nil {
		return Result[T]{}, fmt.Errorf("mine record: %w", err)
	}

	return Race[T, P](ctx, m, encoded, threshold)
}

// Verify decodes the record and hashes the bytes exactly as supplied. A
// buffer that fails to decode is reported as invalid, never as an error.
func Verify[T any, P Record[T]](encoded []byte, threshold *big.Int) (bool, T, *big.Int) {
	var rec T
	if err := P(&rec).UnmarshalBinary(encoded); err != nil {
		return false, rec, nil
	}

	digest := Digest(encoded)
	return Solved(digest, threshold), rec, digest
}

// RandomStart returns a random nonce to start a search from.
func RandomStart() (uint64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("random start: %w", err)
	}

	return binary.BigEndian.Uint64(b[:]), nil
}
