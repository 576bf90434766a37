package peer

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"

	"github.com/ardanlabs/powledger/foundation/blockchain/codec"
	"github.com/ardanlabs/powledger/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/common"
)

// Set of errors returned by the messenger.
var (
	ErrUnknownTopic = errors.New("unknown topic")
	ErrNotFound     = errors.New("peer does not hold the record")
)

// EventHandler defines a function that is called when events occur in the
// processing of peer requests.
type EventHandler func(v string, args ...any)

// Messenger sends topic payloads to the known peers and requests records by
// hash. Every broadcast payload is sealed with the node's key.
type Messenger struct {
	Host      string
	Peers     *PeerSet
	Key       *ecdsa.PrivateKey
	Client    *http.Client
	EvHandler EventHandler
}

func (m *Messenger) ev(v string, args ...any) {
	if m.EvHandler != nil {
		m.EvHandler(v, args...)
	}
}

func (m *Messenger) client() *http.Client {
	if m.Client == nil {
		return http.DefaultClient
	}
	return m.Client
}

// Broadcast seals the payload and posts it under the topic to every known
// peer. Peers that fail are reported together once every peer was tried.
func (m *Messenger) Broadcast(ctx context.Context, topic string, payload []byte) error {
	m.ev("peer: Broadcast: started: topic[%s]", topic)
	defer m.ev("peer: Broadcast: completed: topic[%s]", topic)

	if !slices.Contains(codec.Topics, topic) {
		return fmt.Errorf("%w: %q", ErrUnknownTopic, topic)
	}

	sealed, err := signature.Seal(payload, m.Key)
	if err != nil {
		return fmt.Errorf("seal payload: %w", err)
	}

	var errs []error
	for _, pr := range m.Peers.Copy(m.Host) {
		url := pr.URL("/topic/" + topic)
		if _, err := send(ctx, m.client(), http.MethodPost, url, sealed); err != nil {
			m.ev("peer: Broadcast: WARNING: %s: %s", pr.Host, err)
			errs = append(errs, fmt.Errorf("%s: %w", pr.Host, err))
			continue
		}

		m.ev("peer: Broadcast: sent to peer[%s]", pr.Host)
	}

	return errors.Join(errs...)
}

// RequestByHash asks the known peers for the records with the specified
// hashes. The result holds one entry per hash, nil when no peer answered
// for it. The whole request is bounded by the response timeout.
func (m *Messenger) RequestByHash(ctx context.Context, hashes []common.Hash) ([][]byte, error) {
	m.ev("peer: RequestByHash: started: hashes[%d]", len(hashes))
	defer m.ev("peer: RequestByHash: completed: hashes[%d]", len(hashes))

	ctx, cancel := context.WithTimeout(ctx, codec.ResponseTimeout)
	defer cancel()

	peers := m.Peers.Copy(m.Host)
	found := make([][]byte, len(hashes))

	for i, hash := range hashes {
		for _, pr := range peers {
			url := pr.URL("/hash/" + hash.Hex())

			data, err := send(ctx, m.client(), http.MethodGet, url, nil)
			if err != nil {
				if ctx.Err() != nil {
					return nil, fmt.Errorf("request by hash: %w", ctx.Err())
				}
				if !errors.Is(err, ErrNotFound) {
					m.ev("peer: RequestByHash: WARNING: %s: %s", pr.Host, err)
				}
				continue
			}

			found[i] = data
			break
		}
	}

	return found, nil
}

// RequestStatus asks the peer for its latest block and known peers.
func (m *Messenger) RequestStatus(ctx context.Context, pr Peer) (PeerStatus, error) {
	url := pr.URL("/status")

	data, err := send(ctx, m.client(), http.MethodGet, url, nil)
	if err != nil {
		return PeerStatus{}, err
	}

	var ps PeerStatus
	if err := json.Unmarshal(data, &ps); err != nil {
		return PeerStatus{}, fmt.Errorf("decode status: %w", err)
	}

	m.ev("peer: RequestStatus: peer-node[%s]: latest-blkid[%d]: peer-list[%s]", pr.Host, ps.LatestBlockID, ps.KnownPeers)

	return ps, nil
}

// RequestBlock asks the peer for the encoded block with the specified id.
func (m *Messenger) RequestBlock(ctx context.Context, pr Peer, id int64) ([]byte, error) {
	url := pr.URL(fmt.Sprintf("/block/%d", id))
	return send(ctx, m.client(), http.MethodGet, url, nil)
}

// RequestQueries asks the peer for the encoded queries committed by the
// block with the specified hash.
func (m *Messenger) RequestQueries(ctx context.Context, pr Peer, hash common.Hash) ([]byte, error) {
	url := pr.URL("/queries/" + hash.Hex())
	return send(ctx, m.client(), http.MethodGet, url, nil)
}

// =============================================================================

// send is a helper function to send an HTTP request to a node and return
// the raw body of the response.
func send(ctx context.Context, client *http.Client, method string, url string, body []byte) ([]byte, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/octet-stream")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return data, nil
	case http.StatusNoContent:
		return nil, nil
	case http.StatusNotFound:
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}
}
