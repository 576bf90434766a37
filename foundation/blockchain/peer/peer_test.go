package peer_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ardanlabs/powledger/foundation/blockchain/codec"
	"github.com/ardanlabs/powledger/foundation/blockchain/peer"
	"github.com/ardanlabs/powledger/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

const pkHexKey = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"

// node is a fake peer serving the private node routes the messenger uses.
type node struct {
	mu       sync.Mutex
	records  map[string][]byte
	received map[string][][]byte
}

func (n *node) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch {
	case strings.HasPrefix(r.URL.Path, "/v1/node/topic/"):
		topic := strings.TrimPrefix(r.URL.Path, "/v1/node/topic/")
		data, _ := io.ReadAll(r.Body)
		n.received[topic] = append(n.received[topic], data)
		w.WriteHeader(http.StatusNoContent)

	case strings.HasPrefix(r.URL.Path, "/v1/node/hash/"):
		data, exists := n.records[strings.TrimPrefix(r.URL.Path, "/v1/node/hash/")]
		if !exists {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		w.Write(data)

	case r.URL.Path == "/v1/node/status":
		json.NewEncoder(w).Encode(peer.PeerStatus{LatestBlockID: 7, KnownPeers: []peer.Peer{peer.New("10.0.0.1:9080")}})

	case r.URL.Path == "/v1/node/block/7":
		w.Write([]byte{7})

	case strings.HasPrefix(r.URL.Path, "/v1/node/queries/"):
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "no route", http.StatusTeapot)
	}
}

func start(t *testing.T, records map[string][]byte) (*node, peer.Peer) {
	t.Helper()

	n := node{records: records, received: make(map[string][][]byte)}
	srv := httptest.NewServer(&n)
	t.Cleanup(srv.Close)

	return &n, peer.New(strings.TrimPrefix(srv.URL, "http://"))
}

// =============================================================================

func Test_PeerSet(t *testing.T) {
	t.Log("Given the need to track known peers.")
	{
		ps := peer.NewPeerSet()

		if !ps.Add(peer.New("a:9080")) || ps.Add(peer.New("a:9080")) {
			t.Fatalf("\t%s\tShould add a peer only once.", failed)
		}
		t.Logf("\t%s\tShould add a peer only once.", success)

		ps.Add(peer.New("b:9080"))
		if peers := ps.Copy("a:9080"); len(peers) != 1 || peers[0].Host != "b:9080" {
			t.Fatalf("\t%s\tShould exclude the running node from the copy: %v", failed, peers)
		}
		t.Logf("\t%s\tShould exclude the running node from the copy.", success)

		ps.Remove(peer.New("b:9080"))
		if peers := ps.Copy("a:9080"); len(peers) != 0 {
			t.Fatalf("\t%s\tShould remove the peer: %v", failed, peers)
		}
		t.Logf("\t%s\tShould remove the peer.", success)
	}

	t.Log("Given the need to seed peers from configuration.")
	{
		ps := peer.NewPeerSet("http://c:9080/", "b:9080", " a:9080", "")

		if ps.Len() != 3 {
			t.Fatalf("\t%s\tShould skip empty hosts: %d", failed, ps.Len())
		}
		t.Logf("\t%s\tShould skip empty hosts.", success)

		if ps.Add(peer.New("c:9080")) {
			t.Fatalf("\t%s\tShould treat a scheme prefixed host as the same peer.", failed)
		}
		t.Logf("\t%s\tShould treat a scheme prefixed host as the same peer.", success)

		peers := ps.Copy("http://b:9080")
		if len(peers) != 2 || peers[0].Host != "a:9080" || peers[1].Host != "c:9080" {
			t.Fatalf("\t%s\tShould copy the other peers in host order: %v", failed, peers)
		}
		t.Logf("\t%s\tShould copy the other peers in host order.", success)

		if url := peers[0].URL("/status"); url != "http://a:9080/v1/node/status" {
			t.Fatalf("\t%s\tShould build the private route address: %s", failed, url)
		}
		t.Logf("\t%s\tShould build the private route address.", success)
	}
}

func Test_Messenger(t *testing.T) {
	key, err := crypto.HexToECDSA(pkHexKey)
	if err != nil {
		t.Fatalf("Should be able to load the key: %s", err)
	}

	known := common.HexToHash("0x01")
	missing := common.HexToHash("0x02")

	first, p1 := start(t, nil)
	second, p2 := start(t, map[string][]byte{known.Hex(): []byte("block")})

	ps := peer.NewPeerSet()
	ps.Add(p1)
	ps.Add(p2)

	m := peer.Messenger{Host: "self:9080", Peers: ps, Key: key}

	t.Log("Given the need to broadcast to peers.")
	{
		if err := m.Broadcast(context.Background(), codec.TopicUpdateMain, []byte("payload")); err != nil {
			t.Fatalf("\t%s\tShould broadcast to every peer: %s", failed, err)
		}
		t.Logf("\t%s\tShould broadcast to every peer.", success)

		for _, n := range []*node{first, second} {
			got := n.received[codec.TopicUpdateMain]
			if len(got) != 1 {
				t.Fatalf("\t%s\tShould deliver the payload once: %d", failed, len(got))
			}

			from, payload, err := signature.Open(got[0])
			if err != nil || from != crypto.PubkeyToAddress(key.PublicKey) || string(payload) != "payload" {
				t.Fatalf("\t%s\tShould deliver a payload sealed by the node: %v", failed, err)
			}
		}
		t.Logf("\t%s\tShould deliver a payload sealed by the node.", success)

		if err := m.Broadcast(context.Background(), "GOSSIP", nil); !errors.Is(err, peer.ErrUnknownTopic) {
			t.Fatalf("\t%s\tShould reject an unknown topic: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject an unknown topic.", success)
	}

	t.Log("Given the need to request records by hash.")
	{
		found, err := m.RequestByHash(context.Background(), []common.Hash{known, missing})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to request the records: %s", failed, err)
		}
		t.Logf("\t%s\tShould be able to request the records.", success)

		if len(found) != 2 || string(found[0]) != "block" || found[1] != nil {
			t.Fatalf("\t%s\tShould answer one entry per hash: %q", failed, found)
		}
		t.Logf("\t%s\tShould answer one entry per hash.", success)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := m.RequestByHash(ctx, []common.Hash{known}); !errors.Is(err, context.Canceled) {
			t.Fatalf("\t%s\tShould stop when the context is done: %v", failed, err)
		}
		t.Logf("\t%s\tShould stop when the context is done.", success)
	}

	t.Log("Given the need to sync from a peer.")
	{
		ps, err := m.RequestStatus(context.Background(), p1)
		if err != nil || ps.LatestBlockID != 7 || len(ps.KnownPeers) != 1 {
			t.Fatalf("\t%s\tShould read the status of the peer: %v", failed, err)
		}
		t.Logf("\t%s\tShould read the status of the peer.", success)

		data, err := m.RequestBlock(context.Background(), p1, 7)
		if err != nil || len(data) != 1 || data[0] != 7 {
			t.Fatalf("\t%s\tShould fetch the block by id: %v", failed, err)
		}
		t.Logf("\t%s\tShould fetch the block by id.", success)

		if _, err := m.RequestBlock(context.Background(), p1, 8); err == nil {
			t.Fatalf("\t%s\tShould report a failed request.", failed)
		}
		t.Logf("\t%s\tShould report a failed request.", success)

		data, err = m.RequestQueries(context.Background(), p1, known)
		if err != nil || data != nil {
			t.Fatalf("\t%s\tShould treat no content as empty queries: %v", failed, err)
		}
		t.Logf("\t%s\tShould treat no content as empty queries.", success)
	}
}
