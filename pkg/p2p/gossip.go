package p2p

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"

	"github.com/uhyunpark/darkpool/pkg/storage"
)

const topicBatches = "darkpool/batches/1"

// VerifyFunc checks a batch attestation against a serialized BLS public key.
type VerifyFunc func(pubkey []byte, rec *storage.BatchRecord) error

// BatchHandler receives batches that passed verification.
type BatchHandler func(origin []byte, rec *storage.BatchRecord)

type Config struct {
	ListenAddr string   // multiaddr, e.g. /ip4/0.0.0.0/tcp/4001
	Bootstrap  []string // full /p2p/ multiaddrs
	// Trusted lists attestation pubkeys whose batches are accepted.
	// Empty accepts any origin whose attestation verifies.
	Trusted [][]byte
	Self    []byte // own attestation pubkey; own messages are skipped
	Verify  VerifyFunc
	Logger  *zap.SugaredLogger
}

// Gossip publishes and receives attested batch records over GossipSub.
// Receivers re-verify every attestation before handing a record on, so a
// relay never has to be trusted.
type Gossip struct {
	h     host.Host
	ps    *pubsub.PubSub
	topic *pubsub.Topic
	sub   *pubsub.Subscription
	cfg   Config
	log   *zap.SugaredLogger

	muH     sync.RWMutex
	handler BatchHandler
}

func NewGossip(ctx context.Context, cfg Config) (*Gossip, error) {
	if cfg.Verify == nil {
		return nil, fmt.Errorf("p2p: verify func is required")
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	var opts []libp2p.Option
	if cfg.ListenAddr != "" {
		maddr, err := ma.NewMultiaddr(cfg.ListenAddr)
		if err != nil {
			return nil, err
		}
		opts = append(opts, libp2p.ListenAddrs(maddr))
	}
	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, err
	}
	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		h.Close()
		return nil, err
	}
	topic, err := ps.Join(topicBatches)
	if err != nil {
		h.Close()
		return nil, err
	}
	sub, err := topic.Subscribe()
	if err != nil {
		h.Close()
		return nil, err
	}

	g := &Gossip{h: h, ps: ps, topic: topic, sub: sub, cfg: cfg, log: log}

	for _, bs := range cfg.Bootstrap {
		if err := g.Connect(ctx, bs); err != nil {
			log.Warnw("bootstrap_connect_failed", "addr", bs, "err", err)
		}
	}

	go g.readLoop(ctx)

	log.Infow("p2p_ready", "peer", h.ID().String(), "listen", cfg.ListenAddr)
	return g, nil
}

func (g *Gossip) Host() host.Host { return g.h }

// Addrs returns the full dialable multiaddrs of this host.
func (g *Gossip) Addrs() []string {
	var out []string
	for _, a := range g.h.Addrs() {
		out = append(out, a.String()+"/p2p/"+g.h.ID().String())
	}
	return out
}

// Peers lists peers currently subscribed to the batch topic.
func (g *Gossip) Peers() []peer.ID { return g.topic.ListPeers() }

func (g *Gossip) Connect(ctx context.Context, addr string) error {
	m, err := ma.NewMultiaddr(addr)
	if err != nil {
		return err
	}
	info, err := peer.AddrInfoFromP2pAddr(m)
	if err != nil {
		return err
	}
	return g.h.Connect(ctx, *info)
}

func (g *Gossip) SetHandler(fn BatchHandler) {
	g.muH.Lock()
	g.handler = fn
	g.muH.Unlock()
}

// PublishBatch announces rec as attested by this node.
func (g *Gossip) PublishBatch(ctx context.Context, rec *storage.BatchRecord) error {
	data, err := encodeBatch(g.cfg.Self, rec)
	if err != nil {
		return err
	}
	return g.topic.Publish(ctx, data)
}

func (g *Gossip) Close() error {
	g.sub.Cancel()
	g.topic.Close()
	return g.h.Close()
}

func (g *Gossip) readLoop(ctx context.Context) {
	for {
		msg, err := g.sub.Next(ctx)
		if err != nil {
			return
		}
		if msg.ReceivedFrom == g.h.ID() {
			continue
		}
		if err := g.deliver(msg.Data); err != nil {
			g.log.Warnw("peer_batch_rejected", "from", msg.ReceivedFrom.String(), "err", err)
		}
	}
}

// deliver decodes, authorizes and verifies one announcement.
func (g *Gossip) deliver(data []byte) error {
	w, rec, err := decodeBatch(data)
	if err != nil {
		return err
	}
	if len(g.cfg.Self) > 0 && bytes.Equal(w.Origin, g.cfg.Self) {
		return nil
	}
	if !g.trusted(w.Origin) {
		return fmt.Errorf("untrusted origin")
	}
	if err := g.cfg.Verify(w.Origin, rec); err != nil {
		return err
	}

	g.muH.RLock()
	fn := g.handler
	g.muH.RUnlock()
	if fn != nil {
		fn(w.Origin, rec)
	}
	return nil
}

func (g *Gossip) trusted(origin []byte) bool {
	if len(g.cfg.Trusted) == 0 {
		return true
	}
	for _, t := range g.cfg.Trusted {
		if bytes.Equal(t, origin) {
			return true
		}
	}
	return false
}
