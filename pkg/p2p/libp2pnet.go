package p2p

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"

	"github.com/uhyunpark/orderswap/pkg/app/core/engine"
	"github.com/uhyunpark/orderswap/pkg/app/core/order"
	"github.com/uhyunpark/orderswap/pkg/app/core/transaction"
	"github.com/uhyunpark/orderswap/pkg/util"
)

const (
	topicCancel     = "orderswap-cancel"
	topicSettlement = "orderswap-settlement"
	protocolStatus  = protocol.ID("/orderswap/status/1.0.0")

	statusTimeout = 5 * time.Second
	statusUnknown = 0xff
)

var ErrStatusUnavailable = errors.New("peer could not report order status")

// Handlers receive decoded gossip. Any of them may be nil.
type Handlers struct {
	// OnCancel applies a cancel request received from a peer.
	OnCancel func(ctx context.Context, req *transaction.CancelRequest) error
	// OnSettlement receives settlement notices from peers.
	OnSettlement func(s *engine.Settlement)
	// Status answers order status queries from peers.
	Status func(digest common.Hash) (order.Status, error)
}

type Libp2pNet struct {
	h   host.Host
	ps  *pubsub.PubSub
	log *zap.SugaredLogger

	tCancel, tSettlement     *pubsub.Topic
	subCancel, subSettlement *pubsub.Subscription

	muH      sync.RWMutex
	handlers Handlers
}

type Libp2pConfig struct {
	ListenAddr string
	Bootstrap  []string
	Logger     *zap.SugaredLogger
}

func NewLibp2pNet(ctx context.Context, cfg Libp2pConfig) (*Libp2pNet, error) {
	if cfg.Logger == nil {
		cfg.Logger = util.Nop()
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

	net := &Libp2pNet{h: h, ps: ps, log: cfg.Logger}

	for _, bs := range cfg.Bootstrap {
		if err := connectMultiaddr(ctx, h, bs); err != nil {
			cfg.Logger.Warnw("bootstrap_connect_failed", "addr", bs, "err", err)
		}
	}

	if err := net.joinTopics(); err != nil {
		h.Close()
		return nil, err
	}

	h.SetStreamHandler(protocolStatus, net.handleStatusStream)

	go net.handleCancel(ctx)
	go net.handleSettlement(ctx)

	cfg.Logger.Infow("libp2p_ready", "peer", h.ID().String(), "listen", cfg.ListenAddr)
	return net, nil
}

func connectMultiaddr(ctx context.Context, h host.Host, addr string) error {
	m, err := ma.NewMultiaddr(addr)
	if err != nil {
		return err
	}
	info, err := peer.AddrInfoFromP2pAddr(m)
	if err != nil {
		return err
	}
	return h.Connect(ctx, *info)
}

func (n *Libp2pNet) joinTopics() error {
	var err error
	if n.tCancel, err = n.ps.Join(topicCancel); err != nil {
		return err
	}
	if n.tSettlement, err = n.ps.Join(topicSettlement); err != nil {
		return err
	}

	if n.subCancel, err = n.tCancel.Subscribe(); err != nil {
		return err
	}
	if n.subSettlement, err = n.tSettlement.Subscribe(); err != nil {
		return err
	}
	return nil
}

func (n *Libp2pNet) SetHandlers(h Handlers) { n.muH.Lock(); n.handlers = h; n.muH.Unlock() }

func (n *Libp2pNet) getHandlers() Handlers {
	n.muH.RLock()
	defer n.muH.RUnlock()
	return n.handlers
}

func (n *Libp2pNet) Host() host.Host { return n.h }

// Addrs returns the full /p2p/ multiaddrs peers can bootstrap from.
func (n *Libp2pNet) Addrs() []string {
	out := make([]string, 0, len(n.h.Addrs()))
	for _, a := range n.h.Addrs() {
		out = append(out, fmt.Sprintf("%s/p2p/%s", a, n.h.ID()))
	}
	return out
}

// Connect dials a peer by full multiaddr.
func (n *Libp2pNet) Connect(ctx context.Context, addr string) error {
	return connectMultiaddr(ctx, n.h, addr)
}

func (n *Libp2pNet) Close() error {
	n.subCancel.Cancel()
	n.subSettlement.Cancel()
	return n.h.Close()
}

// outbound

func (n *Libp2pNet) PublishCancel(ctx context.Context, req *transaction.CancelRequest) error {
	data, err := EncodeCancel(req)
	if err != nil {
		return err
	}
	return n.tCancel.Publish(ctx, data)
}

func (n *Libp2pNet) PublishSettlement(ctx context.Context, s *engine.Settlement) error {
	data, err := EncodeSettlement(s)
	if err != nil {
		return err
	}
	return n.tSettlement.Publish(ctx, data)
}

// QueryStatus asks peer p for the registry status of digest.
func (n *Libp2pNet) QueryStatus(ctx context.Context, p peer.ID, digest common.Hash) (order.Status, error) {
	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()

	stream, err := n.h.NewStream(ctx, p, protocolStatus)
	if err != nil {
		return order.Active, err
	}
	defer stream.Close()
	_ = stream.SetDeadline(time.Now().Add(statusTimeout))

	if _, err := stream.Write(digest[:]); err != nil {
		return order.Active, err
	}
	if err := stream.CloseWrite(); err != nil {
		return order.Active, err
	}

	var resp [1]byte
	if _, err := io.ReadFull(stream, resp[:]); err != nil {
		return order.Active, err
	}
	if resp[0] == statusUnknown {
		return order.Active, ErrStatusUnavailable
	}
	return order.Status(resp[0]), nil
}

// inbound

func (n *Libp2pNet) handleCancel(ctx context.Context) {
	for {
		msg, err := n.subCancel.Next(ctx)
		if err != nil {
			return
		}
		if msg.ReceivedFrom == n.h.ID() {
			continue
		}
		if err := n.deliverCancel(ctx, msg.Data); err != nil {
			n.log.Warnw("gossip_cancel_rejected", "from", msg.ReceivedFrom.String(), "err", err)
		}
	}
}

func (n *Libp2pNet) deliverCancel(ctx context.Context, data []byte) error {
	req, err := DecodeCancel(data)
	if err != nil {
		return err
	}
	h := n.getHandlers()
	if h.OnCancel == nil {
		return nil
	}
	return h.OnCancel(ctx, req)
}

func (n *Libp2pNet) handleSettlement(ctx context.Context) {
	for {
		msg, err := n.subSettlement.Next(ctx)
		if err != nil {
			return
		}
		if msg.ReceivedFrom == n.h.ID() {
			continue
		}
		if err := n.deliverSettlement(msg.Data); err != nil {
			n.log.Warnw("gossip_settlement_rejected", "from", msg.ReceivedFrom.String(), "err", err)
		}
	}
}

func (n *Libp2pNet) deliverSettlement(data []byte) error {
	s, err := DecodeSettlement(data)
	if err != nil {
		return err
	}
	if h := n.getHandlers(); h.OnSettlement != nil {
		h.OnSettlement(s)
	}
	return nil
}

// handleStatusStream answers a 32-byte digest with a single status byte.
func (n *Libp2pNet) handleStatusStream(s network.Stream) {
	defer s.Close()
	_ = s.SetDeadline(time.Now().Add(statusTimeout))

	var digest common.Hash
	if _, err := io.ReadFull(s, digest[:]); err != nil {
		return
	}

	resp := byte(statusUnknown)
	if h := n.getHandlers(); h.Status != nil {
		if st, err := h.Status(digest); err == nil {
			resp = byte(st)
		} else {
			n.log.Warnw("status_query_failed", "digest", digest.Hex(), "err", err)
		}
	}
	_, _ = s.Write([]byte{resp})
}
