// Package ignnode provides a thin per-participant façade over discovery
// and node.Shared. It is not separately specified in detail by the
// transport's core design; it exists to give the rest of the stack
// (config, metrics, cmd/transportd) something concrete to drive, and to
// exercise the testable pub/sub and request/response scenarios end to
// end. Payloads are opaque ([]byte, type name) pairs throughout — no
// schema awareness, matching the transport core's own non-goal.
package ignnode

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/j-rivero/ign-transport-git/api"
	"github.com/j-rivero/ign-transport-git/discovery"
	"github.com/j-rivero/ign-transport-git/node"
	"github.com/j-rivero/ign-transport-git/store"
	"github.com/j-rivero/ign-transport-git/topicutils"
)

// Sentinel errors.
var (
	ErrNotRunning    = errors.New("ignnode: not running")
	ErrNotAdvertised = errors.New("ignnode: topic not advertised")
	ErrNoResponders  = errors.New("ignnode: no known service responders")
	ErrInvalidTopic  = errors.New("ignnode: invalid topic")
)

// Config tunes a Node, mirroring the discovery/node ambient settings
// (host, partition, verbosity) that IGN_IP/IGN_PARTITION/IGN_VERBOSE
// drive in config.Config.
type Config struct {
	Host      string
	Partition string
	Verbose   bool

	// Metrics, if non-nil, receives discovery/publish/subscribe/request
	// counters and latencies as the node runs. Nil disables recording.
	Metrics *api.Metrics
}

type subscription struct {
	nUuid, handlerUuid, msgType string
	cb                          store.SubscriptionCallback
}

// Node is the per-process façade binding discovery and node.Shared
// together: Advertise/Subscribe calls register local intent; as
// discovery learns of matching remote endpoints, Node wires them into the
// Shared runtime's sockets automatically.
type Node struct {
	cfg   Config
	disc  *discovery.Discovery
	shrd  *node.Shared
	nUuid string

	mu       sync.Mutex
	running  bool
	wantSubs map[string][]*subscription // topic -> pending local subscribers
	wantSrv  map[string]bool            // topics we're interested in calling
}

// New creates a Node. discOpts tunes the underlying discovery.Discovery
// (port, heartbeat/activity/silence intervals); pass none to accept
// discovery.DefaultConfig. Call Start before advertising, subscribing, or
// requesting.
func New(cfg Config, discOpts ...discovery.Option) (*Node, error) {
	opts := append([]discovery.Option{discovery.WithVerbose(cfg.Verbose)}, discOpts...)
	disc, err := discovery.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("ignnode: new discovery: %w", err)
	}
	shrd := node.New(node.Config{Host: cfg.Host, Verbose: cfg.Verbose})

	n := &Node{
		cfg:      cfg,
		disc:     disc,
		shrd:     shrd,
		nUuid:    uuid.NewString(),
		wantSubs: make(map[string][]*subscription),
		wantSrv:  make(map[string]bool),
	}

	disc.OnDiscovery(n.onTopicDiscovered)
	disc.OnUnDiscovery(n.onTopicLost)
	disc.OnServiceDiscovery(func(string, store.Address) { n.recordSrvDiscovery(true) })
	disc.OnServiceUnDiscovery(func(string, store.Address) { n.recordSrvDiscovery(false) })
	return n, nil
}

func (n *Node) recordSrvDiscovery(found bool) {
	if n.cfg.Metrics != nil {
		n.cfg.Metrics.RecordServiceDiscovery(found)
	}
}

// Start brings up the discovery and node-runtime background loops.
func (n *Node) Start(ctx context.Context) error {
	if err := n.shrd.Start(ctx); err != nil {
		return fmt.Errorf("ignnode: start node runtime: %w", err)
	}
	if err := n.disc.Start(ctx); err != nil {
		_ = n.shrd.Stop()
		return fmt.Errorf("ignnode: start discovery: %w", err)
	}
	n.mu.Lock()
	n.running = true
	n.mu.Unlock()
	return nil
}

// Stop tears down discovery and the node runtime.
func (n *Node) Stop() error {
	n.mu.Lock()
	n.running = false
	n.mu.Unlock()

	discErr := n.disc.Stop()
	nodeErr := n.shrd.Stop()
	if discErr != nil {
		return discErr
	}
	return nodeErr
}

func (n *Node) scopedTopic(topic string) string {
	return topicutils.GetScopedName(topic, "", n.cfg.Partition)
}

// Advertise announces topic as a publisher of msgTypeName, scoped by
// n.cfg.Partition.
func (n *Node) Advertise(topic, msgTypeName string, scope store.Scope) error {
	if !n.isRunning() {
		return ErrNotRunning
	}
	if !topicutils.IsValidTopic(topic) {
		return ErrInvalidTopic
	}
	full := n.scopedTopic(topic)
	if err := n.disc.Advertise(full, n.shrd.PublisherAddr(), n.shrd.ControlAddr(), n.nUuid, msgTypeName, scope); err != nil {
		return err
	}
	n.shrd.Advertise(full)
	return nil
}

// Unadvertise withdraws a previously advertised topic.
func (n *Node) Unadvertise(topic string, scope store.Scope) error {
	if !n.isRunning() {
		return ErrNotRunning
	}
	full := n.scopedTopic(topic)
	n.shrd.Unadvertise(full)
	return n.disc.Unadvertise(full, n.shrd.PublisherAddr(), n.shrd.ControlAddr(), n.nUuid, scope)
}

// Publish sends payload on topic to every locally connected subscriber.
// Publishing a topic this node has not (or no longer) advertised fails
// with ErrNotAdvertised and nothing is sent.
func (n *Node) Publish(topic, msgTypeName string, payload []byte) error {
	if !n.isRunning() {
		return ErrNotRunning
	}
	if !topicutils.IsValidTopic(topic) {
		return ErrInvalidTopic
	}
	err := n.shrd.Publish(n.scopedTopic(topic), msgTypeName, payload)
	if errors.Is(err, node.ErrNotAdvertised) {
		return ErrNotAdvertised
	}
	if err == nil && n.cfg.Metrics != nil {
		n.cfg.Metrics.RecordPublish()
	}
	return err
}

// Subscribe registers cb to be invoked for every message published on
// topic, whether already known or discovered later. It also probes the
// network for existing publishers via a SUBSCRIBE datagram.
func (n *Node) Subscribe(topic, msgTypeName string, cb store.SubscriptionCallback) error {
	if !n.isRunning() {
		return ErrNotRunning
	}
	if !topicutils.IsValidTopic(topic) {
		return ErrInvalidTopic
	}
	full := n.scopedTopic(topic)
	sub := &subscription{nUuid: n.nUuid, handlerUuid: uuid.NewString(), msgType: msgTypeName, cb: cb}

	n.mu.Lock()
	n.wantSubs[full] = append(n.wantSubs[full], sub)
	n.mu.Unlock()

	if addrs, ok := n.disc.TopicAddresses(full); ok {
		for _, a := range addrs {
			if a.PUuid == n.disc.PUuid() {
				continue // our own advertisement, nothing to dial
			}
			n.connectSubscription(full, sub, a)
		}
	}

	return n.disc.Discover(full)
}

func (n *Node) onTopicDiscovered(topic string, addr store.Address) {
	if n.cfg.Metrics != nil {
		n.cfg.Metrics.RecordDiscovery(true)
	}

	n.mu.Lock()
	subs := append([]*subscription(nil), n.wantSubs[topic]...)
	n.mu.Unlock()

	for _, sub := range subs {
		n.connectSubscription(topic, sub, addr)
	}
}

// onTopicLost is discovery's OnUnDiscovery callback: a remote publisher
// withdrew its advertisement or silently timed out. The node runtime
// itself has no state keyed by the dead addr.Addr worth tearing down
// (subscriber dial caching lives in node.Shared and simply goes quiet once
// the remote peer stops sending), so this is metrics-only bookkeeping.
func (n *Node) onTopicLost(topic string, addr store.Address) {
	if n.cfg.Metrics != nil {
		n.cfg.Metrics.RecordDiscovery(false)
	}
}

func (n *Node) connectSubscription(topic string, sub *subscription, addr store.Address) {
	_ = n.shrd.Subscribe(topic, sub.nUuid, sub.handlerUuid, sub.msgType, addr.Addr, addr.Ctrl,
		func(t string, data []byte, msgType string) {
			if n.cfg.Metrics != nil {
				n.cfg.Metrics.RecordDelivery()
			}
			sub.cb(t, data, msgType)
		})
}

// AdvertiseSrv registers topic as a service and announces it to the
// network.
func (n *Node) AdvertiseSrv(topic, reqType, repType string, scope store.Scope, cb store.ServiceCallback) error {
	if !n.isRunning() {
		return ErrNotRunning
	}
	if !topicutils.IsValidTopic(topic) {
		return ErrInvalidTopic
	}
	full := n.scopedTopic(topic)
	handlerUuid := uuid.NewString()
	n.shrd.AdvertiseSrv(full, n.nUuid, handlerUuid, reqType, repType, cb)
	return n.disc.AdvertiseSrv(full, n.shrd.ReplierAddr(), n.shrd.ResponseAddr(), n.nUuid, reqType, repType, scope)
}

// UnadvertiseSrv withdraws a previously advertised service.
func (n *Node) UnadvertiseSrv(topic string, scope store.Scope) error {
	if !n.isRunning() {
		return ErrNotRunning
	}
	full := n.scopedTopic(topic)
	return n.disc.UnadvertiseSrv(full, n.shrd.ReplierAddr(), n.shrd.ResponseAddr(), n.nUuid, scope)
}

// Request calls a remote (or local) service, blocking up to timeout for
// the response.
func (n *Node) Request(ctx context.Context, topic string, req []byte, timeout time.Duration) ([]byte, bool, error) {
	if !n.isRunning() {
		return nil, false, ErrNotRunning
	}
	if !topicutils.IsValidTopic(topic) {
		return nil, false, ErrInvalidTopic
	}
	full := n.scopedTopic(topic)

	addrs, ok := n.disc.ServiceAddresses(full)
	if !ok || len(addrs) == 0 {
		if err := n.disc.DiscoverSrv(full); err != nil {
			return nil, false, fmt.Errorf("ignnode: probe for service: %w", err)
		}
		deadline := time.Now().Add(timeout)
		for time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
			if addrs, ok = n.disc.ServiceAddresses(full); ok && len(addrs) > 0 {
				break
			}
		}
		if !ok || len(addrs) == 0 {
			return nil, false, ErrNoResponders
		}
	}

	start := time.Now()
	rep, ok, err := n.shrd.Request(ctx, full, n.nUuid, addrs[0].Addr, req, timeout)
	if n.cfg.Metrics != nil {
		n.cfg.Metrics.RecordRequest(err == nil && ok, time.Since(start))
	}
	return rep, ok, err
}

func (n *Node) isRunning() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.running
}

// Snapshot reports what this node's discovery instance currently knows
// about the network. It carries no state from the node runtime.
type Snapshot struct {
	Discovery discovery.Snapshot
}

// CurrentSnapshot returns a point-in-time report, consumed by the status
// HTTP surface in package api.
func (n *Node) CurrentSnapshot() Snapshot {
	snap := n.disc.CurrentSnapshot()
	if n.cfg.Metrics != nil {
		n.cfg.Metrics.UpdateKnownPeers(len(snap.Peers))
	}
	return Snapshot{Discovery: snap}
}
