// Package discovery implements the UDP multicast peer-discovery protocol:
// advertise/subscribe probes, periodic heartbeats, and liveness timeouts,
// grounded on original_source/src/Discovery.cc and DiscoveryPrivate.cc/hh.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/j-rivero/ign-transport-git/netutil"
	"github.com/j-rivero/ign-transport-git/store"
	"github.com/j-rivero/ign-transport-git/wire"
)

// Default tuning values, mirrored from Discovery.cc's constructor defaults.
const (
	DefaultMulticastGroup   = "239.255.0.7"
	DefaultPort             = 10317
	DefaultHeartbeatInterval = 1 * time.Second
	DefaultActivityInterval  = 100 * time.Millisecond
	DefaultSilenceInterval   = 3 * time.Second
	wireVersion              = 1
	maxDatagram              = 65507
)

// Sentinel errors returned by Discovery's public operations.
var (
	ErrNotRunning     = errors.New("discovery: not running")
	ErrAlreadyRunning = errors.New("discovery: already running")
	ErrInvalidTopic   = errors.New("discovery: invalid topic")
)

// Config tunes a Discovery instance. Use DefaultConfig and the With*
// functional options to override individual fields, mirroring the
// original's per-field GetXInterval/SetXInterval accessor pairs.
type Config struct {
	MulticastGroup    string
	Port              int
	HeartbeatInterval time.Duration
	ActivityInterval  time.Duration
	SilenceInterval   time.Duration
	Verbose           bool
}

// DefaultConfig returns the defaults used by the original implementation.
func DefaultConfig() Config {
	return Config{
		MulticastGroup:    DefaultMulticastGroup,
		Port:              DefaultPort,
		HeartbeatInterval: DefaultHeartbeatInterval,
		ActivityInterval:  DefaultActivityInterval,
		SilenceInterval:   DefaultSilenceInterval,
	}
}

// Option overrides a single Config field.
type Option func(*Config)

// WithHeartbeatInterval overrides the heartbeat period.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(c *Config) { c.HeartbeatInterval = d }
}

// WithActivityInterval overrides how often the liveness sweep runs.
func WithActivityInterval(d time.Duration) Option {
	return func(c *Config) { c.ActivityInterval = d }
}

// WithSilenceInterval overrides how long a process may go without a
// heartbeat before it is considered dead.
func WithSilenceInterval(d time.Duration) Option {
	return func(c *Config) { c.SilenceInterval = d }
}

// WithVerbose enables IGN_VERBOSE-style diagnostic logging.
func WithVerbose(v bool) Option {
	return func(c *Config) { c.Verbose = v }
}

// WithPort overrides the multicast discovery port.
func WithPort(p int) Option {
	return func(c *Config) { c.Port = p }
}

// DiscoveryCallback notifies a caller that a topic or service became
// available (or unavailable) on the network.
type DiscoveryCallback func(topic string, addr store.Address)

// Snapshot is a point-in-time report of everything Discovery currently
// knows, the Go-native replacement for the original's PrintCurrentState.
type Snapshot struct {
	PUuid    string
	Topics   []string
	Services []string
	Peers    map[string]time.Time
}

// Discovery runs the UDP multicast announce/probe/heartbeat/liveness
// state machine for one participant process.
type Discovery struct {
	cfg   Config
	pUuid string
	host  string

	conn      *net.UDPConn
	groupAddr *net.UDPAddr

	topics   *store.TopicStorage
	services *store.TopicStorage

	mu            sync.Mutex
	peers         map[string]time.Time
	onDiscovery   DiscoveryCallback
	onUnDiscovery DiscoveryCallback
	onSrvDiscover DiscoveryCallback
	onSrvUnDiscov DiscoveryCallback

	// localAdverts/localSrvAdverts hold the full advertise message this
	// process last sent for a given (topic, nUuid), so that a SUBSCRIBE /
	// SUBSCRIBE_SRV probe can be answered with an immediate re-advertise
	// instead of making the prober wait for the next heartbeat, mirroring
	// Discovery::RecvDiscoveryUpdate's SUBSCRIBE handling.
	localAdverts    map[string]map[string]wire.AdvertiseMsg
	localSrvAdverts map[string]map[string]wire.AdvertiseSrvMsg

	group   *errgroup.Group
	cancel  context.CancelFunc
	running bool
}

// New creates a Discovery instance. The returned instance is not yet
// listening; call Start to join the multicast group and begin the
// background loops.
func New(opts ...Option) (*Discovery, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	host, err := netutil.DetermineHost()
	if err != nil {
		return nil, fmt.Errorf("discovery: determine host: %w", err)
	}

	return &Discovery{
		cfg:             cfg,
		pUuid:           uuid.NewString(),
		host:            host,
		topics:          store.NewTopicStorage(),
		services:        store.NewTopicStorage(),
		peers:           make(map[string]time.Time),
		localAdverts:    make(map[string]map[string]wire.AdvertiseMsg),
		localSrvAdverts: make(map[string]map[string]wire.AdvertiseSrvMsg),
	}, nil
}

// PUuid returns this process's discovery UUID.
func (d *Discovery) PUuid() string { return d.pUuid }

// OnDiscovery registers the callback invoked when a remote topic
// publisher is discovered.
func (d *Discovery) OnDiscovery(cb DiscoveryCallback) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onDiscovery = cb
}

// OnUnDiscovery registers the callback invoked when a remote topic
// publisher goes away (explicit BYE/UNADVERTISE, or silence timeout).
func (d *Discovery) OnUnDiscovery(cb DiscoveryCallback) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onUnDiscovery = cb
}

// OnServiceDiscovery registers the callback invoked when a remote service
// responder is discovered.
func (d *Discovery) OnServiceDiscovery(cb DiscoveryCallback) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onSrvDiscover = cb
}

// OnServiceUnDiscovery registers the callback invoked when a remote
// service responder goes away.
func (d *Discovery) OnServiceUnDiscovery(cb DiscoveryCallback) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onSrvUnDiscov = cb
}

// Start joins the multicast group and launches the reception, heartbeat
// and activity goroutines under an errgroup, replacing the original's
// three raw std::thread members with coordinated cancellation and
// first-error propagation.
func (d *Discovery) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return ErrAlreadyRunning
	}

	addr := fmt.Sprintf("%s:%d", d.cfg.MulticastGroup, d.cfg.Port)
	groupAddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		d.mu.Unlock()
		return fmt.Errorf("discovery: resolve multicast group: %w", err)
	}

	conn, err := net.ListenMulticastUDP("udp4", nil, groupAddr)
	if err != nil {
		d.mu.Unlock()
		return fmt.Errorf("discovery: join multicast group: %w", err)
	}
	conn.SetReadBuffer(maxDatagram)

	d.conn = conn
	d.groupAddr = groupAddr
	d.running = true

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	g, gctx := errgroup.WithContext(runCtx)
	d.group = g
	d.mu.Unlock()

	g.Go(func() error { return d.runReceptionTask(gctx) })
	g.Go(func() error { return d.runHeartbeatTask(gctx) })
	g.Go(func() error { return d.runActivityTask(gctx) })

	return nil
}

// Stop cancels the background loops, waits for them to exit, and closes
// the multicast socket.
func (d *Discovery) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return ErrNotRunning
	}
	cancel := d.cancel
	conn := d.conn
	g := d.group
	d.running = false
	d.mu.Unlock()

	cancel()
	if conn != nil {
		_ = conn.Close()
	}
	if g != nil {
		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	}
	return nil
}

func (d *Discovery) logf(format string, args ...any) {
	if d.cfg.Verbose {
		log.Printf("discovery: "+format, args...)
	}
}

// Advertise announces a topic publisher to the network and records it
// locally, mirroring Discovery::Advertise.
func (d *Discovery) Advertise(topic, addr, ctrl, nUuid, msgTypeName string, scope store.Scope) error {
	if !d.running {
		return ErrNotRunning
	}
	local := store.Address{Addr: addr, Ctrl: ctrl, PUuid: d.pUuid, NUuid: nUuid, Scope: scope}
	d.topics.AddAddress(topic, local)

	msg := wire.AdvertiseMsg{
		AdvertiseBase: wire.AdvertiseBase{
			Header: wire.Header{Version: wireVersion, PUuid: d.pUuid, Type: wire.Advertise},
			Topic:  topic,
			Addr:   addr,
			Ctrl:   ctrl,
			NUuid:  nUuid,
			Scope:  wire.Scope(scope),
		},
		MsgTypeName: msgTypeName,
	}

	d.mu.Lock()
	byNode, ok := d.localAdverts[topic]
	if !ok {
		byNode = make(map[string]wire.AdvertiseMsg)
		d.localAdverts[topic] = byNode
	}
	byNode[nUuid] = msg
	d.mu.Unlock()

	if scope == store.ScopeProcess {
		// No other process can use this record, so there is nothing to
		// put on the wire, mirroring Discovery::Advertise's Process-scope
		// send suppression.
		return nil
	}
	return d.sendPacked(msg)
}

// Unadvertise withdraws a previously advertised topic publisher. The
// message reuses AdvertiseBase's layout (rather than the bare
// SubscriptionMsg used for probes) because removal needs the node UUID
// to identify exactly which publisher is going away.
func (d *Discovery) Unadvertise(topic, addr, ctrl, nUuid string, scope store.Scope) error {
	if !d.running {
		return ErrNotRunning
	}
	d.topics.DelAddressByNode(topic, d.pUuid, nUuid)

	d.mu.Lock()
	if byNode, ok := d.localAdverts[topic]; ok {
		delete(byNode, nUuid)
		if len(byNode) == 0 {
			delete(d.localAdverts, topic)
		}
	}
	d.mu.Unlock()

	msg := wire.AdvertiseBase{
		Header: wire.Header{Version: wireVersion, PUuid: d.pUuid, Type: wire.Unadvertise},
		Topic:  topic,
		Addr:   addr,
		Ctrl:   ctrl,
		NUuid:  nUuid,
		Scope:  wire.Scope(scope),
	}
	if scope == store.ScopeProcess {
		return nil
	}
	return d.sendPacked(msg)
}

// Discover broadcasts a SUBSCRIBE probe for topic, asking any remote
// publisher to re-announce itself.
func (d *Discovery) Discover(topic string) error {
	if !d.running {
		return ErrNotRunning
	}
	msg := wire.SubscriptionMsg{
		Header: wire.Header{Version: wireVersion, PUuid: d.pUuid, Type: wire.Subscribe},
		Topic:  topic,
	}
	return d.sendPacked(msg)
}

// AdvertiseSrv announces a service responder to the network.
func (d *Discovery) AdvertiseSrv(topic, addr, ctrl, nUuid, reqType, repType string, scope store.Scope) error {
	if !d.running {
		return ErrNotRunning
	}
	local := store.Address{Addr: addr, Ctrl: ctrl, PUuid: d.pUuid, NUuid: nUuid, Scope: scope}
	d.services.AddAddress(topic, local)

	msg := wire.AdvertiseSrvMsg{
		AdvertiseBase: wire.AdvertiseBase{
			Header: wire.Header{Version: wireVersion, PUuid: d.pUuid, Type: wire.AdvertiseSrv},
			Topic:  topic,
			Addr:   addr,
			Ctrl:   ctrl,
			NUuid:  nUuid,
			Scope:  wire.Scope(scope),
		},
		ReqTypeName: reqType,
		RepTypeName: repType,
	}

	d.mu.Lock()
	byNode, ok := d.localSrvAdverts[topic]
	if !ok {
		byNode = make(map[string]wire.AdvertiseSrvMsg)
		d.localSrvAdverts[topic] = byNode
	}
	byNode[nUuid] = msg
	d.mu.Unlock()

	if scope == store.ScopeProcess {
		return nil
	}
	return d.sendPacked(msg)
}

// UnadvertiseSrv withdraws a previously advertised service responder.
func (d *Discovery) UnadvertiseSrv(topic, addr, ctrl, nUuid string, scope store.Scope) error {
	if !d.running {
		return ErrNotRunning
	}
	d.services.DelAddressByNode(topic, d.pUuid, nUuid)

	d.mu.Lock()
	if byNode, ok := d.localSrvAdverts[topic]; ok {
		delete(byNode, nUuid)
		if len(byNode) == 0 {
			delete(d.localSrvAdverts, topic)
		}
	}
	d.mu.Unlock()

	msg := wire.AdvertiseBase{
		Header: wire.Header{Version: wireVersion, PUuid: d.pUuid, Type: wire.UnadvertiseSrv},
		Topic:  topic,
		Addr:   addr,
		Ctrl:   ctrl,
		NUuid:  nUuid,
		Scope:  wire.Scope(scope),
	}
	if scope == store.ScopeProcess {
		return nil
	}
	return d.sendPacked(msg)
}

// DiscoverSrv broadcasts a SUBSCRIBE_SRV probe for topic.
func (d *Discovery) DiscoverSrv(topic string) error {
	if !d.running {
		return ErrNotRunning
	}
	msg := wire.SubscriptionMsg{
		Header: wire.Header{Version: wireVersion, PUuid: d.pUuid, Type: wire.SubscribeSrv},
		Topic:  topic,
	}
	return d.sendPacked(msg)
}

// GetTopicList returns every topic this process currently knows of,
// whether local or remote, mirroring Discovery::GetTopicList.
func (d *Discovery) GetTopicList() []string {
	return d.topics.GetTopicList()
}

// GetServiceList returns every service this process currently knows of.
func (d *Discovery) GetServiceList() []string {
	return d.services.GetTopicList()
}

// TopicAddresses returns every known address (local or remote) for
// topic.
func (d *Discovery) TopicAddresses(topic string) ([]store.Address, bool) {
	return d.topics.GetAddresses(topic)
}

// ServiceAddresses returns every known address (local or remote) for a
// service topic.
func (d *Discovery) ServiceAddresses(topic string) ([]store.Address, bool) {
	return d.services.GetAddresses(topic)
}

// CurrentSnapshot returns a point-in-time report of known topics,
// services and peer liveness, the Go-native replacement for the
// original's PrintCurrentState.
func (d *Discovery) CurrentSnapshot() Snapshot {
	d.mu.Lock()
	peers := make(map[string]time.Time, len(d.peers))
	for k, v := range d.peers {
		peers[k] = v
	}
	d.mu.Unlock()

	return Snapshot{
		PUuid:    d.pUuid,
		Topics:   d.topics.GetTopicList(),
		Services: d.services.GetTopicList(),
		Peers:    peers,
	}
}

type packer interface {
	Pack([]byte) ([]byte, error)
}

func (d *Discovery) sendPacked(msg packer) error {
	buf, err := msg.Pack(nil)
	if err != nil {
		return fmt.Errorf("discovery: pack message: %w", err)
	}
	_, err = d.conn.WriteToUDP(buf, d.groupAddr)
	if err != nil {
		return fmt.Errorf("discovery: send datagram: %w", err)
	}
	return nil
}

// runHeartbeatTask periodically re-announces liveness, mirroring
// Discovery::RunHeartbeatTask.
func (d *Discovery) runHeartbeatTask(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			msg := wire.Header{Version: wireVersion, PUuid: d.pUuid, Type: wire.Heartbeat}
			buf, err := msg.Pack(nil)
			if err != nil {
				continue
			}
			if _, err := d.conn.WriteToUDP(buf, d.groupAddr); err != nil {
				d.logf("heartbeat send failed: %v", err)
			}
		}
	}
}

// runActivityTask periodically sweeps known peers for silence timeouts,
// mirroring Discovery::RunActivityTask.
func (d *Discovery) runActivityTask(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.ActivityInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.sweepSilentPeers()
		}
	}
}

func (d *Discovery) sweepSilentPeers() {
	cutoff := time.Now().Add(-d.cfg.SilenceInterval)

	d.mu.Lock()
	var dead []string
	for pUuid, last := range d.peers {
		if last.Before(cutoff) {
			dead = append(dead, pUuid)
		}
	}
	for _, pUuid := range dead {
		delete(d.peers, pUuid)
	}
	onUn := d.onUnDiscovery
	onSrvUn := d.onSrvUnDiscov
	d.mu.Unlock()

	for _, pUuid := range dead {
		d.expireProcess(pUuid, onUn, onSrvUn)
	}
}

func (d *Discovery) expireProcess(pUuid string, onUn, onSrvUn DiscoveryCallback) {
	for topic, addrs := range d.topics.GetAddressesByProc(pUuid) {
		for _, a := range addrs {
			if onUn != nil {
				onUn(topic, a)
			}
		}
	}
	d.topics.DelAddressesByProc(pUuid)

	for topic, addrs := range d.services.GetAddressesByProc(pUuid) {
		for _, a := range addrs {
			if onSrvUn != nil {
				onSrvUn(topic, a)
			}
		}
	}
	d.services.DelAddressesByProc(pUuid)
}

// runReceptionTask reads and dispatches inbound discovery datagrams,
// mirroring Discovery::RunReceptionTask + RecvDiscoveryUpdate.
func (d *Discovery) runReceptionTask(ctx context.Context) error {
	buf := make([]byte, maxDatagram)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		d.conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, from, err := d.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-ctx.Done():
				return nil
			default:
				continue
			}
		}

		srcHost := ""
		if from != nil {
			srcHost = from.IP.String()
		}
		d.dispatch(buf[:n], srcHost)
	}
}

// scopeAllows reports whether a record carrying scope, received from
// srcHost, may be stored and fire a connect callback. By the time this is
// called the record is already known to originate from a different
// process (dispatch drops same-pUuid traffic earlier), so Process-scoped
// records never pass; Host-scoped records pass only if srcHost matches
// our own host, mirroring Discovery.cc's scope checks in
// RecvDiscoveryUpdate.
func (d *Discovery) scopeAllows(scope store.Scope, srcHost string) bool {
	switch scope {
	case store.ScopeProcess:
		return false
	case store.ScopeHost:
		return srcHost == d.host
	default:
		return true
	}
}

// dispatch decodes and handles one discovery datagram, mirroring
// Discovery::DispatchDiscoveryMsg's switch over MsgType.
func (d *Discovery) dispatch(data []byte, srcHost string) {
	var hdr wire.Header
	n, err := hdr.Unpack(data)
	if err != nil {
		return
	}
	if hdr.PUuid == d.pUuid {
		return // our own traffic looped back by the multicast group
	}

	d.touch(hdr.PUuid)

	rest := data[n:]
	switch hdr.Type {
	case wire.Heartbeat:
		// liveness already recorded by touch above.

	case wire.Bye:
		d.mu.Lock()
		onUn, onSrvUn := d.onUnDiscovery, d.onSrvUnDiscov
		delete(d.peers, hdr.PUuid)
		d.mu.Unlock()
		d.expireProcess(hdr.PUuid, onUn, onSrvUn)

	case wire.Advertise:
		var msg wire.AdvertiseMsg
		msg.Header = hdr
		if _, err := msg.UnpackBody(rest); err != nil {
			return
		}
		if !d.scopeAllows(store.Scope(msg.Scope), srcHost) {
			return
		}
		addr := store.Address{Addr: msg.Addr, Ctrl: msg.Ctrl, PUuid: hdr.PUuid, NUuid: msg.NUuid, Scope: store.Scope(msg.Scope)}
		if d.topics.AddAddress(msg.Topic, addr) {
			d.mu.Lock()
			cb := d.onDiscovery
			d.mu.Unlock()
			if cb != nil {
				cb(msg.Topic, addr)
			}
		}

	case wire.Unadvertise:
		var msg wire.AdvertiseBase
		msg.Header = hdr
		if _, err := msg.UnpackBody(rest); err != nil {
			return
		}
		if d.topics.DelAddressByNode(msg.Topic, hdr.PUuid, msg.NUuid) {
			d.mu.Lock()
			cb := d.onUnDiscovery
			d.mu.Unlock()
			if cb != nil {
				cb(msg.Topic, store.Address{Addr: msg.Addr, Ctrl: msg.Ctrl, PUuid: hdr.PUuid, NUuid: msg.NUuid, Scope: store.Scope(msg.Scope)})
			}
		}

	case wire.Subscribe:
		var msg wire.SubscriptionMsg
		msg.Header = hdr
		if _, err := msg.UnpackBody(rest); err != nil {
			return
		}
		d.replyToProbe(msg.Topic)

	case wire.AdvertiseSrv:
		var msg wire.AdvertiseSrvMsg
		msg.Header = hdr
		if _, err := msg.UnpackBody(rest); err != nil {
			return
		}
		if !d.scopeAllows(store.Scope(msg.Scope), srcHost) {
			return
		}
		addr := store.Address{Addr: msg.Addr, Ctrl: msg.Ctrl, PUuid: hdr.PUuid, NUuid: msg.NUuid, Scope: store.Scope(msg.Scope)}
		if d.services.AddAddress(msg.Topic, addr) {
			d.mu.Lock()
			cb := d.onSrvDiscover
			d.mu.Unlock()
			if cb != nil {
				cb(msg.Topic, addr)
			}
		}

	case wire.UnadvertiseSrv:
		var msg wire.AdvertiseBase
		msg.Header = hdr
		if _, err := msg.UnpackBody(rest); err != nil {
			return
		}
		if d.services.DelAddressByNode(msg.Topic, hdr.PUuid, msg.NUuid) {
			d.mu.Lock()
			cb := d.onSrvUnDiscov
			d.mu.Unlock()
			if cb != nil {
				cb(msg.Topic, store.Address{Addr: msg.Addr, Ctrl: msg.Ctrl, PUuid: hdr.PUuid, NUuid: msg.NUuid, Scope: store.Scope(msg.Scope)})
			}
		}

	case wire.SubscribeSrv:
		var msg wire.SubscriptionMsg
		msg.Header = hdr
		if _, err := msg.UnpackBody(rest); err != nil {
			return
		}
		d.replyToSrvProbe(msg.Topic)
	}
}

// replyToProbe re-emits our own ADVERTISE for topic if we locally
// advertise it, so a fresh subscriber learns our endpoint without
// waiting for the next heartbeat, mirroring Discovery::RecvDiscoveryUpdate's
// SUBSCRIBE case.
func (d *Discovery) replyToProbe(topic string) {
	d.mu.Lock()
	byNode := d.localAdverts[topic]
	msgs := make([]wire.AdvertiseMsg, 0, len(byNode))
	for _, m := range byNode {
		msgs = append(msgs, m)
	}
	d.mu.Unlock()

	for _, m := range msgs {
		if err := d.sendPacked(m); err != nil {
			d.logf("reply to subscribe probe for %q failed: %v", topic, err)
		}
	}
}

// replyToSrvProbe is replyToProbe's service-call counterpart for
// SUBSCRIBE_SRV probes.
func (d *Discovery) replyToSrvProbe(topic string) {
	d.mu.Lock()
	byNode := d.localSrvAdverts[topic]
	msgs := make([]wire.AdvertiseSrvMsg, 0, len(byNode))
	for _, m := range byNode {
		msgs = append(msgs, m)
	}
	d.mu.Unlock()

	for _, m := range msgs {
		if err := d.sendPacked(m); err != nil {
			d.logf("reply to subscribe_srv probe for %q failed: %v", topic, err)
		}
	}
}

func (d *Discovery) touch(pUuid string) {
	d.mu.Lock()
	d.peers[pUuid] = time.Now()
	d.mu.Unlock()
}
