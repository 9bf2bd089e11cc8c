// Package node implements the NetBIOS name service node: a UDP socket
// bound to the configured port, a receive loop that dispatches by
// opcode, the request/retry engine for outgoing registrations, and a
// refresh scheduler that re-registers names before TTL expiry.
package node

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/nbcluster/nbcluster/internal/logger"
	"github.com/nbcluster/nbcluster/pkg/ncerr"
	"github.com/nbcluster/nbcluster/pkg/netbios"
	"github.com/nbcluster/nbcluster/pkg/netbios/request"
	"github.com/nbcluster/nbcluster/pkg/netbios/table"
	"github.com/nbcluster/nbcluster/pkg/netbios/wire"
)

// DefaultPort is the standard NetBIOS name service UDP port.
const DefaultPort = 137

// Config configures a Node.
type Config struct {
	BindAddress         string
	Port                int
	PrimaryWINS         string
	SecondaryWINS       string
	BroadcastSubnetMask string
	ServerName          string
	Aliases             []string
	DomainName          string
	RefreshInterval     time.Duration
	NameTTL             time.Duration
}

// Node owns the name-service socket and the local/remote tables.
type Node struct {
	cfg Config

	conn    *net.UDPConn
	bcastTo *net.UDPAddr
	winsTo  *net.UDPAddr

	local  *table.Local
	remote *table.Remote
	queue  *request.Queue
	engine *request.Engine
	txn    request.TxnCounter

	listeners *listenerSet
	refresh   *refreshScheduler
	metrics   *Metrics

	shutdown     chan struct{}
	shutdownOnce sync.Once
	eg           errgroup.Group
}

// NewNode builds a Node from cfg. Start must be called to bind the
// socket and begin serving.
func NewNode(cfg Config) *Node {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	n := &Node{
		cfg:       cfg,
		local:     table.NewLocal(),
		remote:    table.NewRemote(),
		queue:     request.NewQueue(),
		listeners: &listenerSet{},
		metrics:   NewMetrics(),
		shutdown:  make(chan struct{}),
	}
	if cfg.PrimaryWINS != "" {
		n.winsTo = &net.UDPAddr{IP: net.ParseIP(cfg.PrimaryWINS), Port: DefaultPort}
	}
	return n
}

// Start binds the UDP socket and launches the receive loop, request
// engine, and refresh scheduler.
func (n *Node) Start() error {
	addr := &net.UDPAddr{IP: net.ParseIP(n.cfg.BindAddress), Port: n.cfg.Port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("netbios: listen %s: %w", addr, err)
	}
	n.conn = conn

	n.bcastTo = broadcastAddrFor(n.cfg.BindAddress, n.cfg.BroadcastSubnetMask, n.cfg.Port)

	n.engine = request.NewEngine(n.queue, n, n.buildPacket, n.winsTo)
	n.engine.OnSuccess = n.onRequestSuccess
	n.engine.OnFailed = n.onRequestFailed
	n.engine.OnIOError = n.onRequestIOError

	n.refresh = newRefreshScheduler(n, n.cfg.RefreshInterval)

	n.eg.Go(func() error { n.receiveLoop(); return nil })
	n.eg.Go(func() error { n.engine.Run(); return nil })
	n.eg.Go(func() error { n.refresh.run(); return nil })

	logger.Info("netbios node started", "address", addr.String(), "server_name", n.cfg.ServerName)
	return nil
}

// Stop performs cooperative shutdown. If immediate is false, it first
// queues DeleteName requests for every local name and waits up to
// gracePeriod for the queue to drain.
func (n *Node) Stop(immediate bool, gracePeriod time.Duration) {
	if !immediate {
		for _, name := range n.local.All() {
			n.enqueueDelete(name)
		}
		deadline := time.Now().Add(gracePeriod)
		for n.queue.Len() > 0 && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
		}
	}

	n.shutdownOnce.Do(func() {
		close(n.shutdown)
		if n.conn != nil {
			_ = n.conn.Close()
		}
		n.engine.Stop()
		if n.refresh != nil {
			n.refresh.Stop()
		}
	})
	_ = n.eg.Wait()
}

// AddName registers a name, blocking until the request engine reports
// success or failure.
func (n *Node) AddName(name string, typ byte, group bool) error {
	nbName := netbios.NetBIOSName{
		Name:      name,
		Type:      typ,
		Group:     group,
		Addresses: []net.IP{net.ParseIP(n.cfg.BindAddress)},
		TTL:       n.cfg.NameTTL,
		Expiry:    time.Now().Add(n.cfg.NameTTL),
	}
	r := request.NewRequest(request.KindAdd, nbName, n.txn.Next())
	n.queue.Enqueue(r)
	<-r.Done
	if !r.Positive {
		return ncerr.New("node.AddName", ncerr.NameRegistrationFailed)
	}
	return nil
}

// DeleteName releases an owned name.
func (n *Node) DeleteName(name string, typ byte) error {
	nbName, ok := n.local.Find(name, typ)
	if !ok {
		return ncerr.New("node.DeleteName", ncerr.NameNotOwned)
	}
	n.enqueueDelete(nbName)
	return nil
}

func (n *Node) enqueueDelete(name netbios.NetBIOSName) {
	r := request.NewRequest(request.KindDelete, name, n.txn.Next())
	n.queue.Enqueue(r)
	go func() {
		<-r.Done
		n.local.Remove(name.Name, name.Type)
	}()
}

func (n *Node) refreshName(name netbios.NetBIOSName) error {
	r := request.NewRequest(request.KindRefresh, name, n.txn.Next())
	r.MaxRetries = 2
	n.queue.Enqueue(r)
	<-r.Done
	if !r.Positive {
		// Open question resolved per design note: drop the name and fire
		// RefreshIOError rather than retrying indefinitely or silently
		// keeping a name WINS no longer acknowledges.
		n.local.Remove(name.Name, name.Type)
		n.listeners.fireRefreshIOError(name)
		return ncerr.New("node.refreshName", ncerr.RefreshIOError)
	}
	name.Expiry = time.Now().Add(name.TTL)
	n.local.UpdateExpiry(name.Name, name.Type, name)
	return nil
}

// RegisterMetrics attaches the node's prometheus collectors to reg,
// typically the process registry built at startup.
func (n *Node) RegisterMetrics(reg prometheus.Registerer) {
	n.metrics.Register(reg)
}

// AddQueryListener registers f to fire whenever this node answers a
// NameQuery for one of its own names.
func (n *Node) AddQueryListener(f netbios.QueryNameListener) {
	n.listeners.addQueryListener(f)
}

// AddNameListener registers f to fire after a name registration
// completes and the name lands in the local table.
func (n *Node) AddNameListener(f netbios.AddNameListener) {
	n.local.AddListener(f)
}

// AddRemoteNameListener registers f to fire when a registration or
// release observed on the wire changes the remote table.
func (n *Node) AddRemoteNameListener(f netbios.RemoteNameListener) {
	n.remote.AddListener(f)
}

// AddRefreshIOErrorListener registers f to fire when a scheduled
// refresh is dropped after a negative or failed WINS response.
func (n *Node) AddRefreshIOErrorListener(f RefreshIOErrorListener) {
	n.listeners.addRefreshIOErrorListener(f)
}

func (n *Node) onRequestSuccess(r *request.Request) {
	if r.Kind == request.KindAdd {
		n.local.Add(r.Name)
	}
	n.metrics.requestsTotal.WithLabelValues(r.Kind.String(), "success").Inc()
}

func (n *Node) onRequestFailed(r *request.Request) {
	n.metrics.requestsTotal.WithLabelValues(r.Kind.String(), "failed").Inc()
}

func (n *Node) onRequestIOError(r *request.Request) {
	n.metrics.requestsTotal.WithLabelValues(r.Kind.String(), "io_error").Inc()
}

// SendUnicast implements request.Transport.
func (n *Node) SendUnicast(buf []byte, addr *net.UDPAddr) error {
	_, err := n.conn.WriteToUDP(buf, addr)
	return err
}

// SendBroadcast implements request.Transport.
func (n *Node) SendBroadcast(buf []byte) error {
	_, err := n.conn.WriteToUDP(buf, n.bcastTo)
	return err
}

func (n *Node) buildPacket(r *request.Request) []byte {
	var opcode wire.Opcode
	switch r.Kind {
	case request.KindAdd:
		opcode = wire.OpRegistration
	case request.KindDelete:
		opcode = wire.OpRelease
	case request.KindRefresh:
		opcode = wire.OpRefresh
	}
	pkt := &wire.Packet{
		Header: wire.Header{
			TransactionID: r.TransactionID,
			Opcode:        opcode,
			RecursionDes:  true,
		},
		Questions: []wire.Question{
			{Name: wire.PadName(r.Name.Name, r.Name.Type), QType: wire.RRTypeNB, QClass: wire.RRClassIN},
		},
	}
	return wire.Encode(pkt)
}

// receiveLoop blocks on ReadFromUDP, decodes, and dispatches by opcode.
// A short read deadline lets the loop notice shutdown without relying
// solely on the close-triggered read error.
func (n *Node) receiveLoop() {
	buf := make([]byte, 65535)
	for {
		select {
		case <-n.shutdown:
			return
		default:
		}

		if err := n.conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond)); err != nil {
			return
		}
		readLen, from, err := n.conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			select {
			case <-n.shutdown:
				return
			default:
				logger.Warn("netbios receive error", "error", err)
				continue
			}
		}

		msg := make([]byte, readLen)
		copy(msg, buf[:readLen])
		n.dispatch(msg, from)
	}
}

func (n *Node) dispatch(msg []byte, from *net.UDPAddr) {
	pkt, err := wire.Decode(msg)
	if err != nil {
		n.metrics.malformedTotal.Inc()
		logger.Debug("netbios malformed packet", "from", from.String(), "error", err)
		return
	}

	switch pkt.Header.Opcode {
	case wire.OpQuery:
		if !pkt.Header.Response {
			n.handleQuery(pkt, from)
		}
	case wire.OpRegistration, wire.OpMultiHomedRegistration, wire.OpRefresh:
		if pkt.Header.Response {
			n.handleRegisterResponse(pkt)
		} else {
			n.handleRegistrationObserved(pkt)
		}
	case wire.OpRelease:
		if !pkt.Header.Response {
			n.handleReleaseObserved(pkt)
		}
	case wire.OpWACK:
		// accepted but ignored for the core
	}
}

func (n *Node) handleQuery(pkt *wire.Packet, from *net.UDPAddr) {
	for _, q := range pkt.Questions {
		if isAdapterStatusQuery(q.Name) {
			n.replyNodeStatus(pkt.Header.TransactionID, from)
			continue
		}
		name, typ := wire.UnpadName(q.Name)
		owned, ok := n.local.Find(name, typ)
		if !ok {
			continue // unknown names are silently dropped
		}
		n.replyQuery(pkt.Header.TransactionID, owned, from)
		n.listeners.fireQuery(owned, from)
	}
}

func (n *Node) replyQuery(txn uint16, owned netbios.NetBIOSName, to *net.UDPAddr) {
	entries := make([]wire.NBAddressEntry, 0, len(owned.Addresses))
	for _, ip := range owned.Addresses {
		flags := wire.NBFlagOwnerUnique
		if owned.Group {
			flags |= wire.NBFlagGroup
		}
		entries = append(entries, wire.NBAddressEntry{Flags: flags, Addr: ip})
	}
	pkt := &wire.Packet{
		Header: wire.Header{TransactionID: txn, Response: true, Opcode: wire.OpQuery, Authoritative: true},
		Answers: []wire.ResourceRecord{
			{
				Name:  wire.PadName(owned.Name, owned.Type),
				Type:  wire.RRTypeNB,
				Class: wire.RRClassIN,
				TTL:   uint32(owned.TTL.Seconds()),
				RData: wire.EncodeNBRData(entries),
			},
		},
	}
	_, _ = n.conn.WriteToUDP(wire.Encode(pkt), to)
}

func (n *Node) replyNodeStatus(txn uint16, to *net.UDPAddr) {
	entries := buildNodeStatusReply(n.local.All())
	pkt := &wire.Packet{
		Header: wire.Header{TransactionID: txn, Response: true, Opcode: wire.OpQuery, Authoritative: true},
		Answers: []wire.ResourceRecord{
			{
				Name:  statusWildcard,
				Type:  wire.RRTypeNBSTAT,
				Class: wire.RRClassIN,
				RData: wire.EncodeNBSTATRData(entries),
			},
		},
	}
	_, _ = n.conn.WriteToUDP(wire.Encode(pkt), to)
}

func (n *Node) handleRegisterResponse(pkt *wire.Packet) {
	r, ok := n.queue.MatchTransaction(pkt.Header.TransactionID)
	if !ok {
		return // no matching request: dropped without side effect
	}
	positive := pkt.Header.RCode == 0
	n.engine.Complete(r, positive)
}

func (n *Node) handleRegistrationObserved(pkt *wire.Packet) {
	for _, q := range pkt.Questions {
		name, typ := wire.UnpadName(q.Name)
		n.remote.Upsert(netbios.NetBIOSName{Name: name, Type: typ})
	}
}

func (n *Node) handleReleaseObserved(pkt *wire.Packet) {
	for _, q := range pkt.Questions {
		name, typ := wire.UnpadName(q.Name)
		n.remote.Remove(name, typ)
	}
}

func broadcastAddrFor(bindAddr, subnetMask string, port int) *net.UDPAddr {
	ip := net.ParseIP(bindAddr)
	if ip == nil || ip.IsUnspecified() {
		return &net.UDPAddr{IP: net.IPv4bcast, Port: port}
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return &net.UDPAddr{IP: net.IPv4bcast, Port: port}
	}
	mask4 := net.ParseIP(subnetMask).To4()
	if mask4 == nil {
		mask4 = net.IPv4(255, 255, 255, 0).To4()
	}
	bcast := make(net.IP, len(ip4))
	for i := range ip4 {
		bcast[i] = ip4[i] | ^mask4[i]
	}
	return &net.UDPAddr{IP: bcast, Port: port}
}
