package node

import (
	"net"
	"testing"
	"time"

	"github.com/nbcluster/nbcluster/pkg/netbios"
	"github.com/nbcluster/nbcluster/pkg/netbios/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcastAddrFor_DerivesSubnetBroadcast(t *testing.T) {
	addr := broadcastAddrFor("192.168.1.10", "255.255.255.0", 137)
	assert.Equal(t, "192.168.1.255", addr.IP.String())

	wider := broadcastAddrFor("10.1.2.3", "255.255.0.0", 137)
	assert.Equal(t, "10.1.255.255", wider.IP.String())
}

func TestBroadcastAddrFor_UnspecifiedUsesLimitedBroadcast(t *testing.T) {
	addr := broadcastAddrFor("0.0.0.0", "255.255.255.0", 137)
	assert.Equal(t, net.IPv4bcast.String(), addr.IP.String())
}

func TestIsAdapterStatusQuery(t *testing.T) {
	assert.True(t, isAdapterStatusQuery(statusWildcard))

	other := wire.PadName("JFILESRV", netbios.TypeFileServer)
	assert.False(t, isAdapterStatusQuery(other))
}

func TestBuildNodeStatusReply_MarksGroupFlag(t *testing.T) {
	names := []netbios.NetBIOSName{
		{Name: "NODE1", Type: netbios.TypeWorkstation, Group: false},
		{Name: "DOMAIN", Type: netbios.TypeDomainMaster, Group: true},
	}
	entries := buildNodeStatusReply(names)
	require.Len(t, entries, 2)
	assert.Equal(t, uint16(0), entries[0].Flags&wire.NameFlagGroup)
	assert.NotEqual(t, uint16(0), entries[1].Flags&wire.NameFlagGroup)
}

// TestNode_QueryRoundTrip starts two nodes on loopback, puts a name
// straight into the owner's local table (no registration traffic), then
// sends a NameQuery for it to the owner from a plain loopback socket and
// checks the QueryResponse.
func TestNode_QueryRoundTrip(t *testing.T) {
	owner := NewNode(Config{
		BindAddress: "127.0.0.1",
		Port:        0,
		ServerName:  "OWNER",
		NameTTL:     time.Hour,
	})
	owner.cfg.Port = freeUDPPort(t)
	require.NoError(t, owner.Start())
	defer owner.Stop(true, 0)

	querier := NewNode(Config{
		BindAddress: "127.0.0.1",
		Port:        freeUDPPort(t),
		ServerName:  "QUERIER",
		NameTTL:     time.Hour,
	})
	require.NoError(t, querier.Start())
	defer querier.Stop(true, 0)

	owner.local.Add(netbios.NetBIOSName{
		Name:      "JFILESRV",
		Type:      netbios.TypeFileServer,
		Addresses: []net.IP{net.ParseIP("127.0.0.1")},
		TTL:       time.Hour,
		Expiry:    time.Now().Add(time.Hour),
	})

	received := make(chan wire.Packet, 1)
	go func() {
		buf := make([]byte, 2048)
		conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		pkt := &wire.Packet{
			Header: wire.Header{TransactionID: 99, Opcode: wire.OpQuery},
			Questions: []wire.Question{
				{Name: wire.PadName("JFILESRV", netbios.TypeFileServer), QType: wire.RRTypeNB, QClass: wire.RRClassIN},
			},
		}
		_, _ = conn.WriteToUDP(wire.Encode(pkt), &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: owner.cfg.Port})
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		got, err := wire.Decode(buf[:n])
		if err != nil {
			return
		}
		received <- *got
	}()

	select {
	case got := <-received:
		assert.True(t, got.Header.Response)
		require.Len(t, got.Answers, 1)
		name, typ := wire.UnpadName(got.Answers[0].Name)
		assert.Equal(t, "JFILESRV", name)
		assert.Equal(t, netbios.TypeFileServer, typ)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for query response")
	}
}

func freeUDPPort(t *testing.T) int {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	require.NoError(t, err)
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).Port
}
