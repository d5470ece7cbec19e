package transport

import (
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeUnit answers every datagram it receives with the bytes returned by
// reply. A nil reply means stay silent.
type fakeUnit struct {
	conn  *net.UDPConn
	reply func(req []byte) [][]byte

	mu       sync.Mutex
	received [][]byte
	wg       sync.WaitGroup
}

func newFakeUnit(t *testing.T, reply func(req []byte) [][]byte) *fakeUnit {
	t.Helper()

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)

	u := &fakeUnit{conn: conn, reply: reply}
	u.wg.Add(1)
	go u.serve()

	t.Cleanup(func() {
		conn.Close()
		u.wg.Wait()
	})
	return u
}

func (u *fakeUnit) serve() {
	defer u.wg.Done()

	buf := make([]byte, 2048)
	for {
		n, from, err := u.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		req := append([]byte(nil), buf[:n]...)

		u.mu.Lock()
		u.received = append(u.received, req)
		u.mu.Unlock()

		for _, out := range u.reply(req) {
			u.conn.WriteToUDP(out, from)
		}
	}
}

func (u *fakeUnit) addr() *net.UDPAddr {
	return u.conn.LocalAddr().(*net.UDPAddr)
}

func (u *fakeUnit) requests() [][]byte {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([][]byte(nil), u.received...)
}
