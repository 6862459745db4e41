package transport

import (
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// loopbackPair returns both ends of a loopback TCP connection. NewConn
// flushes its header before returning, so each end needs a buffered
// transport; over net.Pipe that write blocks until the peer reads.
func loopbackPair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	accepted := make(chan net.Conn, 1)
	go func() {
		c, _ := ln.Accept()
		accepted <- c
	}()
	a, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	b := <-accepted
	require.NotNil(t, b)
	return a, b
}

func pipeConns(t *testing.T) (*Conn, *Conn) {
	t.Helper()
	a, b := loopbackPair(t)
	clientConn, err := NewConn(a, 1<<20, true)
	require.NoError(t, err)
	serverConn, err := NewConn(b, 1<<20, false)
	require.NoError(t, err)
	t.Cleanup(func() { clientConn.Close(); serverConn.Close() })
	return clientConn, serverConn
}

func TestBiRequestResolvesExactlyOnce(t *testing.T) {
	client, server := pipeConns(t)

	go server.Serve(func(m *Message) {
		require.Equal(t, KindBi, m.Kind)
		reply := make([]byte, 4)
		binary.LittleEndian.PutUint32(reply, binary.LittleEndian.Uint32(m.Payload)+1)
		require.NoError(t, m.Reply(reply))
	})
	go client.Serve(func(m *Message) {
		t.Errorf("client should not receive unsolicited messages")
	})

	req := make([]byte, 4)
	binary.LittleEndian.PutUint32(req, 41)
	reply, err := client.SendBi(7, req)
	require.NoError(t, err)
	require.Equal(t, uint32(42), binary.LittleEndian.Uint32(reply))
}

func TestUniMessageDelivered(t *testing.T) {
	client, server := pipeConns(t)

	received := make(chan uint32, 1)
	go server.Serve(func(m *Message) {
		received <- m.ID
	})
	go client.Serve(func(m *Message) {})

	require.NoError(t, client.SendUni(99, []byte("hello")))
	select {
	case id := <-received:
		require.Equal(t, uint32(99), id)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for uni message")
	}
}

func TestOversizeMessageRejected(t *testing.T) {
	a, b := loopbackPair(t)
	client, err := NewConn(a, 8, true)
	require.NoError(t, err)
	server, err := NewConn(b, 8, false)
	require.NoError(t, err)
	defer client.Close()
	defer server.Close()

	go server.Serve(func(m *Message) {})
	err = client.SendUni(1, make([]byte, 100))
	require.ErrorIs(t, err, ErrOversize)
}

func TestReplyOnNonBiMessageFails(t *testing.T) {
	m := &Message{Kind: KindUni}
	err := m.Reply([]byte("x"))
	require.ErrorIs(t, err, ErrMissingSender)
}
