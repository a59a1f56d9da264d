package redex

import (
	"io"
	"net"

	"github.com/aphistic/sweet"
	. "github.com/onsi/gomega"
)

type ConnSuite struct{}

func (s *ConnSuite) TestExecSuccess(t sweet.T) {
	dial, calls := pipeDialer(func(server net.Conn) {
		fs := newFakeServer(server)
		if _, err := fs.expectCommand(); err != nil {
			return
		}
		fs.writeSimple("PONG")
	})

	conn := NewConnection(noAuthOpts(), dial)
	value, err := conn.Exec(NewCommand("PING"))
	Expect(err).To(BeNil())
	Expect(value.Text).To(Equal("PONG"))
	Expect(*calls).To(Equal(1))
}

func (s *ConnSuite) TestExecReplyOrdering(t sweet.T) {
	dial, _ := pipeDialer(func(server net.Conn) {
		fs := newFakeServer(server)
		for i := int64(1); i <= 3; i++ {
			if _, err := fs.expectCommand(); err != nil {
				return
			}
			fs.writeInt(i)
		}
	})

	conn := NewConnection(noAuthOpts(), dial)
	for i := int64(1); i <= 3; i++ {
		value, err := conn.Exec(NewCommand("INCR", "counter"))
		Expect(err).To(BeNil())
		Expect(value.Int).To(Equal(i))
	}
}

func (s *ConnSuite) TestExecBatchOrdering(t sweet.T) {
	dial, _ := pipeDialer(func(server net.Conn) {
		fs := newFakeServer(server)
		for i := 0; i < 3; i++ {
			if _, err := fs.expectCommand(); err != nil {
				return
			}
		}
		fs.writeSimple("OK")
		fs.writeInt(1)
		fs.writeInt(2)
	})

	conn := NewConnection(noAuthOpts(), dial)
	replies, err := conn.ExecBatch([]Command{
		NewCommand("SET", "a", "1"),
		NewCommand("INCR", "b"),
		NewCommand("INCR", "b"),
	})
	Expect(err).To(BeNil())
	Expect(replies).To(HaveLen(3))
	Expect(replies[0].Text).To(Equal("OK"))
	Expect(replies[1].Int).To(Equal(int64(1)))
	Expect(replies[2].Int).To(Equal(int64(2)))
}

func (s *ConnSuite) TestExecRetriesOnWriteTransportError(t sweet.T) {
	dialCount := 0
	dial := func(opts *ConnectOpts) (net.Conn, error) {
		dialCount++
		client, server := net.Pipe()
		if dialCount == 1 {
			server.Close()
		} else {
			go func() {
				fs := newFakeServer(server)
				if _, err := fs.expectCommand(); err != nil {
					return
				}
				fs.writeSimple("PONG")
			}()
		}
		return client, nil
	}

	conn := NewConnection(noAuthOpts(), dial)
	value, err := conn.Exec(NewCommand("PING"))
	Expect(err).To(BeNil())
	Expect(value.Text).To(Equal("PONG"))
	Expect(dialCount).To(Equal(2))
}

func (s *ConnSuite) TestExecFatalOnReadFailureAfterWrite(t sweet.T) {
	dialCount := 0
	dial := func(opts *ConnectOpts) (net.Conn, error) {
		dialCount++
		client, server := net.Pipe()
		go func() {
			fs := newFakeServer(server)
			if _, err := fs.expectCommand(); err != nil {
				return
			}
			server.Close()
		}()
		return client, nil
	}

	conn := NewConnection(noAuthOpts(), dial)
	_, err := conn.Exec(NewCommand("PING"))
	Expect(err).To(Equal(ErrConnectionClosed))
	Expect(dialCount).To(Equal(1))
	Expect(conn.IsConnected()).To(BeFalse())
}

func (s *ConnSuite) TestExecBatchNeverRetries(t sweet.T) {
	var serverConn net.Conn
	dialCount := 0
	dial := func(opts *ConnectOpts) (net.Conn, error) {
		dialCount++
		client, server := net.Pipe()
		serverConn = server
		go io.Copy(io.Discard, server)
		return client, nil
	}

	conn := NewConnection(noAuthOpts(), dial)
	Expect(conn.EnsureReady()).To(BeNil())
	Expect(dialCount).To(Equal(1))

	serverConn.Close()

	_, err := conn.ExecBatch([]Command{NewCommand("PING")})
	Expect(err).To(Equal(ErrConnectionClosed))
	Expect(dialCount).To(Equal(1))
}

func (s *ConnSuite) TestHandshakeOrder(t sweet.T) {
	dial, _ := pipeDialer(func(server net.Conn) {
		fs := newFakeServer(server)

		auth, err := fs.expectCommand()
		Expect(err).To(BeNil())
		Expect(string(auth.Items[0].Bulk)).To(Equal("AUTH"))
		Expect(string(auth.Items[1].Bulk)).To(Equal("secret"))
		fs.writeSimple("OK")

		sel, err := fs.expectCommand()
		Expect(err).To(BeNil())
		Expect(string(sel.Items[0].Bulk)).To(Equal("SELECT"))
		Expect(string(sel.Items[1].Bulk)).To(Equal("2"))
		fs.writeSimple("OK")

		name, err := fs.expectCommand()
		Expect(err).To(BeNil())
		Expect(string(name.Items[0].Bulk)).To(Equal("CLIENT"))
		Expect(string(name.Items[1].Bulk)).To(Equal("SETNAME"))
		Expect(string(name.Items[2].Bulk)).To(Equal("conn1"))
		fs.writeSimple("OK")
	})

	conn := NewConnection(noAuthOpts(WithPassword("secret"), WithDatabase(2), WithClientName("conn1")), dial)
	Expect(conn.EnsureReady()).To(BeNil())
	Expect(conn.IsConnected()).To(BeTrue())
}

func (s *ConnSuite) TestHandshakeFailureIsFatalNotRetried(t sweet.T) {
	dialCount := 0
	dial := func(opts *ConnectOpts) (net.Conn, error) {
		dialCount++
		client, server := net.Pipe()
		go func() {
			fs := newFakeServer(server)
			if _, err := fs.expectCommand(); err != nil {
				return
			}
			fs.writeError("WRONGPASS invalid username-password pair")
		}()
		return client, nil
	}

	conn := NewConnection(noAuthOpts(WithPassword("bad")), dial)
	err := conn.EnsureReady()
	Expect(err).To(HaveOccurred())

	var connectErr *ConnectError
	Expect(err).To(BeAssignableToTypeOf(connectErr))
	Expect(dialCount).To(Equal(1))
}

func (s *ConnSuite) TestCloseInterruptsBlockedRead(t sweet.T) {
	dial, _ := pipeDialer(func(server net.Conn) {
		// Never writes anything back; the client's ReadRaw call should
		// hang here until Close() closes the underlying pipe.
	})

	conn := NewConnection(noAuthOpts(), dial)
	Expect(conn.EnsureReady()).To(BeNil())

	done := make(chan error, 1)
	go func() {
		_, err := conn.ReadRaw()
		done <- err
	}()

	Expect(conn.Close()).To(BeNil())
	Eventually(done).Should(Receive())
}
