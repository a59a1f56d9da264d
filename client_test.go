package redex

import (
	"net"

	"github.com/aphistic/sweet"
	. "github.com/onsi/gomega"
)

type ClientSuite struct{}

func (s *ClientSuite) TestGetAndSet(t sweet.T) {
	dial, _ := pipeDialer(func(server net.Conn) {
		fs := newFakeServer(server)

		set, err := fs.expectCommand()
		Expect(err).To(BeNil())
		Expect(string(set.Items[0].Bulk)).To(Equal("SET"))
		fs.writeSimple("OK")

		get, err := fs.expectCommand()
		Expect(err).To(BeNil())
		Expect(string(get.Items[0].Bulk)).To(Equal("GET"))
		fs.writeBulk([]byte("bar"))
	})

	c := newClient("127.0.0.1", 6379, dial, WithMaxRetryCount(1), WithLogger(NewNilLogger()))

	Expect(c.Set("foo", "bar")).To(BeNil())

	value, ok, err := c.Get("foo")
	Expect(err).To(BeNil())
	Expect(ok).To(BeTrue())
	Expect(string(value)).To(Equal("bar"))
}

func (s *ClientSuite) TestGetMissingKey(t sweet.T) {
	dial, _ := pipeDialer(func(server net.Conn) {
		fs := newFakeServer(server)
		if _, err := fs.expectCommand(); err != nil {
			return
		}
		fs.writeNilBulk()
	})

	c := newClient("127.0.0.1", 6379, dial, WithMaxRetryCount(1), WithLogger(NewNilLogger()))
	value, ok, err := c.Get("missing")
	Expect(err).To(BeNil())
	Expect(ok).To(BeFalse())
	Expect(value).To(BeNil())
}

func (s *ClientSuite) TestIncrByFloat(t sweet.T) {
	dial, _ := pipeDialer(func(server net.Conn) {
		fs := newFakeServer(server)
		if _, err := fs.expectCommand(); err != nil {
			return
		}
		fs.writeBulk([]byte("10.5"))
	})

	c := newClient("127.0.0.1", 6379, dial, WithMaxRetryCount(1), WithLogger(NewNilLogger()))
	result, err := c.IncrByFloat("counter", 0.5)
	Expect(err).To(BeNil())
	Expect(result).To(Equal(10.5))
}

func (s *ClientSuite) TestPipelineSharesClientConnection(t sweet.T) {
	dial, calls := pipeDialer(func(server net.Conn) {
		fs := newFakeServer(server)
		for i := 0; i < 2; i++ {
			if _, err := fs.expectCommand(); err != nil {
				return
			}
		}
		fs.writeInt(1)
		fs.writeInt(2)
	})

	c := newClient("127.0.0.1", 6379, dial, WithMaxRetryCount(1), WithLogger(NewNilLogger()))
	p := c.Pipeline()
	p.Queue(NewCommand("INCR", "a"))
	p.Queue(NewCommand("INCR", "b"))

	replies, err := p.Flush()
	Expect(err).To(BeNil())
	Expect(replies).To(HaveLen(2))
	Expect(*calls).To(Equal(1))
}

func (s *ClientSuite) TestSubscribeOpensDedicatedConnection(t sweet.T) {
	dialCount := 0
	dial := func(opts *ConnectOpts) (net.Conn, error) {
		dialCount++
		client, server := net.Pipe()
		go func() {
			fs := newFakeServer(server)
			if _, err := fs.expectCommand(); err != nil {
				return
			}
			fs.writeArray([]byte("subscribe"), []byte("news"), []byte("1"))
			fs.writeArray([]byte("message"), []byte("news"), []byte("hi"))
		}()
		return client, nil
	}

	c := newClient("127.0.0.1", 6379, dial, WithMaxRetryCount(1), WithLogger(NewNilLogger()))
	sub, err := c.Subscribe("news")
	Expect(err).To(BeNil())
	// Subscribe dials its own Connection, separate from the Client's own.
	Expect(dialCount).To(Equal(1))

	msg, err := sub.Receive()
	Expect(err).To(BeNil())
	Expect(string(msg.Payload)).To(Equal("hi"))
}

func (s *ClientSuite) TestNewClientSurfacesEagerConnectFailure(t sweet.T) {
	dial := func(opts *ConnectOpts) (net.Conn, error) {
		return nil, &net.OpError{Op: "dial", Err: errConnectionRefused{}}
	}

	c := newClient("127.0.0.1", 6379, dial, WithMaxRetryCount(1), WithLogger(NewNilLogger()))
	err := c.exec.Connection().EnsureReady()
	Expect(err).To(Equal(ErrNoConnection))
}

type errConnectionRefused struct{}

func (errConnectionRefused) Error() string   { return "connection refused" }
func (errConnectionRefused) Timeout() bool   { return false }
func (errConnectionRefused) Temporary() bool { return false }
