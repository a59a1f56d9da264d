package redex

import (
	"net"

	"github.com/aphistic/sweet"
	. "github.com/onsi/gomega"
)

type PipelineSuite struct{}

func (s *PipelineSuite) TestFlushBatchesAsOneRoundTrip(t sweet.T) {
	dial, calls := pipeDialer(func(server net.Conn) {
		fs := newFakeServer(server)
		for i := 0; i < 2; i++ {
			if _, err := fs.expectCommand(); err != nil {
				return
			}
		}
		fs.writeSimple("OK")
		fs.writeInt(1)
	})

	conn := NewConnection(noAuthOpts(), dial)
	p := NewPipeline(conn)
	p.Queue(NewCommand("SET", "a", "1"))
	p.Queue(NewCommand("INCR", "b"))

	Expect(p.Len()).To(Equal(2))
	replies, err := p.Flush()
	Expect(err).To(BeNil())
	Expect(replies).To(HaveLen(2))
	Expect(replies[0].Text).To(Equal("OK"))
	Expect(replies[1].Int).To(Equal(int64(1)))
	Expect(p.Len()).To(Equal(0))
	Expect(*calls).To(Equal(1))
}

func (s *PipelineSuite) TestFlushWithNoPendingCommandsIsNoop(t sweet.T) {
	dial, calls := pipeDialer(func(server net.Conn) {})

	conn := NewConnection(noAuthOpts(), dial)
	p := NewPipeline(conn)
	replies, err := p.Flush()
	Expect(err).To(BeNil())
	Expect(replies).To(BeNil())
	Expect(*calls).To(Equal(0))
}

func (s *PipelineSuite) TestTransactionWrapsMultiExecAndDiscardsAcks(t sweet.T) {
	dial, _ := pipeDialer(func(server net.Conn) {
		fs := newFakeServer(server)

		multi, err := fs.expectCommand()
		Expect(err).To(BeNil())
		Expect(string(multi.Items[0].Bulk)).To(Equal("MULTI"))
		fs.writeSimple("OK")

		set, err := fs.expectCommand()
		Expect(err).To(BeNil())
		Expect(string(set.Items[0].Bulk)).To(Equal("SET"))
		fs.writeSimple("QUEUED")

		incr, err := fs.expectCommand()
		Expect(err).To(BeNil())
		Expect(string(incr.Items[0].Bulk)).To(Equal("INCR"))
		fs.writeSimple("QUEUED")

		exec, err := fs.expectCommand()
		Expect(err).To(BeNil())
		Expect(string(exec.Items[0].Bulk)).To(Equal("EXEC"))
		fs.writeRaw("*2\r\n+OK\r\n:1\r\n")
	})

	conn := NewConnection(noAuthOpts(), dial)
	tx := NewTransaction(conn)
	tx.Queue(NewCommand("SET", "a", "1"))
	tx.Queue(NewCommand("INCR", "b"))

	replies, err := tx.Flush()
	Expect(err).To(BeNil())
	Expect(replies).To(HaveLen(2))
	Expect(replies[0].Text).To(Equal("OK"))
	Expect(replies[1].Int).To(Equal(int64(1)))
}

func (s *PipelineSuite) TestTransactionAbortReturnsTypedError(t sweet.T) {
	dial, _ := pipeDialer(func(server net.Conn) {
		fs := newFakeServer(server)
		for i := 0; i < 2; i++ {
			if _, err := fs.expectCommand(); err != nil {
				return
			}
			fs.writeSimple("OK")
		}
		if _, err := fs.expectCommand(); err != nil {
			return
		}
		fs.writeNilArray()
	})

	conn := NewConnection(noAuthOpts(), dial)
	tx := NewTransaction(conn)
	tx.Queue(NewCommand("GET", "a"))

	_, err := tx.Flush()
	Expect(err).To(HaveOccurred())

	var aborted *TransactionAbortedError
	Expect(err).To(BeAssignableToTypeOf(aborted))
}
