package smb3

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/smb3client/smb3/internal/erref"
	"github.com/smb3client/smb3/internal/smb2"
	"github.com/smb3client/smb3/transport"
)

// ReceiveOptions parameterizes Worker.receive per spec.md §4.2: wait for
// msgId, optionally assert the response command, optionally tolerate an
// async-pending interim response before the final one.
type ReceiveOptions struct {
	MsgId      uint64
	Cmd        uint16
	AllowAsync bool
}

// notifyFunc handles a server-initiated notification (async id with no
// matching waiter: oplock break, lease break).
type notifyFunc func(pkt []byte, form MessageForm)

// Worker owns the transport after construction (spec.md §4.2). It runs
// one reader and one writer goroutine and exposes a cooperative
// send/receive/stop API, generalizing the teacher's conn type (conn.go)
// split across worker.go/credit.go/waiter.go/transformer.go per
// SPEC_FULL.md's component boundaries.
type Worker struct {
	reader transport.Reader
	writer transport.Writer

	transformer *transformer
	waiters     *waiterTable
	credit      *creditBalance

	mu            sync.Mutex
	nextMessageId uint64
	err           error

	onNotify notifyFunc

	write chan []byte
	werr  chan error
	wdone chan struct{}
}

// NewWorker splits t and starts the reader/writer loops. onNotify may be
// nil if the caller does not expect server-initiated notifications
// (oplock/lease breaks) on this connection.
func NewWorker(t transport.Transport, onNotify notifyFunc) *Worker {
	reader, writer := t.Split()

	w := &Worker{
		reader:      reader,
		writer:      writer,
		transformer: newTransformer(),
		waiters:     newWaiterTable(),
		credit:      newCreditBalance(),
		onNotify:    onNotify,
		write:       make(chan []byte, 64),
		werr:        make(chan error, 1),
		wdone:       make(chan struct{}),
	}

	go w.runSender()
	go w.runReceiver()

	return w
}

func (w *Worker) enableLargeMTU()             { w.credit.enableLargeMTU() }
func (w *Worker) setCompression(algs []uint16) { w.transformer.setCompression(algs) }

func (w *Worker) sessionStarted(sessionId uint64, cc *cryptoContext) {
	w.transformer.sessionStarted(sessionId, cc)
}
func (w *Worker) sessionEnded(sessionId uint64) {
	w.transformer.sessionEnded(sessionId)
}

// send allocates a message id, charges credits, runs the outgoing
// transform pipeline, hands the bytes to the writer, and records a
// waiter. It returns the allocated id and the raw bytes actually placed
// on the wire (session setup needs these to continue the preauth hash).
func (w *Worker) send(ctx context.Context, msg *OutgoingMessage) (msgId uint64, rawSent []byte, err error) {
	w.mu.Lock()
	if w.err != nil {
		cur := w.err
		w.mu.Unlock()
		return 0, nil, cur
	}

	charge := msg.CreditCharge
	if charge == 0 {
		charge = 1
	}

	msgId = w.nextMessageId
	w.nextMessageId += uint64(charge)
	w.mu.Unlock()

	if err := w.credit.reserve(ctx, charge); err != nil {
		return 0, nil, err
	}

	hdr := msg.Request.Header()
	hdr.CreditCharge = charge
	hdr.MessageId = msgId
	if hdr.CreditRequestResponse == 0 {
		hdr.CreditRequestResponse = w.credit.requestReplenishment()
	}
	if msg.SessionId != nil {
		hdr.SessionId = *msg.SessionId
	}

	pkt, err := w.transformer.encodeOutgoing(msg)
	if err != nil {
		return 0, nil, err
	}

	w.waiters.insert(msgId)

	select {
	case w.write <- pkt:
	case <-ctx.Done():
		w.waiters.pop(msgId)
		return 0, nil, &erref.ContextError{Err: ctx.Err()}
	}

	select {
	case werr := <-w.werr:
		if werr != nil {
			w.waiters.pop(msgId)
			return 0, nil, werr
		}
	case <-ctx.Done():
		w.waiters.pop(msgId)
		return 0, nil, &erref.ContextError{Err: ctx.Err()}
	}

	return msgId, pkt, nil
}

// receive blocks until the reader dispatches the decoded response
// matching opts.MsgId. A notifier is re-armed under the same id
// automatically (runReceiver's keepPending) when an async-pending
// interim response arrives, so receive only needs to loop until a
// terminal completion shows up.
func (w *Worker) receive(ctx context.Context, opts ReceiveOptions) (*IncomingMessage, error) {
	w.mu.Lock()
	werr := w.err
	w.mu.Unlock()
	if werr != nil {
		return nil, werr
	}

	for {
		n, ok := w.waiters.lookup(opts.MsgId)
		if !ok {
			return nil, &erref.InternalError{Msg: "receive called for unknown message id"}
		}

		select {
		case im, chOk := <-n.pkt:
			if !chOk {
				return nil, n.err
			}

			p := smb2.PacketCodec(im.Raw)

			if erref.NtStatus(p.Status()) == erref.StatusPending {
				if !opts.AllowAsync {
					return nil, &erref.ProtocolViolationError{Reason: "unexpected pending status"}
				}
				continue
			}

			if opts.Cmd != 0 && p.Command() != opts.Cmd {
				return nil, &erref.InvalidResponseError{Msg: "response command mismatch"}
			}

			return im, nil

		case <-ctx.Done():
			w.waiters.pop(opts.MsgId)
			return nil, &erref.ContextError{Err: ctx.Err()}
		}
	}
}

func (w *Worker) stop() {
	w.mu.Lock()
	if w.err == nil {
		w.err = &erref.TransportError{Err: os.ErrClosed}
	}
	cur := w.err
	w.mu.Unlock()

	w.waiters.shutdown(cur)
}

func (w *Worker) runSender() {
	for {
		select {
		case <-w.wdone:
			return
		case pkt := <-w.write:
			w.writer.SetWriteDeadline(time.Now().Add(30 * time.Second))
			err := w.writer.SendRaw(pkt)
			w.werr <- err
		}
	}
}

// runReceiver is the Worker's reader loop (spec.md §4.2 dispatch
// policy): run every frame through the Transformer's incoming pipeline
// first (so encrypted frames become readable), then dispatch by the
// decoded plain header's message id. An id with no registered waiter is
// either a spurious frame or a server-initiated notification and is
// routed to onNotify when one is configured.
func (w *Worker) runReceiver() {
	var loopErr error

	for {
		raw, err := w.reader.ReceiveFrame()
		if err != nil {
			loopErr = &erref.TransportError{Err: err}
			break
		}

		plain, form, err := w.transformer.decodeIncoming(raw)
		if err != nil {
			continue
		}

		p := smb2.PacketCodec(plain)
		if !form.Encrypted {
			w.credit.credit(p.CreditResponse())
		}

		msgId := p.MessageId()

		n, ok := w.waiters.pop(msgId)
		if !ok {
			if w.onNotify != nil {
				w.onNotify(plain, form)
			}
			continue
		}

		if erref.NtStatus(p.Status()) == erref.StatusPending {
			w.waiters.keepPending(msgId, n)
		}

		n.pkt <- &IncomingMessage{Raw: plain, Form: form}
	}

	w.mu.Lock()
	w.err = loopErr
	w.mu.Unlock()

	close(w.wdone)
	w.waiters.shutdown(loopErr)
}

// accept validates that body is a success response to cmd and returns
// its body bytes (stripped of the SMB2 header), translating an
// SMB2_ERROR response into a *erref.ResponseError. Grounded on conn.go's
// accept/acceptError.
func accept(cmd uint16, raw []byte) ([]byte, error) {
	p := smb2.PacketCodec(raw)
	if p.IsInvalid() {
		return nil, &erref.InvalidResponseError{Msg: "broken packet header format"}
	}
	if p.Command() != cmd {
		return nil, &erref.InvalidResponseError{Msg: "response command mismatch"}
	}

	status := erref.NtStatus(p.Status())
	if status != erref.StatusSuccess {
		return nil, acceptError(status, p.Data())
	}

	return p.Data(), nil
}

// acceptError builds a *erref.ResponseError out of a non-success
// response, decoding chained SMB2_ERROR_CONTEXT_RESPONSE records when the
// body is long enough to carry them (MS-SMB2 2.2.2, 3.1.1 extension).
func acceptError(status erref.NtStatus, body []byte) error {
	e := smb2.ErrorResponseDecoder(body)
	if e.IsInvalid() {
		return &erref.ResponseError{Code: status}
	}

	var data [][]byte
	if cnt := e.ErrorContextCount(); cnt > 0 {
		rest := e.ErrorData()
		for i := byte(0); i < cnt && len(rest) > 0; i++ {
			c := smb2.ErrorContextResponseDecoder(rest)
			if c.IsInvalid() {
				break
			}
			data = append(data, c.ErrorContextData())
			adv := c.Next()
			if adv <= 0 || adv > len(rest) {
				break
			}
			rest = rest[adv:]
		}
	} else if d := e.ErrorData(); len(d) > 0 {
		data = append(data, d)
	}

	return &erref.ResponseError{Code: status, Data: data}
}
