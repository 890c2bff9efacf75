package smb3

import (
	"context"
	"testing"
	"time"

	"github.com/smb3client/smb3/internal/smb2"
	"github.com/smb3client/smb3/transport"
)

// replyTo builds a minimal plain-header SMB2_LOGOFF success response
// matching req's message id, as a fake server would.
func replyTo(req []byte, creditResponse uint16) []byte {
	reqHdr := smb2.PacketCodec(req)

	h := &smb2.Header{
		Status:                0,
		Command:               reqHdr.Command(),
		CreditRequestResponse: creditResponse,
		MessageId:             reqHdr.MessageId(),
		SessionId:             reqHdr.SessionId(),
	}
	buf := make([]byte, smb2.HeaderSize+4)
	smb2.EncodeHeader(h, buf)
	return buf
}

func TestWorkerSendReceiveRoundTrip(t *testing.T) {
	client, server := transport.NewPipePair()
	w := NewWorker(client, nil)
	defer w.stop()

	serverErr := make(chan error, 1)
	go func() {
		raw, err := server.ReceiveFrame()
		if err != nil {
			serverErr <- err
			return
		}
		serverErr <- server.SendRaw(replyTo(raw, 5))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req := &smb2.LogoffRequest{}
	msgId, _, err := w.send(ctx, &OutgoingMessage{Request: req})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	in, err := w.receive(ctx, ReceiveOptions{MsgId: msgId, Cmd: smb2.SMB2_LOGOFF})
	if err != nil {
		t.Fatalf("receive: %v", err)
	}

	p := smb2.PacketCodec(in.Raw)
	if p.MessageId() != msgId {
		t.Fatalf("response message id = %d, want %d", p.MessageId(), msgId)
	}

	if err := <-serverErr; err != nil {
		t.Fatalf("server SendRaw: %v", err)
	}
}

func TestWorkerReceiveRejectsCommandMismatch(t *testing.T) {
	client, server := transport.NewPipePair()
	w := NewWorker(client, nil)
	defer w.stop()

	go func() {
		raw, err := server.ReceiveFrame()
		if err != nil {
			return
		}
		server.SendRaw(replyTo(raw, 1))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req := &smb2.LogoffRequest{}
	msgId, _, err := w.send(ctx, &OutgoingMessage{Request: req})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if _, err := w.receive(ctx, ReceiveOptions{MsgId: msgId, Cmd: smb2.SMB2_CREATE}); err == nil {
		t.Fatalf("receive must reject a response whose command does not match what was requested")
	}
}

func TestWorkerCreditBookkeeping(t *testing.T) {
	client, server := transport.NewPipePair()
	w := NewWorker(client, nil)
	defer w.stop()

	go func() {
		for i := 0; i < 2; i++ {
			raw, err := server.ReceiveFrame()
			if err != nil {
				return
			}
			if err := server.SendRaw(replyTo(raw, 1)); err != nil {
				return
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for i := 0; i < 2; i++ {
		req := &smb2.LogoffRequest{}
		msgId, _, err := w.send(ctx, &OutgoingMessage{Request: req})
		if err != nil {
			t.Fatalf("send #%d: %v", i, err)
		}
		if _, err := w.receive(ctx, ReceiveOptions{MsgId: msgId, Cmd: smb2.SMB2_LOGOFF}); err != nil {
			t.Fatalf("receive #%d: %v", i, err)
		}
	}
}

func TestWorkerStopFailsPendingSend(t *testing.T) {
	client, server := transport.NewPipePair()
	defer server.Close()
	w := NewWorker(client, nil)
	w.stop()

	req := &smb2.LogoffRequest{}
	_, _, err := w.send(context.Background(), &OutgoingMessage{Request: req})
	if err == nil {
		t.Fatalf("send must fail once the Worker has been stopped")
	}
}
