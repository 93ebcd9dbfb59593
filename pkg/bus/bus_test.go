package bus

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-zeromq/zmq4"

	"github.com/qsib-cbie/reader-controller/pkg/dispatch"
	"github.com/qsib-cbie/reader-controller/pkg/message"
)

func startLoopback(t *testing.T, ctx context.Context, protocol dispatch.Protocol) (*Server, *Client, string) {
	t.Helper()
	endpoint := "inproc://" + t.Name()

	srv := NewServer(protocol)
	if err := srv.Listen(ctx, endpoint); err != nil {
		t.Fatalf("listen: %v", err)
	}

	cli := NewClient(ctx)
	if err := cli.Dial(endpoint); err != nil {
		t.Fatalf("dial: %v", err)
	}
	return srv, cli, endpoint
}

func TestServeRepliesSuccessForAnAcceptedMessage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, cli, _ := startLoopback(t, ctx, dispatch.NewMockDispatcher())
	defer srv.Close()
	defer cli.Close()

	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	resp, err := cli.Send(message.CommandMessage{Kind: message.KindAddFabric, FabricName: "f1"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if resp.Kind != message.KindSuccess {
		t.Errorf("got kind %q, want Success", resp.Kind)
	}

	stopResp, err := cli.Send(message.CommandMessage{Kind: message.KindStop})
	if err != nil {
		t.Fatalf("send stop: %v", err)
	}
	if stopResp.Kind != message.KindSuccess {
		t.Errorf("stop reply kind %q, want Success", stopResp.Kind)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not exit after Stop")
	}
}

func TestServeRepliesFailureOnMalformedJSON(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, cli, _ := startLoopback(t, ctx, dispatch.NewMockDispatcher())
	defer srv.Close()
	defer cli.Close()

	go srv.Serve(ctx)

	if err := cli.sock.Send(zmq4.NewMsgFrom([]byte{}, []byte("not json"))); err != nil {
		t.Fatalf("send raw: %v", err)
	}
	reply, err := cli.sock.Recv()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if len(reply.Frames) == 0 {
		t.Fatal("empty reply")
	}
	var resp message.CommandMessage
	if err := json.Unmarshal(reply.Frames[len(reply.Frames)-1], &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Kind != message.KindFailure {
		t.Errorf("got kind %q, want Failure", resp.Kind)
	}

	cli.Send(message.CommandMessage{Kind: message.KindStop})
}
