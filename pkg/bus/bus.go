// Package bus implements the reader-independent request façade: a ZMQ
// ROUTER socket speaking a three-frame [identity, empty, payload] envelope,
// and a DEALER-based client helper for exercising it, mirroring the
// identity-framed REP/REQ shape the original dispatcher's network layer
// simulated over DEALER sockets.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/sirupsen/logrus"

	"github.com/qsib-cbie/reader-controller/pkg/dispatch"
	"github.com/qsib-cbie/reader-controller/pkg/message"
)

// DefaultEndpoint is the ROUTER bind address used when the CLI doesn't
// override it.
const DefaultEndpoint = "tcp://*:5555"

// systemResetSettle is how long the server waits after a SystemReset before
// re-entering the serve loop, giving the reader time to reboot.
const systemResetSettle = 1000 * time.Millisecond

// Server binds a ZMQ ROUTER socket and drives a Protocol implementation
// from decoded client requests.
type Server struct {
	sock     zmq4.Socket
	protocol dispatch.Protocol
	log      *logrus.Entry
}

// NewServer constructs a server around protocol. Call Listen before Serve.
func NewServer(protocol dispatch.Protocol) *Server {
	return &Server{
		protocol: protocol,
		log:      logrus.WithField("component", "bus-server"),
	}
}

// Listen binds the ROUTER socket to endpoint.
func (s *Server) Listen(ctx context.Context, endpoint string) error {
	s.sock = zmq4.NewRouter(ctx)
	if err := s.sock.Listen(endpoint); err != nil {
		return err
	}
	s.log.WithField("endpoint", endpoint).Info("bus server listening")
	return nil
}

// Close releases the ROUTER socket.
func (s *Server) Close() error {
	if s.sock == nil {
		return nil
	}
	return s.sock.Close()
}

// Serve runs the receive/dispatch/reply loop until a Stop message arrives,
// the socket errors, or ctx is cancelled. It returns nil on a clean Stop.
func (s *Server) Serve(ctx context.Context) error {
	s.log.Info("beginning serve loop")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msg, err := s.sock.Recv()
		if err != nil {
			return err
		}
		if len(msg.Frames) != 3 {
			s.log.WithField("frames", len(msg.Frames)).Warn("dropping malformed request envelope")
			continue
		}
		identity, _, payload := msg.Frames[0], msg.Frames[1], msg.Frames[2]

		var req message.CommandMessage
		if err := json.Unmarshal(payload, &req); err != nil {
			s.reply(identity, message.Failure(err))
			continue
		}

		switch req.Kind {
		case message.KindStop:
			s.log.Debug("received Stop")
			s.reply(identity, message.Success())
			return nil

		case message.KindSystemReset:
			s.log.Debug("received SystemReset")
			err := s.protocol.Handle(req)
			if err != nil {
				s.reply(identity, message.Failure(err))
			} else {
				s.reply(identity, message.Success())
			}
			s.log.Info("waiting for reader to reboot after system reset")
			time.Sleep(systemResetSettle)
			s.log.Info("done waiting for reboot, resuming serve loop")
			continue

		default:
			if err := s.protocol.Handle(req); err != nil {
				s.reply(identity, message.Failure(err))
			} else {
				s.reply(identity, message.Success())
			}
		}
	}
}

func (s *Server) reply(identity []byte, resp message.CommandMessage) {
	payload, err := json.Marshal(resp)
	if err != nil {
		s.log.WithError(err).Error("failed to encode response")
		return
	}
	out := zmq4.NewMsgFrom(identity, []byte{}, payload)
	if err := s.sock.Send(out); err != nil {
		s.log.WithError(err).Error("failed to send response")
	}
}

// Client is a DEALER-based request helper: it manually frames
// [empty, payload] outbound and expects [empty, payload] inbound, giving
// REQ-like request/reply semantics without a REQ socket's strict
// one-in-flight limitation.
type Client struct {
	sock zmq4.Socket
}

// NewClient constructs a client around a fresh DEALER socket.
func NewClient(ctx context.Context) *Client {
	return &Client{sock: zmq4.NewDealer(ctx)}
}

// Dial connects the DEALER socket to endpoint.
func (c *Client) Dial(endpoint string) error {
	return c.sock.Dial(endpoint)
}

// Close releases the DEALER socket.
func (c *Client) Close() error {
	return c.sock.Close()
}

// Send encodes req, sends the [empty, payload] envelope, and decodes the
// matching reply.
func (c *Client) Send(req message.CommandMessage) (message.CommandMessage, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return message.CommandMessage{}, err
	}

	if err := c.sock.Send(zmq4.NewMsgFrom([]byte{}, payload)); err != nil {
		return message.CommandMessage{}, err
	}

	reply, err := c.sock.Recv()
	if err != nil {
		return message.CommandMessage{}, err
	}

	var resp message.CommandMessage
	if len(reply.Frames) < 2 {
		return message.CommandMessage{}, fmt.Errorf("bus: malformed reply envelope with %d frames", len(reply.Frames))
	}
	if err := json.Unmarshal(reply.Frames[len(reply.Frames)-1], &resp); err != nil {
		return message.CommandMessage{}, err
	}
	return resp, nil
}
