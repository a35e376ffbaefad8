// ABOUTME: Hub-side acceptor: pairing check, channel handshake, viewer attach.
// ABOUTME: Each websocket becomes one remote client with its own lifecycle.

package transport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/Tonksthebear/trybotster-sub005/internal/action"
	"github.com/Tonksthebear/trybotster-sub005/internal/auth"
	"github.com/Tonksthebear/trybotster-sub005/internal/client"
	"github.com/Tonksthebear/trybotster-sub005/internal/hub"
	"github.com/Tonksthebear/trybotster-sub005/internal/lifecycle"
	"github.com/Tonksthebear/trybotster-sub005/internal/protocol"
)

// outboundDepth bounds per-client queued messages. A client that cannot
// keep up loses live frames, not its connection; scrollback covers the
// gap on the next selection.
const outboundDepth = 256

// Server accepts remote viewer connections for a hub.
type Server struct {
	hub        *hub.Hub
	verifier   auth.TokenVerifier
	keypair    Keypair
	deviceName string
	logger     *slog.Logger
}

// NewServer builds the acceptor. The keypair is the hub's channel
// identity, shared across all remote clients.
func NewServer(h *hub.Hub, verifier auth.TokenVerifier, kp Keypair, deviceName string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		hub:        h,
		verifier:   verifier,
		keypair:    kp,
		deviceName: deviceName,
		logger:     logger.With("component", "transport"),
	}
}

// ServeHTTP upgrades an attach request. Unpaired requests (missing or
// invalid token) are rejected before the websocket upgrade.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	device, err := s.verifier.Verify(bearerToken(r))
	if err != nil {
		s.logger.Warn("attach rejected", "remote", r.RemoteAddr, "error", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Error("websocket accept failed", "error", err)
		return
	}

	ctx := r.Context()
	ch, err := handshake(ctx, ws, s.keypair, s.deviceName, true)
	if err != nil {
		s.logger.Warn("channel handshake failed", "device", device, "error", err)
		_ = ws.Close(websocket.StatusPolicyViolation, "handshake failed")
		return
	}

	s.serveClient(ctx, ch, device)
}

// bearerToken pulls the pairing token from the Authorization header or,
// for clients that cannot set headers on upgrade, the token query param.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// serveClient runs one remote viewer to completion: lifecycle handshake,
// action mapping, and outbound pumping.
func (s *Server) serveClient(ctx context.Context, ch *Channel, device string) {
	// One remote identity can hold several viewer slots (one per tab),
	// so the id is the channel identity plus a per-connection suffix.
	clientID := ch.Peer().PublicKey + "-" + uuid.NewString()[:8]
	logger := s.logger.With("client", clientID, "device", device)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	outbound := make(chan protocol.Message, outboundDepth)
	sink := &queueSink{ch: outbound}

	lc := lifecycle.New(s.deviceName, func(m protocol.Message) bool {
		return sink.Deliver(m)
	}, lifecycle.Callbacks{
		OnConnected: func(peer string) {
			logger.Info("remote viewer connected", "peer_device", peer)
		},
	}, logger)

	if err := s.hub.AttachClient(ctx, &client.Client{
		ID:         clientID,
		Remote:     true,
		DeviceName: device,
		Sink:       sink,
	}); err != nil {
		logger.Error("attaching client", "error", err)
		_ = ch.CloseWithError("attach failed")
		return
	}
	defer func() {
		detachCtx := context.WithoutCancel(ctx)
		if err := s.hub.DetachClient(detachCtx, clientID); err != nil {
			logger.Warn("detaching client", "error", err)
		}
		lc.Disconnect()
		_ = ch.Close()
	}()

	// The hub side is subscribed the moment the channel is up, so it
	// opens the application handshake.
	lc.BeginConnecting(true)
	lc.ChannelEstablished()
	lc.Subscribed()
	lc.PeerReachable()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-outbound:
				if err := ch.Send(ctx, msg); err != nil {
					logger.Debug("send failed", "error", err)
					cancel()
					return
				}
			}
		}
	}()

	for {
		msg, err := ch.Receive(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logger.Info("remote viewer gone", "error", err)
			}
			return
		}
		if lc.HandleMessage(msg) {
			continue
		}
		if err := s.apply(ctx, clientID, msg); err != nil {
			sink.Deliver(protocol.NewError(err.Error()))
		}
	}
}

// apply maps one remote request onto a hub action. Validation errors
// come back as values and are reported to the issuing client only.
func (s *Server) apply(ctx context.Context, clientID string, msg protocol.Message) error {
	switch msg.Type {
	case protocol.TypeSelect:
		var p protocol.SelectPayload
		if err := msg.Decode(&p); err != nil {
			return err
		}
		return s.hub.Do(ctx, action.Action{Kind: action.KindSelect, AgentKey: p.AgentKey}, clientID)

	case protocol.TypeInput:
		var p protocol.InputPayload
		if err := msg.Decode(&p); err != nil {
			return err
		}
		s.hub.Submit(action.Action{Kind: action.KindSendInput, Input: p.Bytes}, clientID)
		return nil

	case protocol.TypeResize:
		var p protocol.ResizePayload
		if err := msg.Decode(&p); err != nil {
			return err
		}
		s.hub.Submit(action.Action{Kind: action.KindResize, Rows: p.Rows, Cols: p.Cols}, clientID)
		return nil

	case protocol.TypeCreateAgent:
		var p protocol.CreateAgentPayload
		if err := msg.Decode(&p); err != nil {
			return err
		}
		return s.hub.Do(ctx, action.Action{
			Kind:   action.KindSpawn,
			Issue:  p.Issue,
			Branch: p.Branch,
			Prompt: p.Prompt,
		}, clientID)

	case protocol.TypeCloseAgent:
		var p protocol.CloseAgentPayload
		if err := msg.Decode(&p); err != nil {
			return err
		}
		return s.hub.Do(ctx, action.Action{
			Kind:            action.KindClose,
			AgentKey:        p.AgentKey,
			DeleteWorkspace: p.DeleteWorkspace,
		}, clientID)

	case protocol.TypeListAgents:
		s.hub.Submit(action.Action{Kind: action.KindListAgents}, clientID)
		return nil

	case protocol.TypeListWorkspaces:
		s.hub.Submit(action.Action{Kind: action.KindListWorkspaces}, clientID)
		return nil

	default:
		return errors.New("unsupported message type " + msg.Type)
	}
}

// queueSink adapts the outbound channel to the hub's Sink contract:
// never block, report refusal when the queue is full.
type queueSink struct {
	ch chan protocol.Message
}

func (s *queueSink) Deliver(msg protocol.Message) bool {
	select {
	case s.ch <- msg:
		return true
	default:
		return false
	}
}
