// ABOUTME: Client-side attach: dial the hub, pair, and establish the channel.
// ABOUTME: Reconnects are the caller's job; Dial performs exactly one attempt.

package transport

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
)

// DialConfig describes one attach attempt.
type DialConfig struct {
	// URL is the hub's attach endpoint, ws:// or wss://.
	URL string

	// Token is the pairing token. Sent as a bearer header.
	Token string

	// DeviceName identifies this client in the handshake.
	DeviceName string

	// Keypair is this client's channel identity.
	Keypair Keypair
}

// Dial connects, pairs, and completes the channel handshake. The dialing
// side sends its hello first.
func Dial(ctx context.Context, cfg DialConfig) (*Channel, error) {
	opts := &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + cfg.Token}},
	}
	ws, _, err := websocket.Dial(ctx, cfg.URL, opts)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", cfg.URL, err)
	}

	ch, err := handshake(ctx, ws, cfg.Keypair, cfg.DeviceName, false)
	if err != nil {
		_ = ws.Close(websocket.StatusPolicyViolation, "handshake failed")
		return nil, err
	}
	return ch, nil
}
