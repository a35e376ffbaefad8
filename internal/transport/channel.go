// ABOUTME: SecureChannel: authenticated-encrypted message frames over a websocket.
// ABOUTME: Every frame after the hello is sealed with a NaCl box shared key.

package transport

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"

	"github.com/coder/websocket"
	"golang.org/x/crypto/nacl/box"

	"github.com/Tonksthebear/trybotster-sub005/internal/protocol"
)

// Channel is one encrypted end-to-end message pipe. Both directions use
// the same precomputed shared key; each frame carries its own random
// nonce. Safe for one concurrent reader and one concurrent writer.
type Channel struct {
	conn   *websocket.Conn
	shared [32]byte
	peer   Hello
}

// Hello is the single plaintext frame each side sends before sealing
// begins. The public key is all the key exchange there is: both sides
// derive the same shared key from it and their own private key.
type Hello struct {
	DeviceName string `json:"device_name"`
	PublicKey  string `json:"public_key"`
}

const nonceSize = 24

// handshake exchanges hellos and derives the shared key. The caller
// picks the order: the accepting side reads first, the dialing side
// writes first.
func handshake(ctx context.Context, conn *websocket.Conn, kp Keypair, deviceName string, readFirst bool) (*Channel, error) {
	ours := Hello{DeviceName: deviceName, PublicKey: kp.PublicEncoded()}

	var peer Hello
	if readFirst {
		if err := readHello(ctx, conn, &peer); err != nil {
			return nil, err
		}
		if err := writeHello(ctx, conn, ours); err != nil {
			return nil, err
		}
	} else {
		if err := writeHello(ctx, conn, ours); err != nil {
			return nil, err
		}
		if err := readHello(ctx, conn, &peer); err != nil {
			return nil, err
		}
	}

	peerKey, err := DecodePublicKey(peer.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("peer hello: %w", err)
	}

	ch := &Channel{conn: conn, peer: peer}
	box.Precompute(&ch.shared, peerKey, kp.Private)
	return ch, nil
}

func writeHello(ctx context.Context, conn *websocket.Conn, h Hello) error {
	data, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("encoding hello: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("sending hello: %w", err)
	}
	return nil
}

func readHello(ctx context.Context, conn *websocket.Conn, h *Hello) error {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return fmt.Errorf("reading hello: %w", err)
	}
	if err := json.Unmarshal(data, h); err != nil {
		return fmt.Errorf("decoding hello: %w", err)
	}
	if h.PublicKey == "" {
		return fmt.Errorf("hello missing public key")
	}
	return nil
}

// Peer returns the hello the remote side sent.
func (c *Channel) Peer() Hello {
	return c.peer
}

// Send seals and writes one message frame.
func (c *Channel) Send(ctx context.Context, msg protocol.Message) error {
	plain, err := msg.Encode()
	if err != nil {
		return err
	}

	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return fmt.Errorf("generating nonce: %w", err)
	}
	frame := box.SealAfterPrecomputation(nonce[:], plain, &nonce, &c.shared)

	if err := c.conn.Write(ctx, websocket.MessageBinary, frame); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

// Receive reads and opens one message frame. A frame that fails to open
// is a protocol violation, not a decryption retry case.
func (c *Channel) Receive(ctx context.Context) (protocol.Message, error) {
	_, frame, err := c.conn.Read(ctx)
	if err != nil {
		return protocol.Message{}, fmt.Errorf("reading frame: %w", err)
	}
	if len(frame) < nonceSize+box.Overhead {
		return protocol.Message{}, fmt.Errorf("frame too short: %d bytes", len(frame))
	}

	var nonce [nonceSize]byte
	copy(nonce[:], frame[:nonceSize])
	plain, ok := box.OpenAfterPrecomputation(nil, frame[nonceSize:], &nonce, &c.shared)
	if !ok {
		return protocol.Message{}, fmt.Errorf("frame failed authentication")
	}

	return protocol.Parse(plain)
}

// Close tears the websocket down.
func (c *Channel) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}

// CloseWithError signals an abnormal teardown to the peer.
func (c *Channel) CloseWithError(reason string) error {
	return c.conn.Close(websocket.StatusInternalError, reason)
}
