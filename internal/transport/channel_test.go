// ABOUTME: Loopback tests for the sealed channel and key handling.
// ABOUTME: Real websockets over httptest; no crypto mocking.

package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tonksthebear/trybotster-sub005/internal/protocol"
)

func TestKeypair_EncodeDecode(t *testing.T) {
	kp, err := GenerateKeypair()
	require.NoError(t, err)

	decoded, err := DecodePublicKey(kp.PublicEncoded())
	require.NoError(t, err)
	assert.Equal(t, kp.Public, decoded)
}

func TestDecodePublicKey_Invalid(t *testing.T) {
	_, err := DecodePublicKey("not base64 !!!")
	assert.Error(t, err)

	_, err = DecodePublicKey("c2hvcnQ=") // valid base64, wrong length
	assert.Error(t, err)
}

// pairChannels establishes a real sealed channel over a loopback
// websocket and returns both ends.
func pairChannels(t *testing.T) (server, client *Channel) {
	t.Helper()

	serverKP, err := GenerateKeypair()
	require.NoError(t, err)
	clientKP, err := GenerateKeypair()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	ready := make(chan *Channel, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		ch, err := handshake(ctx, ws, serverKP, "hub", true)
		if err != nil {
			return
		}
		ready <- ch
	}))
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	ws, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)

	client, err = handshake(ctx, ws, clientKP, "laptop", false)
	require.NoError(t, err)

	select {
	case server = <-ready:
	case <-ctx.Done():
		t.Fatal("server handshake never completed")
	}

	t.Cleanup(func() {
		_ = server.Close()
		_ = client.Close()
	})
	return server, client
}

func TestChannel_RoundTrip(t *testing.T) {
	server, client := pairChannels(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	assert.Equal(t, "laptop", server.Peer().DeviceName)
	assert.Equal(t, "hub", client.Peer().DeviceName)

	out := protocol.New(protocol.TypeOutput, protocol.OutputPayload{
		AgentKey: "octo/widgets#main",
		Bytes:    []byte("$ ls\x1b[0m\n"),
	})
	require.NoError(t, server.Send(ctx, out))

	got, err := client.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, protocol.TypeOutput, got.Type)

	var payload protocol.OutputPayload
	require.NoError(t, got.Decode(&payload))
	assert.Equal(t, "octo/widgets#main", payload.AgentKey)
	assert.Equal(t, []byte("$ ls\x1b[0m\n"), payload.Bytes)

	// And the other direction.
	require.NoError(t, client.Send(ctx, protocol.New(protocol.TypeSelect, protocol.SelectPayload{AgentKey: "k"})))
	got, err = server.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeSelect, got.Type)
}

func TestChannel_ManyFramesDistinctNonces(t *testing.T) {
	server, client := pairChannels(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for i := 0; i < 50; i++ {
		require.NoError(t, server.Send(ctx, protocol.New(protocol.TypeAck, protocol.AckPayload{Timestamp: time.Now()})))
	}
	for i := 0; i < 50; i++ {
		got, err := client.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, protocol.TypeAck, got.Type)
	}
}

func TestChannel_WrongKeyFailsAuthentication(t *testing.T) {
	serverKP, err := GenerateKeypair()
	require.NoError(t, err)
	clientKP, err := GenerateKeypair()
	require.NoError(t, err)
	wrongKP, err := GenerateKeypair()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ready := make(chan *Channel, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		ch, err := handshake(ctx, ws, serverKP, "hub", true)
		if err != nil {
			return
		}
		ready <- ch
	}))
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	ws, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)

	// The client advertises one key but seals with another, so every
	// frame it sends fails authentication on the server.
	ch, err := handshake(ctx, ws, clientKP, "laptop", false)
	require.NoError(t, err)
	ch.shared = [32]byte{}
	copy(ch.shared[:], wrongKP.Private[:])

	server := <-ready
	require.NoError(t, ch.Send(ctx, protocol.New(protocol.TypeSelect, protocol.SelectPayload{AgentKey: "k"})))
	_, err = server.Receive(ctx)
	assert.ErrorContains(t, err, "authentication")

	_ = ch.Close()
	_ = server.Close()
}
