// ABOUTME: Remote terminal client for a botster hub.
// ABOUTME: Dials the encrypted attach endpoint and mirrors one agent's terminal.

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/Tonksthebear/trybotster-sub005/internal/lifecycle"
	"github.com/Tonksthebear/trybotster-sub005/internal/protocol"
	"github.com/Tonksthebear/trybotster-sub005/internal/transport"
)

// quitKey detaches the client. Ctrl+Q is rarely meaningful to an agent
// process and survives raw mode.
const quitKey = 0x11

// outboundDepth bounds the queue between producers (stdin, resize,
// lifecycle) and the single channel writer.
const outboundDepth = 64

// getToken returns the pairing token from BOTSTER_TOKEN or the token
// file next to the config.
func getToken() string {
	if token := os.Getenv("BOTSTER_TOKEN"); token != "" {
		return token
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	data, err := os.ReadFile(filepath.Join(configDir, "botster", "token"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func main() {
	url := flag.String("url", "ws://localhost:8080/attach", "Hub attach endpoint")
	agentKey := flag.String("agent", "", "Agent key to view (repo#branch)")
	device := flag.String("device", hostnameOr("botster-attach"), "Device name for the handshake")
	list := flag.Bool("list", false, "List agents and exit")
	flag.Parse()

	token := getToken()
	if token == "" {
		fmt.Fprintln(os.Stderr, "No pairing token. Set BOTSTER_TOKEN or save one to ~/.config/botster/token (botster token).")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *url, token, *device, *agentKey, *list); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func hostnameOr(fallback string) string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return fallback
	}
	return name
}

// run dials with reconnect backoff and hands each established channel to
// a session. A clean detach (quit key, hub-side close) ends the loop; a
// transport failure retries until the backoff is exhausted.
func run(ctx context.Context, url, token, device, agentKey string, list bool) error {
	keypair, err := transport.GenerateKeypair()
	if err != nil {
		return fmt.Errorf("generating keypair: %w", err)
	}

	backoff := lifecycle.NewBackoff()
	for {
		ch, err := transport.Dial(ctx, transport.DialConfig{
			URL:        url,
			Token:      token,
			DeviceName: device,
			Keypair:    keypair,
		})
		if err != nil {
			delay, ok := backoff.Next()
			if !ok {
				return fmt.Errorf("giving up after %d attempts: %w", backoff.Attempt(), err)
			}
			fmt.Fprintf(os.Stderr, "connect failed (%v), retrying in %s\r\n", err, delay)
			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				return nil
			}
		}

		backoff.Reset()
		done, err := runSession(ctx, ch, device, agentKey, list)
		_ = ch.Close()
		if done || err != nil {
			return err
		}
		// The peer went away; fall through into the redial loop.
	}
}

// runSession drives one established channel until detach or failure.
// The bool result reports whether the user is done (no reconnect).
func runSession(ctx context.Context, ch *transport.Channel, device, agentKey string, list bool) (bool, error) {
	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	outbound := make(chan protocol.Message, outboundDepth)
	send := func(msg protocol.Message) bool {
		select {
		case outbound <- msg:
			return true
		default:
			return false
		}
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case msg := <-outbound:
				if err := ch.Send(sessionCtx, msg); err != nil {
					cancel()
					return
				}
			case <-sessionCtx.Done():
				return
			}
		}
	}()

	connected := make(chan struct{})
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))
	lc := lifecycle.New(device, send, lifecycle.Callbacks{
		OnConnected: func(string) { close(connected) },
	}, discard)
	defer lc.Disconnect()

	lc.BeginConnecting(true)
	lc.ChannelEstablished()
	lc.Subscribed()
	// The hub side is already subscribed and opens the handshake; this
	// side answers the incoming connected with an ack.

	inbound := make(chan protocol.Message, outboundDepth)
	readErr := make(chan error, 1)
	go func() {
		for {
			msg, err := ch.Receive(sessionCtx)
			if err != nil {
				readErr <- err
				return
			}
			select {
			case inbound <- msg:
			case <-sessionCtx.Done():
				return
			}
		}
	}()

	// Wait for the handshake before touching the terminal.
	select {
	case <-connected:
	case err := <-readErr:
		return false, fmt.Errorf("before handshake: %w", err)
	case msg := <-inbound:
		if !lc.HandleMessage(msg) {
			return false, fmt.Errorf("unexpected %s before handshake", msg.Type)
		}
		select {
		case <-connected:
		case <-time.After(10 * time.Second):
			return false, fmt.Errorf("handshake timed out")
		case <-sessionCtx.Done():
			return true, nil
		}
	case <-sessionCtx.Done():
		return true, nil
	}

	if list {
		send(protocol.New(protocol.TypeListAgents, nil))
		return true, awaitListing(sessionCtx, lc, inbound, readErr)
	}

	fmt.Printf("attached to %s as %s  (Ctrl+Q to detach)\r\n", ch.Peer().DeviceName, device)

	if agentKey != "" {
		send(protocol.New(protocol.TypeSelect, protocol.SelectPayload{AgentKey: agentKey}))
	} else {
		send(protocol.New(protocol.TypeListAgents, nil))
	}

	fd := int(os.Stdin.Fd())
	var restore func()
	if term.IsTerminal(fd) {
		oldState, err := term.MakeRaw(fd)
		if err != nil {
			return true, fmt.Errorf("entering raw mode: %w", err)
		}
		restore = func() { _ = term.Restore(fd, oldState) }
		defer restore()

		sendSize(send, fd)
		go watchResize(sessionCtx, send, fd)
	}

	quit := make(chan struct{})
	go readStdin(sessionCtx, send, quit)

	for {
		select {
		case msg := <-inbound:
			if lc.HandleMessage(msg) {
				continue
			}
			handleHubMessage(msg, agentKey)
		case err := <-readErr:
			if restore != nil {
				restore()
				restore = nil
			}
			if sessionCtx.Err() != nil {
				return true, nil
			}
			fmt.Fprintf(os.Stderr, "\r\nconnection lost: %v\r\n", err)
			lc.PeerGone()
			return false, nil
		case <-quit:
			return true, nil
		case <-sessionCtx.Done():
			return true, nil
		}
	}
}

// awaitListing prints one agents response and returns.
func awaitListing(ctx context.Context, lc *lifecycle.Conn, inbound <-chan protocol.Message, readErr <-chan error) error {
	for {
		select {
		case msg := <-inbound:
			if lc.HandleMessage(msg) {
				continue
			}
			if msg.Type != protocol.TypeAgents {
				continue
			}
			var payload protocol.AgentsPayload
			if err := msg.Decode(&payload); err != nil {
				return err
			}
			printAgents(payload)
			return nil
		case err := <-readErr:
			return err
		case <-ctx.Done():
			return nil
		case <-time.After(10 * time.Second):
			return fmt.Errorf("timed out waiting for agent listing")
		}
	}
}

func printAgents(payload protocol.AgentsPayload) {
	if len(payload.Agents) == 0 {
		fmt.Println("no agents")
		return
	}
	for _, a := range payload.Agents {
		state := "running"
		if !a.Running {
			state = "exited"
		}
		fmt.Printf("%-40s %-8s %s\n", a.Key, state, a.Workspace)
	}
}

// handleHubMessage renders hub deliveries onto the raw terminal.
func handleHubMessage(msg protocol.Message, agentKey string) {
	switch msg.Type {
	case protocol.TypeScrollback:
		var payload protocol.ScrollbackPayload
		if err := msg.Decode(&payload); err == nil {
			os.Stdout.Write(payload.Bytes)
		}
	case protocol.TypeOutput:
		var payload protocol.OutputPayload
		if err := msg.Decode(&payload); err == nil {
			os.Stdout.Write(payload.Bytes)
		}
	case protocol.TypeAgents:
		// Delivered when no agent was named on the command line.
		if agentKey != "" {
			return
		}
		var payload protocol.AgentsPayload
		if err := msg.Decode(&payload); err == nil {
			fmt.Print("\r\nagents (rerun with --agent KEY):\r\n")
			for _, a := range payload.Agents {
				fmt.Printf("  %s\r\n", a.Key)
			}
		}
	case protocol.TypeDeleted:
		var payload protocol.DeletedPayload
		if err := msg.Decode(&payload); err == nil && payload.AgentKey == agentKey {
			fmt.Printf("\r\nagent %s closed\r\n", payload.AgentKey)
		}
	case protocol.TypeError:
		var payload protocol.ErrorPayload
		if err := msg.Decode(&payload); err == nil {
			fmt.Printf("\r\n[hub] %s\r\n", payload.Message)
		}
	}
}

// readStdin forwards terminal input, reserving only the quit key.
func readStdin(ctx context.Context, send func(protocol.Message) bool, quit chan<- struct{}) {
	buf := make([]byte, 4096)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			if err != io.EOF {
				fmt.Fprintf(os.Stderr, "\r\nreading stdin: %v\r\n", err)
			}
			close(quit)
			return
		}
		if ctx.Err() != nil {
			return
		}
		data := buf[:n]
		for _, b := range data {
			if b == quitKey {
				close(quit)
				return
			}
		}
		payload := make([]byte, n)
		copy(payload, data)
		send(protocol.New(protocol.TypeInput, protocol.InputPayload{Bytes: payload}))
	}
}

// sendSize reports the terminal geometry to the hub.
func sendSize(send func(protocol.Message) bool, fd int) {
	width, height, err := term.GetSize(fd)
	if err != nil {
		return
	}
	send(protocol.New(protocol.TypeResize, protocol.ResizePayload{
		Rows: uint16(height),
		Cols: uint16(width),
	}))
}

// watchResize re-reports geometry on every SIGWINCH.
func watchResize(ctx context.Context, send func(protocol.Message) bool, fd int) {
	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	defer signal.Stop(winch)

	for {
		select {
		case <-winch:
			sendSize(send, fd)
		case <-ctx.Done():
			return
		}
	}
}
