// ABOUTME: Package tui is the local terminal UI for the hub.
// ABOUTME: A bubbletea model that renders hub snapshots and emits actions.

// Package tui renders the agent list and the selected agent's terminal
// in the operator's own terminal. It is a pure view over the hub: all
// state changes go through actions, and all display state comes from
// hub snapshots and the local delivery sink.
package tui
