package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/bundlex/internal/host"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgTaskEvent MsgKind = iota
	MsgWatchStopped
)

// taskEventMsg is the constructor for [MsgTaskEvent]
func taskEventMsg(ev host.Event) Msg {
	return Msg{kind: MsgTaskEvent, data: ev}
}

// watchStoppedMsg is the constructor for [MsgWatchStopped]
func watchStoppedMsg() Msg {
	return Msg{kind: MsgWatchStopped}
}
