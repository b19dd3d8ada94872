// Package ui implements the watch mode dashboard using bubbletea's Elm architecture.
//
// The dashboard has two views:
//  1. [DashboardView] : every task with its latest status, plus a log of recent events
//  2. [DetailView] : the selected task's recorded steps, last trigger and last error
//
// The [Model] implements bubbletea's Init/Update/View pattern, receiving messages via the Msg union type.
// [host.Event] values flow through a channel from the host's watch loop; the channel closing means watch mode stopped.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, c, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
