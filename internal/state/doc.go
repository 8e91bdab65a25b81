// Package state provides the client's filesystem-backed local storage:
// user preferences and a per-session log of streamed turns.
package state
