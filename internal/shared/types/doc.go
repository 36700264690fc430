// Package types provides shared data structures for the VibeCoder backend.
//
// Core Types:
//   - ConsoleMessage: one captured console call or uncaught error
//   - ConsoleLine: a formatted console panel entry
//   - RunState, Run: sandbox run lifecycle
//
// Request Types:
//   - CreateWorkspaceRequest, NodeRequest, RenameRequest, MoveRequest
//   - RelayMessage: payload posted by the preview console shim
//   - WSMessage: host websocket frames
package types
