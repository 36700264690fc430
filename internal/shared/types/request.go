package types

import "encoding/json"

// CreateWorkspaceRequest creates a workspace from a template
type CreateWorkspaceRequest struct {
	Name     string `json:"name"`
	Template string `json:"template"`
	AutoRun  *bool  `json:"auto_run,omitempty"`
}

// NodeRequest adds a file or folder
type NodeRequest struct {
	ParentID string `json:"parent_id"`
	Name     string `json:"name" binding:"required"`
	Folder   bool   `json:"folder"`
	Content  string `json:"content"`
}

// ContentRequest replaces a file's content
type ContentRequest struct {
	Content string `json:"content"`
}

// RenameRequest renames a node
type RenameRequest struct {
	Name string `json:"name" binding:"required"`
}

// MoveRequest re-parents a node
type MoveRequest struct {
	ParentID string `json:"parent_id"`
}

// ActiveRequest selects the active file
type ActiveRequest struct {
	FileID *string `json:"file_id"`
}

// ExpandRequest opens or closes a folder in the tree view
type ExpandRequest struct {
	FolderID string `json:"folder_id" binding:"required"`
	Expanded bool   `json:"expanded"`
}

// RelayMessage is posted by the console shim inside the preview document.
// Type is "console" or "loaded".
type RelayMessage struct {
	Type   string            `json:"type"`
	Method string            `json:"method,omitempty"`
	Args   []json.RawMessage `json:"args,omitempty"`
	File   string            `json:"file,omitempty"`
}

// WSMessage is a frame sent to host websocket subscribers. Console and run
// frames are flat: the embedded line or run fields sit beside "type".
type WSMessage struct {
	Type      string `json:"type"`
	Workspace string `json:"workspace_id,omitempty"`
	*ConsoleLine
	*Run
	Message   string `json:"message,omitempty"`
	Version   int    `json:"version,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Host websocket frame types
const (
	FrameConsole = "console"
	FrameClear   = "clear"
	FrameRun     = "run"
	FrameSystem  = "system"
	FramePong    = "pong"
	FrameError   = "error"
)
