// Package vfs holds the in-memory tree of files and folders that make up a
// sandbox workspace.
//
// A Node is a tagged variant: a File carries Content, a Folder carries
// Children. Node IDs are slash-separated paths derived from names, so
// renaming or moving a node rewrites its ID and the IDs of everything
// below it.
//
// Name conflicts never fail an operation: a clashing name is suffixed with
// a counter ("app.js" becomes "app-1.js").
//
// A Tree is not safe for concurrent use; the workspace manager serialises
// access.
package vfs
