/*
Package workspace holds editor sessions: a file tree plus the state around
it (active file, expanded folders, auto-run flag, console panel and the
latest run).

The Manager keeps loaded workspaces in memory, serialises every mutation of
a workspace behind that workspace's own lock and writes the document back to
a Store after each tree change. Console lines and run state are kept in
memory only.

Stores persist one JSON document per workspace under
workspaces/<id>.json, either on local disk (FileStore) or in an S3 bucket
(S3Store).
*/
package workspace
