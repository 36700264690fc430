// Package blob holds the short-lived documents and files a preview loads.
//
// A blob belongs to one run. The renderer revokes all of a run's blobs when
// the preview reports it has loaded; blobs that are never loaded expire after
// the configured TTL and are removed by the sweeper.
package blob
