/*
Package monitoring provides Prometheus metrics for the backend.

# Overview

Metrics cover HTTP traffic, sandbox runs, preview blobs, console relay,
headless checks, workspace persistence, the vendor mirror and WebSocket
subscribers. A Snapshot of the headline numbers backs the JSON stats
endpoint.

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))

	timer := monitoring.NewTimer(metrics, "manual")
	// ... assemble and publish ...
	timer.Stop("success")

# Metrics Endpoint

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
*/
package monitoring
