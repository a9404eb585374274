/*
Package monitoring provides metrics collection for the bridge host.

# Overview

This package implements Prometheus-based metrics collection for the host
process, tracking bridge dispatches, handle registry occupancy, WebSocket
channel traffic, and the HTTP surface.

# Features

- Dispatch metrics (count, duration, error kind, per target kind)
- Handle registry metrics (live handles, total registered)
- WebSocket channel metrics (connected peers, broadcast volume)
- HTTP request metrics (method, path, status)

# Usage

	// Create metrics collector
	metrics := monitoring.NewMetrics()

	// Add middleware to Gin router
	router.Use(monitoring.Middleware(metrics))

	// Record a dispatch outcome
	metrics.RecordDispatch("path", elapsed, "")
	metrics.SetHandles(registry.Size())

# Metrics Endpoint

Expose metrics via the standard Prometheus endpoint:

	router.GET("/metrics", gin.WrapH(metrics.Handler()))
*/
package monitoring
