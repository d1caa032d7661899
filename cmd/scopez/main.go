// Scopez is a demo host for the scopez trace aggregation library.
//
// It opens scopes around simulated units of work and sends every finalized
// record to the sinks selected in the configuration.
//
// Usage:
//
//	# Run 20 concurrent flows, failing every 5th one
//	scopez run --flows 20 --fail-every 5
//
//	# Serve HTTP requests, each traced in its own root scope
//	scopez serve --addr :8080
//
//	# Show version information
//	scopez version
package main

func main() {
	Execute()
}
