// Package services builds the baseline service graph from configuration.
//
// Build constructs the index, embedding adapter, scrubber, event publisher,
// memory store, retrieval aggregator and ingestion pipeline in dependency
// order. The daemon and the workflow worker both start from a Registry.
package services
