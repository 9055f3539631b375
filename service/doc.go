// Package service orchestrates the core components of the matching
// engine: per-event books, chaos injection, journaling, snapshots and
// downstream publication.
//
// It is the only write entry point into the system and provides a clean
// API for submitting, amending and querying orders, decoupled from
// network transports like gRPC and websockets.
package service
