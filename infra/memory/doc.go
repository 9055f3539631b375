// Package memory provides the low-level primitives for object reuse and
// safe reclamation. Each event worker allocates orders from a typed pool
// and retires terminal ones into a ring; a background job advances the
// global epoch and returns retired orders to the pool once no epoch
// reader (snapshot or depth query) can still observe them.
//
// The package is dependency-free and forms the foundation for the
// single-writer/multi-reader model used by the engine.
package memory
