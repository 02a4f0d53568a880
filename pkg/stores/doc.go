// Package stores provides persistence layer implementations. It includes
// SQLite-based storage with WAL mode, embedded migrations, and the
// object-state, job, alert and event tables backing the engine, the alert
// service and the event recorder.
package stores
