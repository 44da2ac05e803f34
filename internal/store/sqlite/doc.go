// Package sqlite provides durable storage for saga failure logs and orders.
//
// Failure logs are append-only: the store exposes no update or delete. Step
// lists and the context snapshot are stored as JSON text columns.
package sqlite
