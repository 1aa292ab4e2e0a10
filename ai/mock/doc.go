// Package mock provides deterministic test doubles for the ai service
// contracts. Every double supports behavior injection through function
// fields and records call counts for assertions.
package mock
