// Package health runs named readiness checks against the queue driver, the
// database and the outbound service breaker and folds them into one report.
//
// An unhealthy check makes the whole report unhealthy; a degraded check only
// downgrades a healthy report.
package health
