// Package core implements the request/callback broker: the durable
// request state machine, submission, the dedupe-lock-guarded worker
// loop with result caching and retry, and the callback consumption
// pipeline. Producers plug in via ComputeFunc, presentation layers via
// callback consumers; both are external to this package.
package core
