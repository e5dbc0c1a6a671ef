// Package metrics provides operational metrics collection.
//
// Collectors are registered on a caller-supplied Prometheus registerer so each
// process (and each test) owns its registry. The HTTP middleware records:
//   - Request count by route pattern, method and status
//   - Request latency by route pattern and method
//
// Route patterns come from chi so path parameters do not explode label
// cardinality.
package metrics
