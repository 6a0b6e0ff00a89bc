// Package prometheus exposes passly metrics through a client_golang
// [prometheus.Collector].
//
// [NewExporter] wraps an [passly.Engine]. Register the exporter with any
// registry, or mount [Exporter.Handler], which serves it from a private
// registry. Counter names are passly_*_total; the single histogram is
// passly_password_hash_duration_seconds.
//
// # What this package must NOT do
//
//   - Register in the global Prometheus registry on its own.
//   - Mutate engine state.
package prometheus
