// Package internaldefs holds the metric names, help strings and histogram
// bounds shared by the exporters.
//
// Both the Prometheus and OTel exporters read these definitions, so a name
// changed here changes in every exporter at once.
//
// # What this package must NOT do
//
//   - Import an exporter package.
//   - Perform I/O.
package internaldefs
