// Package internaldefs holds the metric names, help strings and histogram
// bounds shared by the Prometheus and OpenTelemetry exporters, so both
// expose identical series.
//
// This package performs no I/O and must not import an exporter package.
package internaldefs
