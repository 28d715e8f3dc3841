// Package prometheus exposes formauth engine metrics through
// github.com/prometheus/client_golang.
//
// [Collector] implements prometheus.Collector and reads an engine snapshot on
// every scrape. [NewHandler] wraps it in a dedicated registry so nothing is
// registered globally. Counter names are prefixed formauth_ and end in
// _total; the single histogram is formauth_authenticate_latency_seconds.
package prometheus
