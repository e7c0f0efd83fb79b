// Package metrics defines the observability hooks of the state engine.
//
// Components receive a Recorder through their options. NoopRecorder is the
// default, so metrics cost nothing until a real implementation is injected:
//
//	reg := prometheus.NewRegistry()
//	svc := states.MustNewService(registry, store,
//	    states.WithRecorder(metrics.NewPrometheusRecorder(reg)),
//	)
//	http.Handle("/metrics", metrics.Handler(reg))
package metrics
