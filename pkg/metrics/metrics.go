// Package metrics holds the label names shared by the instrumented
// components, so dashboards can rely on consistent labelling.
package metrics

const (
	LabelSuccess = "success"
	LabelAction  = "action"
)
