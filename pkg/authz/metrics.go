package authz

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var decisions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "authz",
	Subsystem: "field_group",
	Name:      "decisions_total",
	Help:      "Total number of field-group authorization decisions broken down by mode, group and result.",
}, []string{"mode", "field_group", "result"})

func recordDecision(mode Mode, group FieldGroup, allowed bool) {
	result := "denied"
	if allowed {
		result = "allowed"
	}
	decisions.WithLabelValues(string(mode), string(group), result).Inc()
}
