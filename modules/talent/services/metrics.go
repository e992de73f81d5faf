package services

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tenureTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "talent",
		Subsystem: "tenure",
		Name:      "transitions_total",
		Help:      "Total number of tenure lifecycle calls broken down by tenure kind and resulting action.",
	}, []string{"kind", "action"})

	checkInCompletions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "talent",
		Subsystem: "check_in",
		Name:      "completions_total",
		Help:      "Total number of check-in completion calls broken down by side and whether a completion was detected.",
	}, []string{"side", "detected"})

	executions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "talent",
		Subsystem: "snapshot",
		Name:      "executions_total",
		Help:      "Total number of snapshot executions broken down by result.",
	}, []string{"result"})

	skippedFieldGroups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "talent",
		Subsystem: "snapshot",
		Name:      "skipped_field_groups_total",
		Help:      "Total number of proposed field groups skipped for lack of authorization.",
	}, []string{"field_group"})

	writeConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "talent",
		Subsystem: "write",
		Name:      "conflicts_total",
		Help:      "Total number of store constraint violations broken down by kind.",
	}, []string{"kind"})
)

func recordTenureTransition(kind string, action TenureAction) {
	tenureTransitions.WithLabelValues(kind, string(action)).Inc()
}

func recordCompletion(side string, detected bool) {
	checkInCompletions.WithLabelValues(side, strconv.FormatBool(detected)).Inc()
}

func recordExecution(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	executions.WithLabelValues(result).Inc()
}

func recordSkippedFieldGroup(group string) {
	skippedFieldGroups.WithLabelValues(group).Inc()
}

func recordWriteConflict(kind string) {
	if kind == "" {
		kind = "other"
	}
	writeConflicts.WithLabelValues(kind).Inc()
}
