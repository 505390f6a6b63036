package catchup

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "masomo_catchup_sessions_started_total",
		Help: "Total number of catch-up sessions started",
	})

	sessionsLive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "masomo_catchup_sessions_live",
		Help: "Number of catch-up sessions held in memory",
	})

	sessionOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "masomo_catchup_session_outcomes_total",
		Help: "Total number of sessions reaching a terminal state, by state and reason",
	}, []string{"state", "reason"})

	heartbeatsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "masomo_catchup_heartbeats_total",
		Help: "Total number of heartbeats posted to the attendance service, by result",
	}, []string{"result"})

	quizSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "masomo_catchup_quiz_submissions_total",
		Help: "Total number of scored quiz submissions, by verdict",
	}, []string{"verdict"})

	finalizeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "masomo_catchup_finalize_errors_total",
		Help: "Total number of finalize calls that failed and left the session retryable",
	})
)

func recordOutcome(state State, reason trigger) {
	sessionOutcomes.WithLabelValues(string(state), string(reason)).Inc()
}

func recordHeartbeat(ok bool) {
	if ok {
		heartbeatsTotal.WithLabelValues("ok").Inc()
		return
	}
	heartbeatsTotal.WithLabelValues("failed").Inc()
}

func recordQuiz(passed bool) {
	if passed {
		quizSubmissions.WithLabelValues("passed").Inc()
		return
	}
	quizSubmissions.WithLabelValues("failed").Inc()
}
