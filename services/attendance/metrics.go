package attendancesvc

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "masomo_attendance_request_duration_seconds",
	Help:    "Duration of attendance service requests, by method and status",
	Buckets: prometheus.DefBuckets,
}, []string{"method", "status"})

func recordRequest(method string, status int, d time.Duration) {
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	requestDuration.WithLabelValues(method, code).Observe(d.Seconds())
}
