package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

var (
	enrollments      atomic.Int64
	ingestAccepted   atomic.Int64
	ingestFailed     atomic.Int64
	alertTransitions atomic.Int64
)

func IncEnrollments() {
	enrollments.Add(1)
}

func IncIngestAccepted() {
	ingestAccepted.Add(1)
}

func IncIngestFailed() {
	ingestFailed.Add(1)
}

func AddAlertTransitions(n int) {
	if n > 0 {
		alertTransitions.Add(int64(n))
	}
}

func WritePrometheus(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	fmt.Fprintf(w, "# HELP prevcare_enrollments_total Number of members enrolled since start.\n")
	fmt.Fprintf(w, "# TYPE prevcare_enrollments_total counter\n")
	fmt.Fprintf(w, "prevcare_enrollments_total %d\n", enrollments.Load())

	fmt.Fprintf(w, "# HELP prevcare_ingest_accepted_total Number of clinical events ingested successfully.\n")
	fmt.Fprintf(w, "# TYPE prevcare_ingest_accepted_total counter\n")
	fmt.Fprintf(w, "prevcare_ingest_accepted_total %d\n", ingestAccepted.Load())

	fmt.Fprintf(w, "# HELP prevcare_ingest_failed_total Number of clinical event ingests that rolled back.\n")
	fmt.Fprintf(w, "# TYPE prevcare_ingest_failed_total counter\n")
	fmt.Fprintf(w, "prevcare_ingest_failed_total %d\n", ingestFailed.Load())

	fmt.Fprintf(w, "# HELP prevcare_alert_transitions_total Number of care alert rows changed by recomputes.\n")
	fmt.Fprintf(w, "# TYPE prevcare_alert_transitions_total counter\n")
	fmt.Fprintf(w, "prevcare_alert_transitions_total %d\n", alertTransitions.Load())
}

func Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WritePrometheus(w)
	}
}
