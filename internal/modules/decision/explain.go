package decision

import (
	"fmt"
	"strings"
)

// Explain renders a decision as operator-facing text.
func Explain(d *Decision) string {
	var b strings.Builder
	verdict := "wait"
	if d.ShouldDepart {
		verdict = "depart now"
	}
	fmt.Fprintf(&b, "Decision: %s\n", verdict)
	fmt.Fprintf(&b, "Reason: %s\n\n", d.Reason)
	b.WriteString("Metrics:\n")
	fmt.Fprintf(&b, "- passengers: %d (minimum %d)\n", d.Metrics.PassengerCount, d.Thresholds.MinPassengers)
	fmt.Fprintf(&b, "- occupancy: %.0f%% of %d seats (minimum %.0f%%)\n",
		d.Metrics.OccupancyRate*100, d.Metrics.Capacity, d.Thresholds.MinOccupancyRate*100)
	fmt.Fprintf(&b, "- wait time: %d min (limit %d min)\n", d.Metrics.WaitMinutes, d.Thresholds.MaxWaitMinutes)
	fmt.Fprintf(&b, "- profitability: %.2f (cutoff %.2f)", d.Metrics.Profitability, d.Thresholds.ProfitCutoff)
	if d.Metrics.PeakHour {
		b.WriteString(", peak hour")
	}
	return b.String()
}
