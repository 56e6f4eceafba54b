package clustering

import "time"

// GroupByTimeWindow partitions time-sorted requests into groups anchored on
// their first member. A request joins the open group while its departure is
// within window of the anchor. Groups smaller than minSamples are returned as
// discarded and never reach the spatial stage.
func GroupByTimeWindow(sorted []TripRequest, window time.Duration, minSamples int) (groups [][]TripRequest, discarded []TripRequest) {
	if len(sorted) == 0 {
		return nil, nil
	}

	closeGroup := func(g []TripRequest) {
		if len(g) >= minSamples {
			groups = append(groups, g)
			return
		}
		discarded = append(discarded, g...)
	}

	current := []TripRequest{sorted[0]}
	anchor := sorted[0].DepartureTime
	for _, r := range sorted[1:] {
		if r.DepartureTime.Sub(anchor) <= window {
			current = append(current, r)
			continue
		}
		closeGroup(current)
		current = []TripRequest{r}
		anchor = r.DepartureTime
	}
	closeGroup(current)
	return groups, discarded
}
