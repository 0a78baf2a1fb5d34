package projection

import (
	"sort"

	"github.com/pulseops-lab/pulseops/internal/core/aggregation"
)

// rollupDaily folds rows into one value per date, summing across projects
// and dimension values. Dates without rows are omitted. A dau value summed
// across projects counts a user once per project.
// When splitByName is set, each value also carries its event_name breakdown.
func rollupDaily(rows []aggregation.DailyAggregate, splitByName bool) []AggregateValue {
	byDate := make(map[string]*AggregateValue)
	for _, row := range rows {
		v, ok := byDate[row.Date]
		if !ok {
			v = &AggregateValue{Date: row.Date}
			if splitByName {
				v.ByEventName = make(map[string]int64)
			}
			byDate[row.Date] = v
		}
		v.Value += row.MetricValue
		if splitByName {
			if name, ok := row.Dimensions["event_name"]; ok {
				v.ByEventName[name] += row.MetricValue
			}
		}
	}

	values := make([]AggregateValue, 0, len(byDate))
	for _, v := range byDate {
		values = append(values, *v)
	}

	sort.Slice(values, func(i, j int) bool {
		return values[i].Date < values[j].Date
	})

	return values
}

// rollupTotal sums daily values into a single value for the entire range.
func rollupTotal(daily []AggregateValue, from, to string) AggregateValue {
	total := AggregateValue{From: from, To: to}
	for _, v := range daily {
		total.Value += v.Value
		for name, n := range v.ByEventName {
			if total.ByEventName == nil {
				total.ByEventName = make(map[string]int64)
			}
			total.ByEventName[name] += n
		}
	}
	return total
}

func sumValues(values []AggregateValue) int64 {
	var n int64
	for _, v := range values {
		n += v.Value
	}
	return n
}
