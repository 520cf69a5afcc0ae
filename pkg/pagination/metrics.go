package pagination

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zoomphone_pages_total",
		Help: "Total number of response pages interpreted by the paginator",
	}, []string{"stream"})

	windowsAdvanced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zoomphone_date_windows_completed_total",
		Help: "Total number of monthly date windows paged through",
	}, []string{"stream"})

	batchFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zoomphone_batch_fetches_total",
		Help: "Items fetched by batch workers, by outcome",
	}, []string{"outcome"})
)
