package upload

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// uploadsTotal — количество файловых операций по типу и результату.
var uploadsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "bb_uploads_total",
		Help: "Количество операций с загруженными файлами",
	},
	[]string{"operation", "result"},
)
