package simulation

import (
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/hagall-spatial/models"
	"github.com/aukilabs/hagall-spatial/spatial"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	indexLabel   = "index"
	opLabel      = "op"
	errTypeLabel = "error_type"
)

var (
	indexOpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "index_op_latency",
		Help:    "The time to run an index operation.",
		Buckets: prometheus.ExponentialBuckets(0.000001, 4, 10),
	}, []string{
		indexLabel,
		opLabel,
	})

	indexOpErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "index_op_errors",
		Help: "The errors that occured while running an index operation.",
	}, []string{
		indexLabel,
		opLabel,
		errTypeLabel,
	})

	indexQueryResults = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "index_query_results",
		Help:    "The number of agents returned by a query.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	}, []string{
		indexLabel,
	})

	indexElements = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "index_elements",
		Help: "The number of elements in an index.",
	}, []string{
		indexLabel,
	})

	indexNodes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "index_nodes",
		Help: "The number of nodes or non-empty cells in an index.",
	}, []string{
		indexLabel,
	})

	indexSplits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "index_splits",
		Help: "The number of node splits.",
	}, []string{
		indexLabel,
	})

	indexMerges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "index_merges",
		Help: "The number of node merges.",
	}, []string{
		indexLabel,
	})

	simulationStepLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "simulation_step_latency",
		Help: "The time to run a simulation step.",
	}, []string{
		indexLabel,
	})
)

// IndexWithMetrics measures the operations of the given index and reports
// its statistics after every maintenance pass.
func IndexWithMetrics(idx Index) Index {
	return &indexWithMetrics{
		Index: idx,
	}
}

type indexWithMetrics struct {
	Index

	splits uint64
	merges uint64
}

func (i *indexWithMetrics) Insert(a *models.Agent) error {
	return i.measureLatency(opInsert, func() error {
		return i.Index.Insert(a)
	})
}

func (i *indexWithMetrics) BulkInsert(a *models.Agent) error {
	return i.measureLatency(opInsert, func() error {
		return bulkInsert(i.Index, a)
	})
}

func (i *indexWithMetrics) Remove(a *models.Agent) error {
	return i.measureLatency(opRemove, func() error {
		return i.Index.Remove(a)
	})
}

func (i *indexWithMetrics) Move(a *models.Agent, fromX, fromY float64) error {
	return i.measureLatency(opMove, func() error {
		return i.Index.Move(a, fromX, fromY)
	})
}

func (i *indexWithMetrics) Query(r spatial.Rect[float64], omit *models.Agent) []*models.Agent {
	var res []*models.Agent
	i.measureLatency(opQuery, func() error {
		res = i.Index.Query(r, omit)
		return nil
	})

	indexQueryResults.
		With(prometheus.Labels{indexLabel: i.Name()}).
		Observe(float64(len(res)))
	return res
}

func (i *indexWithMetrics) Maintain() {
	i.measureLatency(opMaintain, func() error {
		i.Index.Maintain()
		return nil
	})

	s := i.Stats()
	labels := prometheus.Labels{indexLabel: i.Name()}

	indexElements.With(labels).Set(float64(s.Elements))
	indexNodes.With(labels).Set(float64(s.Nodes))

	if s.Splits > i.splits {
		indexSplits.With(labels).Add(float64(s.Splits - i.splits))
	}
	if s.Merges > i.merges {
		indexMerges.With(labels).Add(float64(s.Merges - i.merges))
	}
	i.splits = s.Splits
	i.merges = s.Merges
}

func (i *indexWithMetrics) measureLatency(op string, f func() error) error {
	start := time.Now()

	err := f()
	if err != nil {
		indexOpErrors.With(prometheus.Labels{
			indexLabel:   i.Name(),
			opLabel:      op,
			errTypeLabel: errors.Type(err),
		}).Inc()
		return err
	}

	indexOpLatency.With(prometheus.Labels{
		indexLabel: i.Name(),
		opLabel:    op,
	}).Observe(time.Since(start).Seconds())

	return nil
}

func instrumentStep(index string, d time.Duration) {
	simulationStepLatency.
		With(prometheus.Labels{indexLabel: index}).
		Observe(d.Seconds())
}
