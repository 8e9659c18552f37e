package simulation

import (
	"context"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/hagall-spatial/models"
	"github.com/aukilabs/hagall-spatial/spatial"
)

const (
	opInsert   = "insert"
	opRemove   = "remove"
	opMove     = "move"
	opQuery    = "query"
	opMaintain = "maintain"
)

// IndexWithLogs logs the failed operations of the given index and a summary
// of the operations run every summaryInterval.
func IndexWithLogs(idx Index, summaryInterval time.Duration) Index {
	ctx, cancel := context.WithCancel(context.Background())

	index := &indexWithLogs{
		Index:              idx,
		summaryInterval:    summaryInterval,
		closeSummaryWorker: cancel,
		counter:            make(map[string]int),
	}

	go index.startSummaryWorker(ctx)
	return index
}

type indexWithLogs struct {
	Index

	summaryInterval    time.Duration
	closeSummaryWorker func()
	counterMutex       sync.Mutex
	counter            map[string]int
}

func (i *indexWithLogs) Insert(a *models.Agent) error {
	err := i.Index.Insert(a)
	i.logOp(opInsert, a, err)
	return err
}

func (i *indexWithLogs) BulkInsert(a *models.Agent) error {
	err := bulkInsert(i.Index, a)
	i.logOp(opInsert, a, err)
	return err
}

func (i *indexWithLogs) Remove(a *models.Agent) error {
	err := i.Index.Remove(a)
	i.logOp(opRemove, a, err)
	return err
}

func (i *indexWithLogs) Move(a *models.Agent, fromX, fromY float64) error {
	err := i.Index.Move(a, fromX, fromY)
	i.logOp(opMove, a, err)
	return err
}

func (i *indexWithLogs) Query(r spatial.Rect[float64], omit *models.Agent) []*models.Agent {
	res := i.Index.Query(r, omit)
	i.incCounter(opQuery)
	return res
}

func (i *indexWithLogs) Maintain() {
	start := time.Now()
	i.Index.Maintain()
	i.incCounter(opMaintain)

	logs.WithTag("index", i.Name()).
		WithTag("duration", time.Since(start)).
		Debug("index maintained")
}

func (i *indexWithLogs) Close() {
	i.Index.Close()
	i.closeSummaryWorker()
	i.logSummary()
}

func (i *indexWithLogs) logOp(op string, a *models.Agent, err error) {
	if err != nil {
		logs.WithTag("index", i.Name()).
			WithTag("op", op).
			WithTag("agent_id", a.ID()).
			Error(errors.New("index operation failed").Wrap(err))
		return
	}

	i.incCounter(op)
}

func (i *indexWithLogs) startSummaryWorker(ctx context.Context) {
	ticker := time.NewTicker(i.summaryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			i.logSummary()
		}
	}
}

func (i *indexWithLogs) incCounter(op string) {
	i.counterMutex.Lock()
	defer i.counterMutex.Unlock()

	i.counter[op]++
}

func (i *indexWithLogs) logSummary() {
	i.counterMutex.Lock()
	defer i.counterMutex.Unlock()

	if len(i.counter) == 0 {
		return
	}

	entry := logs.
		WithTag("index", i.Name()).
		WithTag("time_interval", i.summaryInterval)

	for k, v := range i.counter {
		entry = entry.WithTag(k, v)
		delete(i.counter, k)
	}

	entry.Info("index operation summary")
}

// bulkInsert bulk inserts the agent when the index supports it.
func bulkInsert(idx Index, a *models.Agent) error {
	if l, ok := idx.(BulkLoader); ok {
		return l.BulkInsert(a)
	}
	return idx.Insert(a)
}
