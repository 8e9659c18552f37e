package models

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// World is the area where agents move. It tracks the agents and the viewers
// watching it, and dispatches frames to the handlers registered with
// HandleFrame.
type World struct {
	ID     string
	Index  string
	Width  float64
	Height float64

	agentIDs   SequentialIDGenerator
	agentMutex sync.RWMutex
	agents     map[int]*Agent

	viewerMutex sync.RWMutex
	viewers     map[string]*Viewer

	startFrameOnce  sync.Once
	closeFrameChan  chan struct{}
	frameTicker     *time.Ticker
	frameHandlerIDs SequentialIDGenerator
	frameHandlers   map[int]func()
	frameMutex      sync.RWMutex

	closeOnce sync.Once
}

func NewWorld(index string, width, height float64, frameDuration time.Duration) *World {
	return &World{
		ID:             uuid.New().String(),
		Index:          index,
		Width:          width,
		Height:         height,
		agents:         make(map[int]*Agent),
		viewers:        make(map[string]*Viewer),
		closeFrameChan: make(chan struct{}, 1),
		frameTicker:    time.NewTicker(frameDuration),
		frameHandlers:  make(map[int]func()),
	}
}

func (w *World) Close() {
	w.closeOnce.Do(func() {
		w.frameTicker.Stop()
		w.closeFrameChan <- struct{}{}
	})
}

func (w *World) NewAgentID() int {
	return w.agentIDs.New()
}

func (w *World) AddAgent(a *Agent) {
	w.agentMutex.Lock()
	defer w.agentMutex.Unlock()

	w.agents[a.ID()] = a

	instrumentIncreaseAgentGauge(w.Index)
	instrumentCountAgent(w.Index)
}

// RemoveAgent removes the agent and makes its id available again.
func (w *World) RemoveAgent(a *Agent) {
	w.agentMutex.Lock()
	defer w.agentMutex.Unlock()

	if _, ok := w.agents[a.ID()]; !ok {
		return
	}

	delete(w.agents, a.ID())
	w.agentIDs.Reuse(a.ID())

	instrumentDecreaseAgentGauge(w.Index)
}

func (w *World) AgentByID(id int) (*Agent, bool) {
	w.agentMutex.RLock()
	defer w.agentMutex.RUnlock()

	a, ok := w.agents[id]
	return a, ok
}

// Agents returns the agents ordered by id.
func (w *World) Agents() []*Agent {
	w.agentMutex.RLock()
	defer w.agentMutex.RUnlock()

	agents := make([]*Agent, 0, len(w.agents))
	for _, a := range w.agents {
		agents = append(agents, a)
	}

	sort.Slice(agents, func(i, j int) bool {
		return agents[i].ID() < agents[j].ID()
	})
	return agents
}

func (w *World) AgentCount() int {
	w.agentMutex.RLock()
	defer w.agentMutex.RUnlock()

	return len(w.agents)
}

func (w *World) AddViewer(v *Viewer) {
	w.viewerMutex.Lock()
	defer w.viewerMutex.Unlock()

	if _, ok := w.viewers[v.ID]; !ok {
		instrumentViewerGauge(w.Index, 1)
	}
	w.viewers[v.ID] = v
}

func (w *World) RemoveViewer(v *Viewer) {
	w.viewerMutex.Lock()
	defer w.viewerMutex.Unlock()

	if w.viewers[v.ID] != v {
		return
	}

	delete(w.viewers, v.ID)
	instrumentViewerGauge(w.Index, -1)
}

func (w *World) ViewerCount() int {
	w.viewerMutex.RLock()
	defer w.viewerMutex.RUnlock()

	return len(w.viewers)
}

// Broadcast sends the given snapshot to every viewer.
func (w *World) Broadcast(snapshot any) {
	w.viewerMutex.RLock()
	defer w.viewerMutex.RUnlock()

	for _, v := range w.viewers {
		v.Sender.SendSnapshot(snapshot)
	}
}

func (w *World) HandleFrame(h func()) (cancel func()) {
	w.frameMutex.Lock()
	defer w.frameMutex.Unlock()

	id := w.frameHandlerIDs.New()
	w.frameHandlers[id] = h

	return func() {
		w.frameMutex.Lock()
		defer w.frameMutex.Unlock()

		delete(w.frameHandlers, id)
		w.frameHandlerIDs.Reuse(id)
	}
}

// StartDispatchFrames calls the frame handlers at every tick until Close is
// called. It blocks.
func (w *World) StartDispatchFrames() {
	w.startFrameOnce.Do(func() {
		for {
			select {
			case <-w.closeFrameChan:
				return

			case <-w.frameTicker.C:
				w.frameMutex.RLock()
				for _, h := range w.frameHandlers {
					h()
				}
				w.frameMutex.RUnlock()
			}
		}
	})
}
