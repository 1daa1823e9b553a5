package transport

import "sync"

// numeralWaitGroup is a WaitGroup that can wait for the count to drop to an
// arbitrary value rather than only zero.
type numeralWaitGroup struct {
	cnt int
	cd  *sync.Cond
	lk  sync.RWMutex
}

func newNWG() *numeralWaitGroup {
	res := &numeralWaitGroup{}
	res.cd = sync.NewCond(res.lk.RLocker())
	return res
}

func (n *numeralWaitGroup) Add(delta int) {
	n.lk.Lock()
	defer n.lk.Unlock()

	n.cnt += delta

	if delta < 0 {
		n.cd.Broadcast()
	}
}

func (n *numeralWaitGroup) Done() {
	n.Add(-1)
}

// Count returns the current number of tasks.
func (n *numeralWaitGroup) Count() int {
	n.lk.RLock()
	defer n.lk.RUnlock()
	return n.cnt
}

// Wait waits until there is less or equal than "min" tasks
func (n *numeralWaitGroup) Wait(min int) {
	n.lk.RLock()
	defer n.lk.RUnlock()

	for {
		if n.cnt <= min {
			return
		}
		n.cd.Wait()
	}
}
