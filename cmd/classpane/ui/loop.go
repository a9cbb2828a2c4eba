package ui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"classpane/internal/eventloop"
)

// taskMsg carries a posted function into the program's Update.
type taskMsg func()

// documentReplacedMsg tells the panel that every node id it holds is stale.
type documentReplacedMsg struct{}

// ProgramLoop makes a running tea.Program the engine's event loop: posted
// functions are delivered as messages, in order, and run inside Update.
// Posts made before Attach are queued.
type ProgramLoop struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []tea.Msg
	closed bool
}

var _ eventloop.Poster = (*ProgramLoop)(nil)

// NewProgramLoop returns a loop with nothing attached yet.
func NewProgramLoop() *ProgramLoop {
	l := &ProgramLoop{}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Post implements eventloop.Poster. It never blocks.
func (l *ProgramLoop) Post(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.queue = append(l.queue, taskMsg(fn))
	l.cond.Signal()
}

// DocumentReplaced queues a notice that the backend replaced its document,
// for example after a navigation.
func (l *ProgramLoop) DocumentReplaced() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.queue = append(l.queue, documentReplacedMsg{})
	l.cond.Signal()
}

// Attach starts delivering posts to p.
func (l *ProgramLoop) Attach(p *tea.Program) {
	go l.pump(p.Send)
}

// Close stops delivery. Later posts are dropped.
func (l *ProgramLoop) Close() {
	l.mu.Lock()
	l.closed = true
	l.queue = nil
	l.cond.Broadcast()
	l.mu.Unlock()
}

// pump forwards the queue to send. tea.Program.Send blocks until Update
// takes the message, so posting goroutines never wait on the UI.
func (l *ProgramLoop) pump(send func(tea.Msg)) {
	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.closed {
			l.cond.Wait()
		}
		if l.closed {
			l.mu.Unlock()
			return
		}
		msg := l.queue[0]
		l.queue = l.queue[1:]
		l.mu.Unlock()

		send(msg)
	}
}
