package pool

import "sync"

// Command is a deferred pool mutation.
type Command func(*Pool) error

// CommandBuffer collects mutations from any goroutine and applies them during
// the pool-mutation phase, never while the evaluator is running.
type CommandBuffer struct {
	mu       sync.Mutex
	commands []Command
}

// Len reports how many commands are queued.
func (b *CommandBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.commands)
}

// Push appends a command to the buffer.
func (b *CommandBuffer) Push(cmd Command) {
	if cmd == nil {
		return
	}
	b.mu.Lock()
	b.commands = append(b.commands, cmd)
	b.mu.Unlock()
}

// Drain returns queued commands and resets the buffer.
func (b *CommandBuffer) Drain() []Command {
	b.mu.Lock()
	defer b.mu.Unlock()
	drained := b.commands
	b.commands = nil
	return drained
}

// Apply drains the buffer and runs every command against p in push order.
// A failing command does not stop the rest.
func (b *CommandBuffer) Apply(p *Pool) []error {
	var errs []error
	for _, cmd := range b.Drain() {
		if err := cmd(p); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
