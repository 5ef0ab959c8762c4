package device

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
)

// ErrNoFixture is the cause reported when MemoryGateway has nothing seeded for a call.
var ErrNoFixture = errors.New("no fixture seeded")

// MemoryGateway is an in-memory stand-in for the pump used by unit tests.
// Responses are seeded per command and argument list.
type MemoryGateway struct {
	mu         sync.Mutex
	fixtures   map[string][]byte
	failures   map[string]error
	RequestLog []RequestLogEntry
}

// RequestLogEntry records a command sent to the gateway.
type RequestLogEntry struct {
	Command string
	Args    []string
}

// NewMemoryGateway creates an empty in-memory gateway.
func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		fixtures:   make(map[string][]byte),
		failures:   make(map[string]error),
		RequestLog: make([]RequestLogEntry, 0),
	}
}

func fixtureKey(command string, args []string) string {
	return strings.Join(append([]string{command}, args...), "\x00")
}

// Seed stores the raw output returned for command with exactly args.
func (g *MemoryGateway) Seed(command string, output []byte, args ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := fixtureKey(command, args)
	g.fixtures[key] = append([]byte(nil), output...)
	delete(g.failures, key)
}

// SeedJSON encodes v and stores it as the output for command with exactly args.
func (g *MemoryGateway) SeedJSON(command string, v interface{}, args ...string) {
	data, err := json.Marshal(v)
	if err != nil {
		g.Fail(command, err, args...)
		return
	}
	g.Seed(command, data, args...)
}

// Fail makes command with exactly args return a *Error wrapping cause.
func (g *MemoryGateway) Fail(command string, cause error, args ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := fixtureKey(command, args)
	g.failures[key] = cause
	delete(g.fixtures, key)
}

// RequestsMade returns the number of commands sent to this gateway.
func (g *MemoryGateway) RequestsMade() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.RequestLog)
}

// Count returns how many times command was invoked, regardless of arguments.
func (g *MemoryGateway) Count(command string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, req := range g.RequestLog {
		if req.Command == command {
			n++
		}
	}
	return n
}

// Reset clears all fixtures and recorded requests.
func (g *MemoryGateway) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fixtures = make(map[string][]byte)
	g.failures = make(map[string]error)
	g.RequestLog = make([]RequestLogEntry, 0)
}

// Invoke returns the seeded output for command and args.
func (g *MemoryGateway) Invoke(ctx context.Context, command string, args ...string) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	// Track the call for assertions in unit tests
	g.RequestLog = append(g.RequestLog, RequestLogEntry{
		Command: command,
		Args:    append([]string(nil), args...),
	})

	if err := ctx.Err(); err != nil {
		return nil, &Error{Command: command, Args: args, Cause: err}
	}

	key := fixtureKey(command, args)
	if cause, ok := g.failures[key]; ok {
		return nil, &Error{Command: command, Args: args, Cause: cause}
	}
	out, ok := g.fixtures[key]
	if !ok {
		return nil, &Error{Command: command, Args: args, Cause: ErrNoFixture}
	}
	return append([]byte(nil), out...), nil
}
