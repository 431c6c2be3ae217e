package coordinator

import (
	"math/rand"
	"sync"

	"github.com/marmos91/lockfs/internal/protocol/wire"
)

// Decision is a fault policy verdict for one new request.
type Decision int

const (
	// DecisionReply executes the request and sends the response.
	DecisionReply Decision = iota

	// DecisionDropRequest discards the request before execution. No state
	// changes and the sequence number is not consumed, as if the datagram
	// had been lost on the way in.
	DecisionDropRequest

	// DecisionDropReply executes and caches the response but sends nothing,
	// as if the reply had been lost on the way out.
	DecisionDropReply
)

// String returns the decision name.
func (d Decision) String() string {
	switch d {
	case DecisionReply:
		return "reply"
	case DecisionDropRequest:
		return "drop_request"
	case DecisionDropReply:
		return "drop_reply"
	default:
		return "unknown"
	}
}

// Policy decides whether a new request is executed and answered. It is
// consulted only for requests that would otherwise execute; duplicates and
// stale requests never reach it.
type Policy interface {
	Decide(req *wire.Request) Decision
}

// AlwaysReply never injects a fault.
type AlwaysReply struct{}

// Decide returns DecisionReply.
func (AlwaysReply) Decide(*wire.Request) Decision { return DecisionReply }

// RandomPolicy drops requests and replies with fixed probabilities. A fixed
// seed makes the sequence of decisions reproducible.
type RandomPolicy struct {
	DropRequest float64
	DropReply   float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomPolicy creates a policy seeded with seed.
func NewRandomPolicy(dropRequest, dropReply float64, seed int64) *RandomPolicy {
	return &RandomPolicy{
		DropRequest: dropRequest,
		DropReply:   dropReply,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

// Decide draws one number: values below DropRequest drop the request, the
// next DropReply worth of range drops the reply.
func (p *RandomPolicy) Decide(*wire.Request) Decision {
	p.mu.Lock()
	x := p.rng.Float64()
	p.mu.Unlock()

	switch {
	case x < p.DropRequest:
		return DecisionDropRequest
	case x < p.DropRequest+p.DropReply:
		return DecisionDropReply
	default:
		return DecisionReply
	}
}

// ScriptedPolicy returns a fixed queue of decisions, then DecisionReply
// forever.
type ScriptedPolicy struct {
	mu        sync.Mutex
	decisions []Decision
}

// NewScriptedPolicy creates a policy that replays decisions in order.
func NewScriptedPolicy(decisions ...Decision) *ScriptedPolicy {
	return &ScriptedPolicy{decisions: decisions}
}

// Decide pops the next decision.
func (p *ScriptedPolicy) Decide(*wire.Request) Decision {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.decisions) == 0 {
		return DecisionReply
	}
	d := p.decisions[0]
	p.decisions = p.decisions[1:]
	return d
}

// Remaining returns the number of queued decisions.
func (p *ScriptedPolicy) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.decisions)
}
