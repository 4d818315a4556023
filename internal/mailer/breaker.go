package mailer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// breakerState tracks where the email circuit currently sits.
//
// State transitions:
//
//	closed -> open:      failure count reaches the threshold
//	open -> half-open:   recovery timeout expires
//	half-open -> closed: the probe send succeeds
//	half-open -> open:   the probe send fails
type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case stateClosed:
		return "closed"
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when the email circuit is open and sends
// are rejected without reaching the sink.
var ErrCircuitOpen = errors.New("email circuit breaker is open")

// BreakerConfig tunes the circuit around the email transport.
type BreakerConfig struct {
	MaxFailures     int
	RecoveryTimeout time.Duration
}

// ProtectedSender wraps a Sender with a circuit breaker. When the
// email sink starts failing, sends fail fast instead of stacking
// timeouts inside request handlers. A rejected send is just a failed
// send: delivery here is best-effort either way.
type ProtectedSender struct {
	sender Sender
	config BreakerConfig
	logger *zap.Logger

	mu              sync.Mutex
	state           breakerState
	failureCount    int
	lastFailureTime time.Time
	probeInFlight   bool
}

// NewProtectedSender wraps a sender with circuit breaker protection.
func NewProtectedSender(sender Sender, cfg BreakerConfig, logger *zap.Logger) *ProtectedSender {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 30 * time.Second
	}

	return &ProtectedSender{
		sender: sender,
		config: cfg,
		logger: logger,
		state:  stateClosed,
	}
}

func (p *ProtectedSender) Send(ctx context.Context, email Email) error {
	if !p.allow() {
		p.logger.Warn("email send rejected, circuit open",
			zap.String("to", email.To),
		)
		return fmt.Errorf("%w: email sink unavailable", ErrCircuitOpen)
	}

	err := p.sender.Send(ctx, email)
	if err != nil {
		p.recordFailure()
		return err
	}

	p.recordSuccess()
	return nil
}

func (p *ProtectedSender) allow() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case stateClosed:
		return true
	case stateOpen:
		if time.Since(p.lastFailureTime) >= p.config.RecoveryTimeout {
			p.state = stateHalfOpen
			p.probeInFlight = true
			return true
		}
		return false
	case stateHalfOpen:
		// One probe at a time.
		if !p.probeInFlight {
			p.probeInFlight = true
			return true
		}
		return false
	default:
		return false
	}
}

func (p *ProtectedSender) recordSuccess() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.failureCount = 0
	p.probeInFlight = false
	if p.state != stateClosed {
		p.logger.Info("email circuit closed, sink recovered")
		p.state = stateClosed
	}
}

func (p *ProtectedSender) recordFailure() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.failureCount++
	p.lastFailureTime = time.Now()
	p.probeInFlight = false

	switch p.state {
	case stateClosed:
		if p.failureCount >= p.config.MaxFailures {
			p.state = stateOpen
			p.logger.Warn("email circuit opened",
				zap.Int("failures", p.failureCount),
			)
		}
	case stateHalfOpen:
		p.state = stateOpen
		p.logger.Warn("email circuit re-opened, probe failed")
	}
}

// State returns the current circuit state as a string for health/debug
// endpoints.
func (p *ProtectedSender) State() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.String()
}
