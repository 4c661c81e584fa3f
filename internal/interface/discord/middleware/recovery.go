package middleware

import (
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/stepbattle/stepbattle/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECOVERY
// A panicking handler is logged with its stack and turned into a generic
// reply; the bot keeps serving other interactions.
// ══════════════════════════════════════════════════════════════════════════════

// RecoveryConfig holds configuration for the recovery middleware.
type RecoveryConfig struct {
	// EnableStackTrace captures the stack of the panicking goroutine.
	EnableStackTrace bool

	// MaxPanicsPerMinute caps how many panics are logged in full.
	MaxPanicsPerMinute int

	// OnPanic is called for every logged panic.
	OnPanic func(info *PanicInfo)

	Logger *logger.Logger
}

// DefaultRecoveryConfig returns sensible defaults.
func DefaultRecoveryConfig() RecoveryConfig {
	return RecoveryConfig{
		EnableStackTrace:   true,
		MaxPanicsPerMinute: 100,
	}
}

// PanicInfo describes a recovered panic.
type PanicInfo struct {
	Err        error
	Value      any
	StackTrace string
	UserID     string
	Command    string
	Timestamp  time.Time
}

// Recovery recovers panics raised by command handlers.
type Recovery struct {
	config RecoveryConfig
	log    *logger.Logger

	mu     sync.Mutex
	count  int
	window time.Time
}

// NewRecovery creates a recovery middleware.
func NewRecovery(config RecoveryConfig) *Recovery {
	log := config.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Recovery{config: config, log: log.WithComponent("discord_recovery")}
}

// Run calls fn. A panic inside fn is returned as info instead of unwinding.
func (r *Recovery) Run(userID, command string, fn func() error) (info *PanicInfo, err error) {
	defer func() {
		if v := recover(); v != nil {
			info = r.handle(v, userID, command)
			err = info.Err
		}
	}()
	return nil, fn()
}

func (r *Recovery) handle(v any, userID, command string) *PanicInfo {
	info := &PanicInfo{
		Err:       toError(v),
		Value:     v,
		UserID:    userID,
		Command:   command,
		Timestamp: time.Now(),
	}
	if !r.allow(info.Timestamp) {
		return info
	}
	if r.config.EnableStackTrace {
		info.StackTrace = string(debug.Stack())
	}

	r.log.Error("panic recovered in command handler",
		logger.Command(command),
		logger.ChatUserID(userID),
		logger.Any("panic", v),
		logger.String("stack", info.StackTrace),
	)
	if r.config.OnPanic != nil {
		r.config.OnPanic(info)
	}
	return info
}

// allow rate-limits full panic reports per minute.
func (r *Recovery) allow(now time.Time) bool {
	if r.config.MaxPanicsPerMinute <= 0 {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if now.Sub(r.window) > time.Minute {
		r.count = 0
		r.window = now
	}
	if r.count >= r.config.MaxPanicsPerMinute {
		return false
	}
	r.count++
	return true
}

// PanicError wraps a recovered panic value.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

func toError(v any) error {
	if err, ok := v.(error); ok {
		return &PanicError{Value: err}
	}
	return &PanicError{Value: v}
}
