package sandbox

import (
	"context"
	"sync"

	"gorm.io/gorm"

	"github.com/akheron/nosedjango/database"
	"github.com/akheron/nosedjango/errors"
	"github.com/akheron/nosedjango/logger"
	"github.com/akheron/nosedjango/settings"
)

// State tracks a test's position in the isolation state machine.
type State string

const (
	// StateUnstarted means no isolation decision has been applied yet.
	StateUnstarted State = "unstarted"
	// StateTransactional means the test runs inside a rollback sandbox.
	StateTransactional State = "transactional"
	// StateFlushed means the data store was reset instead (no rollback net).
	StateFlushed State = "flushed"
	// StateCleaned means post-test cleanup has completed.
	StateCleaned State = "cleaned"
)

// Eligible decides whether a test may use transactional isolation. Three
// signals are evaluated in order, each able to veto: the per-test declared
// preference (nil means eligible), the global transactions-disabled setting,
// and the backend capability flag.
func Eligible(declared *bool, cfg settings.DatabaseConfig) bool {
	supported := true
	if declared != nil {
		supported = *declared
	}
	if cfg.DisableTransactions {
		supported = false
	}
	if !cfg.TransactionsSupported() {
		supported = false
	}
	return supported
}

// Sandbox wraps one test's database work in a transaction that is rolled back
// at Exit. While active, the six transaction-control entry points on the
// shared Bindings table are suppressed so neither test nor application code
// can escape the enclosing rollback.
type Sandbox struct {
	db       *database.DB
	cfg      settings.DatabaseConfig
	bindings *Bindings
	ops      *GormOps
	log      *logger.Logger

	saved   Bindings
	state   State
	managed bool
	mu      sync.Mutex
}

// New creates a sandbox over the given database and bindings table.
func New(db *database.DB, cfg settings.DatabaseConfig, bindings *Bindings, ops *GormOps, log *logger.Logger) *Sandbox {
	return &Sandbox{
		db:       db,
		cfg:      cfg,
		bindings: bindings,
		ops:      ops,
		log:      log.WithComponent("sandbox"),
		state:    StateUnstarted,
	}
}

// State returns the sandbox's current lifecycle state.
func (s *Sandbox) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Tx returns the transaction handle the test should run its queries through.
func (s *Sandbox) Tx() *gorm.DB {
	return s.ops.Tx()
}

// Enter begins the transaction, marks it managed, and suppresses the six
// transaction-control entry points, saving the originals for Exit.
func (s *Sandbox) Enter(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateUnstarted {
		return errors.SandboxState(string(s.state))
	}

	if err := s.ops.Begin(); err != nil {
		return err
	}
	s.ops.EnterManagement()
	s.managed = true

	s.saved = s.bindings.snapshot()
	s.bindings.suppress()

	s.state = StateTransactional
	s.log.Debug("Transaction sandbox entered")
	return nil
}

// MarkFlushed records that the test ran against a flushed store instead of a
// rollback sandbox.
func (s *Sandbox) MarkFlushed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateFlushed
}

// Exit restores the six original bindings, rolls the transaction back, leaves
// management if still marked managed, and drops pooled connections. It runs
// regardless of whether the test passed, failed, or errored.
func (s *Sandbox) Exit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateFlushed {
		// no rollback net existed; the pre-test flush was the cleanup
		s.state = StateCleaned
		return nil
	}
	if s.state != StateTransactional {
		return errors.SandboxState(string(s.state))
	}

	s.bindings.restore(s.saved)

	if err := s.ops.Rollback(); err != nil {
		s.log.Warn("Sandbox rollback failed", logger.ErrorFields("rollback", err))
	}
	if s.managed && s.ops.Managed() {
		s.ops.LeaveManagement()
	}
	s.managed = false

	// Postgres keeps per-connection encoding state that survives rollback;
	// dropping the pooled connections forces a clean one for the next test.
	// An in-memory SQLite store lives inside its connection, so it is exempt.
	if !s.cfg.InMemory() {
		s.dropPooledConnections()
	}

	s.state = StateCleaned
	s.log.Debug("Transaction sandbox exited")
	return nil
}

func (s *Sandbox) dropPooledConnections() {
	sqlDB, err := s.db.GormDB.DB()
	if err != nil {
		return
	}
	sqlDB.SetMaxIdleConns(0)
	sqlDB.SetMaxIdleConns(2)
}
