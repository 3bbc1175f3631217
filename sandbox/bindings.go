// Package sandbox provides per-test transactional isolation. A test that
// supports it runs inside a transaction that is rolled back afterwards; while
// the sandbox is active the transaction-control entry points the application
// calls are rebound to no-ops so nothing can escape the enclosing rollback.
package sandbox

// TxOps is the application-facing transaction surface. The live
// implementation drives real transactions; the sandbox swaps these entry
// points for no-ops while a test runs.
type TxOps interface {
	Commit() error
	Rollback() error
	SavepointCommit(name string) error
	SavepointRollback(name string) error
	EnterManagement()
	LeaveManagement()
}

// Bindings is the injectable table of the six transaction-control entry
// points. Application code under test receives a *Bindings and calls through
// it, which is what lets the sandbox suppress and later restore the real
// operations without global rebinding.
type Bindings struct {
	Commit            func() error
	Rollback          func() error
	SavepointCommit   func(name string) error
	SavepointRollback func(name string) error
	EnterManagement   func()
	LeaveManagement   func()
}

// NewBindings builds a bindings table wired to the given live operations.
func NewBindings(ops TxOps) *Bindings {
	return &Bindings{
		Commit:            ops.Commit,
		Rollback:          ops.Rollback,
		SavepointCommit:   ops.SavepointCommit,
		SavepointRollback: ops.SavepointRollback,
		EnterManagement:   ops.EnterManagement,
		LeaveManagement:   ops.LeaveManagement,
	}
}

// snapshot copies the current bindings for later restoration.
func (b *Bindings) snapshot() Bindings {
	return *b
}

// restore rebinds the table to a previously captured snapshot.
func (b *Bindings) restore(saved Bindings) {
	*b = saved
}

// suppress rebinds every entry point to a no-op.
func (b *Bindings) suppress() {
	b.Commit = noopErr
	b.Rollback = noopErr
	b.SavepointCommit = noopNameErr
	b.SavepointRollback = noopNameErr
	b.EnterManagement = noop
	b.LeaveManagement = noop
}

func noop()                      {}
func noopErr() error             { return nil }
func noopNameErr(string) error   { return nil }
