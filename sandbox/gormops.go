package sandbox

import (
	"fmt"
	"sync"

	"gorm.io/gorm"

	"github.com/akheron/nosedjango/database"
)

// GormOps is the live TxOps implementation over a GORM handle. It tracks the
// current transaction and a managed flag, mirroring what the application's
// transaction layer would do outside the harness.
type GormOps struct {
	db      *database.DB
	tx      *gorm.DB
	managed bool
	mu      sync.Mutex
}

var _ TxOps = (*GormOps)(nil)

// NewGormOps creates live transaction operations over the given database.
func NewGormOps(db *database.DB) *GormOps {
	return &GormOps{db: db}
}

// Tx returns the current transaction handle, or the base handle when no
// transaction is open.
func (o *GormOps) Tx() *gorm.DB {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.tx != nil {
		return o.tx
	}
	return o.db.GormDB
}

// Begin opens a transaction if none is open.
func (o *GormOps) Begin() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.tx != nil {
		return fmt.Errorf("transaction already open")
	}
	tx := o.db.GormDB.Begin()
	if tx.Error != nil {
		return tx.Error
	}
	o.tx = tx
	return nil
}

// Commit commits the current transaction.
func (o *GormOps) Commit() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.tx == nil {
		return fmt.Errorf("no open transaction to commit")
	}
	err := o.tx.Commit().Error
	o.tx = nil
	return err
}

// Rollback rolls back the current transaction.
func (o *GormOps) Rollback() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.tx == nil {
		return fmt.Errorf("no open transaction to roll back")
	}
	err := o.tx.Rollback().Error
	o.tx = nil
	return err
}

// SavepointCommit releases a named savepoint.
func (o *GormOps) SavepointCommit(name string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.tx == nil {
		return fmt.Errorf("no open transaction for savepoint %s", name)
	}
	return o.tx.Exec("RELEASE SAVEPOINT " + name).Error
}

// SavepointRollback rolls back to a named savepoint.
func (o *GormOps) SavepointRollback(name string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.tx == nil {
		return fmt.Errorf("no open transaction for savepoint %s", name)
	}
	return o.tx.RollbackTo(name).Error
}

// EnterManagement marks the connection managed.
func (o *GormOps) EnterManagement() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.managed = true
}

// LeaveManagement clears the managed flag.
func (o *GormOps) LeaveManagement() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.managed = false
}

// Managed reports whether the connection is marked managed.
func (o *GormOps) Managed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.managed
}
