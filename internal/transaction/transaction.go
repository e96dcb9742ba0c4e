package transaction

import (
	"go.uber.org/zap"
)

const (
	rollbackActionSucceededMessageConstant = "rollback action completed"
	rollbackActionFailedMessageConstant    = "rollback action failed"
	rollbackActionLabelFieldConstant       = "action"
)

// UndoAction reverses one previously completed saga step.
type UndoAction func() error

type registeredUndo struct {
	label  string
	action UndoAction
}

// Transaction accumulates undo actions for completed mutating steps and
// either rolls them back in strict reverse order or discards them on commit.
// A Transaction is exclusively owned by one in-flight saga invocation and is
// never shared across repositories or goroutines.
type Transaction struct {
	logger          *zap.Logger
	registeredUndos []registeredUndo
	committed       bool
}

// New constructs a Transaction logging rollback outcomes through the provided logger.
func New(logger *zap.Logger) *Transaction {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transaction{logger: logger}
}

// Register appends an undo action to run if the transaction rolls back.
func (currentTransaction *Transaction) Register(label string, action UndoAction) {
	if action == nil {
		return
	}
	currentTransaction.registeredUndos = append(currentTransaction.registeredUndos, registeredUndo{label: label, action: action})
}

// Rollback runs every registered undo action most-recently-registered-first.
// Each outcome is logged; a failing undo never stops the sweep and never
// replaces the error that triggered the rollback. Rolling back a committed
// transaction is a no-op.
func (currentTransaction *Transaction) Rollback() {
	if currentTransaction.committed {
		return
	}

	for undoIndex := len(currentTransaction.registeredUndos) - 1; undoIndex >= 0; undoIndex-- {
		registered := currentTransaction.registeredUndos[undoIndex]
		undoError := registered.action()
		if undoError != nil {
			currentTransaction.logger.Warn(rollbackActionFailedMessageConstant,
				zap.String(rollbackActionLabelFieldConstant, registered.label),
				zap.Error(undoError))
			continue
		}
		currentTransaction.logger.Info(rollbackActionSucceededMessageConstant,
			zap.String(rollbackActionLabelFieldConstant, registered.label))
	}

	currentTransaction.registeredUndos = nil
}

// Commit marks the transaction committed and discards all registered undo
// actions without running them.
func (currentTransaction *Transaction) Commit() {
	currentTransaction.committed = true
	currentTransaction.registeredUndos = nil
}
