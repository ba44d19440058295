package app

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"prov-go/internal/gateway"
	"prov-go/internal/store"
)

// Operation records one CLI command that may mutate the store. Operations
// live in memory with Seq 0 until they are persisted, which assigns the next
// sequence number. The highest persisted Seq is the metadata version.
type Operation struct {
	Seq        int64     `json:"seq" yaml:"seq"`
	Command    string    `json:"command" yaml:"command"`
	Parameters string    `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Status     string    `json:"status" yaml:"status"`
	Error      string    `json:"error,omitempty" yaml:"error,omitempty"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`
}

// Operation statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// NewOperation creates an in-memory operation.
func NewOperation(command, parameters string, startedAt time.Time) *Operation {
	return &Operation{
		Command:    command,
		Parameters: parameters,
		Status:     StatusSuccess,
		StartedAt:  startedAt,
	}
}

// Persisted reports whether the operation has been stored.
func (op *Operation) Persisted() bool {
	return op.Seq != 0
}

// Fail marks the operation as failed with err.
func (op *Operation) Fail(err error) {
	if err == nil {
		return
	}
	op.Status = StatusError
	op.Error = err.Error()
}

// OperationLog stores operations in the operations container. Keys are
// zero-padded sequence numbers so key order is execution order.
type OperationLog struct {
	store *store.Store
}

// NewOperationLog creates an OperationLog over s.
func NewOperationLog(s *store.Store) *OperationLog {
	return &OperationLog{store: s}
}

func operationKey(seq int64) string {
	return fmt.Sprintf("%016d", seq)
}

// LastSeq returns the sequence number of the newest operation, or 0.
func (l *OperationLog) LastSeq(ctx context.Context) (int64, error) {
	keys, err := l.store.Keys(ctx, gateway.ContainerOperations)
	if err != nil {
		return 0, fmt.Errorf("listing operations: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	seq, err := strconv.ParseInt(keys[len(keys)-1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing operation key %q: %w", keys[len(keys)-1], err)
	}
	return seq, nil
}

// Append assigns op the next sequence number and stages it.
func (l *OperationLog) Append(ctx context.Context, op *Operation) error {
	last, err := l.LastSeq(ctx)
	if err != nil {
		return err
	}
	op.Seq = last + 1
	return store.Save(l.store, gateway.ContainerOperations, operationKey(op.Seq), op)
}

// Recent returns up to limit operations, newest first. A limit of 0 returns
// all of them.
func (l *OperationLog) Recent(ctx context.Context, limit int) ([]*Operation, error) {
	ops, err := store.LoadAll[Operation](ctx, l.store, gateway.ContainerOperations)
	if err != nil {
		return nil, fmt.Errorf("loading operations: %w", err)
	}
	for i, j := 0, len(ops)-1; i < j; i, j = i+1, j-1 {
		ops[i], ops[j] = ops[j], ops[i]
	}
	if limit > 0 && len(ops) > limit {
		ops = ops[:limit]
	}
	return ops, nil
}
