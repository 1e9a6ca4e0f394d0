package services

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ekaya-inc/ekaya-dbmeta/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dbmeta/pkg/refresh"
	"github.com/ekaya-inc/ekaya-dbmeta/pkg/services/workqueue"
)

// RefreshResult reports the outcome of one refresh batch.
type RefreshResult struct {
	Success      bool              `json:"success"`
	Tables       []string          `json:"tables"`
	Error        string            `json:"error,omitempty"`
	FailedTables map[string]string `json:"failedTables,omitempty"`
}

// RefreshHandle identifies a background refresh started by StartRefresh.
type RefreshHandle struct {
	TaskID string   `json:"taskId,omitempty"`
	Schema string   `json:"schema"`
	Tables []string `json:"tables"`
}

// RefreshStatus is the answer to a refresh status query.
type RefreshStatus struct {
	Schema     string                  `json:"schema"`
	Refreshing []string                `json:"refreshing"`
	Task       *workqueue.TaskSnapshot `json:"task,omitempty"`
}

func (s *metadataService) ResolveTablesToRefresh(ctx context.Context, schema, table string) ([]string, error) {
	if table != "" {
		return []string{table}, nil
	}

	tables, err := s.ListTables(ctx, schema)
	if err != nil {
		return nil, err
	}
	if len(tables) > s.cfg.TableLimit {
		return nil, apperrors.New(apperrors.ErrTooManyTables,
			fmt.Sprintf("Too many tables (%d) to refresh at once. Please refresh tables individually.", len(tables)))
	}
	return tables, nil
}

func (s *metadataService) GetAlreadyRefreshingTables(ctx context.Context, schema string, tables []string) ([]string, error) {
	marked, err := s.tracker.Snapshot(ctx, schema)
	if err != nil {
		return nil, fmt.Errorf("read refresh state of %s: %w", schema, err)
	}
	return refresh.Intersect(tables, marked), nil
}

// beginBatch resolves the target set and marks every table in one atomic
// step. On success the caller owns the markers and must run endBatch.
func (s *metadataService) beginBatch(ctx context.Context, schema, table string) ([]string, error) {
	tables, err := s.ResolveTablesToRefresh(ctx, schema, table)
	if err != nil {
		return nil, err
	}
	if len(tables) == 0 {
		return tables, nil
	}

	conflicts, err := s.tracker.TryMarkAll(ctx, schema, tables)
	if err != nil {
		return nil, fmt.Errorf("mark tables for refresh: %w", err)
	}
	if len(conflicts) > 0 {
		return nil, apperrors.New(apperrors.ErrAlreadyRefreshing, refresh.AlreadyRefreshingMessage(conflicts))
	}
	return tables, nil
}

// endBatch clears the markers of every table in the batch. It runs on a
// context detached from the caller so markers are released even after a
// cancellation.
func (s *metadataService) endBatch(ctx context.Context, schema string, tables []string) {
	ctx = context.WithoutCancel(ctx)
	for _, t := range tables {
		if err := s.tracker.Clear(ctx, schema, t); err != nil {
			s.logger.Error("Failed to clear refresh marker",
				zap.String("schema", schema),
				zap.String("table", t),
				zap.Error(err))
		}
	}
}

// runBatch refreshes marked tables in parallel and always clears their
// markers. A failing or panicking table does not affect its siblings.
func (s *metadataService) runBatch(ctx context.Context, schema string, tables []string) *RefreshResult {
	defer s.endBatch(ctx, schema, tables)

	var (
		mu     sync.Mutex
		failed = map[string]string{}
	)
	fail := func(table, msg string) {
		mu.Lock()
		failed[table] = msg
		mu.Unlock()
	}

	var g errgroup.Group
	g.SetLimit(s.cfg.TableConcurrency)
	for _, t := range tables {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("Table refresh panicked",
						zap.String("schema", schema),
						zap.String("table", t),
						zap.Any("panic", r),
						zap.ByteString("stack", debug.Stack()))
					fail(t, fmt.Sprintf("panic: %v", r))
				}
			}()
			if _, err := s.refresher.RefreshTable(ctx, schema, t); err != nil {
				s.logger.Warn("Table refresh failed",
					zap.String("schema", schema),
					zap.String("table", t),
					zap.Error(err))
				fail(t, err.Error())
			}
			return nil
		})
	}
	_ = g.Wait()

	result := &RefreshResult{Success: len(failed) == 0, Tables: tables}
	if len(failed) > 0 {
		names := make([]string, 0, len(failed))
		for t := range failed {
			names = append(names, t)
		}
		sort.Strings(names)
		result.FailedTables = failed
		result.Error = fmt.Sprintf("Refresh failed for %d of %d tables: %s",
			len(failed), len(tables), strings.Join(names, ", "))
	}

	s.logger.Info("Refresh batch finished",
		zap.String("schema", schema),
		zap.Strings("tables", tables),
		zap.Int("failed", len(failed)))
	return result
}

func (s *metadataService) RefreshTableMetadata(ctx context.Context, schema, table string) (*RefreshResult, error) {
	tables, err := s.beginBatch(ctx, schema, table)
	if err != nil {
		return nil, err
	}
	if len(tables) == 0 {
		return &RefreshResult{Success: true, Tables: []string{}}, nil
	}
	return s.runBatch(ctx, schema, tables), nil
}

func (s *metadataService) StartRefresh(ctx context.Context, schema, table string) (*RefreshHandle, error) {
	tables, err := s.beginBatch(ctx, schema, table)
	if err != nil {
		return nil, err
	}
	if len(tables) == 0 {
		return &RefreshHandle{Schema: schema, Tables: []string{}}, nil
	}

	// The batch outlives the request that started it.
	detached := context.WithoutCancel(ctx)
	task := workqueue.NewFuncTask("refresh "+schema, func(context.Context) (any, error) {
		result := s.runBatch(detached, schema, tables)
		if !result.Success {
			return result, errors.New(result.Error)
		}
		return result, nil
	})
	if err := s.queue.Enqueue(task); err != nil {
		s.endBatch(ctx, schema, tables)
		return nil, fmt.Errorf("schedule refresh: %w", err)
	}

	s.logger.Info("Refresh started",
		zap.String("task_id", task.ID()),
		zap.String("schema", schema),
		zap.Strings("tables", tables))
	return &RefreshHandle{TaskID: task.ID(), Schema: schema, Tables: tables}, nil
}

func (s *metadataService) RefreshStatus(ctx context.Context, schema, taskID string) (*RefreshStatus, error) {
	marked, err := s.tracker.Snapshot(ctx, schema)
	if err != nil {
		return nil, fmt.Errorf("read refresh state of %s: %w", schema, err)
	}
	status := &RefreshStatus{Schema: schema, Refreshing: marked}

	if taskID == "" {
		return status, nil
	}
	snap, ok := s.queue.Get(taskID)
	if !ok {
		return nil, apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("Unknown refresh task '%s'.", taskID))
	}
	status.Task = &snap
	return status, nil
}
