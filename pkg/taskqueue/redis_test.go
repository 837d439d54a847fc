package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestQueue 基于miniredis创建队列
func newTestQueue(t *testing.T) (*RedisQueue, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	cfg := DefaultConfig()
	cfg.RedisAddr = mr.Addr()
	cfg.RetryLimit = 2

	queue, err := NewRedisQueue(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = queue.Close() })
	return queue, mr
}

func TestNewRedisQueue(t *testing.T) {
	t.Run("miniredis", func(t *testing.T) {
		queue, _ := newTestQueue(t)
		assert.NotNil(t, queue)
	})

	t.Run("unreachable redis", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.RedisAddr = "127.0.0.1:1"
		_, err := NewRedisQueue(cfg)
		assert.Error(t, err)
	})

	t.Run("factory", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := DefaultConfig()
		cfg.RedisAddr = mr.Addr()

		q, err := NewQueue("redis", cfg)
		require.NoError(t, err)
		assert.NoError(t, q.Close())

		_, err = NewQueue("kafka", cfg)
		assert.Error(t, err)
	})
}

func TestRedisQueue_Enqueue(t *testing.T) {
	queue, mr := newTestQueue(t)
	ctx := context.Background()

	taskID, err := queue.Enqueue(ctx, TaskEmbedDocument, "doc-123", EmbedDocumentPayload{DocumentID: "doc-123"})
	require.NoError(t, err)
	assert.NotEmpty(t, taskID)

	task, err := queue.GetTask(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, taskID, task.ID)
	assert.Equal(t, TaskEmbedDocument, task.Type)
	assert.Equal(t, "doc-123", task.DocumentID)
	assert.Equal(t, StatusPending, task.Status)
	assert.Equal(t, 2, task.MaxRetries)

	var payload EmbedDocumentPayload
	require.NoError(t, UnmarshalPayload(task.Payload, &payload))
	assert.Equal(t, "doc-123", payload.DocumentID)

	// 任务记录带过期时间
	ttl := mr.TTL(taskKeyPrefix + taskID)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, 7*24*time.Hour)
}

func TestRedisQueue_GetTaskNotFound(t *testing.T) {
	queue, _ := newTestQueue(t)

	_, err := queue.GetTask(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrTaskNotFound))
}

func TestRedisQueue_GetTasksByDocument(t *testing.T) {
	queue, mr := newTestQueue(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := queue.Enqueue(ctx, TaskEmbedDocument, "doc-a", EmbedDocumentPayload{DocumentID: "doc-a"})
		require.NoError(t, err)
		ids = append(ids, id)
		time.Sleep(2 * time.Millisecond)
	}
	_, err := queue.Enqueue(ctx, TaskEmbedDocument, "doc-b", EmbedDocumentPayload{DocumentID: "doc-b"})
	require.NoError(t, err)

	tasks, err := queue.GetTasksByDocument(ctx, "doc-a")
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	for i, task := range tasks {
		assert.Equal(t, ids[i], task.ID, "tasks are ordered by creation time")
	}

	// 过期的任务记录被跳过
	mr.Del(taskKeyPrefix + ids[0])
	tasks, err = queue.GetTasksByDocument(ctx, "doc-a")
	require.NoError(t, err)
	assert.Len(t, tasks, 2)

	tasks, err = queue.GetTasksByDocument(ctx, "doc-none")
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestRedisQueue_UpdateTaskStatus(t *testing.T) {
	queue, _ := newTestQueue(t)
	ctx := context.Background()

	taskID, err := queue.Enqueue(ctx, TaskEmbedDocument, "doc-1", EmbedDocumentPayload{DocumentID: "doc-1"})
	require.NoError(t, err)

	require.NoError(t, queue.UpdateTaskStatus(ctx, taskID, StatusProcessing, nil, ""))
	task, err := queue.GetTask(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, task.Status)
	assert.NotNil(t, task.StartedAt)
	assert.Nil(t, task.CompletedAt)
	assert.Equal(t, 1, task.Attempts)

	result := EmbedDocumentResult{DocumentID: "doc-1", Title: "Handbook", ChunksProcessed: 3, Dimensions: 1536}
	require.NoError(t, queue.UpdateTaskStatus(ctx, taskID, StatusCompleted, result, ""))

	task, err = queue.GetTask(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, task.Status)
	assert.True(t, task.Done())
	assert.NotNil(t, task.CompletedAt)

	var stored EmbedDocumentResult
	require.NoError(t, UnmarshalPayload(task.Result, &stored))
	assert.Equal(t, result, stored)

	info := NewTaskInfo(task)
	assert.Equal(t, taskID, info.ID)
	assert.Equal(t, StatusCompleted, info.Status)
	assert.Equal(t, 1, info.Attempts)

	err = queue.UpdateTaskStatus(ctx, "missing", StatusFailed, nil, "boom")
	assert.True(t, errors.Is(err, ErrTaskNotFound))
}

func TestRedisQueue_DeleteTask(t *testing.T) {
	queue, _ := newTestQueue(t)
	ctx := context.Background()

	taskID, err := queue.Enqueue(ctx, TaskEmbedDocument, "doc-del", EmbedDocumentPayload{DocumentID: "doc-del"})
	require.NoError(t, err)

	require.NoError(t, queue.DeleteTask(ctx, taskID))

	_, err = queue.GetTask(ctx, taskID)
	assert.True(t, errors.Is(err, ErrTaskNotFound))

	tasks, err := queue.GetTasksByDocument(ctx, "doc-del")
	require.NoError(t, err)
	assert.Empty(t, tasks)

	assert.True(t, errors.Is(queue.DeleteTask(ctx, taskID), ErrTaskNotFound))
}

func TestRedisQueue_WaitForTask(t *testing.T) {
	queue, _ := newTestQueue(t)
	ctx := context.Background()

	taskID, err := queue.Enqueue(ctx, TaskEmbedDocument, "doc-wait", EmbedDocumentPayload{DocumentID: "doc-wait"})
	require.NoError(t, err)

	t.Run("timeout", func(t *testing.T) {
		_, err := queue.WaitForTask(ctx, taskID, 50*time.Millisecond)
		assert.True(t, errors.Is(err, ErrTaskTimeout))
	})

	t.Run("completes", func(t *testing.T) {
		go func() {
			time.Sleep(50 * time.Millisecond)
			_ = queue.UpdateTaskStatus(context.Background(), taskID, StatusCompleted, nil, "")
		}()

		task, err := queue.WaitForTask(ctx, taskID, 5*time.Second)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, task.Status)
	})

	t.Run("already done", func(t *testing.T) {
		task, err := queue.WaitForTask(ctx, taskID, 0)
		require.NoError(t, err)
		assert.True(t, task.Done())
	})
}

func TestRedisWorker_Process(t *testing.T) {
	queue, _ := newTestQueue(t)
	worker := NewRedisWorker(queue, nil)
	ctx := context.Background()

	t.Run("success stores result", func(t *testing.T) {
		taskID, err := queue.Enqueue(ctx, TaskEmbedDocument, "doc-ok", EmbedDocumentPayload{DocumentID: "doc-ok"})
		require.NoError(t, err)

		handler := NewHandler(func(ctx context.Context, task *Task) (interface{}, error) {
			var payload EmbedDocumentPayload
			if err := UnmarshalPayload(task.Payload, &payload); err != nil {
				return nil, err
			}
			return EmbedDocumentResult{DocumentID: payload.DocumentID, ChunksProcessed: 2, Dimensions: 4}, nil
		}, TaskEmbedDocument)

		require.NoError(t, worker.process(ctx, handler, taskID))

		task, err := queue.GetTask(ctx, taskID)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, task.Status)
		assert.Equal(t, 1, task.Attempts)
		assert.Empty(t, task.Error)

		var result EmbedDocumentResult
		require.NoError(t, UnmarshalPayload(task.Result, &result))
		assert.Equal(t, 2, result.ChunksProcessed)
	})

	t.Run("failure marks task failed", func(t *testing.T) {
		taskID, err := queue.Enqueue(ctx, TaskEmbedDocument, "doc-fail", EmbedDocumentPayload{DocumentID: "doc-fail"})
		require.NoError(t, err)

		handler := NewHandler(func(ctx context.Context, task *Task) (interface{}, error) {
			return nil, fmt.Errorf("document already embedded: %w", ErrSkipRetry)
		}, TaskEmbedDocument)

		err = worker.process(ctx, handler, taskID)
		require.Error(t, err)
		assert.True(t, errors.Is(err, asynq.SkipRetry))

		task, err := queue.GetTask(ctx, taskID)
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, task.Status)
		assert.Contains(t, task.Error, "already embedded")
		assert.NotNil(t, task.CompletedAt)
	})

	t.Run("missing task record is not retried", func(t *testing.T) {
		handler := NewHandler(func(ctx context.Context, task *Task) (interface{}, error) {
			t.Fatal("handler must not run")
			return nil, nil
		}, TaskEmbedDocument)

		err := worker.process(ctx, handler, "missing")
		assert.True(t, errors.Is(err, asynq.SkipRetry))
	})
}

func TestRedisWorker_RegisterHandler(t *testing.T) {
	queue, _ := newTestQueue(t)
	worker := NewRedisWorker(queue, nil)

	handler := NewHandler(func(ctx context.Context, task *Task) (interface{}, error) {
		return nil, nil
	}, TaskEmbedDocument)
	worker.RegisterHandler(handler)

	assert.Contains(t, worker.handlers, TaskEmbedDocument)
	assert.Equal(t, []TaskType{TaskEmbedDocument}, handler.GetTaskTypes())
}

// TestIntegration_RealRedis 使用本地Redis测试工作者的完整流程
func TestIntegration_RealRedis(t *testing.T) {
	redisAddr := "localhost:6379"

	client := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skip("Skipping Redis worker test: Redis not available at localhost:6379")
	}
	_ = client.Close()

	cfg := DefaultConfig()
	cfg.RedisAddr = redisAddr
	cfg.Concurrency = 2

	queue, err := NewRedisQueue(cfg)
	require.NoError(t, err)
	defer queue.Close()

	worker := NewRedisWorker(queue, cfg)
	worker.RegisterHandler(NewHandler(func(ctx context.Context, task *Task) (interface{}, error) {
		return EmbedDocumentResult{DocumentID: task.DocumentID, ChunksProcessed: 1, Dimensions: 2}, nil
	}, TaskEmbedDocument))

	require.NoError(t, worker.Start())
	defer worker.Stop()

	taskID, err := queue.Enqueue(context.Background(), TaskEmbedDocument, "doc-int", EmbedDocumentPayload{DocumentID: "doc-int"})
	require.NoError(t, err)

	task, err := queue.WaitForTask(context.Background(), taskID, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, task.Status)
}

func TestPayloadHelpers(t *testing.T) {
	raw, err := MarshalPayload(nil)
	require.NoError(t, err)
	assert.JSONEq(t, "{}", string(raw))

	var payload EmbedDocumentPayload
	assert.True(t, errors.Is(UnmarshalPayload(nil, &payload), ErrInvalidPayload))
	assert.True(t, errors.Is(UnmarshalPayload([]byte("not json"), &payload), ErrInvalidPayload))
}
