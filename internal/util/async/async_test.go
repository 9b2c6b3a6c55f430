package async

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunParallel_Success(t *testing.T) {
	t.Parallel()

	var count atomic.Int32
	tasks := make([]Task, 3)
	for i := range tasks {
		tasks[i] = Task{Name: "task", Func: func(context.Context) error {
			count.Add(1)
			return nil
		}}
	}

	require.NoError(t, RunParallel(context.Background(), tasks))
	assert.Equal(t, int32(3), count.Load())
}

func TestRunParallel_EmptyTasks(t *testing.T) {
	t.Parallel()

	assert.NoError(t, RunParallel(context.Background(), nil))
	assert.NoError(t, RunParallel(context.Background(), []Task{}))
}

func TestRunParallel_CollectsEveryError(t *testing.T) {
	t.Parallel()

	err1 := errors.New("error 1")
	err2 := errors.New("error 2")

	err := RunParallel(context.Background(), []Task{
		{Name: "fail1", Func: func(context.Context) error { return err1 }},
		{Name: "ok", Func: func(context.Context) error { return nil }},
		{Name: "fail2", Func: func(context.Context) error { return err2 }},
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, err1)
	assert.ErrorIs(t, err, err2)
	assert.Equal(t, "fail1: error 1\nfail2: error 2", err.Error())
}
