package prometheus

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/najoast/sntrace/core"
)

func TestNewMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	require.NotNil(t, m)

	// Test message handling
	timer := m.MessageDuration("trace.service")
	assert.NotNil(t, timer)
	timer.ObserveDuration()

	m.MessageProcessed("trace.service", true)
	m.MessageProcessed("trace.service", false)
	m.MessagePanic("trace.service")
	m.MessageDropped("trace.service", core.DropOverflow)
	m.MessageDropped("trace.service", core.DropOverflow)

	// Test mailbox
	m.MailboxDepth("trace.service", 10)

	// Test scheduler
	m.SchedulerInflight(5)
	m.SchedulerTaskCompleted(true)
	m.SchedulerTaskCompleted(false)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, mfs)

	names := make(map[string]bool)
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}

	assert.True(t, names["sntrace_actor_message_duration_seconds"])
	assert.True(t, names["sntrace_actor_messages_total"])
	assert.True(t, names["sntrace_actor_messages_dropped_total"])
	assert.True(t, names["sntrace_actor_mailbox_depth"])
	assert.True(t, names["sntrace_scheduler_inflight"])

	am := m.(*actorMetrics)
	assert.Equal(t, 1.0, testutil.ToFloat64(am.messagesTotal.WithLabelValues("trace.service", "true")))
	assert.Equal(t, 2.0, testutil.ToFloat64(am.droppedTotal.WithLabelValues("trace.service", "overflow")))
	assert.Equal(t, 10.0, testutil.ToFloat64(am.mailboxDepth.WithLabelValues("trace.service")))
	assert.Equal(t, 5.0, testutil.ToFloat64(am.schedulerInflight))
}

func TestNewMetrics_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)

	assert.Panics(t, func() { NewMetrics(reg) })
}

func TestMetrics_Scheduler(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	sched := core.NewScheduler(core.WithPoolSize(2), core.WithMetrics(metrics))
	t.Cleanup(func() { _ = sched.Shutdown(context.Background()) })

	a := core.NewActor[int](sched, core.ReceiverFunc[int](func(context.Context, int) error {
		return nil
	}), core.WithName("counter"))

	for i := 0; i < 10; i++ {
		a.Post(i)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.WaitIdle(ctx))

	am := metrics.(*actorMetrics)
	assert.Equal(t, 10.0, testutil.ToFloat64(am.messagesTotal.WithLabelValues("counter", "true")))
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(am.schedulerTasksTotal.WithLabelValues("true")) > 0
	}, 5*time.Second, 5*time.Millisecond)
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.MessageProcessed("trace.service", true)

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	buf := new(strings.Builder)
	_, err = io.Copy(buf, resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `sntrace_actor_messages_total{actor="trace.service",success="true"} 1`)
}
