package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordOperation(t *testing.T) {
	operationsTotal.Reset()
	operationDuration.Reset()

	RecordOperation("advance", StatusSuccess, 0.01)
	RecordOperation("advance", StatusSuccess, 0.02)
	RecordOperation("advance", StatusConflict, 0.01)

	assert.Equal(t, float64(2), testutil.ToFloat64(operationsTotal.WithLabelValues("advance", StatusSuccess)))
	assert.Equal(t, float64(1), testutil.ToFloat64(operationsTotal.WithLabelValues("advance", StatusConflict)))
	assert.Equal(t, 1, testutil.CollectAndCount(operationDuration))
}

func TestCounters(t *testing.T) {
	conflictsTotal.Reset()
	tasksCreatedTotal.Reset()
	instancesFinishedTotal.Reset()
	slaBreachesTotal.Reset()
	notificationsDroppedTotal.Reset()

	before := testutil.ToFloat64(conditionFailuresTotal)
	RecordConditionFailure()
	assert.Equal(t, before+1, testutil.ToFloat64(conditionFailuresTotal))

	RecordConflict("cancel")
	RecordTaskCreated("review")
	RecordTaskCreated("review")
	RecordInstanceFinished("completed")
	RecordSLABreach("task")
	RecordNotificationDropped("queue_full")

	assert.Equal(t, float64(1), testutil.ToFloat64(conflictsTotal.WithLabelValues("cancel")))
	assert.Equal(t, float64(2), testutil.ToFloat64(tasksCreatedTotal.WithLabelValues("review")))
	assert.Equal(t, float64(1), testutil.ToFloat64(instancesFinishedTotal.WithLabelValues("completed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(slaBreachesTotal.WithLabelValues("task")))
	assert.Equal(t, float64(1), testutil.ToFloat64(notificationsDroppedTotal.WithLabelValues("queue_full")))
}

func TestExporter_Handler(t *testing.T) {
	e := NewExporter(":0")
	RecordTaskCreated("handler_node")

	srv := httptest.NewServer(e.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), `flowengine_tasks_created_total{node="handler_node"}`))

	health, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}

func TestExporter_ShutdownWithoutStart(t *testing.T) {
	e := NewExporter(":0")
	assert.NoError(t, e.Shutdown(t.Context()))
	assert.NotNil(t, e.Registry())
}
