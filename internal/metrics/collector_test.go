package metrics

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BaSui01/stepflow/workflow"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var _ workflow.Recorder = (*Collector)(nil)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.workflowRunsTotal)
	assert.NotNil(t, collector.stepAttemptsTotal)
	assert.NotNil(t, collector.toolInvocationsTotal)
}

func TestNewCollector_NilLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		NewCollector(nextTestNamespace(), nil)
	})
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordHTTPRequest("GET", "/api/v1/tools", 200, 100*time.Millisecond, 1024, 2048)
	collector.RecordHTTPRequest("GET", "/api/v1/tools", 204, 50*time.Millisecond, 512, 0)
	collector.RecordHTTPRequest("POST", "/api/v1/workflows/execute", 503, time.Second, 10, 10)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/api/v1/tools", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("POST", "/api/v1/workflows/execute", "5xx")))
	assert.Equal(t, 2, testutil.CollectAndCount(collector.httpRequestDuration))
}

func TestCollector_RecordWorkflow(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordWorkflow(true, 3, 120, 200*time.Millisecond)
	collector.RecordWorkflow(false, 2, 30, time.Second)
	collector.RecordWorkflow(true, 0, 0, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.workflowRunsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.workflowRunsTotal.WithLabelValues("failure")))
	assert.Equal(t, 150.0, testutil.ToFloat64(collector.workflowTokensTotal))
	assert.Equal(t, 1, testutil.CollectAndCount(collector.workflowSteps))
}

func TestCollector_RecordAttemptsAndRecoveries(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordAttempt("search", workflow.AttemptFailure)
	collector.RecordAttempt("search", workflow.AttemptFailure)
	collector.RecordAttempt("search", workflow.AttemptSuccess)
	collector.RecordAttempt("slow", workflow.AttemptTimeout)
	collector.RecordRecovery(workflow.RecoveryCache)
	collector.RecordBudgetRejection("costly")

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.stepAttemptsTotal.WithLabelValues("search", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.stepAttemptsTotal.WithLabelValues("slow", "timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.stepRecoveriesTotal.WithLabelValues("cache")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.budgetRejectionTotal.WithLabelValues("costly")))
}

func TestCollector_RecordInvocation(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordInvocation("echo", true, 12, 5*time.Millisecond)
	collector.RecordInvocation("echo", false, 0, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.toolInvocationsTotal.WithLabelValues("echo", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.toolInvocationsTotal.WithLabelValues("echo", "failure")))
	assert.Equal(t, 12.0, testutil.ToFloat64(collector.toolTokensUsed.WithLabelValues("echo")))
}

func TestCollector_RecordDatabase(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordDBQuery("sqlite", "SELECT", 20*time.Millisecond)
	collector.RecordDBConnections("sqlite", 10, 5)

	assert.Equal(t, 1, testutil.CollectAndCount(collector.dbQueryDuration))
	assert.Equal(t, 10.0, testutil.ToFloat64(collector.dbConnectionsOpen.WithLabelValues("sqlite")))
	assert.Equal(t, 5.0, testutil.ToFloat64(collector.dbConnectionsIdle.WithLabelValues("sqlite")))
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			collector.RecordHTTPRequest("GET", "/health", 200, time.Millisecond, 0, 0)
			collector.RecordAttempt("echo", workflow.AttemptSuccess)
			collector.RecordWorkflow(true, 1, 2, time.Millisecond)
		}()
	}
	wg.Wait()

	assert.Equal(t, 10.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/health", "2xx")))
	assert.Equal(t, 10.0, testutil.ToFloat64(collector.stepAttemptsTotal.WithLabelValues("echo", "success")))
	assert.Equal(t, 20.0, testutil.ToFloat64(collector.workflowTokensTotal))
}

func TestCollector_MetricsRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()

	// collector 自动注册到默认 registry，这里再注册到自定义 registry
	collector := NewCollector(nextTestNamespace(), zap.NewNop())
	registry.MustRegister(collector.workflowRunsTotal)

	collector.RecordWorkflow(true, 1, 1, time.Millisecond)

	count, err := testutil.GatherAndCount(registry)
	assert.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStatusCode(t *testing.T) {
	tests := map[int]string{200: "2xx", 301: "3xx", 404: "4xx", 500: "5xx", 100: "unknown"}
	for code, want := range tests {
		assert.Equal(t, want, statusCode(code))
	}
}
