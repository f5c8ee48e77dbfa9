package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordRun(t *testing.T) {
	okBefore := testutil.ToFloat64(ScrapeRequestsTotal.WithLabelValues("ok"))
	bytesBefore := testutil.ToFloat64(ArtifactBytesTotal)

	RecordRun("ok", 150*time.Millisecond, 2048)
	RecordRun("FetchTimeout", 5*time.Second, 0)

	assert.Equal(t, okBefore+1, testutil.ToFloat64(ScrapeRequestsTotal.WithLabelValues("ok")))
	assert.Equal(t, bytesBefore+2048, testutil.ToFloat64(ArtifactBytesTotal))
	assert.GreaterOrEqual(t, testutil.ToFloat64(ScrapeRequestsTotal.WithLabelValues("FetchTimeout")), 1.0)
}
