package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordUpstream(t *testing.T) {
	before := testutil.ToFloat64(UpstreamRequests.WithLabelValues("local-search", "503"))
	RecordUpstream("local-search", 503)
	assert.Equal(t, before+1, testutil.ToFloat64(UpstreamRequests.WithLabelValues("local-search", "503")))
}

func TestRecordHTTP(t *testing.T) {
	before := testutil.ToFloat64(HTTPRequests.WithLabelValues("POST", "/select", "200"))
	RecordHTTP("POST", "/select", 200, 15*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(HTTPRequests.WithLabelValues("POST", "/select", "200")))
}
