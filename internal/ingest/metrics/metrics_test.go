package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordDBError(t *testing.T) {
	m := Get()

	for _, op := range []DBOperation{DBOperationInsert, DBOperationDelete} {
		counter := m.dbErrors.WithLabelValues(string(op))
		before := testutil.ToFloat64(counter)
		m.RecordDBError(op)
		assert.Equal(t, before+1, testutil.ToFloat64(counter))
	}
}

func TestRecordMessageCounters(t *testing.T) {
	m := Get()

	received := m.messagesReceived.WithLabelValues("mqtt")
	before := testutil.ToFloat64(received)
	m.RecordMessageReceived("mqtt")
	assert.Equal(t, before+1, testutil.ToFloat64(received))

	dropped := m.messagesDropped.WithLabelValues("http")
	before = testutil.ToFloat64(dropped)
	m.RecordMessageDropped("http")
	assert.Equal(t, before+1, testutil.ToFloat64(dropped))
}
