package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)
	Register(reg)

	Calls.WithLabelValues(CallAccepted).Inc()
	assert.GreaterOrEqual(t, testutil.ToFloat64(Calls.WithLabelValues(CallAccepted)), 1.0)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "dial_calls_total")
	assert.Contains(t, names, "dial_users")
}
