package search

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMetricJSONRoundTrip(t *testing.T) {
	t.Parallel()

	for _, m := range []Metric{MetricDot, MetricL2, MetricCosine} {
		data, err := json.Marshal(m)
		require.NoError(t, err)

		var decoded Metric
		require.NoError(t, json.Unmarshal(data, &decoded))
		require.Equal(t, m, decoded)
	}
}

func TestMetricUnmarshalRejectsUnknown(t *testing.T) {
	t.Parallel()

	var m Metric
	require.Error(t, json.Unmarshal([]byte(`"bogus"`), &m))
}

func TestModeJSONRoundTrip(t *testing.T) {
	t.Parallel()

	for _, m := range []Mode{ModeExact, ModeIVF, ModeAuto} {
		data, err := json.Marshal(m)
		require.NoError(t, err)

		var decoded Mode
		require.NoError(t, json.Unmarshal(data, &decoded))
		require.Equal(t, m, decoded)
	}
}

func TestModeUnmarshalRejectsUnknown(t *testing.T) {
	t.Parallel()

	var m Mode
	require.Error(t, json.Unmarshal([]byte(`"bogus"`), &m))
}

func TestResultJSONUsesStringModeAndOmitsEmptyPayload(t *testing.T) {
	t.Parallel()

	result := Result{Hits: []Hit{{ID: 1, Score: 0.5}}, Mode: ModeExact}

	data, err := json.Marshal(result)
	require.NoError(t, err)
	require.JSONEq(t, `{"hits":[{"id":1,"score":0.5}],"mode":"exact"}`, string(data))
}
