package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveOperation(t *testing.T) {
	before := testutil.ToFloat64(operations.WithLabelValues("create_group", "quota"))
	ObserveOperation("create_group", "quota")
	ObserveOperation("create_group", "quota")
	after := testutil.ToFloat64(operations.WithLabelValues("create_group", "quota"))

	assert.Equal(t, before+2, after)
}

func TestHandlerExposesCollectors(t *testing.T) {
	ObserveCallback("resolved")
	ObserveCommand("xcall", "ok")
	ObserveLockWait("add_alias", 3*time.Millisecond)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	for _, name := range []string{
		"mentionbot_picker_callbacks_total",
		"mentionbot_commands_total",
		"mentionbot_chat_lock_wait_seconds_bucket",
	} {
		assert.True(t, strings.Contains(body, name), name)
	}
}
