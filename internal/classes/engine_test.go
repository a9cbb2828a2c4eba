package classes

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"classpane/internal/document"
	"classpane/internal/eventloop"
	"classpane/internal/telemetry"
)

func newTestEngine(t *testing.T, doc *fakeDoc, opts Options) (*Engine, *eventloop.Loop) {
	t.Helper()
	loop := eventloop.New()
	e := New(doc, loop, opts)
	t.Cleanup(e.Close)
	return e, loop
}

func TestEngine_InstallIsIdempotent(t *testing.T) {
	doc := newFakeDoc()
	doc.attrs[1] = "b a"
	e, _ := newTestEngine(t, doc, Options{})

	e.Install(1, "c")
	first, ok := e.PendingValue(1)
	require.True(t, ok)
	e.Install(1, "c")
	second, _ := e.PendingValue(1)

	assert.Equal(t, "a b c", first)
	assert.Equal(t, first, second)
}

func TestEngine_CoalescesEditsIntoOneWrite(t *testing.T) {
	defer goleak.VerifyNone(t)

	doc := newFakeDoc()
	doc.attrs[1] = "a b"
	loop := eventloop.New()
	e := New(doc, loop, Options{})
	defer e.Close()

	for i := 1; i <= 5; i++ {
		e.Install(1, fmt.Sprintf("c%d", i))
	}
	settle(t, loop, e)

	want := []attrWrite{{node: 1, value: "a b c5"}}
	if diff := cmp.Diff(want, doc.recorded(), cmp.AllowUnexported(attrWrite{})); diff != "" {
		t.Errorf("writes mismatch (-want +got):\n%s", diff)
	}
}

func TestEngine_OneWritePerDirtyElement(t *testing.T) {
	doc := newFakeDoc()
	doc.attrs[1] = "a"
	doc.attrs[2] = "b"
	e, loop := newTestEngine(t, doc, Options{})

	e.Toggle(1, "x", true)
	e.Install(1, "")
	e.Toggle(2, "b", false)
	e.Install(2, "")
	settle(t, loop, e)

	// Writes run concurrently, so only the set of writes is fixed.
	want := []attrWrite{{node: 1, value: "a x"}, {node: 2, value: ""}}
	byNode := cmpopts.SortSlices(func(a, b attrWrite) bool { return a.node < b.node })
	if diff := cmp.Diff(want, doc.recorded(), cmp.AllowUnexported(attrWrite{}), byNode); diff != "" {
		t.Errorf("writes mismatch (-want +got):\n%s", diff)
	}
}

func TestEngine_EchoIsSuppressedUntilWriteSettles(t *testing.T) {
	defer goleak.VerifyNone(t)

	doc := newFakeDoc()
	doc.attrs[1] = "a b"
	loop := eventloop.New()
	e := New(doc, loop, Options{})
	defer e.Close()

	e.Toggle(1, "a", false)
	doc.hold()
	e.Install(1, "")
	loop.Drain()
	doc.waitWrites(t, 1)

	require.True(t, e.Suppressed(1))
	assert.False(t, e.OnExternalMutation(1), "echo must not invalidate")
	enabled, known := e.ClassSet(1)["a"]
	assert.True(t, known, "disabled class must survive the echo")
	assert.False(t, enabled)

	doc.release()
	settle(t, loop, e)
	require.False(t, e.Suppressed(1))

	assert.True(t, e.OnExternalMutation(1), "external mutation after settle must invalidate")
	if diff := cmp.Diff(ClassSet{"b": true}, e.ClassSet(1)); diff != "" {
		t.Errorf("rebuilt set mismatch (-want +got):\n%s", diff)
	}
}

func TestEngine_EditsDuringFlushFormNextBatch(t *testing.T) {
	defer goleak.VerifyNone(t)

	doc := newFakeDoc()
	loop := eventloop.New()
	e := New(doc, loop, Options{})
	defer e.Close()

	doc.hold()
	e.Install(1, "x")
	loop.Drain()
	doc.waitWrites(t, 1)

	e.Install(1, "y")
	loop.Drain()
	assert.Len(t, doc.recorded(), 1, "second flush must wait for the first to settle")
	v, ok := e.PendingValue(1)
	require.True(t, ok)
	assert.Equal(t, "y", v)

	doc.release()
	settle(t, loop, e)

	want := []attrWrite{{node: 1, value: "x"}, {node: 1, value: "y"}}
	if diff := cmp.Diff(want, doc.recorded(), cmp.AllowUnexported(attrWrite{})); diff != "" {
		t.Errorf("writes mismatch (-want +got):\n%s", diff)
	}
	assert.False(t, e.Suppressed(1))
}

func TestEngine_FailedWriteClearsSuppression(t *testing.T) {
	defer goleak.VerifyNone(t)

	doc := newFakeDoc()
	doc.fail = errors.New("boom")
	loop := eventloop.New()

	var failed []document.NodeID
	e := New(doc, loop, Options{
		OnWriteError: func(node document.NodeID, value string, err error) {
			failed = append(failed, node)
		},
	})
	defer e.Close()

	e.Install(3, "q")
	settle(t, loop, e)

	assert.False(t, e.Suppressed(3))
	assert.Equal(t, []document.NodeID{3}, failed)
	assert.True(t, e.OnExternalMutation(3))
}

func TestEngine_RecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	doc := newFakeDoc()
	e, loop := newTestEngine(t, doc, Options{Metrics: telemetry.NewMetrics(reg)})

	e.Install(1, "a")
	settle(t, loop, e)
	e.OnExternalMutation(1)

	n, err := testutil.GatherAndCount(reg,
		"classpane_engine_writes_issued_total",
		"classpane_engine_flushes_total",
		"classpane_engine_invalidations_total",
	)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestEngine_LogsCachedModels(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	doc := newFakeDoc()
	doc.attrs[1] = "a"
	loop := eventloop.New()
	e := New(doc, loop, Options{Logger: zap.New(core)})

	e.Install(1, "b")
	e.ClassSet(2)
	settle(t, loop, e)

	require.True(t, e.OnExternalMutation(1))
	require.True(t, e.OnExternalMutation(1))
	e.Close()

	var cached []bool
	for _, entry := range logs.FilterMessage("dropping class model").All() {
		cached = append(cached, entry.ContextMap()["cached"].(bool))
	}
	assert.Equal(t, []bool{true, false}, cached)

	closed := logs.FilterMessage("engine closed").All()
	require.Len(t, closed, 1)
	assert.Equal(t, int64(1), closed[0].ContextMap()["cached"])
}
