package run

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/grail/run/snapstore"
	"goa.design/grail/schema"
)

func TestStartExposesPendingCall(t *testing.T) {
	ctx := context.Background()
	c, err := NewContext(inputRecord(), WithEngine(adderEngine(t)), WithName("adder"))
	require.NoError(t, err)

	snap, err := c.Start(ctx, "result = add(a, b)", map[string]any{"a": 2, "b": 3})
	require.NoError(t, err)
	assert.False(t, snap.Done())
	assert.Equal(t, "add", snap.Function())
	assert.Equal(t, []any{2, 3}, snap.Args())
	assert.Empty(t, snap.Kwargs())
	assert.NotEmpty(t, snap.CallID())

	_, err = snap.Value()
	require.ErrorContains(t, err, "not complete")
}

func TestSnapshotResumeToCompletion(t *testing.T) {
	ctx := context.Background()
	c, err := NewContext(inputRecord(), WithEngine(adderEngine(t)), WithName("adder"))
	require.NoError(t, err)

	snap, err := c.Start(ctx, "", map[string]any{"a": 2, "b": 3})
	require.NoError(t, err)
	snap, err = snap.Resume(ctx, 5)
	require.NoError(t, err)
	require.True(t, snap.Done())
	assert.Empty(t, snap.Function())

	v, err := snap.Value()
	require.NoError(t, err)
	assert.Equal(t, 5, v)
}

func TestSnapshotResumeErrorRaisesInProgram(t *testing.T) {
	ctx := context.Background()
	c, err := NewContext(inputRecord(), WithEngine(adderEngine(t)), WithName("adder"))
	require.NoError(t, err)

	snap, err := c.Start(ctx, "", map[string]any{"a": 2, "b": 3})
	require.NoError(t, err)
	_, err = snap.ResumeError(ctx, "add failed upstream")
	var ee *ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Contains(t, ee.Msg, "add failed upstream")
}

func TestSnapshotValueValidatesOutput(t *testing.T) {
	ctx := context.Background()
	out := schema.NewRecord("Out", "runtest.Out", schema.Field{Name: "sum", Type: schema.Int})
	c, err := NewContext(inputRecord(), WithEngine(adderEngine(t)), WithOutput(out), WithName("adder"))
	require.NoError(t, err)

	snap, err := c.Start(ctx, "", map[string]any{"a": 2, "b": 3})
	require.NoError(t, err)
	snap, err = snap.Resume(ctx, map[string]any{"sum": "five"})
	require.NoError(t, err)
	require.True(t, snap.Done())

	_, err = snap.Value()
	var oe *OutputError
	require.ErrorAs(t, err, &oe)
}

func TestSnapshotResumeAfterDone(t *testing.T) {
	ctx := context.Background()
	c, err := NewContext(inputRecord(), WithEngine(adderEngine(t)), WithName("adder"))
	require.NoError(t, err)

	snap, err := c.Start(ctx, "", map[string]any{"a": 1, "b": 1})
	require.NoError(t, err)
	snap, err = snap.Resume(ctx, 2)
	require.NoError(t, err)

	_, err = snap.Resume(ctx, 3)
	require.ErrorContains(t, err, "already complete")
	_, err = snap.Dump(ctx)
	require.ErrorContains(t, err, "already complete")
}

func TestSnapshotDumpStoreLoadResume(t *testing.T) {
	ctx := context.Background()
	c, err := NewContext(inputRecord(), WithEngine(adderEngine(t)), WithName("adder"))
	require.NoError(t, err)

	snap, err := c.Start(ctx, "", map[string]any{"a": 2, "b": 3})
	require.NoError(t, err)
	wantID := snap.CallID()

	payload, err := snap.Dump(ctx)
	require.NoError(t, err)

	// Round-trip through a store as text, the way a web handler would.
	store := snapstore.NewMemory()
	require.NoError(t, store.Save(ctx, "run-1", []byte(snapstore.EncodePayload(payload))))
	encoded, err := store.Load(ctx, "run-1")
	require.NoError(t, err)
	restored, err := snapstore.DecodePayload(string(encoded))
	require.NoError(t, err)

	loaded, err := c.LoadSnapshot(ctx, restored)
	require.NoError(t, err)
	assert.False(t, loaded.Done())
	assert.Equal(t, "add", loaded.Function())
	assert.Equal(t, wantID, loaded.CallID())

	final, err := loaded.Resume(ctx, 5)
	require.NoError(t, err)
	v, err := final.Value()
	require.NoError(t, err)
	assert.Equal(t, 5, v)
}

func TestLoadSnapshotRejectsGarbage(t *testing.T) {
	c, err := NewContext(inputRecord(), WithEngine(adderEngine(t)))
	require.NoError(t, err)
	_, err = c.LoadSnapshot(context.Background(), []byte("junk"))
	require.ErrorContains(t, err, "load snapshot")
}
