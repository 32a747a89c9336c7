package registry

import (
	"testing"

	"github.com/RoseWrightdev/sfu-go/internal/id"
	"github.com/stretchr/testify/assert"
)

type fakePeer struct{ name string }

func TestPeerRegistryInsertGetRemove(t *testing.T) {
	r := NewPeerRegistry[*fakePeer]()
	key := id.NewSessionKey("r1", "u1")

	_, ok := r.Get(key)
	assert.False(t, ok)

	p := &fakePeer{name: "alice"}
	r.Insert(key, p)

	got, ok := r.Get(key)
	assert.True(t, ok)
	assert.Same(t, p, got)
	assert.Equal(t, 1, r.Len())

	removed, ok := r.Remove(key)
	assert.True(t, ok)
	assert.Same(t, p, removed)
	assert.Equal(t, 0, r.Len())

	_, ok = r.Remove(key)
	assert.False(t, ok)
}

type fakeBroadcaster struct{ kind string }

func TestTrackRegistryRemoveSession(t *testing.T) {
	tr := NewTrackRegistry[*fakeBroadcaster]()
	session := id.NewSessionKey("r1", "u1")
	k1 := id.NewTrackKey("r1", "u1", "s1", "t1")
	k2 := id.NewTrackKey("r1", "u1", "s2", "t2")
	other := id.NewTrackKey("r1", "u2", "s3", "t3")

	tr.Insert(k1, &fakeBroadcaster{kind: "video"})
	tr.Insert(k2, &fakeBroadcaster{kind: "audio"})
	tr.Insert(other, &fakeBroadcaster{kind: "video"})

	removed := tr.RemoveSession(session)
	assert.ElementsMatch(t, []id.TrackKey{k1, k2}, removed)
	assert.Equal(t, 1, tr.Len())
}

func TestTrackRegistryKeysInRoomExcludesSelf(t *testing.T) {
	tr := NewTrackRegistry[*fakeBroadcaster]()
	k1 := id.NewTrackKey("r1", "u1", "s1", "t1")
	k2 := id.NewTrackKey("r1", "u2", "s2", "t2")
	tr.Insert(k1, &fakeBroadcaster{kind: "video"})
	tr.Insert(k2, &fakeBroadcaster{kind: "video"})

	keys := tr.KeysInRoom("r1", "u1")
	assert.Equal(t, []id.TrackKey{k2}, keys)
}

func TestTrackRegistryKindOf(t *testing.T) {
	tr := NewTrackRegistry[*fakeBroadcaster]()
	k1 := id.NewTrackKey("r1", "u1", "s1", "t1")
	tr.Insert(k1, &fakeBroadcaster{kind: "audio"})

	kind, ok := tr.KindOf("r1", "u1", "s1", func(b *fakeBroadcaster) string { return b.kind })
	assert.True(t, ok)
	assert.Equal(t, "audio", kind)

	_, ok = tr.KindOf("r1", "u1", "missing", func(b *fakeBroadcaster) string { return b.kind })
	assert.False(t, ok)
}
