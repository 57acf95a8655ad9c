package vfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "/", Normalize(""))
	assert.Equal(t, "/a/b", Normalize("a/b"))
	assert.Equal(t, "/a/b", Normalize("/a/./b/"))
	assert.Equal(t, "/b", Normalize("/a/../b"))
	assert.Equal(t, "/", Normalize("/.."))
}

func TestMemorySeedFiles(t *testing.T) {
	m := NewMemory(map[string][]byte{
		"/data/in.txt":  []byte("hello"),
		"docs/readme":   []byte("hi"),
		"/data/sub/x.y": []byte("x"),
	})

	assert.True(t, m.IsFile("/data/in.txt"))
	assert.True(t, m.IsFile("/docs/readme"))
	assert.True(t, m.IsDir("/data"))
	assert.True(t, m.IsDir("/data/sub"))
	assert.True(t, m.IsDir("/"))
	assert.False(t, m.IsFile("/data"))
	assert.False(t, m.Exists("/nope"))

	content, err := m.ReadFile("/data/in.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(content))
}

func TestMemoryReadReturnsCopy(t *testing.T) {
	m := NewMemory(map[string][]byte{"/f": []byte("abc")})
	content, err := m.ReadFile("/f")
	require.NoError(t, err)
	content[0] = 'z'

	again, err := m.ReadFile("/f")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(again))
}

func TestMemoryWriteAndOverwrite(t *testing.T) {
	m := NewMemory(nil)
	require.NoError(t, m.WriteFile("/out/result.txt", []byte("v1")))
	require.NoError(t, m.WriteFile("/out/result.txt", []byte("v2")))

	content, err := m.ReadFile("/out/result.txt")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(content))
	assert.True(t, m.IsDir("/out"))

	assert.Error(t, m.WriteFile("/out", []byte("x")), "cannot overwrite a directory")
}

func TestMemoryMkdir(t *testing.T) {
	m := NewMemory(nil)
	require.Error(t, m.Mkdir("/a/b", false), "parent must exist")
	require.NoError(t, m.Mkdir("/a/b", true))
	require.NoError(t, m.Mkdir("/a/b/c", false))
	assert.True(t, m.IsDir("/a/b/c"))
}

func TestMemoryRemove(t *testing.T) {
	m := NewMemory(map[string][]byte{"/d/f": []byte("x")})
	require.Error(t, m.Remove("/d"), "directory not empty")
	require.NoError(t, m.Remove("/d/f"))
	require.NoError(t, m.Remove("/d"))
	assert.False(t, m.Exists("/d"))
	assert.Error(t, m.Remove("/d"))
}

func TestMemoryReadDir(t *testing.T) {
	m := NewMemory(map[string][]byte{
		"/p/b.txt":     []byte("b"),
		"/p/a.txt":     []byte("a"),
		"/p/sub/c.txt": []byte("c"),
	})
	names, err := m.ReadDir("/p")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt", "sub"}, names)

	_, err = m.ReadDir("/nope")
	assert.Error(t, err)
}

func TestMemoryStat(t *testing.T) {
	m := NewMemory(map[string][]byte{"/f": []byte("abcd")})

	fi, err := m.Stat("/f")
	require.NoError(t, err)
	assert.Equal(t, FileInfo{Path: "/f", Size: 4}, fi)

	fi, err = m.Stat("/")
	require.NoError(t, err)
	assert.True(t, fi.Dir)

	_, err = m.Stat("/nope")
	assert.Error(t, err)
}

func TestMemoryRename(t *testing.T) {
	m := NewMemory(map[string][]byte{"/a": []byte("x")})
	require.NoError(t, m.Rename("/a", "/b/c"))
	assert.False(t, m.Exists("/a"))
	assert.True(t, m.IsFile("/b/c"))
	assert.True(t, m.IsDir("/b"))
	assert.Error(t, m.Rename("/a", "/d"))
}
