package remote

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"log"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-containerregistry/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aweris/amber/internal/repository"
)

func newTestRegistry(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(registry.New(registry.Logger(log.New(io.Discard, "", 0))))
	t.Cleanup(srv.Close)
	return strings.TrimPrefix(srv.URL, "http://")
}

func writeRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range map[string]string{
		"wood/oak.png":         "oak texture",
		"wood/oak.png.preview": "oak thumb",
		"metal/steel.blend":    strings.Repeat("steel", 1000),
	} {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
	repo, err := repository.Build(context.Background(), dir, repository.BuildOptions{})
	require.NoError(t, err)
	data, err := repository.Encode(repo)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, repository.DescriptorName), data, 0644))
	return dir
}

func TestPackUnpackLayer(t *testing.T) {
	files := map[string][]byte{
		"a/b.png": []byte("png"),
		"empty":   {},
		"c.blend": bytes.Repeat([]byte{0}, 300),
	}
	packed, err := PackLayer(files)
	require.NoError(t, err)
	assert.Len(t, packed, 3*(nameLen+8)+3+300)

	got, err := UnpackLayer(packed)
	require.NoError(t, err)
	assert.Equal(t, files, got)
}

func TestPackLayer_NameTooLong(t *testing.T) {
	_, err := PackLayer(map[string][]byte{strings.Repeat("x", nameLen+1): nil})
	assert.ErrorIs(t, err, ErrNameTooLong)
}

func TestUnpackLayer_Truncated(t *testing.T) {
	packed, err := PackLayer(map[string][]byte{"file": []byte("payload")})
	require.NoError(t, err)
	_, err = UnpackLayer(packed[:len(packed)-2])
	assert.Error(t, err)
	_, err = UnpackLayer(packed[:10])
	assert.Error(t, err)
}

func TestBuildLayerPlan(t *testing.T) {
	const mb = 1024 * 1024
	plan := BuildLayerPlan(map[string]int64{
		"a": 4 * mb,
		"b": 4 * mb,
		"c": 4 * mb,
		"d": 1 * mb,
	})
	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}}, plan)

	plan = BuildLayerPlan(map[string]int64{"small": 1 * mb, "huge": 12 * mb})
	assert.Equal(t, [][]string{{"huge"}, {"small"}}, plan)

	plan = BuildLayerPlan(map[string]int64{"a": 1 * mb, "b": 15 * mb})
	assert.Equal(t, [][]string{{"a", "b"}}, plan)

	assert.Empty(t, BuildLayerPlan(nil))
}

func TestPublishFetch(t *testing.T) {
	ctx := context.Background()
	host := newTestRegistry(t)
	dir := writeRepo(t)

	r, err := NewOCIRemote(host+"/amber/wood:v1", StaticAuthenticator{})
	require.NoError(t, err)
	r.SetConcurrency(2)

	res, err := r.Publish(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Files)
	assert.Equal(t, 2, res.Layers)
	assert.NotEmpty(t, res.Digest)

	snap, err := r.Fetch(ctx)
	require.NoError(t, err)

	desc, err := os.ReadFile(filepath.Join(dir, repository.DescriptorName))
	require.NoError(t, err)
	assert.Equal(t, desc, snap.Descriptor)
	assert.Equal(t, repository.SupportedVersion, snap.Version)
	assert.Equal(t, []string{"metal/steel.blend", "wood/oak.png", "wood/oak.png.preview"}, snap.Files())
	assert.True(t, snap.Has(repository.DescriptorName))
	assert.False(t, snap.Has("nope"))

	data, err := snap.ReadFile(ctx, "wood/oak.png")
	require.NoError(t, err)
	assert.Equal(t, "oak texture", string(data))

	_, err = snap.ReadFile(ctx, "missing.png")
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	out := t.TempDir()
	require.NoError(t, snap.Pull(ctx, out))
	data, err = os.ReadFile(filepath.Join(out, "metal", "steel.blend"))
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("steel", 1000), string(data))
	_, err = os.Stat(filepath.Join(out, repository.DescriptorName))
	assert.NoError(t, err)
}

func TestPublish_RequiresDescriptor(t *testing.T) {
	r, err := NewOCIRemote(newTestRegistry(t)+"/amber/empty", nil)
	require.NoError(t, err)
	_, err = r.Publish(context.Background(), t.TempDir())
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestWithTag(t *testing.T) {
	r, err := NewOCIRemote("example.com/amber/wood", nil)
	require.NoError(t, err)
	assert.Equal(t, "latest", r.Tag())

	tagged, err := r.WithTag("v2")
	require.NoError(t, err)
	assert.Equal(t, "v2", tagged.Tag())
	assert.Equal(t, "example.com", tagged.Registry())
}
