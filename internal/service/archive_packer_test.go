package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/roster-gateway/internal/models"
	"github.com/noah-isme/roster-gateway/pkg/config"
	appErrors "github.com/noah-isme/roster-gateway/pkg/errors"
)

type fetcherStub struct {
	blobs   map[string][]byte
	failing map[string]bool
	calls   []string
}

func (f *fetcherStub) Fetch(ctx context.Context, handle string) ([]byte, error) {
	f.calls = append(f.calls, handle)
	if f.failing[handle] {
		return nil, errors.New("file is gone")
	}
	data, ok := f.blobs[handle]
	if !ok {
		return nil, fmt.Errorf("unknown handle %s", handle)
	}
	return data, nil
}

// mediaSet builds items whose declared size equals their blob length.
func mediaSet(sizes ...int) ([]models.MediaItem, *fetcherStub) {
	fetcher := &fetcherStub{blobs: make(map[string][]byte), failing: make(map[string]bool)}
	items := make([]models.MediaItem, 0, len(sizes))
	for i, size := range sizes {
		handle := fmt.Sprintf("h%d", i+1)
		kind := models.MediaPhoto
		if i%3 == 2 {
			kind = models.MediaVideo
		}
		fetcher.blobs[handle] = bytes.Repeat([]byte{byte('a' + i%26)}, size)
		items = append(items, models.MediaItem{Handle: handle, SizeBytes: int64(size), Kind: kind})
	}
	return items, fetcher
}

func entryNames(t *testing.T, part models.ArchivePart) []string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(part.Data), int64(len(part.Data)))
	require.NoError(t, err)
	out := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		_, err = io.Copy(io.Discard, rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		out = append(out, f.Name)
	}
	return out
}

func TestPackFastPathSingleArchive(t *testing.T) {
	items, fetcher := mediaSet(100, 200, 300)
	packer := NewArchivePacker(fetcher, config.ExportConfig{MaxPartBytes: 1 << 20}, nil)

	res, err := packer.Pack(context.Background(), items, "Sad_Bees")
	require.NoError(t, err)
	require.Len(t, res.Parts, 1)
	part := res.Parts[0]
	assert.Equal(t, "Sad_Bees.zip", part.Name)
	assert.Equal(t, 1, part.TotalParts)
	assert.Equal(t, 3, part.Entries)
	assert.Equal(t, int64(600), part.DeclaredBytes)
	assert.False(t, res.Fallback)
	assert.Equal(t, []string{"photo_001.jpg", "photo_002.jpg", "video_003.mp4"}, entryNames(t, part))
}

func TestPackGreedySplitKeepsOrderAndLimit(t *testing.T) {
	sizes := make([]int, 12)
	for i := range sizes {
		sizes[i] = 400
	}
	items, fetcher := mediaSet(sizes...)
	packer := NewArchivePacker(fetcher, config.ExportConfig{MaxPartBytes: 1000, FastPathItems: 10}, nil)

	res, err := packer.Pack(context.Background(), items, "base")
	require.NoError(t, err)
	require.Len(t, res.Parts, 6)

	seen := 0
	for i, part := range res.Parts {
		assert.Equal(t, fmt.Sprintf("base_%d.zip", i+1), part.Name)
		assert.Equal(t, i+1, part.Index)
		assert.Equal(t, 6, part.TotalParts)
		assert.LessOrEqual(t, part.DeclaredBytes, int64(1000))
		seen += part.Entries
	}
	assert.Equal(t, 12, seen)
	assert.Equal(t, []string{"photo_011.jpg", "video_012.mp4"}, entryNames(t, res.Parts[5]))
}

func TestPackFastPathOverflowFallsThroughToSplit(t *testing.T) {
	items, fetcher := mediaSet(5000, 5000)
	packer := NewArchivePacker(fetcher, config.ExportConfig{MaxPartBytes: 60}, nil)

	res, err := packer.Pack(context.Background(), items, "base")
	require.NoError(t, err)
	require.Len(t, res.Parts, 2)
	assert.Equal(t, "base_1.zip", res.Parts[0].Name)
	assert.Equal(t, []string{"photo_002.jpg"}, entryNames(t, res.Parts[1]))
	assert.Equal(t, []string{"h1", "h2"}, fetcher.calls, "blobs are downloaded once")
}

func TestPackFastPathOverflowReusesRetrievals(t *testing.T) {
	items, fetcher := mediaSet(5000, 5000, 5000)
	fetcher.failing["h2"] = true
	packer := NewArchivePacker(fetcher, config.ExportConfig{MaxPartBytes: 60}, nil)

	res, err := packer.Pack(context.Background(), items, "base")
	require.NoError(t, err)

	assert.Equal(t, []string{"h1", "h2", "h3"}, fetcher.calls)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "h2", res.Skipped[0].Handle)
	require.Len(t, res.Parts, 2)
	assert.Equal(t, []string{"video_003.mp4"}, entryNames(t, res.Parts[1]))
}

func TestPackTwelveLessonFilesUnderTransportLimit(t *testing.T) {
	const mib = 1024 * 1024
	declared := []int64{10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 15, 5}
	fetcher := &fetcherStub{blobs: make(map[string][]byte), failing: map[string]bool{"h12": true}}
	items := make([]models.MediaItem, 0, len(declared))
	var total int64
	for i, size := range declared {
		handle := fmt.Sprintf("h%d", i+1)
		fetcher.blobs[handle] = []byte(handle)
		items = append(items, models.MediaItem{Handle: handle, SizeBytes: size * mib, Kind: models.MediaPhoto})
		total += size * mib
	}
	require.Equal(t, int64(120*mib), total)
	packer := NewArchivePacker(fetcher, config.ExportConfig{MaxPartBytes: 45 * mib}, nil)

	res, err := packer.Pack(context.Background(), items, "lesson")
	require.NoError(t, err)

	require.Len(t, res.Parts, 3)
	for _, part := range res.Parts {
		assert.LessOrEqual(t, part.DeclaredBytes, int64(45*mib))
	}
	assert.Equal(t, 11, res.Entries())
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "h12", res.Skipped[0].Handle)
	assert.Equal(t, []string{"photo_009.jpg", "photo_010.jpg", "photo_011.jpg"}, entryNames(t, res.Parts[2]))
}

func TestPackOversizeItemGetsOwnPart(t *testing.T) {
	items, fetcher := mediaSet(10, 3000, 10, 10, 10, 10, 10, 10, 10, 10, 10)
	packer := NewArchivePacker(fetcher, config.ExportConfig{MaxPartBytes: 1000}, nil)

	res, err := packer.Pack(context.Background(), items, "b")
	require.NoError(t, err)
	require.Len(t, res.Parts, 3)
	assert.Equal(t, 1, res.Parts[0].Entries)
	assert.Equal(t, int64(3000), res.Parts[1].DeclaredBytes)
	assert.Equal(t, 9, res.Parts[2].Entries)
}

func TestPackSkipsFailedRetrievals(t *testing.T) {
	sizes := []int{400, 400, 400, 400, 400, 400, 400, 400, 400, 400, 400}
	items, fetcher := mediaSet(sizes...)
	fetcher.failing["h3"] = true
	fetcher.failing["h4"] = true
	packer := NewArchivePacker(fetcher, config.ExportConfig{MaxPartBytes: 800}, nil)

	res, err := packer.Pack(context.Background(), items, "b")
	require.NoError(t, err)

	assert.Len(t, res.Skipped, 2)
	assert.Equal(t, "h3", res.Skipped[0].Handle)
	assert.Equal(t, 9, res.Entries())
	require.Len(t, res.Parts, 5, "the part holding only failed items is dropped")
	assert.Equal(t, 5, res.Parts[4].TotalParts)
	assert.Equal(t, "b_2.zip", res.Parts[1].Name)
	assert.Equal(t, []string{"photo_005.jpg", "video_006.mp4"}, entryNames(t, res.Parts[1]))
}

func TestPackAllRetrievalsFailed(t *testing.T) {
	items, fetcher := mediaSet(10, 10)
	fetcher.failing["h1"] = true
	fetcher.failing["h2"] = true
	packer := NewArchivePacker(fetcher, config.ExportConfig{}, nil)

	_, err := packer.Pack(context.Background(), items, "b")
	assert.ErrorIs(t, err, appErrors.ErrPackingFailed)

	_, err = packer.PackLegacy(context.Background(), items, "b")
	assert.ErrorIs(t, err, appErrors.ErrPackingFailed)
}

func TestPackLegacyIgnoresLimit(t *testing.T) {
	items, fetcher := mediaSet(500, 500, 500)
	packer := NewArchivePacker(fetcher, config.ExportConfig{MaxPartBytes: 100}, nil)

	res, err := packer.PackLegacy(context.Background(), items, "legacy")
	require.NoError(t, err)
	require.Len(t, res.Parts, 1)
	assert.True(t, res.Fallback)
	assert.Equal(t, "legacy.zip", res.Parts[0].Name)
	assert.Equal(t, 3, res.Parts[0].Entries)
}

func TestPackEmptyInput(t *testing.T) {
	packer := NewArchivePacker(&fetcherStub{}, config.ExportConfig{}, nil)
	_, err := packer.Pack(context.Background(), nil, "b")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}
