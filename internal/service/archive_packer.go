package service

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"

	"github.com/noah-isme/roster-gateway/internal/models"
	"github.com/noah-isme/roster-gateway/pkg/config"
	appErrors "github.com/noah-isme/roster-gateway/pkg/errors"
)

const (
	defaultMaxPartBytes  int64 = 45 * 1024 * 1024
	defaultFastPathItems       = 10
	defaultBlobTimeout         = 60 * time.Second
)

// BlobFetcher downloads one remotely stored blob by handle.
type BlobFetcher interface {
	Fetch(ctx context.Context, handle string) ([]byte, error)
}

// ArchivePacker splits media into zip archives that stay under the transport size limit.
// Splitting uses declared sizes only; blobs are downloaded once, while a part is written.
type ArchivePacker struct {
	fetcher     BlobFetcher
	maxPart     int64
	fastPath    int
	blobTimeout time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// NewArchivePacker constructs a packer.
func NewArchivePacker(fetcher BlobFetcher, cfg config.ExportConfig, logger *zap.Logger) *ArchivePacker {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &ArchivePacker{
		fetcher:     fetcher,
		maxPart:     cfg.MaxPartBytes,
		fastPath:    cfg.FastPathItems,
		blobTimeout: cfg.BlobTimeout,
		logger:      logger,
		now:         time.Now,
	}
	if p.maxPart <= 0 {
		p.maxPart = defaultMaxPartBytes
	}
	if p.fastPath <= 0 {
		p.fastPath = defaultFastPathItems
	}
	if p.blobTimeout <= 0 {
		p.blobTimeout = defaultBlobTimeout
	}
	return p
}

// numbered is an item with its 1-based position in the whole export.
type numbered struct {
	seq  int
	item models.MediaItem
}

// Pack builds the parts. Small exports that fit are returned as one archive; everything
// else is split greedily in input order. An error means the caller should fall back to
// PackLegacy.
func (p *ArchivePacker) Pack(ctx context.Context, items []models.MediaItem, base string) (models.PackResult, error) {
	if len(items) == 0 {
		return models.PackResult{}, appErrors.Clone(appErrors.ErrValidation, "Файлы не найдены")
	}
	all := make([]numbered, len(items))
	for i, item := range items {
		all[i] = numbered{seq: i + 1, item: item}
	}

	var fetched blobCache
	if len(items) <= p.fastPath {
		fetched = make(blobCache, len(items))
		part, skipped, err := p.materialize(ctx, all, fetched)
		if err != nil {
			return models.PackResult{}, err
		}
		if part.Entries == 0 {
			return models.PackResult{}, appErrors.Clone(appErrors.ErrPackingFailed, "no media could be retrieved")
		}
		if int64(len(part.Data)) <= p.maxPart {
			part.Name = base + ".zip"
			part.Index, part.TotalParts = 1, 1
			return models.PackResult{Parts: []models.ArchivePart{part}, Skipped: skipped}, nil
		}
		p.logger.Debug("fast path archive too large, splitting",
			zap.String("base", base), zap.Int("bytes", len(part.Data)), zap.Int64("limit", p.maxPart))
	}

	var (
		parts   []models.ArchivePart
		skipped []models.SkippedItem
	)
	for _, group := range p.split(all) {
		part, miss, err := p.materialize(ctx, group, fetched)
		if err != nil {
			return models.PackResult{}, err
		}
		skipped = append(skipped, miss...)
		if part.Entries == 0 {
			continue
		}
		parts = append(parts, part)
	}
	if len(parts) == 0 {
		return models.PackResult{}, appErrors.Clone(appErrors.ErrPackingFailed, "no media could be retrieved")
	}

	for i := range parts {
		parts[i].Index = i + 1
		parts[i].TotalParts = len(parts)
		if len(parts) == 1 {
			parts[i].Name = base + ".zip"
		} else {
			parts[i].Name = fmt.Sprintf("%s_%d.zip", base, i+1)
		}
	}
	return models.PackResult{Parts: parts, Skipped: skipped}, nil
}

// PackLegacy builds exactly one archive with every retrievable item, ignoring the size limit.
func (p *ArchivePacker) PackLegacy(ctx context.Context, items []models.MediaItem, base string) (models.PackResult, error) {
	all := make([]numbered, len(items))
	for i, item := range items {
		all[i] = numbered{seq: i + 1, item: item}
	}
	part, skipped, err := p.materialize(ctx, all, nil)
	if err != nil {
		return models.PackResult{}, err
	}
	if part.Entries == 0 {
		return models.PackResult{}, appErrors.Clone(appErrors.ErrPackingFailed, "no media could be retrieved")
	}
	part.Name = base + ".zip"
	part.Index, part.TotalParts = 1, 1
	return models.PackResult{Parts: []models.ArchivePart{part}, Skipped: skipped, Fallback: true}, nil
}

// split groups items so that no group's declared size exceeds the limit, except a group
// holding a single oversize item.
func (p *ArchivePacker) split(items []numbered) [][]numbered {
	var (
		groups  [][]numbered
		current []numbered
		size    int64
	)
	for _, it := range items {
		if len(current) > 0 && size+it.item.SizeBytes > p.maxPart {
			groups = append(groups, current)
			current, size = nil, 0
		}
		current = append(current, it)
		size += it.item.SizeBytes
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}
	return groups
}

// blobCache holds retrieval outcomes by sequence number so a fast-path attempt that turns
// out too large is split without downloading anything again.
type blobCache map[int]fetchResult

type fetchResult struct {
	data []byte
	err  error
}

func (c blobCache) fetch(ctx context.Context, p *ArchivePacker, it numbered) ([]byte, error) {
	if c == nil {
		return p.fetch(ctx, it.item.Handle)
	}
	if r, ok := c[it.seq]; ok {
		return r.data, r.err
	}
	data, err := p.fetch(ctx, it.item.Handle)
	c[it.seq] = fetchResult{data: data, err: err}
	return data, err
}

func (p *ArchivePacker) materialize(ctx context.Context, items []numbered, cache blobCache) (models.ArchivePart, []models.SkippedItem, error) {
	var (
		buf     bytes.Buffer
		part    models.ArchivePart
		skipped []models.SkippedItem
	)
	zw := zip.NewWriter(&buf)
	modified := p.now()

	for _, it := range items {
		data, err := cache.fetch(ctx, p, it)
		if err != nil {
			p.logger.Warn("media retrieval failed, skipping",
				zap.String("handle", it.item.Handle), zap.Int("seq", it.seq), zap.Error(err))
			skipped = append(skipped, models.SkippedItem{Handle: it.item.Handle, Reason: err.Error()})
			continue
		}

		name := fmt.Sprintf("%s_%03d%s", it.item.Kind, it.seq, it.item.Kind.Extension())
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: modified})
		if err != nil {
			return models.ArchivePart{}, nil, appErrors.Wrap(err, appErrors.ErrPackingFailed.Code, appErrors.ErrPackingFailed.Status, "failed to add archive entry")
		}
		if _, err := w.Write(data); err != nil {
			return models.ArchivePart{}, nil, appErrors.Wrap(err, appErrors.ErrPackingFailed.Code, appErrors.ErrPackingFailed.Status, "failed to write archive entry")
		}
		part.Entries++
		part.DeclaredBytes += it.item.SizeBytes
	}

	if err := zw.Close(); err != nil {
		return models.ArchivePart{}, nil, appErrors.Wrap(err, appErrors.ErrPackingFailed.Code, appErrors.ErrPackingFailed.Status, "failed to finish archive")
	}
	part.Data = buf.Bytes()
	return part, skipped, nil
}

func (p *ArchivePacker) fetch(ctx context.Context, handle string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, p.blobTimeout)
	defer cancel()
	data, err := p.fetcher.Fetch(ctx, handle)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrRetrievalFailed.Code, appErrors.ErrRetrievalFailed.Status, "blob retrieval failed")
	}
	return data, nil
}
