package publish

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/aws/smithy-go"

	"github.com/input-output-hk/ecr-image-tag/services/aws/ecr"
)

// fakeRegistry is an in-memory registry that answers like ECR: deleting a
// missing tag is ErrImageNotFound, putting a tag that already points at the
// same manifest is ErrImageAlreadyExists, and tags listed in immutable cannot
// be moved.
type fakeRegistry struct {
	mu        sync.Mutex
	repos     map[string]map[string]ecr.Manifest
	immutable map[string]bool
	events    []string

	deleteHook func(ctx context.Context, tag string) error
	putHook    func(ctx context.Context, tag string) error

	// putDigest overrides the digest reported by PutImage.
	putDigest string

	inflight    atomic.Int32
	maxInflight atomic.Int32
	calls       atomic.Int32
}

func newFakeRegistry(repository string) *fakeRegistry {
	return &fakeRegistry{
		repos:     map[string]map[string]ecr.Manifest{repository: {}},
		immutable: map[string]bool{},
	}
}

func (f *fakeRegistry) seed(repository, tag string, m ecr.Manifest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.repos[repository][tag] = m
}

func (f *fakeRegistry) tags(repository string) map[string]ecr.Manifest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]ecr.Manifest, len(f.repos[repository]))
	for k, v := range f.repos[repository] {
		out[k] = v
	}
	return out
}

func (f *fakeRegistry) record(event string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeRegistry) eventLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func (f *fakeRegistry) enter() func() {
	f.calls.Add(1)
	n := f.inflight.Add(1)
	for {
		peak := f.maxInflight.Load()
		if n <= peak || f.maxInflight.CompareAndSwap(peak, n) {
			break
		}
	}
	return func() { f.inflight.Add(-1) }
}

func (f *fakeRegistry) DeleteImage(ctx context.Context, repository, tag string) ([]ecr.ImageID, error) {
	defer f.enter()()
	f.record("delete:start:" + tag)
	defer f.record("delete:end:" + tag)

	if f.deleteHook != nil {
		if err := f.deleteHook(ctx, tag); err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	repo, ok := f.repos[repository]
	if !ok {
		return nil, &ecr.Error{Op: "BatchDeleteImage", Repository: repository, Tag: tag, Err: ecr.ErrRepositoryNotFound}
	}
	m, ok := repo[tag]
	if !ok {
		return nil, &ecr.Error{Op: "BatchDeleteImage", Repository: repository, Tag: tag, Err: ecr.ErrImageNotFound}
	}
	delete(repo, tag)

	return []ecr.ImageID{{Tag: tag, Digest: m.Digest.String()}}, nil
}

func (f *fakeRegistry) PutImage(ctx context.Context, repository, tag string, manifest ecr.Manifest) (*ecr.ImageID, error) {
	defer f.enter()()
	f.record("put:start:" + tag)
	defer f.record("put:end:" + tag)

	if f.putHook != nil {
		if err := f.putHook(ctx, tag); err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	repo, ok := f.repos[repository]
	if !ok {
		return nil, &ecr.Error{Op: "PutImage", Repository: repository, Tag: tag, Err: ecr.ErrRepositoryNotFound}
	}
	if existing, ok := repo[tag]; ok {
		if existing.Digest == manifest.Digest {
			return nil, &ecr.Error{
				Op: "PutImage", Repository: repository, Tag: tag,
				Err: fmt.Errorf("%w: digest %s", ecr.ErrImageAlreadyExists, manifest.Digest),
			}
		}
		if f.immutable[tag] {
			return nil, &ecr.Error{
				Op: "PutImage", Repository: repository, Tag: tag,
				Err: &smithy.GenericAPIError{Code: ecr.ImageTagAlreadyExistsException, Message: "tag is immutable"},
			}
		}
	}
	repo[tag] = manifest

	digest := manifest.Digest.String()
	if f.putDigest != "" {
		digest = f.putDigest
	}
	return &ecr.ImageID{Tag: tag, Digest: digest}, nil
}

func (f *fakeRegistry) GetManifest(ctx context.Context, repository, tag string) (ecr.Manifest, error) {
	defer f.enter()()
	f.record("get:" + tag)

	f.mu.Lock()
	defer f.mu.Unlock()

	repo, ok := f.repos[repository]
	if !ok {
		return ecr.Manifest{}, &ecr.Error{Op: "BatchGetImage", Repository: repository, Tag: tag, Err: ecr.ErrRepositoryNotFound}
	}
	m, ok := repo[tag]
	if !ok {
		return ecr.Manifest{}, &ecr.Error{Op: "BatchGetImage", Repository: repository, Tag: tag, Err: ecr.ErrEmptyImageList}
	}
	return m, nil
}

var _ Registry = (*fakeRegistry)(nil)

type logRecord struct {
	level slog.Level
	msg   string
	attrs map[string]string
}

// recordingHandler collects log records; safe for concurrent use.
type recordingHandler struct {
	mu      sync.Mutex
	records []logRecord
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

//nolint:gocritic // slog.Handler interface requires slog.Record by value
func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	rec := logRecord{level: r.Level, msg: r.Message, attrs: map[string]string{}}
	r.Attrs(func(a slog.Attr) bool {
		rec.attrs[a.Key] = a.Value.String()
		return true
	})
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, rec)
	return nil
}

func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler {
	return h
}

func (h *recordingHandler) WithGroup(string) slog.Handler {
	return h
}

func (h *recordingHandler) find(level slog.Level, msg string) []logRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []logRecord
	for _, r := range h.records {
		if r.level == level && r.msg == msg {
			out = append(out, r)
		}
	}
	return out
}
