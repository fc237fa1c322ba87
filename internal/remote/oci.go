package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/empty"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/remote/transport"
	"github.com/google/go-containerregistry/pkg/v1/types"
	"github.com/sourcegraph/conc/pool"

	"github.com/aweris/jgit/internal/compression"
)

const (
	DefaultConcurrency = 4

	labelBlob = "dev.jgit.blob"
	labelSize = "dev.jgit.size"
)

// OCIStore keeps each tenant's blobs in its own registry repository
// ({registry}/{prefix}/{lower(address)}), one tag per blob. A blob is stored
// as the single zstd layer of an image.
type OCIStore struct {
	registry    string
	prefix      string
	auth        Authenticator
	concurrency int
	nameOpts    []name.Option
	codec       *compression.Zstd
}

func NewOCIStore(registry, prefix string, auth Authenticator, insecure bool) (*OCIStore, error) {
	codec, err := compression.NewZstd(compression.Default)
	if err != nil {
		return nil, fmt.Errorf("init zstd: %w", err)
	}

	var opts []name.Option
	if insecure {
		opts = append(opts, name.Insecure)
	}
	if _, err := name.NewRegistry(registry, opts...); err != nil {
		return nil, fmt.Errorf("invalid registry %q: %w", registry, err)
	}

	return &OCIStore{
		registry:    registry,
		prefix:      strings.Trim(prefix, "/"),
		auth:        auth,
		concurrency: DefaultConcurrency,
		nameOpts:    opts,
		codec:       codec,
	}, nil
}

// SetConcurrency sets the number of parallel registry operations.
func (s *OCIStore) SetConcurrency(n int) {
	if n > 0 {
		s.concurrency = n
	}
}

func (s *OCIStore) String() string { return "oci://" + s.registry + "/" + s.prefix }

func (s *OCIStore) repository(tenant Tenant) (name.Repository, error) {
	path := strings.ToLower(tenant.Address)
	if s.prefix != "" {
		path = s.prefix + "/" + path
	}
	repo, err := name.NewRepository(s.registry+"/"+path, s.nameOpts...)
	if err != nil {
		return name.Repository{}, fmt.Errorf("invalid repository for %s: %w", tenant.Address, err)
	}
	return repo, nil
}

func (s *OCIStore) tag(tenant Tenant, blob string) (name.Tag, error) {
	repo, err := s.repository(tenant)
	if err != nil {
		return name.Tag{}, err
	}
	tag, err := name.NewTag(repo.Name()+":"+blob, s.nameOpts...)
	if err != nil {
		return name.Tag{}, fmt.Errorf("invalid blob name %q: %w", blob, err)
	}
	return tag, nil
}

func (s *OCIStore) List(ctx context.Context, tenant Tenant) ([]Blob, error) {
	repo, err := s.repository(tenant)
	if err != nil {
		return nil, err
	}

	tags, err := retry(ctx, 3, func() ([]string, error) {
		return remote.List(repo, s.remoteOptions(ctx)...)
	})
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", repo, err)
	}

	blobs := make([]Blob, len(tags))
	p := pool.New().WithMaxGoroutines(s.concurrency).WithContext(ctx).WithCancelOnError()
	for i, tag := range tags {
		p.Go(func(ctx context.Context) error {
			size, err := s.size(ctx, repo.Tag(tag))
			if err != nil {
				return fmt.Errorf("inspect %s: %w", tag, err)
			}
			blobs[i] = Blob{Name: tag, Size: size}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	slices.SortFunc(blobs, func(a, b Blob) int { return strings.Compare(a.Name, b.Name) })
	return blobs, nil
}

// size reads the blob size recorded in the image config, falling back to
// the compressed layer size for images written without it.
func (s *OCIStore) size(ctx context.Context, ref name.Tag) (int64, error) {
	img, err := retry(ctx, 3, func() (v1.Image, error) {
		return remote.Image(ref, s.remoteOptions(ctx)...)
	})
	if err != nil {
		return 0, err
	}

	cfg, err := img.ConfigFile()
	if err != nil {
		return 0, fmt.Errorf("get config: %w", err)
	}
	if v, ok := cfg.Config.Labels[labelSize]; ok {
		return strconv.ParseInt(v, 10, 64)
	}

	layers, err := img.Layers()
	if err != nil || len(layers) == 0 {
		return 0, err
	}
	return layers[0].Size()
}

func (s *OCIStore) Read(ctx context.Context, tenant Tenant, blob string) (io.ReadCloser, error) {
	ref, err := s.tag(tenant, blob)
	if err != nil {
		return nil, err
	}

	img, err := retry(ctx, 3, func() (v1.Image, error) {
		return remote.Image(ref, s.remoteOptions(ctx)...)
	})
	if isNotFound(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch image %s: %w", ref, err)
	}

	layers, err := img.Layers()
	if err != nil {
		return nil, fmt.Errorf("get layers: %w", err)
	}
	if len(layers) != 1 {
		return nil, fmt.Errorf("image %s has %d layers, want 1", ref, len(layers))
	}

	data, err := retry(ctx, 3, func() ([]byte, error) {
		rc, err := layers[0].Compressed()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	})
	if err != nil {
		return nil, fmt.Errorf("read layer: %w", err)
	}

	raw, err := s.codec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode layer: %w", err)
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (s *OCIStore) Write(ctx context.Context, tenant Tenant, blob string, r io.Reader, size int64) error {
	ref, err := s.tag(tenant, blob)
	if err != nil {
		return err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read blob: %w", err)
	}
	if size >= 0 && int64(len(data)) != size {
		return fmt.Errorf("read blob: got %d bytes, want %d", len(data), size)
	}

	img, err := s.buildImage(newBlobLayer(s.codec, data), blob)
	if err != nil {
		return fmt.Errorf("build image: %w", err)
	}

	options := append(s.remoteOptions(ctx), remote.WithJobs(s.concurrency))
	_, err = retry(ctx, 3, func() (struct{}, error) {
		return struct{}{}, remote.Write(ref, img, options...)
	})
	if err != nil {
		return fmt.Errorf("push image %s: %w", ref, err)
	}
	return nil
}

func (s *OCIStore) buildImage(layer *blobLayer, blob string) (v1.Image, error) {
	img := mutate.MediaType(empty.Image, types.OCIManifestSchema1)
	img = mutate.ConfigMediaType(img, types.OCIConfigJSON)

	img, err := mutate.AppendLayers(img, layer)
	if err != nil {
		return nil, err
	}

	cfg, err := img.ConfigFile()
	if err != nil {
		return nil, err
	}

	cfg.Config.Labels = map[string]string{
		labelBlob: blob,
		labelSize: strconv.Itoa(len(layer.uncompressed)),
	}
	return mutate.ConfigFile(img, cfg)
}

func (s *OCIStore) remoteOptions(ctx context.Context) []remote.Option {
	options := []remote.Option{remote.WithContext(ctx)}
	if s.auth != nil {
		username, password, err := s.auth.Authenticate(s.registry)
		if err == nil && username != "" {
			return append(options, remote.WithAuth(&authn.Basic{
				Username: username,
				Password: password,
			}))
		}
	}
	return append(options, remote.WithAuth(authn.Anonymous))
}

// blobLayer implements v1.Layer with zstd compression for remote transfer.
// Its uncompressed content is the snapshot exactly as written.
type blobLayer struct {
	compressed   []byte
	uncompressed []byte
}

func newBlobLayer(codec *compression.Zstd, data []byte) *blobLayer {
	return &blobLayer{
		compressed:   codec.Encode(data),
		uncompressed: data,
	}
}

func (l *blobLayer) Digest() (v1.Hash, error) {
	h, _, err := v1.SHA256(bytes.NewReader(l.compressed))
	return h, err
}

func (l *blobLayer) DiffID() (v1.Hash, error) {
	h, _, err := v1.SHA256(bytes.NewReader(l.uncompressed))
	return h, err
}

func (l *blobLayer) Compressed() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(l.compressed)), nil
}

func (l *blobLayer) Uncompressed() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(l.uncompressed)), nil
}

func (l *blobLayer) Size() (int64, error)                { return int64(len(l.compressed)), nil }
func (l *blobLayer) MediaType() (types.MediaType, error) { return types.OCILayerZStd, nil }

func isNotFound(err error) bool {
	var terr *transport.Error
	return errors.As(err, &terr) && terr.StatusCode == http.StatusNotFound
}

// retry runs fn up to maxAttempts times with exponential backoff. A registry
// 404 is final.
func retry[T any](ctx context.Context, maxAttempts int, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	for i := range maxAttempts {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		if isNotFound(err) {
			return zero, err
		}
		lastErr = err
		if i < maxAttempts-1 {
			delay := time.Duration(1<<i) * 500 * time.Millisecond
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return zero, lastErr
}
