package artifact

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"
	"github.com/rotisserie/eris"

	"github.com/hejijunhao/hierclass/internal/engine/classifier"
	"github.com/hejijunhao/hierclass/internal/engine/codec"
	"github.com/hejijunhao/hierclass/internal/model"
)

const (
	manifestFile     = "manifest.toml"
	modelFile        = "model.safetensors"
	codecFile        = "codec.json"
	classWeightsFile = "class_weights.json"

	lockFile      = ".lock"
	stagingPrefix = ".staging-"

	// bundleFormat is bumped when the on-disk layout changes.
	bundleFormat = 1

	lockRetryDelay = 50 * time.Millisecond
)

// Store publishes immutable bundles under <dir>/<version>/. Writes are serialized
// by an in-process mutex plus an exclusive file lock on <dir>/.lock, so version
// allocation is safe across processes sharing the directory. Reads take no lock.
type Store struct {
	dir  string
	mu   sync.Mutex
	lock *flock.Flock
}

// New opens (creating if needed) a store rooted at dir.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "artifact: create store dir %s", dir)
	}
	return &Store{dir: dir, lock: flock.New(filepath.Join(dir, lockFile))}, nil
}

// Dir returns the store root.
func (s *Store) Dir() string { return s.dir }

type manifest struct {
	Format      int           `toml:"format"`
	Version     string        `toml:"version"`
	BaseVersion string        `toml:"base_version,omitempty"`
	CreatedAt   time.Time     `toml:"created_at"`
	RunID       string        `toml:"run_id,omitempty"`
	Encoder     Encoder       `toml:"encoder"`
	Labels      labelCounts   `toml:"labels"`
	Metrics     model.Metrics `toml:"metrics"`
}

type labelCounts struct {
	Categories int `toml:"categories"`
	Families   int `toml:"families"`
}

// SaveBase publishes b as the "base" bundle. A store holds at most one base.
func (s *Store) SaveBase(ctx context.Context, b *Bundle) error {
	if err := b.Check(); err != nil {
		return err
	}
	unlock, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	ok, err := s.Exists(BaseVersion)
	if err != nil {
		return err
	}
	if ok {
		return &model.AlreadyExistsError{Version: BaseVersion}
	}

	b.BaseVersion = ""
	if err := s.publish(b, BaseVersion); err != nil {
		return err
	}
	b.Version = BaseVersion
	return nil
}

// SaveRetrain publishes b as the next retrain_vN after checking that b's codec
// keeps every label index of baseVersion's codec. It returns the new version.
func (s *Store) SaveRetrain(ctx context.Context, b *Bundle, baseVersion string) (string, error) {
	if err := b.Check(); err != nil {
		return "", err
	}
	unlock, err := s.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer unlock()

	baseCodec, err := s.loadCodec(baseVersion)
	if err != nil {
		return "", err
	}
	if err := b.Codec.CompatibleWith(baseCodec, baseVersion); err != nil {
		return "", err
	}

	versions, err := s.Versions()
	if err != nil {
		return "", err
	}
	next := 1
	for _, v := range versions {
		if n, ok := retrainNumber(v); ok && n >= next {
			next = n + 1
		}
	}
	version := retrainPrefix + strconv.Itoa(next)

	b.BaseVersion = baseVersion
	if err := s.publish(b, version); err != nil {
		return "", err
	}
	b.Version = version
	return version, nil
}

// acquire takes the in-process mutex and the directory lock.
func (s *Store) acquire(ctx context.Context) (func(), error) {
	s.mu.Lock()
	ok, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil || !ok {
		s.mu.Unlock()
		if err == nil {
			err = errors.New("lock not acquired")
		}
		return nil, eris.Wrapf(err, "artifact: lock %s", s.lock.Path())
	}
	return func() {
		if err := s.lock.Unlock(); err != nil {
			slog.Warn("failed to release store lock", "path", s.lock.Path(), "error", err)
		}
		s.mu.Unlock()
	}, nil
}

// publish writes every file into a staging directory and renames it into place,
// so a crash never leaves a loadable partial bundle.
func (s *Store) publish(b *Bundle, version string) (err error) {
	staging := filepath.Join(s.dir, stagingPrefix+uuid.NewString())
	if err := os.Mkdir(staging, 0o755); err != nil {
		return eris.Wrapf(err, "artifact: create staging dir %s", staging)
	}
	defer func() {
		if err != nil {
			if rmErr := os.RemoveAll(staging); rmErr != nil {
				slog.Warn("failed to remove staging dir", "path", staging, "error", rmErr)
			}
		}
	}()

	var modelBuf bytes.Buffer
	if err := b.Model.Write(&modelBuf); err != nil {
		return eris.Wrap(err, "artifact: encode model")
	}
	codecJSON, err := json.MarshalIndent(b.Codec, "", "  ")
	if err != nil {
		return eris.Wrap(err, "artifact: encode codec")
	}
	weightsJSON, err := json.MarshalIndent(b.ClassWeights, "", "  ")
	if err != nil {
		return eris.Wrap(err, "artifact: encode class weights")
	}
	manifestTOML, err := toml.Marshal(manifest{
		Format:      bundleFormat,
		Version:     version,
		BaseVersion: b.BaseVersion,
		CreatedAt:   b.CreatedAt.UTC(),
		RunID:       b.RunID,
		Encoder:     b.Encoder,
		Labels:      labelCounts{Categories: b.Codec.NumCategories(), Families: b.Codec.NumFamilies()},
		Metrics:     b.Metrics,
	})
	if err != nil {
		return eris.Wrap(err, "artifact: encode manifest")
	}

	// The manifest goes last: a staging dir without one is never mistaken for a bundle.
	for _, f := range []struct {
		name string
		data []byte
	}{
		{modelFile, modelBuf.Bytes()},
		{codecFile, codecJSON},
		{classWeightsFile, weightsJSON},
		{manifestFile, manifestTOML},
	} {
		if err := writeFileSync(filepath.Join(staging, f.name), f.data); err != nil {
			return err
		}
	}

	final := filepath.Join(s.dir, version)
	if err := os.Rename(staging, final); err != nil {
		return eris.Wrapf(err, "artifact: publish %s", version)
	}
	slog.Info("bundle published", "version", version, "base_version", b.BaseVersion, "run_id", b.RunID, "path", final)
	return nil
}

func writeFileSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return eris.Wrapf(err, "artifact: create %s", path)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return eris.Wrapf(err, "artifact: write %s", path)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return eris.Wrapf(err, "artifact: sync %s", path)
	}
	return eris.Wrapf(f.Close(), "artifact: close %s", path)
}

// Load reads a published bundle and checks that its pieces agree.
func (s *Store) Load(version string) (*Bundle, error) {
	dir, err := s.versionDir(version)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		return nil, eris.Wrapf(err, "artifact: read manifest of %s", version)
	}
	var man manifest
	if err := toml.Unmarshal(raw, &man); err != nil {
		return nil, eris.Wrapf(err, "artifact: parse manifest of %s", version)
	}
	if man.Version != version {
		return nil, &model.SchemaError{Record: version, Reason: "manifest names version " + strconv.Quote(man.Version)}
	}
	if man.Format != bundleFormat {
		return nil, &model.SchemaError{Record: version, Reason: "unsupported bundle format " + strconv.Itoa(man.Format)}
	}

	c, err := readCodec(filepath.Join(dir, codecFile))
	if err != nil {
		return nil, err
	}
	m, err := classifier.Load(filepath.Join(dir, modelFile))
	if err != nil {
		return nil, eris.Wrapf(err, "artifact: load model of %s", version)
	}
	var weights ClassWeights
	raw, err = os.ReadFile(filepath.Join(dir, classWeightsFile))
	if err != nil {
		return nil, eris.Wrapf(err, "artifact: read class weights of %s", version)
	}
	if err := json.Unmarshal(raw, &weights); err != nil {
		return nil, eris.Wrapf(err, "artifact: parse class weights of %s", version)
	}

	b := &Bundle{
		Version:      version,
		BaseVersion:  man.BaseVersion,
		CreatedAt:    man.CreatedAt,
		RunID:        man.RunID,
		Encoder:      man.Encoder,
		Model:        m,
		Codec:        c,
		ClassWeights: weights,
		Metrics:      man.Metrics,
	}
	if err := b.Check(); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Store) loadCodec(version string) (*codec.Codec, error) {
	dir, err := s.versionDir(version)
	if err != nil {
		return nil, err
	}
	return readCodec(filepath.Join(dir, codecFile))
}

func readCodec(path string) (*codec.Codec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "artifact: read %s", path)
	}
	c := new(codec.Codec)
	if err := json.Unmarshal(raw, c); err != nil {
		var se *model.SchemaError
		if errors.As(err, &se) {
			return nil, se
		}
		return nil, eris.Wrapf(err, "artifact: parse %s", path)
	}
	return c, nil
}

// versionDir resolves a published version to its directory.
func (s *Store) versionDir(version string) (string, error) {
	if !validVersion(version) {
		return "", &model.NotFoundError{Version: version}
	}
	dir := filepath.Join(s.dir, version)
	if _, err := os.Stat(filepath.Join(dir, manifestFile)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", &model.NotFoundError{Version: version}
		}
		return "", eris.Wrapf(err, "artifact: stat %s", version)
	}
	return dir, nil
}

// Exists reports whether version has been published.
func (s *Store) Exists(version string) (bool, error) {
	_, err := s.versionDir(version)
	if errors.Is(err, model.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Versions lists published versions: base first, then retrains in ascending order.
// Staging directories and unrelated entries are ignored.
func (s *Store) Versions() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, eris.Wrapf(err, "artifact: list %s", s.dir)
	}
	var versions []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || strings.HasPrefix(name, ".") || !validVersion(name) {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.dir, name, manifestFile)); err != nil {
			continue
		}
		versions = append(versions, name)
	}
	sort.Slice(versions, func(i, j int) bool { return versionOrder(versions[i]) < versionOrder(versions[j]) })
	return versions, nil
}

// Latest returns the newest published version.
func (s *Store) Latest() (string, error) {
	versions, err := s.Versions()
	if err != nil {
		return "", err
	}
	if len(versions) == 0 {
		return "", &model.NotFoundError{Version: "latest"}
	}
	return versions[len(versions)-1], nil
}

func validVersion(v string) bool {
	if v == BaseVersion {
		return true
	}
	_, ok := retrainNumber(v)
	return ok
}

func retrainNumber(v string) (int, bool) {
	digits, ok := strings.CutPrefix(v, retrainPrefix)
	if !ok || digits == "" || digits[0] == '0' {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

func versionOrder(v string) int {
	n, _ := retrainNumber(v)
	return n
}
