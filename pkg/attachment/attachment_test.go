package attachment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"clusterfs/pkg/cluster"
	"clusterfs/pkg/config"
	"clusterfs/pkg/interpolate"
	"clusterfs/pkg/metrics"
	"clusterfs/pkg/processor"
)

// testRecord is an in-memory Record.
type testRecord struct {
	id         string
	kind       string
	file       Upload
	attributes map[string]string
	path       string
	infos      []Info
	saveErr    error
}

func (r *testRecord) ID() string             { return r.id }
func (r *testRecord) Kind() string           { return r.kind }
func (r *testRecord) File() Upload           { return r.file }
func (r *testRecord) AttachmentPath() string { return r.path }

func (r *testRecord) Attribute(name string) (string, bool) {
	if name == "id" {
		return r.id, true
	}
	value, ok := r.attributes[name]
	return value, ok
}

func (r *testRecord) SaveAttachmentInfo(_ context.Context, info Info) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.infos = append(r.infos, info)
	r.path = info.Path
	return nil
}

// opaqueUpload declares a file but cannot be read.
type opaqueUpload struct{}

func (opaqueUpload) OriginalFilename() string { return "rails.png" }
func (opaqueUpload) ContentType() string      { return "image/png" }

type AttachmentTestSuite struct {
	suite.Suite
	root     string
	states   *cluster.MemoryStore
	engine   *interpolate.Engine
	storage  config.StorageConfig
	registry *processor.Registry
	calls    []string
	reg      *prometheus.Registry
	metrics  *metrics.Metrics
	pipeline *Pipeline
	ctx      context.Context
}

func (s *AttachmentTestSuite) SetupTest() {
	s.root = s.T().TempDir()
	s.ctx = context.Background()
	s.states = cluster.NewMemoryStore()
	s.engine = interpolate.New(s.root)
	s.engine.Now = func() time.Time {
		return time.Date(2024, time.March, 9, 14, 30, 5, 0, time.UTC)
	}
	s.storage = config.Default().Storage
	s.registry = processor.NewRegistry()
	s.calls = nil
	s.reg = prometheus.NewRegistry()
	s.metrics = metrics.New(s.reg)
	s.rebuild()
}

func (s *AttachmentTestSuite) rebuild() {
	s.pipeline = NewPipeline(
		cluster.NewAllocator(s.states),
		s.engine,
		s.storage,
		WithRegistry(s.registry),
		WithMetrics(s.metrics),
	)
}

func (s *AttachmentTestSuite) kind(kind string, override config.StorageOverride) {
	s.storage.Kinds[kind] = override
	s.rebuild()
}

func (s *AttachmentTestSuite) storageDir() string {
	return filepath.Join(s.root, "public", "storage")
}

func (s *AttachmentTestSuite) newRecord(content string) *testRecord {
	return &testRecord{
		id:   "1",
		kind: "User",
		file: NewUpload(strings.NewReader(content), "rails.png", "image/png"),
	}
}

func (s *AttachmentTestSuite) recordingProcessor(name string, err error) processor.Factory {
	return func(target processor.Target) processor.Processor {
		return processor.Func(func(context.Context) error {
			path, pathErr := target.FullPath()
			s.Require().NoError(pathErr)
			s.FileExists(path)
			s.calls = append(s.calls, name)
			return err
		})
	}
}

// assertSaves checks that exactly one save of kind User was counted, with result.
func (s *AttachmentTestSuite) assertSaves(result string) {
	expected := fmt.Sprintf(`
# HELP clusterfs_saves_total Attachment saves by outcome
# TYPE clusterfs_saves_total counter
clusterfs_saves_total{kind="User",result=%q} 1
`, result)
	s.NoError(testutil.GatherAndCompare(s.reg, strings.NewReader(expected), "clusterfs_saves_total"))
}

func intPtr(value int) *int             { return &value }
func boolPtr(value bool) *bool          { return &value }
func stringPtr(value string) *string    { return &value }
func processorsPtr(names ...string) *config.Processors {
	list := config.Processors(names)
	return &list
}

// TestSaveWithoutFile tests that a record without a file is a no-op.
func (s *AttachmentTestSuite) TestSaveWithoutFile() {
	record := &testRecord{id: "1", kind: "User"}

	saved, err := s.pipeline.For(record).Save(s.ctx)
	s.Require().NoError(err)
	s.False(saved)

	s.NoDirExists(s.storageDir())
	s.Empty(record.infos)
	_, err = s.states.Get(s.ctx, "User")
	s.ErrorIs(err, cluster.ErrStateNotFound)
	s.assertSaves(metrics.SaveSkipped)
}

// TestSaveUnreadableFile tests that a handle without Read is rejected.
func (s *AttachmentTestSuite) TestSaveUnreadableFile() {
	record := &testRecord{id: "1", kind: "User", file: opaqueUpload{}}

	saved, err := s.pipeline.For(record).Save(s.ctx)
	s.False(saved)
	s.Require().Error(err)
	s.ErrorIs(err, ErrInvalidFile)

	var invalid *InvalidFileError
	s.Require().ErrorAs(err, &invalid)
	s.Contains(invalid.Type, "opaqueUpload")

	s.NoDirExists(s.storageDir())
	s.Empty(record.infos)
	_, err = s.states.Get(s.ctx, "User")
	s.ErrorIs(err, cluster.ErrStateNotFound)
}

// TestSaveDefaultLayout tests the stock base_dir and to templates.
func (s *AttachmentTestSuite) TestSaveDefaultLayout() {
	record := s.newRecord("PNG..")

	saved, err := s.pipeline.For(record).Save(s.ctx)
	s.Require().NoError(err)
	s.True(saved)

	path := filepath.Join(s.storageDir(), "users", "1", "1", "1-rails.png")
	content, err := os.ReadFile(path)
	s.Require().NoError(err)
	s.Equal("PNG..", string(content))

	s.Require().Len(record.infos, 1)
	s.Equal(Info{
		Size:        5,
		Path:        filepath.Join("users", "1", "1", "1-rails.png"),
		ContentType: "image/png",
	}, record.infos[0])

	state, err := s.states.Get(s.ctx, "User")
	s.Require().NoError(err)
	s.Equal(cluster.Digits{1, 1, 2}, state.Digits)

	s.assertSaves(metrics.SaveStored)
	s.NoError(testutil.GatherAndCompare(s.reg, strings.NewReader(`
# HELP clusterfs_saved_bytes_total Bytes written by attachment saves
# TYPE clusterfs_saved_bytes_total counter
clusterfs_saved_bytes_total{kind="User"} 5
`), "clusterfs_saved_bytes_total"))
}

// TestSaveDefaultContentType tests the fallback content type.
func (s *AttachmentTestSuite) TestSaveDefaultContentType() {
	record := &testRecord{id: "1", kind: "User", file: NewUpload(strings.NewReader("x"), "notes", "")}

	attachment := s.pipeline.For(record)
	_, err := attachment.Save(s.ctx)
	s.Require().NoError(err)

	s.Equal(DefaultContentType, record.infos[0].ContentType)
	s.Equal(DefaultContentType, attachment.ContentType())
	// No extension leaves a trailing dot from the default template.
	s.Equal(filepath.Join("users", "1", "1", "1-notes."), record.infos[0].Path)
}

// TestSaveAdvancesEveryCall tests that each save allocates a new slot.
func (s *AttachmentTestSuite) TestSaveAdvancesEveryCall() {
	s.kind("User", config.StorageOverride{MaxItems: intPtr(2)})

	var paths []string
	for i := range 3 {
		record := s.newRecord("x")
		record.id = string(rune('1' + i))
		_, err := s.pipeline.For(record).Save(s.ctx)
		s.Require().NoError(err)
		paths = append(paths, record.infos[0].Path)
	}

	s.Equal([]string{
		filepath.Join("users", "1", "1", "1-rails.png"),
		filepath.Join("users", "1", "1", "2-rails.png"),
		filepath.Join("users", "1", "2", "3-rails.png"),
	}, paths)
}

// TestSaveHex tests hexadecimal directory names.
func (s *AttachmentTestSuite) TestSaveHex() {
	s.kind("User", config.StorageOverride{Hex: boolPtr(true)})
	s.Require().NoError(s.states.Put(s.ctx, "User", cluster.Digits{255, 300, 400}))

	record := s.newRecord("x")
	_, err := s.pipeline.For(record).Save(s.ctx)
	s.Require().NoError(err)

	s.Equal(filepath.Join("users", "FF", "12C", "1-rails.png"), record.infos[0].Path)
	s.FileExists(filepath.Join(s.storageDir(), "users", "FF", "12C", "1-rails.png"))

	state, err := s.states.Get(s.ctx, "User")
	s.Require().NoError(err)
	s.Equal(cluster.Digits{255, 300, 401}, state.Digits)
}

// TestSaveDepth tests a deeper tree.
func (s *AttachmentTestSuite) TestSaveDepth() {
	s.kind("User", config.StorageOverride{Depth: intPtr(6)})

	record := s.newRecord("x")
	_, err := s.pipeline.For(record).Save(s.ctx)
	s.Require().NoError(err)

	s.Equal(filepath.Join("users", "1", "1", "1", "1", "1", "1-rails.png"), record.infos[0].Path)
}

// TestSaveDepthOne tests that depth 1 puts files directly below the to directory.
func (s *AttachmentTestSuite) TestSaveDepthOne() {
	s.kind("User", config.StorageOverride{Depth: intPtr(1)})

	record := s.newRecord("x")
	_, err := s.pipeline.For(record).Save(s.ctx)
	s.Require().NoError(err)

	s.Equal(filepath.Join("users", "1-rails.png"), record.infos[0].Path)
}

// TestSaveToTemplates tests variations of the to template.
func (s *AttachmentTestSuite) TestSaveToTemplates() {
	testCases := []struct {
		to       string
		expected string
	}{
		{":name", filepath.Join("1", "1", "rails.png")},
		{":storage_name/:login/:base_name.:extension", filepath.Join("users", "dhh", "1", "1", "rails.png")},
		{"avatars/:id.:extension", filepath.Join("avatars", "1", "1", "1.png")},
		{":storage_name/:hash.:extension", ""},
	}

	for _, tc := range testCases {
		s.SetupTest()
		s.kind("User", config.StorageOverride{To: stringPtr(tc.to)})

		record := s.newRecord("x")
		record.attributes = map[string]string{"login": "dhh"}
		_, err := s.pipeline.For(record).Save(s.ctx)
		s.Require().NoError(err, tc.to)

		if tc.expected == "" {
			dir, name := filepath.Split(record.infos[0].Path)
			s.Equal(filepath.Join("users", "1", "1")+string(filepath.Separator), dir)
			s.Regexp(`^[0-9a-f]{40}\.png$`, name)
			continue
		}
		s.Equal(tc.expected, record.infos[0].Path, tc.to)
		s.FileExists(filepath.Join(s.storageDir(), tc.expected), tc.to)
	}
}

// TestSaveCustomBaseDir tests an interpolated base_dir.
func (s *AttachmentTestSuite) TestSaveCustomBaseDir() {
	s.kind("User", config.StorageOverride{BaseDir: stringPtr(":root/tenants/:tenant")})

	record := s.newRecord("x")
	record.attributes = map[string]string{"tenant": "acme"}
	attachment := s.pipeline.For(record)

	_, err := attachment.Save(s.ctx)
	s.Require().NoError(err)

	baseDir, err := attachment.BaseDir()
	s.Require().NoError(err)
	s.Equal(filepath.Join(s.root, "tenants", "acme"), baseDir)
	s.FileExists(filepath.Join(baseDir, "users", "1", "1", "1-rails.png"))
}

// TestSaveRejectsEscapingPaths tests that resolved paths stay below the base directory.
func (s *AttachmentTestSuite) TestSaveRejectsEscapingPaths() {
	testCases := []struct {
		name     string
		override config.StorageOverride
		filename string
		attrs    map[string]string
	}{
		{"to attribute", config.StorageOverride{To: stringPtr(":category/:name")}, "rails.png",
			map[string]string{"category": "../../../escaped"}},
		{"absolute attribute", config.StorageOverride{To: stringPtr(":category/:name")}, "rails.png",
			map[string]string{"category": "/tmp/escaped"}},
		{"base_dir attribute", config.StorageOverride{BaseDir: stringPtr(":root/tenants/:tenant")}, "rails.png",
			map[string]string{"tenant": "../../escaped"}},
		{"file name", config.StorageOverride{To: stringPtr(":name")}, "../../../escaped.png", nil},
	}

	for _, tc := range testCases {
		s.SetupTest()
		s.kind("User", tc.override)

		record := &testRecord{
			id:         "1",
			kind:       "User",
			file:       NewUpload(strings.NewReader("x"), tc.filename, "image/png"),
			attributes: tc.attrs,
		}
		saved, err := s.pipeline.For(record).Save(s.ctx)
		s.False(saved, tc.name)
		s.Require().ErrorIs(err, ErrUnsafePath, tc.name)

		var unsafeErr *UnsafePathError
		s.Require().ErrorAs(err, &unsafeErr, tc.name)
		s.NotEmpty(unsafeErr.Path, tc.name)

		s.Empty(record.infos, tc.name)
		s.NoDirExists(filepath.Join(filepath.Dir(s.root), "escaped"), tc.name)
		s.NoDirExists(filepath.Join(s.root, "escaped"), tc.name)
		s.NoDirExists(s.storageDir(), tc.name)
		s.assertSaves(metrics.SaveFailed)
	}
}

// TestSaveNestedAttribute tests that attributes may add directory levels.
func (s *AttachmentTestSuite) TestSaveNestedAttribute() {
	s.kind("User", config.StorageOverride{To: stringPtr(":category/:name")})

	record := s.newRecord("x")
	record.attributes = map[string]string{"category": "avatars/large"}
	_, err := s.pipeline.For(record).Save(s.ctx)
	s.Require().NoError(err)
	s.Equal(filepath.Join("avatars", "large", "1", "1", "rails.png"), record.infos[0].Path)
}

// TestFullPathKeepsSavedBaseDir tests that a time-dependent base_dir still
// locates the file after the clock moves on.
func (s *AttachmentTestSuite) TestFullPathKeepsSavedBaseDir() {
	start := time.Date(2024, time.March, 9, 14, 30, 5, 0, time.UTC)
	ticks := 0
	s.engine.Now = func() time.Time {
		ticks++
		return start.Add(time.Duration(ticks) * time.Second)
	}
	s.registry.Register("check", s.recordingProcessor("check", nil))
	s.kind("User", config.StorageOverride{
		BaseDir:   stringPtr(":root/:hash"),
		Processor: processorsPtr("check"),
	})

	attachment := s.pipeline.For(s.newRecord("x"))
	saved, err := attachment.Save(s.ctx)
	s.Require().NoError(err)
	s.True(saved)
	s.Equal([]string{"check"}, s.calls)

	path, err := attachment.FullPath()
	s.Require().NoError(err)
	s.FileExists(path)

	exists, err := attachment.Exists()
	s.Require().NoError(err)
	s.True(exists)
}

// TestSaveUnknownBaseDirPlaceholder tests that resolution errors stop before any write.
func (s *AttachmentTestSuite) TestSaveUnknownBaseDirPlaceholder() {
	s.kind("User", config.StorageOverride{BaseDir: stringPtr(":root/:tenant")})

	record := s.newRecord("x")
	_, err := s.pipeline.For(record).Save(s.ctx)
	s.Require().Error(err)
	s.ErrorIs(err, interpolate.ErrTemplateResolution)

	_, err = s.states.Get(s.ctx, "User")
	s.ErrorIs(err, cluster.ErrStateNotFound)
	s.Empty(record.infos)
	s.assertSaves(metrics.SaveFailed)
}

// TestSaveRecordError tests that a failing record update is returned.
func (s *AttachmentTestSuite) TestSaveRecordError() {
	boom := errors.New("record is read-only")
	record := s.newRecord("x")
	record.saveErr = boom

	saved, err := s.pipeline.For(record).Save(s.ctx)
	s.False(saved)
	s.ErrorIs(err, boom)
}

// TestProcessorsRunInOrder tests that processors run after the write, in order.
func (s *AttachmentTestSuite) TestProcessorsRunInOrder() {
	s.registry.Register("first", s.recordingProcessor("first", nil))
	s.registry.Register("second", s.recordingProcessor("second", nil))
	s.kind("User", config.StorageOverride{Processor: processorsPtr("second", "missing", "first")})

	saved, err := s.pipeline.For(s.newRecord("x")).Save(s.ctx)
	s.Require().NoError(err)
	s.True(saved)
	s.Equal([]string{"second", "first"}, s.calls)
}

// TestProcessorErrorPropagates tests that a failing processor fails the save.
func (s *AttachmentTestSuite) TestProcessorErrorPropagates() {
	boom := errors.New("thumbnail failed")
	s.registry.Register("thumbnail", s.recordingProcessor("thumbnail", boom))
	s.registry.Register("after", s.recordingProcessor("after", nil))
	s.kind("User", config.StorageOverride{Processor: processorsPtr("thumbnail", "after")})

	record := s.newRecord("x")
	saved, err := s.pipeline.For(record).Save(s.ctx)
	s.False(saved)
	s.ErrorIs(err, boom)
	s.Equal([]string{"thumbnail"}, s.calls)
	// The file and its info stay in place.
	s.Len(record.infos, 1)
}

// TestBuiltinProcessors tests the default registry against a real save.
func (s *AttachmentTestSuite) TestBuiltinProcessors() {
	s.registry = processor.DefaultRegistry()
	s.kind("User", config.StorageOverride{Processor: processorsPtr(processor.NameChecksum, processor.NameZstd)})

	record := s.newRecord(strings.Repeat("pixels", 100))
	attachment := s.pipeline.For(record)
	_, err := attachment.Save(s.ctx)
	s.Require().NoError(err)

	path, err := attachment.FullPath()
	s.Require().NoError(err)
	s.FileExists(path + processor.SuffixChecksum)
	s.FileExists(path + processor.SuffixZstd)
}

// TestFullPathExistsDestroy tests the stored file helpers.
func (s *AttachmentTestSuite) TestFullPathExistsDestroy() {
	record := s.newRecord("x")
	attachment := s.pipeline.For(record)

	exists, err := attachment.Exists()
	s.Require().NoError(err)
	s.False(exists)
	_, err = attachment.FullPath()
	s.ErrorIs(err, ErrNoAttachment)

	_, err = attachment.Save(s.ctx)
	s.Require().NoError(err)

	path, err := attachment.FullPath()
	s.Require().NoError(err)
	s.Equal(filepath.Join(s.storageDir(), "users", "1", "1", "1-rails.png"), path)

	exists, err = attachment.Exists()
	s.Require().NoError(err)
	s.True(exists)

	removed, err := attachment.Destroy()
	s.Require().NoError(err)
	s.True(removed)
	s.NoFileExists(path)

	removed, err = attachment.Destroy()
	s.Require().NoError(err)
	s.False(removed)
}

// TestLoadedRecord tests helpers on a record loaded without an upload.
func (s *AttachmentTestSuite) TestLoadedRecord() {
	dir := filepath.Join(s.storageDir(), "users", "1", "1")
	s.Require().NoError(os.MkdirAll(dir, 0o750))
	s.Require().NoError(os.WriteFile(filepath.Join(dir, "1-rails.png"), []byte("x"), 0o600))

	record := &testRecord{id: "1", kind: "User", path: filepath.Join("users", "1", "1", "1-rails.png")}
	attachment := s.pipeline.For(record)

	exists, err := attachment.Exists()
	s.Require().NoError(err)
	s.True(exists)
	s.Equal(DefaultContentType, attachment.ContentType())
}

// TestPathFor tests paths below a bucket's storage directory.
func (s *AttachmentTestSuite) TestPathFor() {
	path, err := s.pipeline.PathFor("avatars")
	s.Require().NoError(err)
	s.Equal(filepath.Join(s.storageDir(), "avatars"), path)

	path, err = s.pipeline.PathFor("avatars", "1", "1.jpg")
	s.Require().NoError(err)
	s.Equal(filepath.Join(s.storageDir(), "avatars", "1", "1.jpg"), path)

	_, err = s.pipeline.PathFor("")
	s.ErrorIs(err, cluster.ErrInvalidRequest)
}

// TestPlaceDirectory tests allocating a slot with a sub directory.
func (s *AttachmentTestSuite) TestPlaceDirectory() {
	slot, err := s.pipeline.Place(s.ctx, "avatars", PlaceOptions{Directory: "thumbs"})
	s.Require().NoError(err)
	s.Equal(filepath.Join("1", "1", "thumbs"), slot)
	s.DirExists(filepath.Join(s.storageDir(), "avatars", slot))

	state, err := s.states.Get(s.ctx, "avatars")
	s.Require().NoError(err)
	s.Equal(cluster.Digits{1, 1, 2}, state.Digits)
}

// TestPlaceReader tests writing a stream into the slot.
func (s *AttachmentTestSuite) TestPlaceReader() {
	_, err := s.pipeline.Place(s.ctx, "avatars", PlaceOptions{Reader: bytes.NewReader([]byte("x"))})
	s.ErrorIs(err, ErrFileNameRequired)
	s.NoDirExists(s.storageDir())

	slot, err := s.pipeline.Place(s.ctx, "avatars", PlaceOptions{
		Reader:   bytes.NewReader([]byte("avatar")),
		FileName: "1.jpg",
	})
	s.Require().NoError(err)

	path, err := s.pipeline.PathFor("avatars", slot, "1.jpg")
	s.Require().NoError(err)
	content, err := os.ReadFile(path)
	s.Require().NoError(err)
	s.Equal("avatar", string(content))
}

// TestPlaceSourcePath tests copying an existing file into the slot.
func (s *AttachmentTestSuite) TestPlaceSourcePath() {
	source := filepath.Join(s.T().TempDir(), "portrait.jpg")
	s.Require().NoError(os.WriteFile(source, []byte("portrait"), 0o600))

	slot, err := s.pipeline.Place(s.ctx, "avatars", PlaceOptions{SourcePath: source})
	s.Require().NoError(err)
	s.FileExists(filepath.Join(s.storageDir(), "avatars", slot, "portrait.jpg"))

	slot, err = s.pipeline.Place(s.ctx, "avatars", PlaceOptions{SourcePath: source, FileName: "renamed.jpg"})
	s.Require().NoError(err)
	s.FileExists(filepath.Join(s.storageDir(), "avatars", slot, "renamed.jpg"))
}

// TestPlaceHex tests hex slots for Place.
func (s *AttachmentTestSuite) TestPlaceHex() {
	s.kind("avatars", config.StorageOverride{Hex: boolPtr(true)})
	s.Require().NoError(s.states.Put(s.ctx, "avatars", cluster.Digits{1, 160, 1}))

	slot, err := s.pipeline.Place(s.ctx, "avatars", PlaceOptions{})
	s.Require().NoError(err)
	s.Equal(filepath.Join("1", "A0"), slot)
}

// TestPlaceAll tests concurrent placement.
func (s *AttachmentTestSuite) TestPlaceAll() {
	s.kind("avatars", config.StorageOverride{MaxItems: intPtr(2)})

	items := make([]PlaceOptions, 6)
	for i := range items {
		items[i] = PlaceOptions{Reader: strings.NewReader("x"), FileName: "item.bin"}
	}
	items[5].FileName = ""

	_, err := s.pipeline.PlaceAll(s.ctx, "avatars", items)
	s.ErrorIs(err, ErrFileNameRequired)

	items = items[:5]
	for i := range items {
		items[i] = PlaceOptions{Directory: string(rune('a' + i))}
	}
	paths, err := s.pipeline.PlaceAll(s.ctx, "avatars", items)
	s.Require().NoError(err)
	s.Len(paths, 5)

	seen := make(map[string]bool)
	for i, path := range paths {
		s.True(strings.HasSuffix(path, string(rune('a'+i))))
		s.False(seen[path])
		seen[path] = true
		s.DirExists(filepath.Join(s.storageDir(), "avatars", path))
	}
}

func TestAttachmentTestSuite(t *testing.T) {
	suite.Run(t, new(AttachmentTestSuite))
}
