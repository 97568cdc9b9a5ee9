package registry

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/winmount/winmount/vfs"
	"github.com/winmount/winmount/vfserrors"
)

// fakeHandler is the minimal vfs.FileSystemHandler stub used to exercise
// registry lifecycle behavior without depending on a concrete filesystem
// implementation.
type fakeHandler struct{ name string }

func (f *fakeHandler) CreateFile(ctx context.Context, path string, desired vfs.DesiredAccess, attrs vfs.FileAttributes, shareAccess uint32, disposition vfs.Disposition, options vfs.CreateOptions) (vfs.CreateFileInfo, error) {
	return vfs.CreateFileInfo{}, vfserrors.New(vfserrors.NotImplemented, "fake")
}

func (f *fakeHandler) GetFreeSpace(ctx context.Context) (uint64, uint64, uint64, error) {
	return 0, 0, 0, nil
}

func (f *fakeHandler) GetCharacteristics(ctx context.Context) vfs.Characteristics { return 0 }

type fakeProvider struct{ handler *fakeHandler }

func (p *fakeProvider) Construct(ctx context.Context, cctx *CreationContext, config json.RawMessage) (vfs.FileSystemHandler, error) {
	return p.handler, nil
}

// selfRefProvider's config always points back at its own filesystem ID,
// exercising the cycle-detection path (spec §8 scenario 3).
type selfRefProvider struct{ reg *Registry }

func (p *selfRefProvider) Construct(ctx context.Context, cctx *CreationContext, config json.RawMessage) (vfs.FileSystemHandler, error) {
	var id UUID
	if err := json.Unmarshal(config, &id); err != nil {
		return nil, err
	}
	return cctx.GetOrRunFS(id)
}

func TestStartStopLifecycle(t *testing.T) {
	reg := New()
	kind := uuid.New()
	reg.RegisterFilesystemKind(kind, &fakeProvider{handler: &fakeHandler{name: "h"}})

	id := reg.CreateFS("test", kind, nil)
	info, err := reg.GetFSInfo(id)
	require.NoError(t, err)
	assert.False(t, info.Started)

	started, err := reg.StartFS(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, started)

	started, err = reg.StartFS(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, started, "starting an already-started fs is a no-op")

	require.NoError(t, reg.StopFS(id))
	require.NoError(t, reg.RemoveFS(id))

	_, err = reg.GetFSInfo(id)
	assert.True(t, vfserrors.Is(err, vfserrors.ObjectNameNotFound))
}

func TestStopWhileBusyFails(t *testing.T) {
	reg := New()
	kind := uuid.New()
	reg.RegisterFilesystemKind(kind, &fakeProvider{handler: &fakeHandler{}})

	id := reg.CreateFS("test", kind, nil)
	_, err := reg.StartFS(context.Background(), id)
	require.NoError(t, err)

	_, release, err := reg.AcquireHandler(id)
	require.NoError(t, err)

	err = reg.StopFS(id)
	assert.True(t, vfserrors.Is(err, vfserrors.StillInUse))

	release()
	require.NoError(t, reg.StopFS(id))
}

// depProvider's config names another filesystem ID to realize via
// GetOrRunFS before returning its own handler, exercising the legitimate
// (non-cyclic) nested-dependency path that TestCyclicDependencyDetected's
// self-referential case does not cover.
type depProvider struct{ handler *fakeHandler }

func (p *depProvider) Construct(ctx context.Context, cctx *CreationContext, config json.RawMessage) (vfs.FileSystemHandler, error) {
	var depID UUID
	if err := json.Unmarshal(config, &depID); err != nil {
		return nil, err
	}
	if _, err := cctx.GetOrRunFS(depID); err != nil {
		return nil, err
	}
	return p.handler, nil
}

func TestNestedDependencyStarts(t *testing.T) {
	reg := New()
	leafKind := uuid.New()
	reg.RegisterFilesystemKind(leafKind, &fakeProvider{handler: &fakeHandler{name: "leaf"}})
	depKind := uuid.New()
	reg.RegisterFilesystemKind(depKind, &depProvider{handler: &fakeHandler{name: "dep"}})

	leafID := reg.CreateFS("leaf", leafKind, nil)
	cfg, _ := json.Marshal(leafID)
	depID := reg.CreateFS("dep", depKind, cfg)

	started, err := reg.StartFS(context.Background(), depID)
	require.NoError(t, err)
	assert.True(t, started)

	leafInfo, err := reg.GetFSInfo(leafID)
	require.NoError(t, err)
	assert.True(t, leafInfo.Started, "GetOrRunFS must transitively start the dependency")
}

func TestCyclicDependencyDetected(t *testing.T) {
	reg := New()
	kind := uuid.New()
	reg.RegisterFilesystemKind(kind, &selfRefProvider{reg: reg})

	id := reg.CreateFS("cyclic", kind, nil)
	cfg, _ := json.Marshal(id)
	require.NoError(t, reg.UpdateFSInfo(id, "", cfg))

	_, err := reg.StartFS(context.Background(), id)
	require.Error(t, err)
	assert.True(t, vfserrors.Is(err, vfserrors.CyclicDependency))

	info, err := reg.GetFSInfo(id)
	require.NoError(t, err)
	assert.False(t, info.Started, "a failed start leaves the entry stopped")
}

func TestUpdateRejectedWhileRunning(t *testing.T) {
	reg := New()
	kind := uuid.New()
	reg.RegisterFilesystemKind(kind, &fakeProvider{handler: &fakeHandler{}})

	id := reg.CreateFS("test", kind, nil)
	_, err := reg.StartFS(context.Background(), id)
	require.NoError(t, err)

	err = reg.UpdateFSInfo(id, "renamed", nil)
	assert.True(t, vfserrors.Is(err, vfserrors.InvalidParameter))
}
