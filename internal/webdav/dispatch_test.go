package webdav

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/browncloud/davfs/internal/authz"
	"github.com/browncloud/davfs/internal/users"
	"github.com/browncloud/davfs/pkg/registry"
)

func testEnv(t *testing.T, policy authz.Policy, mutate func(*registry.Mount)) (*Dispatcher, *registry.Mount, string) {
	t.Helper()
	root := t.TempDir()
	m := &registry.Mount{URLPrefix: "/m", LocalRoot: root}
	if mutate != nil {
		mutate(m)
	}
	reg := registry.NewRegistry()
	require.NoError(t, reg.Register(m))
	d := NewDispatcher(Config{Registry: reg, Gate: authz.NewGate(policy)})
	return d, m, root
}

func doRequest(d *Dispatcher, method, target string, body io.Reader, p *users.Principal, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if p != nil {
		req = req.WithContext(WithPrincipal(req.Context(), p))
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, req)
	return rec
}

func TestOptionsAdvertisesCapabilities(t *testing.T) {
	d, _, _ := testEnv(t, authz.PolicyACL, nil)

	rec := doRequest(d, http.MethodOptions, "/anything", nil, nil, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, davCapabilities, rec.Header().Get("DAV"))
	for _, method := range []string{"PROPFIND", "MKCOL", "COPY", "MOVE", "PUT", "DELETE"} {
		assert.Contains(t, rec.Header().Get("Allow"), method)
	}
}

func TestUnknownMethodGets405(t *testing.T) {
	d, _, _ := testEnv(t, authz.PolicyACL, nil)

	rec := doRequest(d, "LOCK", "/m/file", nil, nil, nil)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Allow"))
}

func TestUnmountedPathGets404(t *testing.T) {
	d, _, _ := testEnv(t, authz.PolicyACL, nil)

	rec := doRequest(d, http.MethodGet, "/elsewhere/file", nil, nil, nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAnonymousGetMissingFileOnOpenMount(t *testing.T) {
	// An unrestricted mount answers existence honestly: the anonymous client
	// is authorized, the file simply is not there.
	d, _, _ := testEnv(t, authz.PolicyACL, nil)

	rec := doRequest(d, http.MethodGet, "/m/nope.txt", nil, nil, nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, rec.Header().Get("WWW-Authenticate"))
}

func TestAnonymousRestrictedGetIsChallenged(t *testing.T) {
	d, _, root := testEnv(t, authz.PolicyACL, func(m *registry.Mount) {
		m.ReadList = []string{"user:alice"}
	})
	require.NoError(t, os.WriteFile(filepath.Join(root, "secret.txt"), []byte("x"), 0644))

	rec := doRequest(d, http.MethodGet, "/m/secret.txt", nil, nil, nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), `Basic realm="WebDAV"`)
}

func TestAuthenticatedGetOutsideListIsDenied(t *testing.T) {
	d, _, root := testEnv(t, authz.PolicyACL, func(m *registry.Mount) {
		m.ReadList = []string{"user:alice"}
	})
	require.NoError(t, os.WriteFile(filepath.Join(root, "secret.txt"), []byte("x"), 0644))

	rec := doRequest(d, http.MethodGet, "/m/secret.txt", nil, &users.Principal{Name: "bob"}, nil)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestOwnerPutThenGetRoundtrip(t *testing.T) {
	d, _, _ := testEnv(t, authz.PolicyACL, func(m *registry.Mount) {
		m.Owner = "alice"
		m.WriteList = []string{"user:nobody"}
		m.CreateList = []string{"user:nobody"}
	})
	alice := &users.Principal{Name: "alice"}

	rec := doRequest(d, http.MethodPut, "/m/hello.txt", strings.NewReader("hello"), alice, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(d, http.MethodGet, "/m/hello.txt", nil, alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello", rec.Body.String())
	assert.Equal(t, "5", rec.Header().Get("Content-Length"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	assert.NotEmpty(t, rec.Header().Get("Last-Modified"))
}

func TestPutOverwriteReturns200(t *testing.T) {
	d, _, root := testEnv(t, authz.PolicyACL, nil)
	require.NoError(t, os.WriteFile(filepath.Join(root, "f.txt"), []byte("old"), 0644))

	rec := doRequest(d, http.MethodPut, "/m/f.txt", strings.NewReader("new"), nil, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	data, err := os.ReadFile(filepath.Join(root, "f.txt"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestPutOnDirectoryIsRejected(t *testing.T) {
	d, _, root := testEnv(t, authz.PolicyACL, nil)
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0755))

	rec := doRequest(d, http.MethodPut, "/m/sub", strings.NewReader("x"), nil, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPutMissingParentGets404(t *testing.T) {
	d, _, _ := testEnv(t, authz.PolicyACL, nil)

	rec := doRequest(d, http.MethodPut, "/m/no/such/dir/f.txt", strings.NewReader("x"), nil, nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPutRejectedByQuotaPrecheck(t *testing.T) {
	d, _, root := testEnv(t, authz.PolicyACL, func(m *registry.Mount) {
		m.QuotaBytes = 16
	})
	require.NoError(t, os.WriteFile(filepath.Join(root, "existing"), []byte("0123456789"), 0644))

	// strings.Reader carries a known length, so the pre-check rejects before
	// anything touches the disk.
	rec := doRequest(d, http.MethodPut, "/m/big.txt", strings.NewReader("0123456789"), nil, nil)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	_, err := os.Stat(filepath.Join(root, "big.txt"))
	assert.True(t, os.IsNotExist(err))
}

// lengthlessReader hides the concrete reader type so the request carries no
// Content-Length, forcing the streaming re-check to do the rejecting.
type lengthlessReader struct{ io.Reader }

func TestPutAbortedMidStreamByQuota(t *testing.T) {
	const ceiling = 2 * writeChunkSize
	d, _, root := testEnv(t, authz.PolicyACL, func(m *registry.Mount) {
		m.QuotaBytes = ceiling
	})

	body := lengthlessReader{bytes.NewReader(make([]byte, 8*writeChunkSize))}
	rec := doRequest(d, http.MethodPut, "/m/big.bin", body, nil, nil)

	assert.Equal(t, http.StatusForbidden, rec.Code)

	// The partial file stays, overshooting the ceiling by at most one chunk.
	info, err := os.Stat(filepath.Join(root, "big.bin"))
	require.NoError(t, err)
	assert.LessOrEqual(t, info.Size(), int64(ceiling+writeChunkSize))
}

func TestPropfindListsCollectionAndChildren(t *testing.T) {
	d, _, root := testEnv(t, authz.PolicyACL, nil)
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("abc"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0755))

	body := strings.NewReader(`<?xml version="1.0"?>
<D:propfind xmlns:D="DAV:"><D:prop><D:resourcetype/><D:getcontentlength/></D:prop></D:propfind>`)
	rec := doRequest(d, "PROPFIND", "/m", body, nil, nil)

	require.Equal(t, http.StatusMultiStatus, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/xml")

	out := rec.Body.String()
	assert.Contains(t, out, "<href>/m</href>")
	assert.Contains(t, out, "<href>/m/a.txt</href>")
	assert.Contains(t, out, "<href>/m/sub</href>")
	assert.Contains(t, out, "<getcontentlength>3</getcontentlength>")
	assert.Contains(t, out, "<collection/>")
}

func TestPropfindHidesACLFileWithoutPermission(t *testing.T) {
	d, _, root := testEnv(t, authz.PolicyACL, func(m *registry.Mount) {
		m.Owner = "alice"
	})
	require.NoError(t, os.WriteFile(filepath.Join(root, authz.ACLFileName), []byte("read=*"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "visible.txt"), []byte("x"), 0644))

	body := `<propfind><prop><resourcetype/></prop></propfind>`

	rec := doRequest(d, "PROPFIND", "/m", strings.NewReader(body), &users.Principal{Name: "bob"}, nil)
	require.Equal(t, http.StatusMultiStatus, rec.Code)
	assert.NotContains(t, rec.Body.String(), authz.ACLFileName)
	assert.Contains(t, rec.Body.String(), "visible.txt")

	// The owner sees the reserved file.
	rec = doRequest(d, "PROPFIND", "/m", strings.NewReader(body), &users.Principal{Name: "alice"}, nil)
	require.Equal(t, http.StatusMultiStatus, rec.Code)
	assert.Contains(t, rec.Body.String(), authz.ACLFileName)
}

func TestPropfindBadBodyGets400(t *testing.T) {
	d, _, _ := testEnv(t, authz.PolicyACL, nil)

	rec := doRequest(d, "PROPFIND", "/m", strings.NewReader("<broken"), nil, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPropfindOnFileGets404(t *testing.T) {
	d, _, root := testEnv(t, authz.PolicyACL, nil)
	require.NoError(t, os.WriteFile(filepath.Join(root, "f.txt"), []byte("x"), 0644))

	rec := doRequest(d, "PROPFIND", "/m/f.txt",
		strings.NewReader("<propfind><prop/></propfind>"), nil, nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetACLFileIsHiddenWithoutPermission(t *testing.T) {
	d, _, root := testEnv(t, authz.PolicyACL, func(m *registry.Mount) {
		m.Owner = "alice"
	})
	require.NoError(t, os.WriteFile(filepath.Join(root, authz.ACLFileName), []byte("read=*"), 0644))

	rec := doRequest(d, http.MethodGet, "/m/"+authz.ACLFileName, nil, &users.Principal{Name: "bob"}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(d, http.MethodGet, "/m/"+authz.ACLFileName, nil, &users.Principal{Name: "alice"}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDirectoryACLOverridesStaticLists(t *testing.T) {
	d, _, root := testEnv(t, authz.PolicyACL, nil)
	sub := filepath.Join(root, "sub")
	require.NoError(t, os.Mkdir(sub, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, authz.ACLFileName), []byte("read=user:carol\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "doc.txt"), []byte("x"), 0644))

	rec := doRequest(d, http.MethodGet, "/m/sub/doc.txt", nil, &users.Principal{Name: "carol"}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// The static lists are empty (unrestricted) but the ACL file is explicit.
	rec = doRequest(d, http.MethodGet, "/m/sub/doc.txt", nil, &users.Principal{Name: "bob"}, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDeleteRemovesNonEmptyDirectory(t *testing.T) {
	d, _, root := testEnv(t, authz.PolicyACL, nil)
	sub := filepath.Join(root, "sub")
	require.NoError(t, os.Mkdir(sub, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "child.txt"), []byte("x"), 0644))

	rec := doRequest(d, http.MethodDelete, "/m/sub", nil, nil, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = doRequest(d, http.MethodGet, "/m/sub/child.txt", nil, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteMissingTargetGets404(t *testing.T) {
	d, _, _ := testEnv(t, authz.PolicyACL, nil)

	rec := doRequest(d, http.MethodDelete, "/m/nope", nil, nil, nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMkcol(t *testing.T) {
	d, _, root := testEnv(t, authz.PolicyACL, nil)

	rec := doRequest(d, "MKCOL", "/m/newdir", nil, nil, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	info, err := os.Stat(filepath.Join(root, "newdir"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	// Existing target, then a missing intermediate collection.
	rec = doRequest(d, "MKCOL", "/m/newdir", nil, nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	rec = doRequest(d, "MKCOL", "/m/a/b/c", nil, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCopyFile(t *testing.T) {
	d, _, root := testEnv(t, authz.PolicyACL, nil)
	require.NoError(t, os.WriteFile(filepath.Join(root, "src.txt"), []byte("payload"), 0644))

	rec := doRequest(d, "COPY", "/m/src.txt", nil, nil,
		map[string]string{"Destination": "/m/dst.txt"})
	require.Equal(t, http.StatusCreated, rec.Code)

	data, err := os.ReadFile(filepath.Join(root, "dst.txt"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	// Source is untouched and a second copy overwrites with 204.
	_, err = os.Stat(filepath.Join(root, "src.txt"))
	require.NoError(t, err)
	rec = doRequest(d, "COPY", "/m/src.txt", nil, nil,
		map[string]string{"Destination": "/m/dst.txt"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestCopyWithoutDestinationGets400(t *testing.T) {
	d, _, root := testEnv(t, authz.PolicyACL, nil)
	require.NoError(t, os.WriteFile(filepath.Join(root, "src.txt"), []byte("x"), 0644))

	rec := doRequest(d, "COPY", "/m/src.txt", nil, nil, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCopyMissingSourceGets404(t *testing.T) {
	d, _, _ := testEnv(t, authz.PolicyACL, nil)

	rec := doRequest(d, "COPY", "/m/nope.txt", nil, nil,
		map[string]string{"Destination": "/m/dst.txt"})

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCopyDirectoryTree(t *testing.T) {
	d, _, root := testEnv(t, authz.PolicyACL, nil)
	src := filepath.Join(root, "tree")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "nested"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("a"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "nested", "b.txt"), []byte("b"), 0644))

	rec := doRequest(d, "COPY", "/m/tree", nil, nil,
		map[string]string{"Destination": "/m/tree2"})
	require.Equal(t, http.StatusCreated, rec.Code)

	data, err := os.ReadFile(filepath.Join(root, "tree2", "nested", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "b", string(data))
}

func TestMoveRenamesWithinMount(t *testing.T) {
	d, _, root := testEnv(t, authz.PolicyACL, nil)
	require.NoError(t, os.WriteFile(filepath.Join(root, "old.txt"), []byte("x"), 0644))

	rec := doRequest(d, "MOVE", "/m/old.txt", nil, nil,
		map[string]string{"Destination": "/m/new.txt"})
	require.Equal(t, http.StatusCreated, rec.Code)

	_, err := os.Stat(filepath.Join(root, "old.txt"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(root, "new.txt"))
	assert.NoError(t, err)
}

func TestMoveAcrossMounts(t *testing.T) {
	srcRoot := t.TempDir()
	dstRoot := t.TempDir()
	reg := registry.NewRegistry()
	require.NoError(t, reg.Register(&registry.Mount{URLPrefix: "/a", LocalRoot: srcRoot}))
	require.NoError(t, reg.Register(&registry.Mount{URLPrefix: "/b", LocalRoot: dstRoot}))
	d := NewDispatcher(Config{Registry: reg, Gate: authz.NewGate(authz.PolicyACL)})

	require.NoError(t, os.WriteFile(filepath.Join(srcRoot, "f.txt"), []byte("cross"), 0644))

	rec := doRequest(d, "MOVE", "/a/f.txt", nil, nil,
		map[string]string{"Destination": "/b/f.txt"})
	require.Equal(t, http.StatusCreated, rec.Code)

	_, err := os.Stat(filepath.Join(srcRoot, "f.txt"))
	assert.True(t, os.IsNotExist(err))
	data, err := os.ReadFile(filepath.Join(dstRoot, "f.txt"))
	require.NoError(t, err)
	assert.Equal(t, "cross", string(data))
}

func TestCopyIntoFullMountGets403(t *testing.T) {
	srcRoot := t.TempDir()
	dstRoot := t.TempDir()
	reg := registry.NewRegistry()
	require.NoError(t, reg.Register(&registry.Mount{URLPrefix: "/a", LocalRoot: srcRoot}))
	require.NoError(t, reg.Register(&registry.Mount{URLPrefix: "/b", LocalRoot: dstRoot, QuotaBytes: 4}))
	d := NewDispatcher(Config{Registry: reg, Gate: authz.NewGate(authz.PolicyACL)})

	require.NoError(t, os.WriteFile(filepath.Join(srcRoot, "big.txt"), []byte("0123456789"), 0644))

	rec := doRequest(d, "COPY", "/a/big.txt", nil, nil,
		map[string]string{"Destination": "/b/big.txt"})

	assert.Equal(t, http.StatusForbidden, rec.Code)
	_, err := os.Stat(filepath.Join(dstRoot, "big.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestHeadSendsHeadersOnly(t *testing.T) {
	d, _, root := testEnv(t, authz.PolicyACL, nil)
	require.NoError(t, os.WriteFile(filepath.Join(root, "f.txt"), []byte("body"), 0644))

	rec := doRequest(d, http.MethodHead, "/m/f.txt", nil, nil, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "4", rec.Header().Get("Content-Length"))
	assert.Empty(t, rec.Body.String())
}

func TestGetDirectoryGets404(t *testing.T) {
	d, _, root := testEnv(t, authz.PolicyACL, nil)
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0755))

	rec := doRequest(d, http.MethodGet, "/m/sub", nil, nil, nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMoveOntoItselfIsRejected(t *testing.T) {
	d, _, root := testEnv(t, authz.PolicyACL, nil)
	require.NoError(t, os.WriteFile(filepath.Join(root, "f.txt"), []byte("keep me"), 0644))

	rec := doRequest(d, "MOVE", "/m/f.txt", nil, nil,
		map[string]string{"Destination": "/m/f.txt"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// The source survives untouched.
	data, err := os.ReadFile(filepath.Join(root, "f.txt"))
	require.NoError(t, err)
	assert.Equal(t, "keep me", string(data))
}

func TestCopyOntoItselfIsRejected(t *testing.T) {
	d, _, root := testEnv(t, authz.PolicyACL, nil)
	require.NoError(t, os.WriteFile(filepath.Join(root, "f.txt"), []byte("keep me"), 0644))

	rec := doRequest(d, "COPY", "/m/f.txt", nil, nil,
		map[string]string{"Destination": "/m/f.txt"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	data, err := os.ReadFile(filepath.Join(root, "f.txt"))
	require.NoError(t, err)
	assert.Equal(t, "keep me", string(data))
}

func TestCopyIntoOwnSubtreeIsRejected(t *testing.T) {
	d, _, root := testEnv(t, authz.PolicyACL, nil)
	src := filepath.Join(root, "tree")
	require.NoError(t, os.Mkdir(src, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("a"), 0644))

	rec := doRequest(d, "COPY", "/m/tree", nil, nil,
		map[string]string{"Destination": "/m/tree/sub"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Nothing was created inside the source.
	_, err := os.Stat(filepath.Join(src, "sub"))
	assert.True(t, os.IsNotExist(err))
}

func TestMoveIntoOwnSubtreeIsRejected(t *testing.T) {
	d, _, root := testEnv(t, authz.PolicyACL, nil)
	src := filepath.Join(root, "tree")
	require.NoError(t, os.Mkdir(src, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("a"), 0644))

	rec := doRequest(d, "MOVE", "/m/tree", nil, nil,
		map[string]string{"Destination": "/m/tree/sub"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	_, err := os.Stat(filepath.Join(src, "a.txt"))
	assert.NoError(t, err)
}

func TestCopyToSiblingWithCommonNamePrefixIsAllowed(t *testing.T) {
	// "/m/tree2" shares a name prefix with "/m/tree" but is not inside it;
	// the self-target guard must compare whole path segments.
	d, _, root := testEnv(t, authz.PolicyACL, nil)
	src := filepath.Join(root, "tree")
	require.NoError(t, os.Mkdir(src, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("a"), 0644))

	rec := doRequest(d, "COPY", "/m/tree", nil, nil,
		map[string]string{"Destination": "/m/tree2"})
	assert.Equal(t, http.StatusCreated, rec.Code)
}
