package registry

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/locomote-sh/locomote/internal/cachelayout"
	"github.com/locomote-sh/locomote/internal/dispatch"
	"github.com/locomote-sh/locomote/internal/locosettings"
)

type respWriterStub struct {
	err  error
	json any
}

func (r *respWriterStub) StartResponse(string, cachelayout.CachePolicy) error { return nil }
func (r *respWriterStub) SendData([]byte) error                              { return nil }
func (r *respWriterStub) Done()                                              {}
func (r *respWriterStub) RespondWithJSON(v any) error {
	r.json = v
	return nil
}
func (r *respWriterStub) RespondWithFile(string, string) error { return nil }
func (r *respWriterStub) RespondWithError(err error)           { r.err = err }

func testRepo(t *testing.T, mount string) *Repository {
	t.Helper()

	d := dispatch.New()
	d.Register("ping", dispatch.HandlerFunc(func(ctx context.Context, req *dispatch.Request, resp dispatch.ResponseWriter) {
		_ = resp.RespondWithJSON("pong")
	}))

	return &Repository{MountPath: mount, Dispatcher: d}
}

func TestMountPathFor(t *testing.T) {
	s, err := locosettings.ParseRef("acme/site")
	require.NoError(t, err)
	assert.Equal(t, "acme/site", MountPathFor(s))

	s, err = locosettings.ParseRef("acme/site/staging")
	require.NoError(t, err)
	assert.Equal(t, "acme/site/~staging", MountPathFor(s))
}

func TestRegistry_DispatchRoutesToMountedRepository(t *testing.T) {
	r := New()
	r.AddRepository("locomote.sh", testRepo(t, "acme/site"))

	w := &respWriterStub{}
	r.Dispatch(context.Background(), "content://locomote.sh/acme/site/ping", url.Values{}, w)

	require.NoError(t, w.err)
	assert.Equal(t, "pong", w.json)
}

func TestRegistry_LongestMountWins(t *testing.T) {
	r := New()
	r.AddRepository("locomote.sh", testRepo(t, "acme/site"))
	r.AddRepository("locomote.sh", testRepo(t, "acme/site/~staging"))

	a := r.Authority("locomote.sh")
	repo, rest, ok := a.findRepository("acme/site/~staging/ping")
	require.True(t, ok)
	assert.Equal(t, "acme/site/~staging", repo.MountPath)
	assert.Equal(t, "ping", rest)
}

func TestRegistry_UnknownAuthority(t *testing.T) {
	r := New()

	w := &respWriterStub{}
	r.Dispatch(context.Background(), "content://unknown.host/acme/site/ping", url.Values{}, w)
	assert.Error(t, w.err)
}

func TestRegistry_AddRepositoryIsCopyOnWrite(t *testing.T) {
	r := New()
	r.AddRepository("locomote.sh", testRepo(t, "acme/site"))

	before := r.Authority("locomote.sh")
	r.AddRepository("locomote.sh", testRepo(t, "acme/other"))
	after := r.Authority("locomote.sh")

	assert.Len(t, before.Repositories, 1)
	assert.Len(t, after.Repositories, 2)
}
