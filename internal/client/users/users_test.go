package users

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portphilio/portkeeper/internal/client/auth"
	"github.com/portphilio/portkeeper/internal/client/store"
	"github.com/portphilio/portkeeper/internal/logging"
)

type fakeService struct {
	finds   []Profile
	patched map[string]any
	doc     Profile
	err     error
}

func (f *fakeService) Find(_ context.Context, _ url.Values, out any) error {
	if f.err != nil {
		return f.err
	}
	b, _ := json.Marshal(f.finds)
	return json.Unmarshal(b, out)
}

func (f *fakeService) Patch(_ context.Context, _ string, data, out any) error {
	if f.err != nil {
		return f.err
	}
	f.patched = data.(map[string]any)
	b, _ := json.Marshal(f.doc)
	return json.Unmarshal(b, out)
}

func setup(t *testing.T) (*Module, *fakeService, *store.Store) {
	t.Helper()
	st := store.New()
	svc := &fakeService{}
	m := New(st, svc, logging.NewNopLogger())
	require.NoError(t, st.Register(m))
	return m, svc, st
}

func TestFetchStoresProfile(t *testing.T) {
	m, svc, _ := setup(t)
	svc.finds = []Profile{{
		ID:       "u-1",
		Email:    "pat@example.com",
		Metadata: map[string]any{"public": true},
	}}

	got, err := m.Fetch(context.Background(), "auth0|abc")
	require.NoError(t, err)
	assert.Equal(t, "u-1", got.ID)
	assert.Equal(t, true, m.Profile().Metadata["public"])
}

func TestFetchNoMatchLeavesEmptyProfile(t *testing.T) {
	m, svc, _ := setup(t)
	svc.finds = nil

	got, err := m.Fetch(context.Background(), "auth0|abc")
	require.NoError(t, err)
	assert.Empty(t, got.ID)
}

func TestUpdateSendsMetadataPatchAndAdoptsServerDoc(t *testing.T) {
	m, svc, _ := setup(t)
	svc.finds = []Profile{{ID: "u-1", Metadata: map[string]any{"public": false}}}
	_, err := m.Fetch(context.Background(), "auth0|abc")
	require.NoError(t, err)

	// the server answer carries more than the patch; the local copy
	// adopts the stored document wholesale
	svc.doc = Profile{ID: "u-1", Name: "Pat", Metadata: map[string]any{"public": true, "bio": "hi"}}

	got, err := m.Update(context.Background(), map[string]any{"public": true})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"user_metadata": map[string]any{"public": true}}, svc.patched)
	assert.Equal(t, "Pat", got.Name)
	assert.Equal(t, "hi", m.Profile().Metadata["bio"])
}

func TestUpdateFailureKeepsLocalProfile(t *testing.T) {
	m, svc, _ := setup(t)
	svc.finds = []Profile{{ID: "u-1", Name: "Pat"}}
	_, err := m.Fetch(context.Background(), "auth0|abc")
	require.NoError(t, err)

	svc.err = errors.New("boom")
	_, err = m.Update(context.Background(), map[string]any{"public": true})
	require.Error(t, err)
	assert.Equal(t, "Pat", m.Profile().Name)
}

func TestLogoutClearsProfile(t *testing.T) {
	m, svc, st := setup(t)
	svc.finds = []Profile{{ID: "u-1", Name: "Pat"}}
	_, err := m.Fetch(context.Background(), "auth0|abc")
	require.NoError(t, err)

	st.Commit(auth.LoggedOut{}, func() {})
	assert.Empty(t, m.Profile().ID)
	assert.Empty(t, m.Profile().Name)
}

func TestProfileReturnsCopy(t *testing.T) {
	m, svc, _ := setup(t)
	svc.finds = []Profile{{ID: "u-1", Metadata: map[string]any{"public": false}}}
	_, err := m.Fetch(context.Background(), "auth0|abc")
	require.NoError(t, err)

	p := m.Profile()
	p.Metadata["public"] = true
	assert.Equal(t, false, m.Profile().Metadata["public"])
}

func TestRestoreRoundTrip(t *testing.T) {
	m, _, _ := setup(t)
	raw := []byte(`{"profile":{"_id":"u-1","name":"Pat","user_metadata":{"public":true}}}`)
	require.NoError(t, m.Restore(raw))
	assert.Equal(t, "Pat", m.Profile().Name)
	assert.Equal(t, true, m.Profile().Metadata["public"])
}
