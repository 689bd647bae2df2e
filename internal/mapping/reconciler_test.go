package mapping

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeDirectory struct {
	existing     map[string]string
	authAccounts map[string]bool
	inserted     [][2]string
	existingErr  error
	lookupErr    map[string]error
	lookups      []string
}

func (f *fakeDirectory) ExistingMappings(context.Context) (map[string]string, error) {
	if f.existingErr != nil {
		return nil, f.existingErr
	}
	out := make(map[string]string, len(f.existing))
	for k, v := range f.existing {
		out[k] = v
	}
	return out, nil
}

func (f *fakeDirectory) LookupAuthEmail(_ context.Context, email string) (string, bool, error) {
	f.lookups = append(f.lookups, email)
	if err := f.lookupErr[email]; err != nil {
		return "", false, err
	}
	if f.authAccounts[email] {
		return email, true, nil
	}
	return "", false, nil
}

func (f *fakeDirectory) InsertMapping(_ context.Context, airtableEmail, authEmail string) error {
	f.inserted = append(f.inserted, [2]string{airtableEmail, authEmail})
	return nil
}

func newTestReconciler(dir Directory) *Reconciler {
	return NewReconciler(dir, 10, 0, zap.NewNop())
}

func TestReconcileCreatesAutoMatches(t *testing.T) {
	dir := &fakeDirectory{
		existing:     map[string]string{},
		authAccounts: map[string]bool{"a@x.com": true, "c@z.com": true},
	}

	created, err := newTestReconciler(dir).Reconcile(context.Background(),
		[]string{"a@x.com", "b@y.com", "c@z.com"})
	require.NoError(t, err)
	assert.Equal(t, 2, created)
	assert.Equal(t, [][2]string{{"a@x.com", "a@x.com"}, {"c@z.com", "c@z.com"}}, dir.inserted)
}

func TestReconcileFirstMatchWins(t *testing.T) {
	// a@x.com already maps to b@y.com; a fresh auth match for it must
	// not alter or duplicate the existing row
	dir := &fakeDirectory{
		existing:     map[string]string{"a@x.com": "b@y.com"},
		authAccounts: map[string]bool{"a@x.com": true},
	}

	created, err := newTestReconciler(dir).Reconcile(context.Background(), []string{"a@x.com"})
	require.NoError(t, err)
	assert.Zero(t, created)
	assert.Empty(t, dir.inserted)
	assert.Empty(t, dir.lookups)
}

func TestReconcileUnmatchedEmailsLeftAlone(t *testing.T) {
	dir := &fakeDirectory{existing: map[string]string{}, authAccounts: map[string]bool{}}

	created, err := newTestReconciler(dir).Reconcile(context.Background(), []string{"x@y.com"})
	require.NoError(t, err)
	assert.Zero(t, created)
	assert.Empty(t, dir.inserted)
}

func TestReconcileLookupErrorIsNonFatal(t *testing.T) {
	dir := &fakeDirectory{
		existing:     map[string]string{},
		authAccounts: map[string]bool{"b@y.com": true},
		lookupErr:    map[string]error{"a@x.com": errors.New("rate limited")},
	}

	created, err := newTestReconciler(dir).Reconcile(context.Background(),
		[]string{"a@x.com", "b@y.com"})
	require.NoError(t, err)
	assert.Equal(t, 1, created)
}

func TestReconcileExistingMappingsErrorFails(t *testing.T) {
	dir := &fakeDirectory{existingErr: errors.New("relation does not exist")}

	_, err := newTestReconciler(dir).Reconcile(context.Background(), []string{"a@x.com"})
	require.ErrorIs(t, err, ErrReconciliation)
}

func TestReconcileEmptyInput(t *testing.T) {
	dir := &fakeDirectory{}

	created, err := newTestReconciler(dir).Reconcile(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, created)
}

func TestReconcileProcessesInSortedBatches(t *testing.T) {
	dir := &fakeDirectory{existing: map[string]string{}, authAccounts: map[string]bool{}}
	r := NewReconciler(dir, 2, 0, zap.NewNop())

	_, err := r.Reconcile(context.Background(), []string{"c@z.com", "a@x.com", "b@y.com"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a@x.com", "b@y.com", "c@z.com"}, dir.lookups)
}
