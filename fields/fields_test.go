package fields_test

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/go-test/deep"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/im-adarsh/go-authflow/fields"
	"github.com/im-adarsh/go-authflow/identity"
)

func mustAdd(t *testing.T, r fields.Registry, name, value string) fields.Registry {
	t.Helper()
	out, err := r.Add(name, value)
	require.NoError(t, err)
	return out
}

func TestAdd_EmptyNameRejected(t *testing.T) {
	r := mustAdd(t, fields.New(), "identifier", "a@b.com")
	out, err := r.Add("", "x")
	assert.ErrorIs(t, err, fields.ErrNameRequired)
	assert.Equal(t, []string{"identifier"}, out.Names())
}

func TestAdd_OverwriteKeepsPositionAndClearsError(t *testing.T) {
	r := mustAdd(t, fields.New(), "identifier", "a")
	r = mustAdd(t, r, "password", "p")
	r = r.SetError("identifier", &identity.ErrorDetail{Code: identity.CodeIdentifierNotFound})
	r = mustAdd(t, r, "identifier", "b")

	assert.Equal(t, []string{"identifier", "password"}, r.Names())
	f, ok := r.Get("identifier")
	require.True(t, ok)
	assert.Equal(t, "b", f.Value)
	assert.Nil(t, f.Error)
}

func TestUpdate_KeepsError(t *testing.T) {
	detail := &identity.ErrorDetail{Code: identity.CodePasswordIncorrect, Message: "Password is incorrect."}
	r := mustAdd(t, fields.New(), "password", "x")
	r = r.SetError("password", detail)
	r = r.Update("password", "y")

	f, _ := r.Get("password")
	assert.Equal(t, "y", f.Value)
	require.NotNil(t, f.Error)
	assert.Equal(t, identity.CodePasswordIncorrect, f.Error.Code)
}

func TestSetError_KeepsValueAndClears(t *testing.T) {
	r := mustAdd(t, fields.New(), "code", "123456")
	r = r.SetError("code", &identity.ErrorDetail{Code: identity.CodeCodeIncorrect})
	assert.Equal(t, "123456", r.Value("code"))
	assert.Contains(t, r.Errors(), "code")

	r = r.SetError("code", nil)
	assert.Empty(t, r.Errors())
}

func TestAbsentNamesAreNoOps(t *testing.T) {
	r := mustAdd(t, fields.New(), "identifier", "a@b.com")
	before := r.All()

	for i := 0; i < 3; i++ {
		r = r.Update("missing", "v")
		r = r.SetError("missing", &identity.ErrorDetail{Code: "x"})
		r = r.Remove("missing")
	}

	if diff := deep.Equal(before, r.All()); diff != nil {
		t.Fatalf("registry changed by no-op events: %v", diff)
	}
	assert.False(t, r.Has("missing"))
}

func TestOperationsDoNotMutateReceiver(t *testing.T) {
	base := mustAdd(t, fields.New(), "identifier", "a")
	base = mustAdd(t, base, "password", "p")
	snapshot := base.All()

	_ = mustAdd(t, base, "code", "1")
	_ = base.Update("identifier", "changed")
	_ = base.Remove("password")
	_ = base.SetError("identifier", &identity.ErrorDetail{Code: "x"})
	_ = base.Clear()

	if diff := deep.Equal(snapshot, base.All()); diff != nil {
		t.Fatalf("receiver mutated: %v", diff)
	}
}

func TestRemove_PreservesOrderOfOthers(t *testing.T) {
	r := fields.New()
	for _, n := range []string{"a", "b", "c", "d"} {
		r = mustAdd(t, r, n, n)
	}
	r = r.Remove("b")
	assert.Equal(t, []string{"a", "c", "d"}, r.Names())

	r = mustAdd(t, r, "b", "again")
	assert.Equal(t, []string{"a", "c", "d", "b"}, r.Names())
	assert.Equal(t, 4, r.Len())
}

func TestClear(t *testing.T) {
	r := mustAdd(t, fields.New(), "identifier", "a")
	assert.Equal(t, 0, r.Clear().Len())
	assert.Equal(t, 1, r.Len())
}

// Random add/update/remove sequences must leave exactly the names that were
// added and not removed, each holding the last value assigned to it.
func TestRandomSequencesMatchModel(t *testing.T) {
	names := []string{"identifier", "password", "code", "first_name", "last_name"}
	rng := rand.New(rand.NewSource(42))

	for run := 0; run < 200; run++ {
		r := fields.New()
		model := map[string]string{}
		var order []string

		for step := 0; step < 30; step++ {
			name := names[rng.Intn(len(names))]
			value := fmt.Sprintf("v%d-%d", run, step)
			switch rng.Intn(3) {
			case 0:
				r = mustAdd(t, r, name, value)
				if _, ok := model[name]; !ok {
					order = append(order, name)
				}
				model[name] = value
			case 1:
				r = r.Update(name, value)
				if _, ok := model[name]; ok {
					model[name] = value
				}
			case 2:
				r = r.Remove(name)
				if _, ok := model[name]; ok {
					delete(model, name)
					for i, n := range order {
						if n == name {
							order = append(order[:i], order[i+1:]...)
							break
						}
					}
				}
			}
		}

		if diff := deep.Equal(model, r.Values()); diff != nil {
			t.Fatalf("run %d: values differ from model: %v", run, diff)
		}
		if order == nil {
			order = []string{}
		}
		if diff := deep.Equal(order, r.Names()); diff != nil {
			t.Fatalf("run %d: order differs from model: %v", run, diff)
		}
	}
}
