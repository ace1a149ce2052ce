package config

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockSection is a test implementation of the Section interface
type mockSection struct {
	id          string
	data        map[string]interface{}
	validateErr error
}

func (m *mockSection) ID() string                                { return m.id }
func (m *mockSection) Title() string                             { return m.id }
func (m *mockSection) Description() string                       { return "" }
func (m *mockSection) Data() map[string]interface{}              { return m.data }
func (m *mockSection) SetData(data map[string]interface{}) error { m.data = data; return nil }
func (m *mockSection) Validate() error                           { return m.validateErr }
func (m *mockSection) Reset()                                    { m.data = make(map[string]interface{}) }

// mockStore is a test implementation of the Store interface
type mockStore struct {
	sections map[string]map[string]interface{}
	loadErr  error
	saveErr  error
	saved    int
}

func newMockStore() *mockStore {
	return &mockStore{sections: make(map[string]map[string]interface{})}
}

func (m *mockStore) Load() error { return m.loadErr }

func (m *mockStore) Save() error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved++
	return nil
}

func (m *mockStore) GetSection(sectionID string) (map[string]interface{}, error) {
	return m.sections[sectionID], nil
}

func (m *mockStore) SetSection(sectionID string, data map[string]interface{}) error {
	m.sections[sectionID] = data
	return nil
}

func (m *mockStore) GetAll() (map[string]map[string]interface{}, error) {
	return m.sections, nil
}

func TestManager_RegisterSection(t *testing.T) {
	manager := NewManager(newMockStore())

	require.NoError(t, manager.RegisterSection(&mockSection{id: "b"}))
	require.NoError(t, manager.RegisterSection(&mockSection{id: "a"}))
	require.NoError(t, manager.RegisterSection(&mockSection{id: "c"}))
	assert.Error(t, manager.RegisterSection(&mockSection{id: "a"}), "duplicate ids are rejected")

	var ids []string
	for _, s := range manager.GetSections() {
		ids = append(ids, s.ID())
	}
	assert.Equal(t, []string{"b", "a", "c"}, ids, "registration order is preserved")

	_, ok := manager.GetSection("missing")
	assert.False(t, ok)
}

func TestManager_LoadAll(t *testing.T) {
	t.Run("applies stored data", func(t *testing.T) {
		store := newMockStore()
		store.sections["test"] = map[string]interface{}{"key": "value"}

		manager := NewManager(store)
		section := &mockSection{id: "test", data: map[string]interface{}{}}
		require.NoError(t, manager.RegisterSection(section))

		require.NoError(t, manager.LoadAll())
		assert.Equal(t, "value", section.data["key"])
	})

	t.Run("keeps defaults for absent sections", func(t *testing.T) {
		manager := NewManager(newMockStore())
		section := &mockSection{id: "test", data: map[string]interface{}{"default": true}}
		require.NoError(t, manager.RegisterSection(section))

		require.NoError(t, manager.LoadAll())
		assert.Equal(t, true, section.data["default"])
	})

	t.Run("propagates store errors", func(t *testing.T) {
		store := newMockStore()
		store.loadErr = fmt.Errorf("load error")
		assert.Error(t, NewManager(store).LoadAll())
	})

	t.Run("rejects invalid stored values", func(t *testing.T) {
		store := newMockStore()
		store.sections["test"] = map[string]interface{}{"key": "value"}
		manager := NewManager(store)
		require.NoError(t, manager.RegisterSection(&mockSection{id: "test", validateErr: fmt.Errorf("bad")}))

		assert.Error(t, manager.LoadAll())
	})
}

func TestManager_SaveAll(t *testing.T) {
	t.Run("persists every section", func(t *testing.T) {
		store := newMockStore()
		manager := NewManager(store)
		require.NoError(t, manager.RegisterSection(&mockSection{id: "s1", data: map[string]interface{}{"k1": "v1"}}))
		require.NoError(t, manager.RegisterSection(&mockSection{id: "s2", data: map[string]interface{}{"k2": "v2"}}))

		require.NoError(t, manager.SaveAll())
		assert.Equal(t, "v1", store.sections["s1"]["k1"])
		assert.Equal(t, "v2", store.sections["s2"]["k2"])
		assert.Equal(t, 1, store.saved)
	})

	t.Run("validates before saving", func(t *testing.T) {
		store := newMockStore()
		manager := NewManager(store)
		require.NoError(t, manager.RegisterSection(&mockSection{id: "test", validateErr: fmt.Errorf("validation error")}))

		assert.Error(t, manager.SaveAll())
		assert.Zero(t, store.saved)
	})

	t.Run("propagates store errors", func(t *testing.T) {
		store := newMockStore()
		store.saveErr = fmt.Errorf("save error")
		manager := NewManager(store)
		require.NoError(t, manager.RegisterSection(&mockSection{id: "test"}))

		assert.Error(t, manager.SaveAll())
	})
}

func TestManager_ResetAll(t *testing.T) {
	manager := NewManager(newMockStore())
	section := &mockSection{id: "test", data: map[string]interface{}{"k": "v"}}
	require.NoError(t, manager.RegisterSection(section))

	manager.ResetAll()
	assert.Empty(t, section.data)
}

func TestManager_ConcurrentRegistration(t *testing.T) {
	manager := NewManager(newMockStore())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = manager.RegisterSection(&mockSection{id: fmt.Sprintf("section%d", i)})
			manager.GetSections()
		}(i)
	}
	wg.Wait()

	assert.Len(t, manager.GetSections(), 10)
}
