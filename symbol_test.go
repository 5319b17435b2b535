// Copyright 2026 by Khonsu Labs. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package pot

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPersistentSymbolsSlice(t *testing.T) {
	t.Parallel()
	sender := NewSymbolMap()
	receiver := NewSymbolMap()

	first, err := sender.Marshal(testUser{ID: 1, Name: "one"})
	require.NoError(t, err)
	second, err := sender.Marshal(testUser{ID: 2, Name: "two"})
	require.NoError(t, err)

	// The second document references symbols the first introduced; the
	// field names appear nowhere in it.
	require.True(t, bytes.Contains(first, []byte("id")))
	require.True(t, bytes.Contains(first, []byte("name")))
	require.False(t, bytes.Contains(second, []byte("id")))
	require.False(t, bytes.Contains(second, []byte("name")))
	require.Less(t, len(second), len(first))

	var a, b testUser
	require.NoError(t, receiver.Unmarshal(first, &a))
	require.NoError(t, receiver.Unmarshal(second, &b))
	require.Equal(t, testUser{ID: 1, Name: "one"}, a)
	require.Equal(t, testUser{ID: 2, Name: "two"}, b)
	require.Equal(t, 2, receiver.Len())
}

func TestPersistentSymbolsDivergence(t *testing.T) {
	t.Parallel()
	sender := NewSymbolMap()
	_, err := sender.Marshal(testUser{ID: 1, Name: "one"})
	require.NoError(t, err)
	second, err := sender.Marshal(testUser{ID: 2, Name: "two"})
	require.NoError(t, err)

	// A receiver that missed the first document cannot resolve the
	// references.
	var decoded testUser
	err = NewSymbolMap().Unmarshal(second, &decoded)
	var unknown UnknownSymbolError
	require.ErrorAs(t, err, &unknown)
}

func TestPersistentSymbolsStream(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	sender := NewSymbolMap()
	enc := sender.NewEncoder(&buf)
	require.NoError(t, enc.Encode(testUser{ID: 1, Name: "one"}))
	require.NoError(t, enc.Encode(testUser{ID: 2, Name: "two"}))
	require.NoError(t, enc.Encode(testUser{ID: 3, Name: "three"}))

	receiver := NewSymbolMap()
	dec := receiver.NewDecoder(&buf)
	for i, want := range []testUser{
		{ID: 1, Name: "one"}, {ID: 2, Name: "two"}, {ID: 3, Name: "three"},
	} {
		var decoded testUser
		require.NoError(t, dec.Decode(&decoded), "document %d", i)
		require.Equal(t, want, decoded)
	}
}

func TestSymbolMapSnapshot(t *testing.T) {
	t.Parallel()
	sender := NewSymbolMap()
	_, err := sender.Marshal(testUser{ID: 7, Name: "snap"})
	require.NoError(t, err)

	snapshot, err := sender.MarshalBinary()
	require.NoError(t, err)

	// The snapshot is itself a Pot document of the names in id order.
	var names []string
	require.NoError(t, Unmarshal(snapshot, &names))
	require.Equal(t, []string{"id", "name"}, names)

	restored := NewSymbolMap()
	require.NoError(t, restored.UnmarshalBinary(snapshot))
	require.Equal(t, sender.Len(), restored.Len())

	// A later document from the original map decodes over the restored
	// one.
	second, err := sender.Marshal(testUser{ID: 8, Name: "later"})
	require.NoError(t, err)
	var decoded testUser
	require.NoError(t, restored.Unmarshal(second, &decoded))
	require.Equal(t, testUser{ID: 8, Name: "later"}, decoded)
}

func TestSymbolMapPopulate(t *testing.T) {
	t.Parallel()
	preshared := NewSymbolMap()
	added, err := preshared.Populate(testUser{})
	require.NoError(t, err)
	require.Equal(t, 2, added)
	require.Equal(t, 2, preshared.Len())

	// Populating again adds nothing.
	added, err = preshared.Populate(testUser{})
	require.NoError(t, err)
	require.Zero(t, added)

	plain, err := Marshal(testUser{ID: 42, Name: "ecton"})
	require.NoError(t, err)
	shared, err := preshared.Marshal(testUser{ID: 42, Name: "ecton"})
	require.NoError(t, err)
	require.Less(t, len(shared), len(plain))

	// Nested and pointered fields contribute their names too.
	type nested struct {
		Users []testUser `pot:"users"`
		Extra *testUser  `pot:"extra"`
	}
	deep := NewSymbolMap()
	added, err = deep.Populate(nested{})
	require.NoError(t, err)
	require.Equal(t, 4, added)
}

func TestSymbolMapAccessors(t *testing.T) {
	t.Parallel()
	m := NewSymbolMap()
	require.True(t, m.Insert("level"))
	require.False(t, m.Insert("level"))
	require.True(t, m.Insert("message"))
	require.Equal(t, 2, m.Len())

	name, ok := m.Symbol(0)
	require.True(t, ok)
	require.Equal(t, "level", name)
	_, ok = m.Symbol(2)
	require.False(t, ok)

	id, ok := m.SymbolID("message")
	require.True(t, ok)
	require.Equal(t, uint64(1), id)
	_, ok = m.SymbolID("missing")
	require.False(t, ok)
}

func TestPersistentSymbolsBatchTrailing(t *testing.T) {
	t.Parallel()
	sender := NewSymbolMap()
	first, err := sender.Marshal(testUser{ID: 1, Name: "one"})
	require.NoError(t, err)
	second, err := sender.Marshal(testUser{ID: 2, Name: "two"})
	require.NoError(t, err)

	// Concatenated documents consume one document per call without a
	// trailing-bytes error.
	batch := append(append([]byte(nil), first...), second...)
	receiver := NewSymbolMap()
	var decoded testUser
	require.NoError(t, receiver.Unmarshal(batch, &decoded))
	require.Equal(t, testUser{ID: 1, Name: "one"}, decoded)
}
