package identity

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/openworm/wormgraph/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

const testNS Namespace = "http://example.org/T/"

type blankKey struct{}

func (blankKey) String() string { return "" }

func sha224Hex(s string) string {
	sum := sha256.Sum224([]byte(s))
	return hex.EncodeToString(sum[:])
}

func TestMakeIdentifier(t *testing.T) {
	id, err := New(Config{Namespace: testNS})
	require.NoError(t, err)

	t.Run("hashed path layout", func(t *testing.T) {
		iri, err := id.MakeIdentifier("abc")
		require.NoError(t, err)
		assert.Equal(t, string(testNS)+"a"+sha224Hex("abc"), iri)
		assert.Len(t, strings.TrimPrefix(iri, string(testNS)), 57)
	})

	t.Run("non-string data uses its string form", func(t *testing.T) {
		a, err := id.MakeIdentifier(42)
		require.NoError(t, err)
		b, err := id.MakeIdentifier("42")
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("empty string is rejected", func(t *testing.T) {
		_, err := id.MakeIdentifier("")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrEmptyKey)
		assert.True(t, utils.IsValidation(err))
	})

	t.Run("injected hash function", func(t *testing.T) {
		wide, err := New(Config{Namespace: testNS, HashFunc: sha512.New})
		require.NoError(t, err)
		iri, err := wide.MakeIdentifier("abc")
		require.NoError(t, err)
		assert.Len(t, strings.TrimPrefix(iri, string(testNS)), 1+128)
	})
}

func TestMakeIdentifierDirect(t *testing.T) {
	id, err := New(Config{Namespace: testNS})
	require.NoError(t, err)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "AVAL", "AVAL"},
		{"space", "hello world", "hello%20world"},
		{"slash kept", "a/b", "a/b"},
		{"unreserved kept", "a_b.c-d~e", "a_b.c-d~e"},
		{"reserved encoded", "a?b#c", "a%3Fb%23c"},
		{"utf8 bytes", "é", "%C3%A9"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, string(testNS)+tt.want, id.MakeIdentifierDirect(tt.in))
		})
	}
}

func TestNew(t *testing.T) {
	t.Run("key and identifier conflict", func(t *testing.T) {
		id, err := New(Config{Namespace: testNS, Key: "k", Identifier: "http://x/y"})
		assert.Nil(t, id)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrConflictingIdentity)
		assert.ErrorIs(t, err, utils.ErrConfiguration)
	})

	t.Run("string key takes direct path", func(t *testing.T) {
		id, err := New(Config{Namespace: testNS, Key: "hello world"})
		require.NoError(t, err)
		iri, err := id.Identifier()
		require.NoError(t, err)
		assert.Equal(t, string(testNS)+"hello%20world", iri)

		key, ok := id.Key()
		assert.True(t, ok)
		assert.Equal(t, "hello world", key)
	})

	t.Run("non-string key takes hashed path", func(t *testing.T) {
		id, err := New(Config{Namespace: testNS, Key: 7})
		require.NoError(t, err)
		iri, err := id.Identifier()
		require.NoError(t, err)
		assert.Equal(t, string(testNS)+"a"+sha224Hex("7"), iri)
	})

	t.Run("explicit identifier", func(t *testing.T) {
		id, err := New(Config{Namespace: testNS, Identifier: "http://x/y"})
		require.NoError(t, err)
		assert.True(t, id.Defined())
		iri, err := id.Identifier()
		require.NoError(t, err)
		assert.Equal(t, "http://x/y", iri)
		_, ok := id.Key()
		assert.False(t, ok)
	})
}

func TestSetKey(t *testing.T) {
	id, err := New(Config{Namespace: testNS, Identifier: "http://x/original"})
	require.NoError(t, err)

	err = id.SetKey(blankKey{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyKey)

	// failed SetKey keeps the previous state
	iri, err := id.Identifier()
	require.NoError(t, err)
	assert.Equal(t, "http://x/original", iri)

	require.NoError(t, id.SetKey("next"))
	iri, err = id.Identifier()
	require.NoError(t, err)
	assert.Equal(t, string(testNS)+"next", iri)

	id.SetIdentifier("http://x/other")
	_, ok := id.Key()
	assert.False(t, ok)
}

func TestIdentifierMissing(t *testing.T) {
	id, err := New(Config{Namespace: testNS, Label: "Thing"})
	require.NoError(t, err)

	assert.False(t, id.Defined())
	_, err = id.Identifier()
	require.Error(t, err)

	var missing *IdentifierMissingError
	require.True(t, errors.As(err, &missing))
	assert.Contains(t, missing.Entity, "Thing")
	assert.ErrorIs(t, err, ErrIdentifierMissing)
	assert.True(t, utils.IsIdentifierMissing(err))
}

func TestAugmenter(t *testing.T) {
	var ready bool
	aug := AugmenterFunc(func() (string, bool) {
		if !ready {
			return "", false
		}
		return "http://example.org/T/derived", true
	})

	id, err := New(Config{Namespace: testNS, Augmenter: aug})
	require.NoError(t, err)
	assert.False(t, id.Defined())

	ready = true
	assert.True(t, id.Defined())
	iri, err := id.Identifier()
	require.NoError(t, err)
	assert.Equal(t, "http://example.org/T/derived", iri)

	id.SetIdentifier("http://example.org/T/explicit")
	iri, err = id.Identifier()
	require.NoError(t, err)
	assert.Equal(t, "http://example.org/T/explicit", iri)
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "", Stringify(nil))
	assert.Equal(t, "x", Stringify("x"))
	assert.Equal(t, "boom", Stringify(errors.New("boom")))
	assert.Equal(t, "map[a:1 b:2]", Stringify(map[string]int{"b": 2, "a": 1}))
	assert.Equal(t, "http://example.org/T/", Stringify(testNS))
}

func TestIdentityProperties(t *testing.T) {
	t.Run("hashed derivation is deterministic", func(t *testing.T) {
		rapid.Check(t, func(t *rapid.T) {
			s := rapid.StringN(1, 64, -1).Draw(t, "s")
			a, _ := New(Config{Namespace: testNS})
			b, _ := New(Config{Namespace: testNS})
			x, err := a.MakeIdentifier(s)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			y, _ := b.MakeIdentifier(s)
			if x != y {
				t.Fatalf("identifiers differ: %s != %s", x, y)
			}
			if !strings.HasPrefix(x, string(testNS)+HashTag) {
				t.Fatalf("identifier %s outside namespace", x)
			}
		})
	})

	t.Run("namespaces isolate identical keys", func(t *testing.T) {
		rapid.Check(t, func(t *rapid.T) {
			s := rapid.StringN(1, 32, -1).Draw(t, "s")
			ns1 := Namespace("http://example.org/" + rapid.StringMatching(`[a-z]{1,8}`).Draw(t, "ns1") + "/")
			ns2 := Namespace("http://example.org/" + rapid.StringMatching(`[A-Z]{1,8}`).Draw(t, "ns2") + "/")
			a, _ := New(Config{Namespace: ns1})
			b, _ := New(Config{Namespace: ns2})
			x, _ := a.MakeIdentifier(s)
			y, _ := b.MakeIdentifier(s)
			if x == y {
				t.Fatalf("identifiers collide across namespaces: %s", x)
			}
		})
	})

	t.Run("distinct strings hash apart", func(t *testing.T) {
		rapid.Check(t, func(t *rapid.T) {
			s1 := rapid.StringN(1, 32, -1).Draw(t, "s1")
			s2 := rapid.StringN(1, 32, -1).Filter(func(v string) bool { return v != s1 }).Draw(t, "s2")
			id, _ := New(Config{Namespace: testNS})
			x, _ := id.MakeIdentifier(s1)
			y, _ := id.MakeIdentifier(s2)
			if x == y {
				t.Fatalf("collision for %q and %q", s1, s2)
			}
		})
	})

	t.Run("direct path is injective", func(t *testing.T) {
		rapid.Check(t, func(t *rapid.T) {
			s1 := rapid.String().Draw(t, "s1")
			s2 := rapid.String().Filter(func(v string) bool { return v != s1 }).Draw(t, "s2")
			id, _ := New(Config{Namespace: testNS})
			if id.MakeIdentifierDirect(s1) == id.MakeIdentifierDirect(s2) {
				t.Fatalf("direct collision for %q and %q", s1, s2)
			}
		})
	})

	t.Run("explicit identifier overrides augmenter", func(t *testing.T) {
		rapid.Check(t, func(t *rapid.T) {
			explicit := "http://example.org/e/" + rapid.StringMatching(`[a-z0-9]{1,16}`).Draw(t, "explicit")
			id, _ := New(Config{
				Namespace:  testNS,
				Identifier: explicit,
				Augmenter:  AugmenterFunc(func() (string, bool) { return "http://example.org/aug", true }),
			})
			got, err := id.Identifier()
			if err != nil || got != explicit {
				t.Fatalf("got %q, %v; want %q", got, err, explicit)
			}
		})
	})

	t.Run("key and identifier are mutually exclusive", func(t *testing.T) {
		rapid.Check(t, func(t *rapid.T) {
			key := rapid.StringN(1, 16, -1).Draw(t, "key")
			ident := "http://example.org/" + rapid.StringMatching(`[a-z]{1,8}`).Draw(t, "ident")
			_, err := New(Config{Namespace: testNS, Key: key, Identifier: ident})
			if !errors.Is(err, ErrConflictingIdentity) {
				t.Fatalf("expected conflict, got %v", err)
			}
		})
	})
}

func TestHashFuncByName(t *testing.T) {
	tests := []struct {
		name string
		size int
	}{
		{"", 28},
		{"sha224", 28},
		{"SHA256", 32},
		{"sha512", 64},
	}
	for _, tt := range tests {
		hf, err := HashFuncByName(tt.name)
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.size, hf().Size(), tt.name)
	}

	_, err := HashFuncByName("md5")
	assert.ErrorIs(t, err, ErrUnknownHash)
}
