// Package identity gives graph entities a stable identifier.
//
// An Identity holds either an explicitly assigned IRI or derives one on demand.
// Derivation has two paths:
//
//   - direct: a plain string key is percent-encoded into the namespace, which
//     keeps identifiers readable when the caller already guarantees uniqueness.
//   - hashed: any other key is stringified, digested (SHA-224 unless another
//     HashFunc is configured) and placed in the namespace behind HashTag.
//
// Entity types that can compute an identifier from their own fields register an
// Augmenter. The augmenter is consulted only while no explicit identifier is set.
//
// Identity values are not safe for concurrent mutation.
package identity

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"
)

// HashTag prefixes every hashed payload so the identifier suffix never starts
// with a digit.
const HashTag = "a"

// HashFunc constructs the digest used by the hashed derivation path.
type HashFunc func() hash.Hash

// DefaultHashFunc is SHA-224.
var DefaultHashFunc HashFunc = sha256.New224

// HashFuncByName maps sha224, sha256 and sha512 to their constructors. The
// empty name selects DefaultHashFunc.
func HashFuncByName(name string) (HashFunc, error) {
	switch strings.ToLower(name) {
	case "", "sha224":
		return DefaultHashFunc, nil
	case "sha256":
		return sha256.New, nil
	case "sha512":
		return sha512.New, nil
	}
	return nil, fmt.Errorf("unknown identifier hash %q: %w", name, ErrUnknownHash)
}

// Namespace is the IRI prefix that scopes identifiers of one entity type.
type Namespace string

// Term appends suffix to the namespace.
func (n Namespace) Term(suffix string) string {
	return string(n) + suffix
}

func (n Namespace) String() string {
	return string(n)
}

// Augmenter derives an identifier from entity state. It reports false when the
// entity does not yet hold enough data to produce one.
type Augmenter interface {
	AugmentIdentifier() (string, bool)
}

// AugmenterFunc adapts a function to the Augmenter interface.
type AugmenterFunc func() (string, bool)

func (f AugmenterFunc) AugmentIdentifier() (string, bool) {
	return f()
}

// Config describes the initial identity state. Identifier and Key are mutually
// exclusive.
type Config struct {
	Namespace  Namespace
	HashFunc   HashFunc
	Identifier string
	Key        any
	Augmenter  Augmenter
	// Label names the owning entity in IdentifierMissingError messages.
	Label string
}

// Identity is the identity state of a single entity.
type Identity struct {
	namespace Namespace
	hashFunc  HashFunc
	augmenter Augmenter
	label     string

	explicit string
	key      string
	hasKey   bool
}

// New builds an Identity. Supplying both an identifier and a key fails with
// ErrConflictingIdentity and no state is created.
func New(cfg Config) (*Identity, error) {
	if cfg.Identifier != "" && cfg.Key != nil {
		return nil, ErrConflictingIdentity
	}

	hf := cfg.HashFunc
	if hf == nil {
		hf = DefaultHashFunc
	}

	id := &Identity{
		namespace: cfg.Namespace,
		hashFunc:  hf,
		augmenter: cfg.Augmenter,
		label:     cfg.Label,
		explicit:  cfg.Identifier,
	}

	if cfg.Key != nil {
		if err := id.SetKey(cfg.Key); err != nil {
			return nil, err
		}
	}

	return id, nil
}

// Namespace returns the namespace identifiers are derived under.
func (id *Identity) Namespace() Namespace {
	return id.namespace
}

// SetAugmenter replaces the derivation hook. Entity constructors call it once
// the owning value exists.
func (id *Identity) SetAugmenter(a Augmenter) {
	id.augmenter = a
}

// MakeIdentifier derives an identifier through the hashed path.
func (id *Identity) MakeIdentifier(data any) (string, error) {
	return makeHashed(id.namespace, id.hashFunc, data)
}

// MakeIdentifierDirect derives an identifier through the direct path.
func (id *Identity) MakeIdentifierDirect(s string) string {
	return makeDirect(id.namespace, s)
}

// SetKey derives and stores the identifier for key. String keys take the direct
// path, everything else the hashed path. On error the previous state is kept.
func (id *Identity) SetKey(key any) error {
	var (
		iri string
		err error
	)
	if s, ok := key.(string); ok {
		iri = id.MakeIdentifierDirect(s)
	} else {
		iri, err = id.MakeIdentifier(key)
		if err != nil {
			return err
		}
	}

	id.explicit = iri
	id.key = Stringify(key)
	id.hasKey = true
	return nil
}

// Key returns the stringified key last passed to SetKey.
func (id *Identity) Key() (string, bool) {
	return id.key, id.hasKey
}

// SetIdentifier assigns an explicit identifier, dropping any stored key.
func (id *Identity) SetIdentifier(iri string) {
	id.explicit = iri
	id.key = ""
	id.hasKey = false
}

// ExplicitIdentifier returns the assigned identifier, if any.
func (id *Identity) ExplicitIdentifier() (string, bool) {
	return id.explicit, id.explicit != ""
}

// Identifier returns the explicit identifier, or the augmented one when the
// entity can derive it. Otherwise it fails with an *IdentifierMissingError.
func (id *Identity) Identifier() (string, error) {
	if id.explicit != "" {
		return id.explicit, nil
	}
	if id.augmenter != nil {
		if iri, ok := id.augmenter.AugmentIdentifier(); ok {
			return iri, nil
		}
	}
	return "", &IdentifierMissingError{Entity: id.describe()}
}

// Defined reports whether Identifier would succeed.
func (id *Identity) Defined() bool {
	if id.explicit != "" {
		return true
	}
	if id.augmenter == nil {
		return false
	}
	_, ok := id.augmenter.AugmentIdentifier()
	return ok
}

func (id *Identity) describe() string {
	if id.label != "" {
		return fmt.Sprintf("%s in %s", id.label, id.namespace)
	}
	return string(id.namespace)
}

func makeHashed(ns Namespace, hf HashFunc, data any) (string, error) {
	s := Stringify(data)
	if s == "" {
		return "", ErrEmptyKey
	}
	if hf == nil {
		hf = DefaultHashFunc
	}
	h := hf()
	h.Write([]byte(s))
	return ns.Term(HashTag + hex.EncodeToString(h.Sum(nil))), nil
}

func makeDirect(ns Namespace, s string) string {
	return ns.Term(Quote(s))
}
