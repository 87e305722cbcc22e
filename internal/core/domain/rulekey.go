package domain

import (
	"encoding/hex"
	"slices"

	"go.trai.ch/zerr"
)

// RuleKeySize is the length of a rule key digest in bytes.
const RuleKeySize = 32

// RuleKey is the content digest of everything that can affect a rule's output.
// It is a cache key, never an identity.
type RuleKey [RuleKeySize]byte

// ParseRuleKey decodes the hex form of a rule key.
func ParseRuleKey(s string) (RuleKey, error) {
	var k RuleKey
	if len(s) != hex.EncodedLen(RuleKeySize) {
		return k, zerr.With(ErrInvalidRuleKey, "key", s)
	}
	if _, err := hex.Decode(k[:], []byte(s)); err != nil {
		return k, zerr.With(zerr.Wrap(err, ErrInvalidRuleKey.Error()), "key", s)
	}
	return k, nil
}

// IsZero reports whether the key was never computed.
func (k RuleKey) IsZero() bool {
	return k == RuleKey{}
}

func (k RuleKey) String() string {
	return hex.EncodeToString(k[:])
}

// Short returns the first twelve hex characters, for display.
func (k RuleKey) Short() string {
	return k.String()[:12]
}

// MarshalText implements encoding.TextMarshaler.
func (k RuleKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *RuleKey) UnmarshalText(text []byte) error {
	parsed, err := ParseRuleKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// TargetKey pairs a dependency with its computed key.
type TargetKey struct {
	Target BuildTarget
	Key    RuleKey
}

// DepKeys are the keys of a rule's direct dependencies.
type DepKeys struct {
	Declared  []TargetKey
	LateBound []TargetKey
}

// Sorted returns a copy with both lists in target order.
func (d DepKeys) Sorted() DepKeys {
	byTarget := func(a, b TargetKey) int { return a.Target.Compare(b.Target) }
	out := DepKeys{
		Declared:  slices.Clone(d.Declared),
		LateBound: slices.Clone(d.LateBound),
	}
	slices.SortFunc(out.Declared, byTarget)
	slices.SortFunc(out.LateBound, byTarget)
	return out
}

// ContentHash is the content digest of a single file.
type ContentHash uint64

// PathHash is the content hash of one file of a path reference. Rel is empty for a
// plain file and the slash separated path below the directory otherwise.
type PathHash struct {
	Rel  string
	Hash ContentHash
}

// Appendable is implemented by every value that contributes to a rule key. The
// implementation enumerates its fields explicitly and in a fixed order.
type Appendable interface {
	AppendToRuleKey(sink RuleKeySink)
}

// RuleKeySink receives the fields of a rule in declaration order.
type RuleKeySink interface {
	// SetString folds a string field.
	SetString(name, value string)
	// SetBool folds a boolean field.
	SetBool(name string, value bool)
	// SetInt folds an integer field.
	SetInt(name string, value int64)
	// SetStrings folds a flag list, order preserved.
	SetStrings(name string, values []string)
	// SetPath folds the content of a source. Plain files fold their content hash,
	// not their location.
	SetPath(name string, path SourcePath)
	// SetPaths folds a list of sources, order preserved.
	SetPaths(name string, paths []SourcePath)
	// SetTool folds a tool.
	SetTool(name string, tool Tool)
	// SetContributor recurses into a nested contributor and folds its digest.
	SetContributor(name string, value Appendable)
}
