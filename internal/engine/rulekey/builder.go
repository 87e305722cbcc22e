// Package rulekey computes rule keys: content digests of everything that can affect the
// output of a build rule.
package rulekey

import (
	"crypto/sha256"
	"encoding/binary"
	"hash"
	"path/filepath"

	"go.trai.ch/rig/internal/core/domain"
	"go.trai.ch/rig/internal/core/ports"
)

// Field kind tags. Each folded field starts with one of these.
const (
	tagString      byte = 's'
	tagBool        byte = 'b'
	tagInt         byte = 'i'
	tagStrings     byte = 'l'
	tagPath        byte = 'p'
	tagTargetPath  byte = 'o'
	tagPaths       byte = 'P'
	tagContributor byte = 'c'
	tagDepKey      byte = 'k'
)

// Input is a file-system input consumed while a key was computed.
type Input struct {
	// Path is the absolute path that was hashed.
	Path   string
	Hashes []domain.PathHash
}

// Builder folds the fields of one rule into a SHA-256 digest. It implements
// domain.RuleKeySink. The first error stops all further folding.
type Builder struct {
	h      hash.Hash
	root   string
	target domain.BuildTarget
	hasher ports.FileHasher
	inputs []Input
	err    error
	buf    [binary.MaxVarintLen64]byte
}

// NewBuilder creates a Builder for the rule of target. Sources are resolved under root
// and hashed with hasher.
func NewBuilder(root string, target domain.BuildTarget, hasher ports.FileHasher) *Builder {
	return &Builder{
		h:      sha256.New(),
		root:   root,
		target: target,
		hasher: hasher,
	}
}

// Err returns the first error met while folding.
func (b *Builder) Err() error { return b.err }

// Inputs returns the file-system inputs folded so far.
func (b *Builder) Inputs() []Input { return b.inputs }

// Finish returns the digest and the consumed inputs.
func (b *Builder) Finish() (domain.RuleKey, []Input, error) {
	var key domain.RuleKey
	if b.err != nil {
		return key, nil, b.err
	}
	copy(key[:], b.h.Sum(nil))
	return key, b.inputs, nil
}

func (b *Builder) writeUvarint(v uint64) {
	n := binary.PutUvarint(b.buf[:], v)
	b.h.Write(b.buf[:n])
}

func (b *Builder) writeBytes(p []byte) {
	b.writeUvarint(uint64(len(p)))
	b.h.Write(p)
}

func (b *Builder) writeString(s string) {
	b.writeUvarint(uint64(len(s)))
	b.h.Write([]byte(s))
}

func (b *Builder) field(tag byte, name string) bool {
	if b.err != nil {
		return false
	}
	b.h.Write([]byte{tag})
	b.writeString(name)
	return true
}

// SetString implements domain.RuleKeySink.
func (b *Builder) SetString(name, value string) {
	if b.field(tagString, name) {
		b.writeString(value)
	}
}

// SetBool implements domain.RuleKeySink.
func (b *Builder) SetBool(name string, value bool) {
	if !b.field(tagBool, name) {
		return
	}
	v := byte(0)
	if value {
		v = 1
	}
	b.writeBytes([]byte{v})
}

// SetInt implements domain.RuleKeySink.
func (b *Builder) SetInt(name string, value int64) {
	if !b.field(tagInt, name) {
		return
	}
	var raw [8]byte
	binary.BigEndian.PutUint64(raw[:], uint64(value))
	b.writeBytes(raw[:])
}

// SetStrings implements domain.RuleKeySink.
func (b *Builder) SetStrings(name string, values []string) {
	if !b.field(tagStrings, name) {
		return
	}
	b.writeUvarint(uint64(len(values)))
	for _, v := range values {
		b.writeString(v)
	}
}

// SetPath implements domain.RuleKeySink.
func (b *Builder) SetPath(name string, path domain.SourcePath) {
	if path.IsBuildTarget() {
		if b.field(tagTargetPath, name) {
			b.foldTargetPath(path)
		}
		return
	}
	if b.field(tagPath, name) {
		b.foldContent(path)
	}
}

// SetPaths implements domain.RuleKeySink.
func (b *Builder) SetPaths(name string, paths []domain.SourcePath) {
	if !b.field(tagPaths, name) {
		return
	}
	b.writeUvarint(uint64(len(paths)))
	for _, p := range paths {
		if p.IsBuildTarget() {
			b.h.Write([]byte{tagTargetPath})
			b.foldTargetPath(p)
			continue
		}
		b.h.Write([]byte{tagPath})
		b.foldContent(p)
	}
}

// SetTool implements domain.RuleKeySink.
func (b *Builder) SetTool(name string, tool domain.Tool) {
	b.SetContributor(name, tool)
}

// SetContributor implements domain.RuleKeySink. The contributor is folded into its own
// digest first.
func (b *Builder) SetContributor(name string, value domain.Appendable) {
	if b.err != nil {
		return
	}
	nested := NewBuilder(b.root, b.target, b.hasher)
	if value != nil {
		value.AppendToRuleKey(nested)
	}
	digest, inputs, err := nested.Finish()
	if err != nil {
		b.err = err
		return
	}
	b.inputs = append(b.inputs, inputs...)
	if b.field(tagContributor, name) {
		b.writeBytes(digest[:])
	}
}

// SetDepKey folds the key of a dependency.
func (b *Builder) SetDepKey(name string, dep domain.TargetKey) {
	if !b.field(tagDepKey, name) {
		return
	}
	b.writeString(dep.Target.String())
	b.writeBytes(dep.Key[:])
}

// foldTargetPath folds the producing target and the relative path. The content enters
// the key through the producing rule's key.
func (b *Builder) foldTargetPath(p domain.SourcePath) {
	b.writeString(p.Target().String())
	b.writeString(p.RelativePath())
}

func (b *Builder) foldContent(p domain.SourcePath) {
	abs := filepath.Join(b.root, p.RootRelative())
	hashes, err := b.hasher.HashPath(abs)
	if err != nil {
		b.err = &domain.MissingInputError{Target: b.target, Path: p.RootRelative(), Err: err}
		return
	}
	b.inputs = append(b.inputs, Input{Path: abs, Hashes: hashes})

	b.writeUvarint(uint64(len(hashes)))
	var raw [8]byte
	for _, ph := range hashes {
		b.writeString(ph.Rel)
		binary.BigEndian.PutUint64(raw[:], uint64(ph.Hash))
		b.h.Write(raw[:])
	}
}
