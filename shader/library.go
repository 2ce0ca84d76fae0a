// Package shader compiles WGSL with naga, caches modules by source digest
// and hands out the fixed-size shader identifiers that shader records
// start with.
package shader

import (
	"crypto/sha256"
	"encoding/binary"
	"log/slog"
	"slices"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
	"github.com/gogpu/naga/spirv"

	"github.com/gogpu/rtcore/gpu"
	"github.com/gogpu/rtcore/internal/trace"
)

var (
	// ErrUnknownExport is returned for names that were never exported.
	ErrUnknownExport = errors.New("shader: unknown export")

	// ErrDuplicateExport is returned when a name is exported twice.
	ErrDuplicateExport = errors.New("shader: export already registered")

	// ErrNoEntryPoint is returned when a module lacks the requested entry point.
	ErrNoEntryPoint = errors.New("shader: no such entry point")
)

// EntryPoint is one entry point of a compiled module.
type EntryPoint struct {
	Name  string
	Stage gpu.ShaderStages
}

// Module is a compiled WGSL module.
type Module struct {
	Label       string
	Digest      [sha256.Size]byte
	SPIRV       []uint32
	EntryPoints []EntryPoint
}

// Code returns the module as pipeline shader code.
func (m *Module) Code() gpu.ShaderCode {
	return gpu.ShaderCode{SPIRV: m.SPIRV}
}

// EntryPoint returns the entry point called name.
func (m *Module) EntryPoint(name string) (EntryPoint, bool) {
	for _, ep := range m.EntryPoints {
		if ep.Name == name {
			return ep, true
		}
	}
	return EntryPoint{}, false
}

type export struct {
	module   *Module
	entry    string
	hitGroup *gpu.HitGroupDesc
	id       []byte
}

// Option configures a Library.
type Option func(*Library)

// WithValidation toggles naga IR validation. It is off by default.
func WithValidation(on bool) Option {
	return func(l *Library) { l.opts.Validate = on }
}

// Library owns compiled modules and named exports. It is safe for
// concurrent use.
type Library struct {
	mu      sync.Mutex
	idSize  int
	opts    naga.CompileOptions
	modules map[[sha256.Size]byte]*Module
	exports map[string]*export
	byID    map[string]string

	hits   int
	misses int
}

// NewLibrary returns an empty library producing identifiers of
// identifierSize bytes, normally gpu.Limits.ShaderIdentifierSize.
func NewLibrary(identifierSize int, opts ...Option) *Library {
	l := &Library{
		idSize:  identifierSize,
		opts:    naga.DefaultOptions(),
		modules: make(map[[sha256.Size]byte]*Module),
		exports: make(map[string]*export),
		byID:    make(map[string]string),
	}
	l.opts.Validate = false
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// IdentifierSize returns the size of identifiers the library produces.
func (l *Library) IdentifierSize() int { return l.idSize }

// Compile compiles WGSL source to SPIR-V. A source compiled before is
// returned from the cache.
func (l *Library) Compile(label, source string) (*Module, error) {
	digest := sha256.Sum256([]byte(source))

	l.mu.Lock()
	if m, ok := l.modules[digest]; ok {
		l.hits++
		l.mu.Unlock()
		return m, nil
	}
	l.misses++
	l.mu.Unlock()

	ast, err := naga.Parse(source)
	if err != nil {
		return nil, trace.Fail(errors.Wrapf(err, "shader %q", label))
	}
	module, err := naga.LowerWithSource(ast, source)
	if err != nil {
		return nil, trace.Fail(errors.Wrapf(err, "shader %q", label))
	}
	if l.opts.Validate {
		verrs, err := naga.Validate(module)
		if err != nil {
			return nil, trace.Fail(errors.Wrapf(err, "shader %q: validate", label))
		}
		if len(verrs) > 0 {
			return nil, trace.Fail(errors.Wrapf(&verrs[0], "shader %q: validation failed", label))
		}
	}
	spirvBytes, err := naga.GenerateSPIRV(module, spirv.Options{
		Version: l.opts.SPIRVVersion,
		Debug:   l.opts.Debug,
	})
	if err != nil {
		return nil, trace.Fail(errors.Wrapf(err, "shader %q", label))
	}

	m := &Module{
		Label:  label,
		Digest: digest,
		SPIRV:  spirvWords(spirvBytes),
	}
	for _, ep := range module.EntryPoints {
		m.EntryPoints = append(m.EntryPoints, EntryPoint{Name: ep.Name, Stage: stageOf(ep.Stage)})
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if prev, ok := l.modules[digest]; ok {
		// Another goroutine compiled the same source meanwhile.
		return prev, nil
	}
	l.modules[digest] = m
	trace.Logger().Debug("shader: compiled",
		slog.String("label", label),
		slog.Int("spirv_words", len(m.SPIRV)),
		slog.Int("entry_points", len(m.EntryPoints)))
	return m, nil
}

// Stats returns the number of cache hits and misses of Compile.
func (l *Library) Stats() (hits, misses int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hits, l.misses
}

// Export registers entry of m under name and derives its identifier.
func (l *Library) Export(name string, m *Module, entry string) error {
	if _, ok := m.EntryPoint(entry); !ok {
		return trace.Fail(errors.Wrapf(ErrNoEntryPoint, "%q in module %q", entry, m.Label))
	}
	h := sha256.New()
	h.Write([]byte("export\x00"))
	h.Write(m.Digest[:])
	h.Write([]byte(entry + "\x00" + name))

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.register(name, &export{module: m, entry: entry, id: l.expand(h.Sum(nil))})
}

// HitGroup registers a hit group whose members are existing exports.
// Empty member names are allowed for AnyHit and Intersection.
func (l *Library) HitGroup(desc gpu.HitGroupDesc) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	h := sha256.New()
	h.Write([]byte("hitgroup\x00" + desc.Name))
	for _, member := range []string{desc.ClosestHit, desc.AnyHit, desc.Intersection} {
		if member == "" {
			h.Write([]byte{0})
			continue
		}
		e, ok := l.exports[member]
		if !ok || e.hitGroup != nil {
			return trace.Fail(errors.Wrapf(ErrUnknownExport, "hit group %q member %q", desc.Name, member))
		}
		h.Write(e.id)
	}
	if desc.ClosestHit == "" && desc.AnyHit == "" && desc.Intersection == "" {
		return trace.Fail(errors.Wrapf(ErrUnknownExport, "hit group %q has no members", desc.Name))
	}
	d := desc
	return l.register(desc.Name, &export{hitGroup: &d, id: l.expand(h.Sum(nil))})
}

// register stores e under name. Callers hold l.mu.
func (l *Library) register(name string, e *export) error {
	if _, ok := l.exports[name]; ok {
		return trace.Fail(errors.Wrapf(ErrDuplicateExport, "%q", name))
	}
	l.exports[name] = e
	l.byID[string(e.id)] = name
	return nil
}

// expand stretches a digest to the identifier size.
func (l *Library) expand(sum []byte) []byte {
	out := make([]byte, 0, l.idSize)
	for block := uint32(0); len(out) < l.idSize; block++ {
		if block == 0 {
			out = append(out, sum...)
			continue
		}
		var ctr [4]byte
		binary.LittleEndian.PutUint32(ctr[:], block)
		next := sha256.Sum256(append(append([]byte(nil), sum...), ctr[:]...))
		out = append(out, next[:]...)
	}
	return out[:l.idSize]
}

// Identifier returns the identifier of the export or hit group name.
func (l *Library) Identifier(name string) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.exports[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownExport, "%q", name)
	}
	return slices.Clone(e.id), nil
}

// Lookup returns the name an identifier was derived for. It implements
// sbt.NameLookup.
func (l *Library) Lookup(id []byte) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	name, ok := l.byID[string(id)]
	return name, ok
}

// Exports returns the registered export names, hit groups excluded, sorted.
func (l *Library) Exports() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for name, e := range l.exports {
		if e.hitGroup == nil {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}

// HitGroups returns the registered hit groups sorted by name.
func (l *Library) HitGroups() []gpu.HitGroupDesc {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []gpu.HitGroupDesc
	for _, e := range l.exports {
		if e.hitGroup != nil {
			out = append(out, *e.hitGroup)
		}
	}
	slices.SortFunc(out, func(a, b gpu.HitGroupDesc) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		default:
			return 0
		}
	})
	return out
}

// PipelineDesc returns a ray tracing pipeline description over every
// export of m and every hit group.
func (l *Library) PipelineDesc(label string, m *Module, layout gpu.BindingLayout, maxRecursion, maxPayload uint32) gpu.PipelineStateDesc {
	var exports []string
	for _, name := range l.Exports() {
		l.mu.Lock()
		e := l.exports[name]
		l.mu.Unlock()
		if e.module == m {
			exports = append(exports, name)
		}
	}
	return gpu.PipelineStateDesc{
		Label:             label,
		Layout:            layout,
		Shader:            m.Code(),
		Exports:           exports,
		HitGroups:         l.HitGroups(),
		MaxRecursionDepth: maxRecursion,
		MaxPayloadSize:    maxPayload,
	}
}

func stageOf(s ir.ShaderStage) gpu.ShaderStages {
	switch s {
	case ir.StageVertex:
		return gpu.StageVertex
	case ir.StageFragment:
		return gpu.StageFragment
	default:
		return gpu.StageCompute
	}
}

// spirvWords converts little-endian SPIR-V bytes to words.
func spirvWords(b []byte) []uint32 {
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return words
}
