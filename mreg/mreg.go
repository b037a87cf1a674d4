// Package mreg is the module registry and loader. The original platform's
// dynamically-loaded artifacts fold into a statically linked builder
// registry keyed by module basename; the configuration selects which
// modules to instantiate, and lazy load becomes lazy construction.
/*
 * Copyright (c) 2006-2026, V2_lab. All rights reserved.
 */
package mreg

import (
	"path"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/v2lab/sios/cmn"
	"github.com/v2lab/sios/ns"
	"github.com/v2lab/sios/osc"
	"github.com/v2lab/sios/param"
	"github.com/v2lab/sios/source"
)

var log = logrus.WithField("sect", "module")

type (
	// Env is what a module's init hook gets to work with.
	Env struct {
		Cfg *cmn.Config
		NS  *ns.Registry
		OSC *osc.Server
		Src *source.Registry
	}

	// Module is the statically linked equivalent of a loadable artifact:
	// the three setter entry points, the parameter table, the version
	// stamp, and the init/exit pair. Embed Base for the setters.
	Module interface {
		SetName(name string)
		SetDescr(descr string)
		SetClass(class *ns.Class)
		Params() map[string]param.Setter
		Version() uint32
		Init() error
		Exit()
		Object() *ns.Object
	}

	// Builder constructs one module instance.
	Builder func(env *Env) Module

	// Mod is one module record parsed from configuration plus its load
	// state.
	Mod struct {
		Basename  string
		Path      string
		Name      string
		Descr     string
		ClassName string
		LazyID    string
		Lazy      bool
		ParamVals map[string]string
		Vers      uint32

		impl   Module
		obj    *ns.Object
		loaded bool
	}

	// Registry holds the two module buckets: eager modules load at
	// startup, lazy ones stage until an external trigger names their id.
	Registry struct {
		env    *Env
		strict bool

		mtx   sync.Mutex
		eager []*Mod
		lazy  []*Mod
	}
)

var (
	bmtx     sync.Mutex
	builders = make(map[string]Builder)
)

// RegisterBuilder is called from a module package's init; duplicate names
// are a programming error.
func RegisterBuilder(name string, b Builder) {
	bmtx.Lock()
	defer bmtx.Unlock()
	if _, ok := builders[name]; ok {
		panic("duplicate module builder: " + name)
	}
	builders[name] = b
}

func lookupBuilder(name string) (Builder, bool) {
	bmtx.Lock()
	defer bmtx.Unlock()
	b, ok := builders[name]
	return b, ok
}

func New(env *Env, strict bool) *Registry {
	return &Registry{env: env, strict: strict}
}

func (m *Mod) Object() *ns.Object { return m.obj }
func (m *Mod) Loaded() bool       { return m.loaded }

// Basename computes the registry key from a module path, stripping the
// historical artifact extension.
func Basename(modPath string) string {
	base := path.Base(modPath)
	return strings.TrimSuffix(base, ".so")
}

// Add stages one configured module record; it does not load it. Records
// are rejected on duplicate basename within their bucket.
func (r *Registry) Add(conf cmn.ModuleConf) error {
	m := &Mod{
		Basename:  Basename(conf.Path),
		Path:      conf.Path,
		Descr:     conf.Descr,
		ClassName: conf.Class,
		Lazy:      conf.Lazy,
		LazyID:    conf.LazyID,
		ParamVals: conf.Params,
	}
	m.Name = m.Basename
	if m.LazyID == "" {
		m.LazyID = m.Basename
	}

	r.mtx.Lock()
	defer r.mtx.Unlock()
	bucket := &r.eager
	if m.Lazy {
		bucket = &r.lazy
	}
	for _, have := range *bucket {
		if have.Basename == m.Basename {
			log.Warnf("'%s' already loaded", m.Basename)
			return errors.Errorf("module %q already staged", m.Basename)
		}
	}
	*bucket = append(*bucket, m)
	return nil
}

// LoadAll loads and initializes every eager module. Failures are isolated
// to the offending module; the failure count is returned.
func (r *Registry) LoadAll() (failed int) {
	r.mtx.Lock()
	mods := make([]*Mod, len(r.eager))
	copy(mods, r.eager)
	r.mtx.Unlock()

	for _, m := range mods {
		if err := r.loadInit(m); err != nil {
			log.Warnf("error loading module '%s': %v", m.Basename, err)
			r.drop(m)
			failed++
		}
	}
	return failed
}

// loadInit is the load-and-initialize sequence for one module: resolve the
// builder, gate the version stamp, apply the setter entry points and the
// configured parameters, call init, and fetch the advertised object. If
// init never succeeded the exit hook is not called.
func (r *Registry) loadInit(m *Mod) error {
	b, ok := lookupBuilder(m.Basename)
	if !ok {
		return errors.Errorf("unresolved module symbol %q", m.Basename)
	}
	impl := b(r.env)

	m.Vers = impl.Version()
	if m.Vers != cmn.PlatformVersion {
		maj, min, patch := cmn.DecodeVersion(m.Vers)
		if r.strict {
			return errors.Errorf("version mismatch: %s built against %d.%d.%d, platform is %s",
				m.Basename, maj, min, patch, cmn.VersionStr)
		}
		log.Warnf("version mismatch: %s built against %d.%d.%d, platform is %s",
			m.Basename, maj, min, patch, cmn.VersionStr)
	}
	if v, ok := impl.(interface{ VersionString() string }); ok {
		log.Infof("loading module '%s' version %s", m.Basename, v.VersionString())
	} else {
		log.Infof("loading module '%s'", m.Basename)
	}

	impl.SetName(m.Name)
	impl.SetDescr(m.Descr)
	class := r.env.NS.FindClass(m.ClassName)
	if class == nil {
		return errors.Errorf("module %q: unknown class %q", m.Basename, m.ClassName)
	}
	impl.SetClass(class)

	setters := impl.Params()
	for name, val := range m.ParamVals {
		setter, ok := setters[name]
		if !ok {
			return errors.Errorf("module %q: unknown parameter %q", m.Basename, name)
		}
		if err := setter(val); err != nil {
			return errors.Wrapf(err, "module %q: parameter %q", m.Basename, name)
		}
	}

	if err := impl.Init(); err != nil {
		return errors.Wrapf(err, "module %q: init", m.Basename)
	}
	obj := impl.Object()
	if obj == nil {
		return errors.Errorf("module %q: no advertised object", m.Basename)
	}
	m.impl, m.obj, m.loaded = impl, obj, true
	return nil
}

// TriggerLazy loads the staged module whose id (or basename) matches and
// moves it to the eager bucket.
func (r *Registry) TriggerLazy(id string) error {
	r.mtx.Lock()
	var m *Mod
	for i, have := range r.lazy {
		if have.LazyID == id || have.Basename == id {
			m = have
			r.lazy = append(r.lazy[:i], r.lazy[i+1:]...)
			break
		}
	}
	r.mtx.Unlock()
	if m == nil {
		return errors.Errorf("no lazy module %q", id)
	}
	if err := r.loadInit(m); err != nil {
		return err
	}
	r.mtx.Lock()
	r.eager = append(r.eager, m)
	r.mtx.Unlock()
	return nil
}

// Unload reverses loadInit; callExit is false when init never succeeded.
func (r *Registry) Unload(m *Mod, callExit bool) {
	if m.loaded && callExit {
		m.impl.Exit()
	}
	m.impl, m.obj, m.loaded = nil, nil, false
	r.drop(m)
}

// UnloadAll tears down every loaded module.
func (r *Registry) UnloadAll() {
	r.mtx.Lock()
	mods := make([]*Mod, len(r.eager))
	copy(mods, r.eager)
	r.mtx.Unlock()

	for _, m := range mods {
		if !m.loaded {
			continue
		}
		log.Infof("unloading module '%s'", m.Basename)
		r.Unload(m, true)
	}
}

// Loaded returns the successfully initialized modules.
func (r *Registry) Loaded() []*Mod {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	out := make([]*Mod, 0, len(r.eager))
	for _, m := range r.eager {
		if m.loaded {
			out = append(out, m)
		}
	}
	return out
}

func (r *Registry) drop(m *Mod) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	for i, have := range r.eager {
		if have == m {
			r.eager = append(r.eager[:i], r.eager[i+1:]...)
			return
		}
	}
	for i, have := range r.lazy {
		if have == m {
			r.lazy = append(r.lazy[:i], r.lazy[i+1:]...)
			return
		}
	}
}
