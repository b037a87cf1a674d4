// Package mreg is the module registry and loader.
/*
 * Copyright (c) 2006-2026, V2_lab. All rights reserved.
 */
package mreg

import (
	"testing"

	"github.com/pkg/errors"

	"github.com/v2lab/sios/cmn"
	"github.com/v2lab/sios/ns"
	"github.com/v2lab/sios/param"
	"github.com/v2lab/sios/source"
	"github.com/v2lab/sios/tools/tassert"
)

type fakeBinder struct{}

func (fakeBinder) Bind(string, string, ns.Handler) error { return nil }
func (fakeBinder) Unbind(string)                         {}

type testModule struct {
	Base
	env    *Env
	vers   uint32
	obj    *ns.Object
	rate   int
	inited bool
	exited bool
	fail   bool
}

func (m *testModule) Version() uint32 { return m.vers }

func (m *testModule) Params() map[string]param.Setter {
	return map[string]param.Setter{"rate": param.Int(&m.rate)}
}

func (m *testModule) Init() error {
	if m.fail {
		return errors.New("forced init failure")
	}
	m.obj = ns.NewObject(m.Name(), m.Descr())
	if err := m.env.NS.RegisterObject(m.obj, m.Class()); err != nil {
		return err
	}
	m.inited = true
	return nil
}

func (m *testModule) Exit() {
	m.env.NS.DeregisterObject(m.obj)
	m.exited = true
}

func (m *testModule) Object() *ns.Object { return m.obj }

func testEnv(t *testing.T) *Env {
	t.Helper()
	nsr := ns.NewRegistry("/sios", fakeBinder{})
	tassert.CheckFatal(t, nsr.RegisterClass(ns.NewClass("sensors")))
	return &Env{
		Cfg: &cmn.Config{},
		NS:  nsr,
		Src: source.NewRegistry(),
	}
}

// register a uniquely named builder and hand back the built instances
func stageBuilder(name string, vers uint32, fail bool) *[]*testModule {
	built := &[]*testModule{}
	RegisterBuilder(name, func(env *Env) Module {
		m := &testModule{env: env, vers: vers, fail: fail}
		*built = append(*built, m)
		return m
	})
	return built
}

func conf(path string, lazy bool) cmn.ModuleConf {
	return cmn.ModuleConf{Path: path, Class: "sensors", Lazy: lazy}
}

func TestLoadUnload(t *testing.T) {
	built := stageBuilder("t_loadunload", cmn.PlatformVersion, false)
	r := New(testEnv(t), false)

	mc := conf("modules/t_loadunload.so", false)
	mc.Params = map[string]string{"rate": "250"}
	tassert.CheckFatal(t, r.Add(mc))

	tassert.Fatalf(t, r.LoadAll() == 0, "unexpected load failures")
	loaded := r.Loaded()
	tassert.Fatalf(t, len(loaded) == 1, "loaded %d modules", len(loaded))
	tassert.Errorf(t, loaded[0].Basename == "t_loadunload", "bad basename %q", loaded[0].Basename)
	tassert.Errorf(t, loaded[0].Object() != nil, "no advertised object")

	m := (*built)[0]
	tassert.Errorf(t, m.inited, "init not called")
	tassert.Errorf(t, m.rate == 250, "parameter not injected: %d", m.rate)

	r.UnloadAll()
	tassert.Errorf(t, m.exited, "exit not called on unload")
	tassert.Errorf(t, len(r.Loaded()) == 0, "modules survived unload")
}

func TestDuplicateBasename(t *testing.T) {
	stageBuilder("t_dup", cmn.PlatformVersion, false)
	r := New(testEnv(t), false)
	tassert.CheckFatal(t, r.Add(conf("a/t_dup.so", false)))
	err := r.Add(conf("b/t_dup.so", false))
	tassert.Errorf(t, err != nil, "duplicate basename staged twice")
}

func TestUnknownParameterAbortsInit(t *testing.T) {
	built := stageBuilder("t_badparam", cmn.PlatformVersion, false)
	r := New(testEnv(t), false)
	mc := conf("t_badparam", false)
	mc.Params = map[string]string{"nope": "1"}
	tassert.CheckFatal(t, r.Add(mc))

	tassert.Errorf(t, r.LoadAll() == 1, "bad parameter must fail the module")
	tassert.Errorf(t, len(r.Loaded()) == 0, "failed module listed as loaded")
	tassert.Errorf(t, !(*built)[0].inited, "init ran despite parameter failure")
}

func TestVersionMismatch(t *testing.T) {
	old := cmn.EncodeVersion(1, 0, 0)

	// strict mode: loading fails, module not in the loaded list
	stageBuilder("t_versmm_strict", old, false)
	strict := New(testEnv(t), true)
	tassert.CheckFatal(t, strict.Add(conf("t_versmm_strict", false)))
	tassert.Errorf(t, strict.LoadAll() == 1, "strict mode must reject the stamp")
	tassert.Errorf(t, len(strict.Loaded()) == 0, "rejected module in loaded list")

	// non-strict: loads with a warning
	built := stageBuilder("t_versmm_warn", old, false)
	warn := New(testEnv(t), false)
	tassert.CheckFatal(t, warn.Add(conf("t_versmm_warn", false)))
	tassert.Errorf(t, warn.LoadAll() == 0, "non-strict mode must accept the stamp")
	tassert.Errorf(t, (*built)[0].inited, "module not initialized")
}

func TestInitFailureIsolation(t *testing.T) {
	bad := stageBuilder("t_initfail", cmn.PlatformVersion, true)
	good := stageBuilder("t_initok", cmn.PlatformVersion, false)

	r := New(testEnv(t), false)
	tassert.CheckFatal(t, r.Add(conf("t_initfail", false)))
	tassert.CheckFatal(t, r.Add(conf("t_initok", false)))

	tassert.Errorf(t, r.LoadAll() == 1, "exactly one module must fail")
	loaded := r.Loaded()
	tassert.Fatalf(t, len(loaded) == 1, "loaded %d modules", len(loaded))
	tassert.Errorf(t, loaded[0].Basename == "t_initok", "wrong survivor %q", loaded[0].Basename)

	// exit hook must not run when init never succeeded
	r.UnloadAll()
	tassert.Errorf(t, !(*bad)[0].exited, "exit called after failed init")
	tassert.Errorf(t, (*good)[0].exited, "exit not called on the healthy module")
}

func TestMissingBuilder(t *testing.T) {
	r := New(testEnv(t), false)
	tassert.CheckFatal(t, r.Add(conf("t_nosuchmodule", false)))
	tassert.Errorf(t, r.LoadAll() == 1, "unresolved builder must be a load error")
}

func TestLazyTrigger(t *testing.T) {
	built := stageBuilder("t_lazy", cmn.PlatformVersion, false)
	r := New(testEnv(t), false)

	mc := conf("t_lazy", true)
	mc.LazyID = "wake-me"
	tassert.CheckFatal(t, r.Add(mc))

	// lazy modules do not load at startup
	tassert.Errorf(t, r.LoadAll() == 0, "lazy module loaded eagerly")
	tassert.Errorf(t, len(r.Loaded()) == 0, "lazy module in loaded list")
	tassert.Errorf(t, len(*built) == 0, "lazy module constructed eagerly")

	tassert.CheckFatal(t, r.TriggerLazy("wake-me"))
	tassert.Errorf(t, len(r.Loaded()) == 1, "triggered module not loaded")
	tassert.Errorf(t, (*built)[0].inited, "triggered module not initialized")

	err := r.TriggerLazy("wake-me")
	tassert.Errorf(t, err != nil, "second trigger must fail")
}
