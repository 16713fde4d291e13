// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package replete

import (
	"github.com/dop251/goja"
)

const (
	baseScriptPath = "goog/base.js"
	depsScriptPath = "main.js"
)

const reloadAwareRequire = `goog.require__ = goog.require;
goog.require = (src, reload) => {
  if (reload === "reload-all") {
    goog.cljsReloadAll_ = true;
  }
  if (reload || goog.cljsReloadAll_) {
    if (goog.debugLoader_) {
      let path = goog.debugLoader_.getPathFromDeps_(src);
      goog.object.remove(goog.debugLoader_.written_, path);
      goog.object.remove(goog.debugLoader_.written_, goog.basePath + path);
    } else {
      let path = goog.object.get(goog.dependencies_.nameToPath, src);
      goog.object.remove(goog.dependencies_.visited, path);
      goog.object.remove(goog.dependencies_.written, path);
      goog.object.remove(goog.dependencies_.visited, goog.basePath + path);
    }
  }
  let ret = goog.require__(src);
  if (reload === "reload-all") {
    goog.cljsReloadAll_ = false;
  }
  if (goog.isInModuleLoader_()) {
    return goog.module.getInternal_(src);
  } else {
    return ret;
  }
};`

type bootstrapStep struct {
	run  func(c *Coordinator, rt *goja.Runtime, device DeviceProfile) error
	name string
}

// bootstrapSteps are run in order by Init, the first failure aborts.
var bootstrapSteps = [...]bootstrapStep{
	{name: "global", run: scriptStep("var global = this;")},
	{name: "import-trampoline", run: scriptStep("CLOSURE_IMPORT_SCRIPT = function(src) { AMBLY_IMPORT_SCRIPT('goog/' + src); return true; }")},
	{name: "module-loader", run: (*Coordinator).loadModuleLoader},
	{name: "provided-override", run: scriptStep("goog.isProvided_ = function(x) { return false; };")},
	{name: "reload-aware-require", run: scriptStep(reloadAwareRequire)},
	{name: "namespaces", run: scriptStep(
		"goog.provide('cljs.user');",
		"goog.require('cljs.core');",
		"goog.require('replete.repl');",
		"replete.repl.setup_cljs_user();",
	)},
	{name: "app-env", run: initAppEnv},
	{name: "sinks", run: scriptStep(
		"cljs.core.system_time = REPLETE_HIGH_RES_TIMER;",
		"cljs.core.set_print_fn_BANG_.call(null, REPLETE_PRINT_FN);",
		"cljs.core.set_print_err_fn_BANG_.call(null, REPLETE_PRINT_FN);",
	)},
	{name: "window", run: scriptStep("var window = global;")},
}

// bootstrap initializes a freshly installed engine.
func (c *Coordinator) bootstrap(rt *goja.Runtime, device DeviceProfile) error {
	for i, step := range bootstrapSteps {
		c.logger.Trace().
			Int("step", i+1).
			Str("name", step.name).
			Log("replete: bootstrap step")
		if err := step.run(c, rt, device); err != nil {
			return &BootstrapError{Step: i + 1, Name: step.name, Err: err}
		}
	}
	return nil
}

func scriptStep(scripts ...string) func(*Coordinator, *goja.Runtime, DeviceProfile) error {
	return func(_ *Coordinator, rt *goja.Runtime, _ DeviceProfile) error {
		for _, src := range scripts {
			if _, err := rt.RunString(src); err != nil {
				return err
			}
		}
		return nil
	}
}

// loadModuleLoader runs the Closure base definitions then the dependency
// manifest, and requires the core runtime.
func (c *Coordinator) loadModuleLoader(rt *goja.Runtime, _ DeviceProfile) error {
	for _, path := range [...]string{baseScriptPath, depsScriptPath} {
		if _, err := c.natives.Import(path); err != nil {
			return err
		}
	}
	_, err := rt.RunString("goog.require('cljs.core');")
	return err
}

func initAppEnv(_ *Coordinator, rt *goja.Runtime, device DeviceProfile) error {
	fn, err := replFunction(rt, "init_app_env")
	if err != nil {
		return err
	}
	env := rt.NewObject()
	_ = env.Set("debug-build", device.Debug)
	_ = env.Set("target-simulator", device.Simulator)
	_ = env.Set("user-interface-idiom", device.Idiom)
	_, err = fn(goja.Undefined(), env)
	return err
}
