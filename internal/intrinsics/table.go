package intrinsics

import (
	"github.com/GriffinCanCode/blueprint/internal/plan"
	"github.com/GriffinCanCode/blueprint/internal/shared/errs"
	"github.com/GriffinCanCode/blueprint/internal/value"
)

// aliases maps alternate script names onto canonical table entries.
var aliases = map[string]string{
	"race": "any",
}

// table is the full intrinsic surface, keyed by bare script name.
var table = map[string]*intrinsic{}

func register(in *intrinsic) {
	table[in.script] = in
}

func init() {
	registerFile()
	registerNet()
	registerProc()
	registerTime()
	registerJSON()
	registerConsole()
	registerEvents()
	registerCompute()
	registerCombinators()
}

func registerFile() {
	pathOnly := func(script string, kind plan.Kind) *intrinsic {
		return &intrinsic{
			script: script, params: []string{"path"}, required: 1,
			build: func(r *Registry, c *call) (value.Value, error) {
				if err := c.str("path"); err != nil {
					return value.Null(), err
				}
				return c.node(r, kind, "path")
			},
		}
	}
	register(pathOnly("read_file", plan.KindReadFile))
	register(pathOnly("delete_file", plan.KindDeleteFile))
	register(pathOnly("file_exists", plan.KindFileExists))
	register(pathOnly("is_file", plan.KindIsFile))
	register(pathOnly("is_dir", plan.KindIsDir))
	register(pathOnly("list_dir", plan.KindListDir))
	register(pathOnly("file_size", plan.KindFileSize))

	pathContent := func(script string, kind plan.Kind) *intrinsic {
		return &intrinsic{
			script: script, params: []string{"path", "content"}, required: 2,
			build: func(r *Registry, c *call) (value.Value, error) {
				if err := c.str("path"); err != nil {
					return value.Null(), err
				}
				if err := contentCheck(c, "content"); err != nil {
					return value.Null(), err
				}
				return c.node(r, kind, "path", "content")
			},
		}
	}
	register(pathContent("write_file", plan.KindWriteFile))
	register(pathContent("append_file", plan.KindAppendFile))

	dirOp := func(script string, kind plan.Kind) *intrinsic {
		return &intrinsic{
			script: script, params: []string{"path", "recursive"}, required: 1,
			build: func(r *Registry, c *call) (value.Value, error) {
				if err := c.str("path"); err != nil {
					return value.Null(), err
				}
				if err := c.boolean("recursive"); err != nil {
					return value.Null(), err
				}
				return c.node(r, kind, "path", "recursive")
			},
		}
	}
	register(dirOp("mkdir", plan.KindMkdir))
	register(dirOp("rmdir", plan.KindRmdir))

	srcDst := func(script string, kind plan.Kind) *intrinsic {
		return &intrinsic{
			script: script, params: []string{"src", "dst"}, required: 2,
			build: func(r *Registry, c *call) (value.Value, error) {
				if err := c.strs("src", "dst"); err != nil {
					return value.Null(), err
				}
				return c.node(r, kind, "src", "dst")
			},
		}
	}
	register(srcDst("copy_file", plan.KindCopyFile))
	register(srcDst("move_file", plan.KindMoveFile))
}

func registerProc() {
	register(&intrinsic{
		script: "exec", params: []string{"argv", "cwd", "env"}, required: 1,
		build: func(r *Registry, c *call) (value.Value, error) {
			if argv := c.get("argv"); argv.IsMaterialized() {
				items, ok := argv.AsList()
				if !ok {
					return value.Null(), errs.Scriptf("exec() argv must be a list, got %s", argv.Kind())
				}
				if len(items) == 0 {
					return value.Null(), errs.Scriptf("exec() argv must not be empty")
				}
			}
			if err := c.str("cwd"); err != nil {
				return value.Null(), err
			}
			return c.node(r, plan.KindExec, "argv", "cwd", "env")
		},
	})
	register(&intrinsic{
		script: "env_get", params: []string{"name", "default"}, required: 1,
		build: func(r *Registry, c *call) (value.Value, error) {
			if err := c.str("name"); err != nil {
				return value.Null(), err
			}
			return c.node(r, plan.KindEnvGet, "name", "default")
		},
	})
}

func registerTime() {
	register(&intrinsic{
		script: "sleep", params: []string{"seconds"}, required: 1,
		build: func(r *Registry, c *call) (value.Value, error) {
			if secs := c.get("seconds"); secs.IsMaterialized() {
				f, ok := secs.AsFloatCoerced()
				if !ok {
					return value.Null(), errs.Scriptf("sleep() seconds must be a number, got %s", secs.Kind())
				}
				if f < 0 {
					return value.Null(), errs.Scriptf("sleep() argument must not be negative")
				}
			}
			return c.node(r, plan.KindSleep, "seconds")
		},
	})
	register(&intrinsic{
		script: "now", params: nil, required: 0,
		build: func(r *Registry, c *call) (value.Value, error) {
			return c.node(r, plan.KindNow)
		},
	})
}

func registerJSON() {
	jsonOp := func(script string, kind plan.Kind, param string) *intrinsic {
		return &intrinsic{
			script: script, params: []string{param}, required: 1,
			build: func(r *Registry, c *call) (value.Value, error) {
				// Materialized operands fold at planning time, sharing the
				// executor's evaluation path so results cannot diverge.
				if c.materialized() {
					return plan.EvalJSON(kind, map[string]value.Value{param: c.get(param)})
				}
				if kind == plan.KindJSONDecode {
					if err := c.str(param); err != nil {
						return value.Null(), err
					}
				}
				return c.node(r, kind, param)
			},
		}
	}
	register(jsonOp("json_encode", plan.KindJSONEncode, "value"))
	register(jsonOp("json_decode", plan.KindJSONDecode, "text"))
}

func registerConsole() {
	consoleOp := func(script string, kind plan.Kind) *intrinsic {
		return &intrinsic{
			script: script, variadic: true,
			build: func(r *Registry, c *call) (value.Value, error) {
				args := map[string]value.Value{"values": value.ListOf(c.rest)}
				return r.b.NewNode(kind, args, c.span)
			},
		}
	}
	register(consoleOp("stdout", plan.KindStdout))
	register(consoleOp("stderr", plan.KindStderr))
}

func contentCheck(c *call, name string) error {
	v, ok := c.vals[name]
	if !ok || !v.IsMaterialized() {
		return nil
	}
	if _, isStr := v.AsString(); isStr {
		return nil
	}
	if _, isBytes := v.AsBytes(); isBytes {
		return nil
	}
	return errs.Scriptf("%s() argument '%s' must be a string or bytes, got %s", c.in.script, name, v.Kind())
}
