// Package fs executes the file I/O kinds against an afero filesystem.
// Production runs use the OS filesystem; tests swap in a memory map.
package fs

import (
	"context"
	"io"
	"os"
	"sort"

	"github.com/spf13/afero"

	"github.com/GriffinCanCode/blueprint/internal/plan"
	"github.com/GriffinCanCode/blueprint/internal/policy"
	"github.com/GriffinCanCode/blueprint/internal/shared/errs"
	"github.com/GriffinCanCode/blueprint/internal/value"
)

const dirMode = 0o755

// Driver executes file system nodes.
type Driver struct {
	fsys afero.Fs
	pol  *policy.Policy
}

// New builds a driver over the OS filesystem.
func New(pol *policy.Policy) *Driver {
	return NewWithFs(afero.NewOsFs(), pol)
}

// NewWithFs builds a driver over an arbitrary filesystem.
func NewWithFs(fsys afero.Fs, pol *policy.Policy) *Driver {
	return &Driver{fsys: fsys, pol: pol}
}

func (d *Driver) Run(ctx context.Context, node *plan.Node, args map[string]value.Value) (value.Value, error) {
	if err := ctx.Err(); err != nil {
		return value.Null(), err
	}
	switch node.Kind {
	case plan.KindReadFile:
		return d.readFile(args)
	case plan.KindWriteFile:
		return d.writeFile(args, false)
	case plan.KindAppendFile:
		return d.writeFile(args, true)
	case plan.KindDeleteFile:
		return d.deleteFile(args)
	case plan.KindFileExists:
		return d.fileExists(args)
	case plan.KindIsFile:
		return d.statKind(args, false)
	case plan.KindIsDir:
		return d.statKind(args, true)
	case plan.KindMkdir:
		return d.mkdir(args)
	case plan.KindRmdir:
		return d.rmdir(args)
	case plan.KindListDir:
		return d.listDir(args)
	case plan.KindCopyFile:
		return d.copyFile(args)
	case plan.KindMoveFile:
		return d.moveFile(args)
	case plan.KindFileSize:
		return d.fileSize(args)
	default:
		return value.Null(), errs.Operationf(node.ID, "%s is not a file operation", node.Kind)
	}
}

func (d *Driver) readFile(args map[string]value.Value) (value.Value, error) {
	path, err := pathArg("read_file", "path", args)
	if err != nil {
		return value.Null(), err
	}
	if err := d.pol.Permits(policy.ReadFile(path)); err != nil {
		return value.Null(), err
	}
	data, err := afero.ReadFile(d.fsys, path)
	if err != nil {
		return value.Null(), errs.OperationWrap(0, err)
	}
	return value.Str(string(data)), nil
}

func (d *Driver) writeFile(args map[string]value.Value, appendMode bool) (value.Value, error) {
	op := "write_file"
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if appendMode {
		op = "append_file"
		flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	}
	path, err := pathArg(op, "path", args)
	if err != nil {
		return value.Null(), err
	}
	content, err := contentArg(op, args["content"])
	if err != nil {
		return value.Null(), err
	}
	if err := d.pol.Permits(policy.WriteFile(path)); err != nil {
		return value.Null(), err
	}
	f, err := d.fsys.OpenFile(path, flags, 0o644)
	if err != nil {
		return value.Null(), errs.OperationWrap(0, err)
	}
	_, werr := f.Write(content)
	cerr := f.Close()
	if werr != nil {
		return value.Null(), errs.OperationWrap(0, werr)
	}
	if cerr != nil {
		return value.Null(), errs.OperationWrap(0, cerr)
	}
	return value.Null(), nil
}

func (d *Driver) deleteFile(args map[string]value.Value) (value.Value, error) {
	path, err := pathArg("delete_file", "path", args)
	if err != nil {
		return value.Null(), err
	}
	if err := d.pol.Permits(policy.WriteFile(path)); err != nil {
		return value.Null(), err
	}
	if err := d.fsys.Remove(path); err != nil {
		return value.Null(), errs.OperationWrap(0, err)
	}
	return value.Null(), nil
}

func (d *Driver) fileExists(args map[string]value.Value) (value.Value, error) {
	path, err := pathArg("file_exists", "path", args)
	if err != nil {
		return value.Null(), err
	}
	if err := d.pol.Permits(policy.ReadFile(path)); err != nil {
		return value.Null(), err
	}
	exists, err := afero.Exists(d.fsys, path)
	if err != nil {
		return value.Null(), errs.OperationWrap(0, err)
	}
	return value.Bool(exists), nil
}

func (d *Driver) statKind(args map[string]value.Value, wantDir bool) (value.Value, error) {
	op := "is_file"
	if wantDir {
		op = "is_dir"
	}
	path, err := pathArg(op, "path", args)
	if err != nil {
		return value.Null(), err
	}
	if err := d.pol.Permits(policy.ReadFile(path)); err != nil {
		return value.Null(), err
	}
	info, err := d.fsys.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return value.Bool(false), nil
		}
		return value.Null(), errs.OperationWrap(0, err)
	}
	if wantDir {
		return value.Bool(info.IsDir()), nil
	}
	return value.Bool(info.Mode().IsRegular()), nil
}

func (d *Driver) mkdir(args map[string]value.Value) (value.Value, error) {
	path, err := pathArg("mkdir", "path", args)
	if err != nil {
		return value.Null(), err
	}
	recursive, err := flagArg("mkdir", "recursive", args)
	if err != nil {
		return value.Null(), err
	}
	if err := d.pol.Permits(policy.WriteFile(path)); err != nil {
		return value.Null(), err
	}
	if recursive {
		err = d.fsys.MkdirAll(path, dirMode)
	} else {
		err = d.fsys.Mkdir(path, dirMode)
	}
	if err != nil {
		return value.Null(), errs.OperationWrap(0, err)
	}
	return value.Null(), nil
}

func (d *Driver) rmdir(args map[string]value.Value) (value.Value, error) {
	path, err := pathArg("rmdir", "path", args)
	if err != nil {
		return value.Null(), err
	}
	recursive, err := flagArg("rmdir", "recursive", args)
	if err != nil {
		return value.Null(), err
	}
	if err := d.pol.Permits(policy.WriteFile(path)); err != nil {
		return value.Null(), err
	}
	info, err := d.fsys.Stat(path)
	if err != nil {
		return value.Null(), errs.OperationWrap(0, err)
	}
	if !info.IsDir() {
		return value.Null(), errs.Operationf(0, "rmdir: %s is not a directory", path)
	}
	if recursive {
		err = d.fsys.RemoveAll(path)
	} else {
		err = d.fsys.Remove(path)
	}
	if err != nil {
		return value.Null(), errs.OperationWrap(0, err)
	}
	return value.Null(), nil
}

func (d *Driver) listDir(args map[string]value.Value) (value.Value, error) {
	path, err := pathArg("list_dir", "path", args)
	if err != nil {
		return value.Null(), err
	}
	if err := d.pol.Permits(policy.ReadFile(path)); err != nil {
		return value.Null(), err
	}
	infos, err := afero.ReadDir(d.fsys, path)
	if err != nil {
		return value.Null(), errs.OperationWrap(0, err)
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name())
	}
	sort.Strings(names)
	items := make([]value.Value, len(names))
	for i, name := range names {
		items[i] = value.Str(name)
	}
	return value.ListOf(items), nil
}

func (d *Driver) copyFile(args map[string]value.Value) (value.Value, error) {
	src, err := pathArg("copy_file", "src", args)
	if err != nil {
		return value.Null(), err
	}
	dst, err := pathArg("copy_file", "dst", args)
	if err != nil {
		return value.Null(), err
	}
	if err := d.pol.Permits(policy.ReadFile(src)); err != nil {
		return value.Null(), err
	}
	if err := d.pol.Permits(policy.WriteFile(dst)); err != nil {
		return value.Null(), err
	}
	if err := d.copy(src, dst); err != nil {
		return value.Null(), err
	}
	return value.Null(), nil
}

func (d *Driver) copy(src, dst string) error {
	in, err := d.fsys.Open(src)
	if err != nil {
		return errs.OperationWrap(0, err)
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return errs.OperationWrap(0, err)
	}
	out, err := d.fsys.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return errs.OperationWrap(0, err)
	}
	_, cerr := io.Copy(out, in)
	if err := out.Close(); cerr == nil {
		cerr = err
	}
	if cerr != nil {
		return errs.OperationWrap(0, cerr)
	}
	return nil
}

func (d *Driver) moveFile(args map[string]value.Value) (value.Value, error) {
	src, err := pathArg("move_file", "src", args)
	if err != nil {
		return value.Null(), err
	}
	dst, err := pathArg("move_file", "dst", args)
	if err != nil {
		return value.Null(), err
	}
	if err := d.pol.Permits(policy.WriteFile(src)); err != nil {
		return value.Null(), err
	}
	if err := d.pol.Permits(policy.WriteFile(dst)); err != nil {
		return value.Null(), err
	}
	if err := d.fsys.Rename(src, dst); err != nil {
		// Cross-device moves fall back to copy and remove.
		if cerr := d.copy(src, dst); cerr != nil {
			return value.Null(), errs.OperationWrap(0, err)
		}
		if rerr := d.fsys.Remove(src); rerr != nil {
			return value.Null(), errs.OperationWrap(0, rerr)
		}
	}
	return value.Null(), nil
}

func (d *Driver) fileSize(args map[string]value.Value) (value.Value, error) {
	path, err := pathArg("file_size", "path", args)
	if err != nil {
		return value.Null(), err
	}
	if err := d.pol.Permits(policy.ReadFile(path)); err != nil {
		return value.Null(), err
	}
	info, err := d.fsys.Stat(path)
	if err != nil {
		return value.Null(), errs.OperationWrap(0, err)
	}
	return value.Int(info.Size()), nil
}

func pathArg(op, name string, args map[string]value.Value) (string, error) {
	v := args[name]
	s, ok := v.AsString()
	if !ok {
		return "", errs.Scriptf("%s() argument '%s' must be a string, got %s", op, name, v.Kind())
	}
	if s == "" {
		return "", errs.Scriptf("%s() argument '%s' must not be empty", op, name)
	}
	return s, nil
}

func contentArg(op string, v value.Value) ([]byte, error) {
	if s, ok := v.AsString(); ok {
		return []byte(s), nil
	}
	if b, ok := v.AsBytes(); ok {
		return b, nil
	}
	return nil, errs.Scriptf("%s() argument 'content' must be a string or bytes, got %s", op, v.Kind())
}

func flagArg(op, name string, args map[string]value.Value) (bool, error) {
	v, exists := args[name]
	if !exists || v.IsNull() {
		return false, nil
	}
	b, ok := v.AsBool()
	if !ok {
		return false, errs.Scriptf("%s() argument '%s' must be a bool, got %s", op, name, v.Kind())
	}
	return b, nil
}
