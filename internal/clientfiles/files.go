// Package clientfiles reads and writes Client work order JSON files.
package clientfiles

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/sirupsen/logrus"

	"github.com/imrishuroy/go-workorder-sync/internal/workorders"
)

// IOError is a failure reading or writing a Client file.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Document is one parsed inbound file.
type Document struct {
	Name   string
	Record workorders.ClientWorkOrder
}

// Files exchanges work orders with the Client through an inbound and an
// outbound directory on a billy filesystem.
type Files struct {
	fs       billy.Filesystem
	inbound  string
	outbound string
	log      logrus.FieldLogger
}

// New returns Files rooted on fs.
func New(fs billy.Filesystem, inboundDir, outboundDir string, log logrus.FieldLogger) *Files {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Files{
		fs:       fs,
		inbound:  inboundDir,
		outbound: outboundDir,
		log:      log,
	}
}

// NewOS returns Files on the host filesystem. Relative directories are
// resolved against the working directory.
func NewOS(inboundDir, outboundDir string, log logrus.FieldLogger) (*Files, error) {
	in, err := filepath.Abs(inboundDir)
	if err != nil {
		return nil, fmt.Errorf("resolve inbound dir: %w", err)
	}
	out, err := filepath.Abs(outboundDir)
	if err != nil {
		return nil, fmt.Errorf("resolve outbound dir: %w", err)
	}
	return New(osfs.New("/"), in, out, log), nil
}

// InboundDir returns the inbound directory path.
func (f *Files) InboundDir() string { return f.inbound }

// OutboundDir returns the outbound directory path.
func (f *Files) OutboundDir() string { return f.outbound }

// EnsureDirs creates both directories when missing.
func (f *Files) EnsureDirs() error {
	for _, dir := range []string{f.inbound, f.outbound} {
		if err := f.fs.MkdirAll(dir, 0o755); err != nil {
			return &IOError{Op: "mkdir", Path: dir, Err: err}
		}
	}
	return nil
}

// ReadInbound parses every *.json file in the inbound directory, in name
// order. Files that cannot be read or decoded are logged and skipped.
func (f *Files) ReadInbound(ctx context.Context) ([]Document, error) {
	if err := f.fs.MkdirAll(f.inbound, 0o755); err != nil {
		return nil, &IOError{Op: "mkdir", Path: f.inbound, Err: err}
	}
	entries, err := f.fs.ReadDir(f.inbound)
	if err != nil {
		return nil, &IOError{Op: "list", Path: f.inbound, Err: err}
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	docs := make([]Document, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return docs, err
		}
		p := path.Join(f.inbound, name)
		rec, err := f.readRecord(p)
		if err != nil {
			f.log.WithField("file", name).WithError(err).Error("skipping unreadable client file")
			continue
		}
		docs = append(docs, Document{Name: name, Record: rec})
	}
	return docs, nil
}

func (f *Files) readRecord(p string) (workorders.ClientWorkOrder, error) {
	var rec workorders.ClientWorkOrder
	data, err := util.ReadFile(f.fs, p)
	if err != nil {
		return rec, &IOError{Op: "read", Path: p, Err: err}
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, &IOError{Op: "decode", Path: p, Err: err}
	}
	return rec, nil
}

// WriteOutbound writes rec to name in the outbound directory.
func (f *Files) WriteOutbound(ctx context.Context, name string, rec workorders.ClientWorkOrder) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return f.writeJSON(f.outbound, name, rec)
}

// WriteInbound drops rec into the inbound directory as {orderNo}.json and
// returns the file name.
func (f *Files) WriteInbound(ctx context.Context, rec workorders.ClientWorkOrder) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if rec.OrderNo == nil {
		return "", &workorders.MissingFieldError{Fields: []string{"orderNo"}}
	}
	name := fmt.Sprintf("%d.json", *rec.OrderNo)
	return name, f.writeJSON(f.inbound, name, rec)
}

// writeJSON encodes v with two-space indentation into a temp file in dir and
// renames it over name, so readers never see a partial file.
func (f *Files) writeJSON(dir, name string, v any) error {
	target := path.Join(dir, name)
	if err := f.fs.MkdirAll(dir, 0o755); err != nil {
		return &IOError{Op: "mkdir", Path: dir, Err: err}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return &IOError{Op: "encode", Path: target, Err: err}
	}

	tmp, err := f.fs.TempFile(dir, "."+name+".tmp-")
	if err != nil {
		return &IOError{Op: "create", Path: target, Err: err}
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		_ = f.fs.Remove(tmpName)
		return &IOError{Op: "write", Path: target, Err: err}
	}
	if err := tmp.Close(); err != nil {
		_ = f.fs.Remove(tmpName)
		return &IOError{Op: "write", Path: target, Err: err}
	}
	if err := f.fs.Rename(tmpName, target); err != nil {
		_ = f.fs.Remove(tmpName)
		return &IOError{Op: "rename", Path: target, Err: err}
	}
	return nil
}

// ReadOutbound returns the decoded outbound file name.
func (f *Files) ReadOutbound(name string) (workorders.ClientWorkOrder, error) {
	return f.readRecord(path.Join(f.outbound, name))
}
