package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"time"

	"github.com/BaSui01/tenex/llm"
)

// 单次读取的上限
const maxReadBytes = 64 << 10

type pathArgs struct {
	Path string `json:"path"`
}

type dirEntry struct {
	Name string `json:"name"`
	Dir  bool   `json:"dir"`
	Size int64  `json:"size,omitempty"`
}

// RegisterWorkspaceTools 注册只读的 read_file 与 list_files，访问限定在 root 之内
func RegisterWorkspaceTools(reg *Registry, root string) error {
	if root == "" {
		return errors.New("workspace root is empty")
	}
	if _, err := os.Stat(root); err != nil {
		return fmt.Errorf("workspace root: %w", err)
	}

	ws := &workspace{root: root}
	err := reg.Register("read_file", ws.readFile, ToolMetadata{
		Schema: llm.ToolSchema{
			Description: "Read a UTF-8 text file from the project repository. Paths are relative to the repository root.",
			Parameters:  pathSchema("File path relative to the repository root"),
		},
		RateLimit: &RateLimitConfig{MaxCalls: 60, Window: time.Minute},
	})
	if err != nil {
		return err
	}
	return reg.Register("list_files", ws.listFiles, ToolMetadata{
		Schema: llm.ToolSchema{
			Description: "List the entries of a directory in the project repository.",
			Parameters:  pathSchema("Directory path relative to the repository root, \".\" for the root"),
		},
		RateLimit: &RateLimitConfig{MaxCalls: 60, Window: time.Minute},
	})
}

func pathSchema(desc string) json.RawMessage {
	schema, _ := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{"type": "string", "description": desc},
		},
		"required": []string{"path"},
	})
	return schema
}

type workspace struct {
	root string
}

// open 先按根目录规整路径，再通过 os.Root 打开，符号链接也无法越出根目录
func (w *workspace) open(args json.RawMessage) (*os.File, string, error) {
	var a pathArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, "", fmt.Errorf("invalid arguments: %w", err)
	}
	p := path.Clean("/" + a.Path)[1:]
	if p == "" {
		p = "."
	}
	r, err := os.OpenRoot(w.root)
	if err != nil {
		return nil, "", err
	}
	defer r.Close()

	f, err := r.Open(p)
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", p, err)
	}
	return f, p, nil
}

func (w *workspace) readFile(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	f, p, err := w.open(args)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", p)
	}
	data, err := io.ReadAll(io.LimitReader(f, maxReadBytes+1))
	if err != nil {
		return nil, err
	}
	content := string(data)
	if len(data) > maxReadBytes {
		content = string(data[:maxReadBytes]) + "\n[truncated]"
	}
	return json.Marshal(content)
}

func (w *workspace) listFiles(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	f, p, err := w.open(args)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	entries, err := f.ReadDir(-1)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", p, err)
	}
	out := make([]dirEntry, 0, len(entries))
	for _, e := range entries {
		d := dirEntry{Name: e.Name(), Dir: e.IsDir()}
		if info, err := e.Info(); err == nil && !e.IsDir() {
			d.Size = info.Size()
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return json.Marshal(out)
}
