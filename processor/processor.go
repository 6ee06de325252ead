// Package processor provides the handlers the engine runs against matched
// responses. A Processor turns one response into zero or more follow-up
// requests; Extract binds a schema and feeds collectors, SaveFile writes
// response bodies to disk.
package processor

import (
	"errors"
	"fmt"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/go-octopus/octopus/collector"
	"github.com/go-octopus/octopus/extract"
	"github.com/go-octopus/octopus/types"
)

// Processor handles one matched response and returns the requests it
// discovered. Errors fail the request; the engine marks it FAILED with the
// error message.
type Processor func(*types.Response) ([]*types.Request, error)

// Extract returns a processor that binds the schema against each response,
// hands the bound result to every collector, and returns the links the
// schema discovered.
func Extract(schema *extract.Schema, collectors ...collector.Collector) Processor {
	return func(resp *types.Response) ([]*types.Request, error) {
		res, links, err := extract.Bind(schema, resp.Text(), resp)
		if err != nil {
			return nil, err
		}
		for _, c := range collectors {
			if err := c(res); err != nil {
				return nil, &types.ExtractionError{URL: errURL(resp), Err: err}
			}
		}
		return links, nil
	}
}

// FileOption configures SaveFile.
type FileOption func(*fileOptions)

type fileOptions struct {
	subDirAttr   string
	filenameAttr string
}

// WithSubDirAttr nests each download under a directory named by this
// request attribute.
func WithSubDirAttr(name string) FileOption {
	return func(o *fileOptions) { o.subDirAttr = name }
}

// WithFilenameAttr names the request attribute carrying the target
// filename.
func WithFilenameAttr(name string) FileOption {
	return func(o *fileOptions) { o.filenameAttr = name }
}

// SaveFile returns a processor that writes each response body under
// baseDir. The filename comes from the filename attribute when configured,
// else from the Content-Disposition filename parameter, else from the last
// segment of the URL path. An existing file is replaced atomically.
func SaveFile(baseDir string, opts ...FileOption) Processor {
	var o fileOptions
	for _, opt := range opts {
		opt(&o)
	}
	return func(resp *types.Response) ([]*types.Request, error) {
		dir := baseDir
		if o.subDirAttr != "" {
			if sub := attrString(resp, o.subDirAttr); sub != "" {
				dir = filepath.Join(dir, sub)
			}
		}

		name := ""
		if o.filenameAttr != "" {
			name = attrString(resp, o.filenameAttr)
		}
		if name == "" {
			name = dispositionFilename(resp.Header("Content-Disposition"))
		}
		if name == "" {
			name = urlFilename(errURL(resp))
		}
		name = filepath.Base(name)
		if name == "." || name == string(filepath.Separator) {
			return nil, &types.ExtractionError{
				URL: errURL(resp),
				Err: errors.New("cannot determine filename"),
			}
		}

		if err := writeFile(dir, name, resp.Content); err != nil {
			return nil, &types.ExtractionError{
				URL: errURL(resp),
				Err: fmt.Errorf("save file: %w", err),
			}
		}
		return nil, nil
	}
}

// writeFile writes data to dir/name through a temp file and a rename, so
// readers never observe a partial file.
func writeFile(dir, name string, data []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, name+".tmp-")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

func attrString(resp *types.Response, name string) string {
	if resp == nil || resp.Request == nil {
		return ""
	}
	if v, ok := resp.Request.Attrs[name]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return ""
}

func dispositionFilename(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return params["filename"]
}

func urlFilename(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	base := path.Base(u.Path)
	if base == "." || base == "/" {
		return ""
	}
	return base
}

func errURL(resp *types.Response) string {
	if resp == nil || resp.Request == nil {
		return ""
	}
	return resp.Request.URL
}
