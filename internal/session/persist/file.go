package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hnrobert/lumauth/internal/hostfs"
	"github.com/hnrobert/lumauth/internal/session"
)

type fileData struct {
	Sessions []session.Session `json:"sessions" yaml:"sessions"`
}

// File keeps the sessions in a single file, YAML when the name ends in
// .yaml or .yml and JSON otherwise. The file is replaced atomically and is
// only readable by its owner.
type File struct {
	path string
}

func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) isYAML() bool {
	ext := strings.ToLower(filepath.Ext(f.path))
	return ext == ".yaml" || ext == ".yml"
}

func (f *File) Load(_ context.Context) ([]session.Session, error) {
	b, err := hostfs.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var d fileData
	if f.isYAML() {
		err = yaml.Unmarshal(b, &d)
	} else {
		err = json.Unmarshal(b, &d)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.path, err)
	}
	return d.Sessions, nil
}

func (f *File) Save(_ context.Context, sessions []session.Session) error {
	d := fileData{Sessions: sessions}
	if d.Sessions == nil {
		d.Sessions = []session.Session{}
	}
	var (
		b   []byte
		err error
	)
	if f.isYAML() {
		b, err = yaml.Marshal(d)
	} else {
		b, err = json.MarshalIndent(d, "", "  ")
	}
	if err != nil {
		return err
	}
	return hostfs.WriteFileAtomic(f.path, b, 0600)
}

func (f *File) Close() error { return nil }
