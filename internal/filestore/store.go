// Package filestore manages plain files inside one working directory and
// tracks a lifecycle state for every name it has touched.
package filestore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xfeldman/arcbox/internal/atomicfile"
	"github.com/xfeldman/arcbox/internal/report"
)

var (
	// ErrInvalidDir is returned by New when the working directory does not
	// exist or is not a directory.
	ErrInvalidDir = errors.New("invalid working directory")

	// ErrNotFound is returned when reading a file that is not on disk.
	ErrNotFound = errors.New("file not found")

	// ErrInvalidName is returned for names that are not a single plain
	// path element.
	ErrInvalidName = errors.New("invalid file name")

	// ErrUnknownEncoding is returned for text encodings x/text does not know.
	ErrUnknownEncoding = errors.New("unknown text encoding")
)

// State is the lifecycle tag of a managed file.
type State string

const (
	StateUnknown State = "unknown"
	StateSaved   State = "saved"
	StateLoaded  State = "loaded"
	StateFailed  State = "failed"
	StateDeleted State = "deleted"
)

type managedFile struct {
	path    string
	state   State
	history []State
}

func (f *managedFile) set(s State) {
	f.state = s
	f.history = append(f.history, s)
}

// Store resolves logical names to paths inside a working directory and
// performs raw I/O on them. A Store is not safe for concurrent use.
type Store struct {
	dir      string
	reporter report.Reporter
	encoding string
	perm     os.FileMode
	files    map[string]*managedFile
}

// New creates a store rooted at dir.
func New(dir string, opts ...Option) (*Store, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDir, dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidDir, dir)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDir, dir, err)
	}

	s := &Store{
		dir:      abs,
		reporter: report.Nop{},
		encoding: defaultEncoding,
		perm:     defaultPerm,
		files:    make(map[string]*managedFile),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the absolute working directory.
func (s *Store) Dir() string {
	return s.dir
}

// Encoding returns the default text encoding.
func (s *Store) Encoding() string {
	return s.encoding
}

// ValidateName rejects anything that is not a single plain path element.
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`+"\x00") ||
		strings.ContainsRune(name, filepath.Separator) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Path returns the path name resolves to inside the working directory.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name)
}

func (s *Store) file(name string) *managedFile {
	f, ok := s.files[name]
	if !ok {
		f = &managedFile{path: s.Path(name), state: StateUnknown}
		s.files[name] = f
	}
	return f
}

// List returns the names of the regular files directly inside the working
// directory, sorted. Temp files from in-flight atomic writes are skipped.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.dir, err)
	}
	var names []string
	for _, e := range entries {
		if !e.Type().IsRegular() || atomicfile.IsTemp(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// Has reports whether name is a regular file in the working directory.
func (s *Store) Has(name string) bool {
	if ValidateName(name) != nil {
		return false
	}
	info, err := os.Lstat(s.Path(name))
	return err == nil && info.Mode().IsRegular()
}

// State returns the current lifecycle state of name.
func (s *Store) State(name string) State {
	if f, ok := s.files[name]; ok {
		return f.state
	}
	return StateUnknown
}

// History returns every state name has passed through, oldest first.
func (s *Store) History(name string) []State {
	f, ok := s.files[name]
	if !ok {
		return nil
	}
	out := make([]State, len(f.history))
	copy(out, f.history)
	return out
}

// Write stores content under name according to o.
func (s *Store) Write(name string, content []byte, o IOOptions) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	o = s.resolve(o)
	f := s.file(name)

	data := content
	if o.Mode == ModeText {
		var err error
		if data, err = EncodeText(string(content), o.Encoding); err != nil {
			f.set(StateFailed)
			return err
		}
	}

	var err error
	switch o.Intent {
	case IntentAppend:
		err = appendFile(f.path, data, o.Perm)
	default:
		err = atomicfile.WriteFile(f.path, data, o.Perm)
	}
	if err != nil {
		f.set(StateFailed)
		return fmt.Errorf("write %s: %w", name, err)
	}
	f.set(StateSaved)
	return nil
}

func appendFile(path string, data []byte, perm os.FileMode) error {
	fh, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, perm)
	if err != nil {
		return err
	}
	if _, err := fh.Write(data); err != nil {
		fh.Close()
		return err
	}
	return fh.Close()
}

// Read loads name according to o. In ModeText the result is UTF-8.
// A missing file yields ErrNotFound, a warning, and the failed state.
func (s *Store) Read(name string, o IOOptions) ([]byte, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	o = s.resolve(o)
	f := s.file(name)

	data, err := os.ReadFile(f.path)
	if err != nil {
		f.set(StateFailed)
		if errors.Is(err, os.ErrNotExist) {
			s.reporter.Warn("filestore: file not found, returning nothing", "name", name, "dir", s.dir)
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if o.Mode == ModeText {
		text, err := DecodeText(data, o.Encoding)
		if err != nil {
			f.set(StateFailed)
			return nil, err
		}
		data = []byte(text)
	}
	f.set(StateLoaded)
	return data, nil
}

// WriteText replaces name with text in the default encoding.
func (s *Store) WriteText(name, text string) error {
	return s.Write(name, []byte(text), IOOptions{Mode: ModeText})
}

// WriteBinary replaces name with data.
func (s *Store) WriteBinary(name string, data []byte) error {
	return s.Write(name, data, IOOptions{Mode: ModeBinary})
}

// AppendText appends text in the default encoding.
func (s *Store) AppendText(name, text string) error {
	return s.Write(name, []byte(text), IOOptions{Mode: ModeText, Intent: IntentAppend})
}

// AppendBinary appends data.
func (s *Store) AppendBinary(name string, data []byte) error {
	return s.Write(name, data, IOOptions{Mode: ModeBinary, Intent: IntentAppend})
}

// ReadText returns the content of name decoded from the default encoding.
func (s *Store) ReadText(name string) (string, error) {
	data, err := s.Read(name, IOOptions{Mode: ModeText})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ReadBinary returns the raw content of name.
func (s *Store) ReadBinary(name string) ([]byte, error) {
	return s.Read(name, IOOptions{Mode: ModeBinary})
}

// Delete removes name from the working directory. Deleting a file that is
// not there is not an error: it is reported as a warning and the state is
// marked failed.
func (s *Store) Delete(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	f := s.file(name)
	if err := os.Remove(f.path); err != nil {
		f.set(StateFailed)
		if errors.Is(err, os.ErrNotExist) {
			s.reporter.Warn("filestore: file not found, nothing to delete", "name", name, "dir", s.dir)
			return nil
		}
		return fmt.Errorf("delete %s: %w", name, err)
	}
	f.set(StateDeleted)
	return nil
}

// String lists the working directory and the state of every file in it.
func (s *Store) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Working dir: %s", s.dir)
	names, _ := s.List()
	for _, name := range names {
		fmt.Fprintf(&b, "\n%s: %s", name, s.State(name))
	}
	return b.String()
}
