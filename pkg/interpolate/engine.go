// Package interpolate resolves path templates such as
// ":root/public/storage/:storage_name/:id-:base_name.:extension".
package interpolate

import (
	"crypto/sha1" //nolint:gosec // used for unique names, not for security
	"encoding/hex"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/jinzhu/inflection"
	strcase "github.com/stoewer/go-strcase"
)

// placeholderPattern matches ":name" tokens.
var placeholderPattern = regexp.MustCompile(`:([a-z0-9_]+)`)

// hashTimeFormat renders the clock for the :hash placeholder.
const hashTimeFormat = "2006-01-02 15:04:05 UTC"

// Attributes looks up a named attribute of the record a template is resolved for.
type Attributes interface {
	Attribute(name string) (string, bool)
}

// AttributeMap is a map-backed Attributes.
type AttributeMap map[string]string

// Attribute returns the value stored under name.
func (m AttributeMap) Attribute(name string) (string, bool) {
	value, ok := m[name]
	return value, ok
}

// Source carries the per-item values a template is resolved against.
type Source struct {
	// Filename is the original name of the uploaded file, extension included.
	Filename string
	// Bucket is the allocation namespace, usually the record type name.
	Bucket string
	// RequestID distinguishes items hashed within the same second.
	RequestID string
	// Attributes is consulted for placeholders that are not built in.
	Attributes Attributes
}

// Engine resolves templates. The zero value uses the real clock and an empty root.
type Engine struct {
	// Root is the value of the :root placeholder, also served as :rails_root.
	Root string
	// Now returns the clock used by :hash.
	Now func() time.Time
}

// New creates an engine rooted at root.
func New(root string) *Engine {
	return &Engine{Root: root, Now: time.Now}
}

// Resolve replaces every placeholder in template. Built-ins win over attributes.
func (e *Engine) Resolve(template string, src Source) (string, error) {
	var resolveErr error

	resolved := placeholderPattern.ReplaceAllStringFunc(template, func(token string) string {
		if resolveErr != nil {
			return token
		}

		placeholder := token[1:]
		if value, ok := e.builtin(placeholder, src); ok {
			return value
		}

		if src.Attributes != nil {
			if value, ok := src.Attributes.Attribute(placeholder); ok {
				return value
			}
		}

		resolveErr = &TemplateResolutionError{Template: template, Placeholder: placeholder}
		return token
	})
	if resolveErr != nil {
		return "", resolveErr
	}
	return resolved, nil
}

func (e *Engine) builtin(placeholder string, src Source) (string, bool) {
	switch placeholder {
	case "root", "rails_root":
		return e.Root, true
	case "base_name":
		return BaseName(src.Filename), true
	case "name":
		return src.Filename, true
	case "extension":
		return Extension(src.Filename), true
	case "storage_name":
		return StorageName(src.Bucket), true
	case "hash":
		return e.hash(src), true
	default:
		return "", false
	}
}

// hash derives a one-time token from the clock, the bucket and the request id.
func (e *Engine) hash(src Source) string {
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}

	//nolint:gosec // uniqueness token, not a security boundary
	sum := sha1.Sum([]byte(now().UTC().Format(hashTimeFormat) + StorageName(src.Bucket) + src.RequestID))
	return hex.EncodeToString(sum[:])
}

// Extension returns the filename suffix without its dot. A name whose only dot
// is the leading one (".bashrc") has no extension.
func Extension(filename string) string {
	base := filepath.Base(filename)
	idx := strings.LastIndex(base, ".")
	if idx <= 0 {
		return ""
	}
	return base[idx+1:]
}

// BaseName returns the filename without its extension.
func BaseName(filename string) string {
	extension := Extension(filename)
	if extension == "" {
		return filename
	}
	return strings.TrimSuffix(filename, "."+extension)
}

// StorageName turns a bucket name into its plural snake-case form: "User" is
// stored under "users", "BlogPost" under "blog_posts".
func StorageName(bucket string) string {
	if bucket == "" {
		return ""
	}
	return inflection.Plural(strcase.SnakeCase(bucket))
}
