package durable

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
)

// SectionStoreFactory builds a section store for one DSN scheme.
type SectionStoreFactory func(dsn string) (SectionStore, error)

var storeFactoryRegistry = struct {
	mu        sync.RWMutex
	factories map[string]SectionStoreFactory
}{
	factories: map[string]SectionStoreFactory{},
}

// RegisterSectionStoreFactory installs a custom factory for a DSN scheme,
// taking precedence over the built-in schemes.
func RegisterSectionStoreFactory(scheme string, factory SectionStoreFactory) {
	scheme = normalizeScheme(scheme)
	if scheme == "" || factory == nil {
		return
	}
	storeFactoryRegistry.mu.Lock()
	defer storeFactoryRegistry.mu.Unlock()
	storeFactoryRegistry.factories[scheme] = factory
}

func lookupSectionStoreFactory(scheme string) (SectionStoreFactory, bool) {
	scheme = normalizeScheme(scheme)
	storeFactoryRegistry.mu.RLock()
	defer storeFactoryRegistry.mu.RUnlock()
	factory, ok := storeFactoryRegistry.factories[scheme]
	return factory, ok
}

// BuildSectionStoreFromDSN resolves a DSN to a store implementation:
// memory://, file://path (or a bare path), postgres://, and http(s)://
// for a remote docsyncd.
func BuildSectionStoreFromDSN(dsn string) (SectionStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrInvalidInput
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, err
	}
	scheme := normalizeScheme(parsed.Scheme)
	if factory, ok := lookupSectionStoreFactory(scheme); ok {
		return factory(dsn)
	}
	switch scheme {
	case "", "file":
		path, pathErr := dsnPath(parsed, dsn)
		if pathErr != nil {
			return nil, pathErr
		}
		return NewJSONFileSectionStore(path)
	case "memory", "mem", "inmem":
		return NewInMemorySectionStore(), nil
	case "postgres", "postgresql":
		return NewPostgresSectionStore(dsn)
	case "http", "https":
		return NewHTTPSectionStore(dsn, "", nil), nil
	case "mysql", "sqlite":
		return nil, fmt.Errorf("%w: section store %s", ErrNotImplemented, scheme)
	default:
		return nil, fmt.Errorf("unsupported section store scheme: %s", scheme)
	}
}

func dsnPath(parsed *url.URL, raw string) (string, error) {
	if parsed.Scheme == "" {
		return raw, nil
	}
	path := parsed.Path
	if parsed.Host != "" {
		path = parsed.Host + path
	}
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("%w: file DSN has no path: %s", ErrInvalidInput, raw)
	}
	return path, nil
}

func normalizeScheme(scheme string) string {
	return strings.ToLower(strings.TrimSpace(scheme))
}

var _ SectionStore = (*HTTPSectionStore)(nil)
