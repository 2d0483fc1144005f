package testutil

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/APTrust/preservation-fixity/fixity"
)

// ErrStreamClosed is returned by reads on a blocked FakeObject stream
// after it has been closed.
var ErrStreamClosed = errors.New("stream closed")

// FakeObject describes how FakeRegistry serves one object.
type FakeObject struct {
	Content string

	// Expected is the expected digest. Empty means the registry has
	// none.
	Expected string

	// OpenErr is returned from OpenContentStream.
	OpenErr error

	// DigestErr is returned from ExpectedDigest.
	DigestErr error

	// ReadErr is returned after half the content has been read.
	ReadErr error

	// Block makes reads hang after half the content until the
	// stream is closed.
	Block bool

	// EOFOnClose makes reads on a closed stream return io.EOF
	// instead of ErrStreamClosed, as a connection that ends cleanly
	// would.
	EOFOnClose bool
}

// FakeRegistry is an in-memory fixity.ObjectRegistry and
// fixity.Catalog.
type FakeRegistry struct {
	mutex   sync.RWMutex
	objects map[string]*FakeObject
	open    atomic.Int64
	opened  atomic.Int64
}

func NewFakeRegistry() *FakeRegistry {
	return &FakeRegistry{objects: make(map[string]*FakeObject)}
}

func (r *FakeRegistry) Put(objectID string, obj *FakeObject) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.objects[objectID] = obj
}

func (r *FakeRegistry) Delete(objectID string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	delete(r.objects, objectID)
}

// OpenStreams returns the number of streams opened and not yet closed.
func (r *FakeRegistry) OpenStreams() int64 {
	return r.open.Load()
}

// Opened returns the total number of streams opened.
func (r *FakeRegistry) Opened() int64 {
	return r.opened.Load()
}

func (r *FakeRegistry) get(objectID string) (*FakeObject, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	obj, ok := r.objects[objectID]
	if !ok {
		return nil, &fixity.NotFoundError{ObjectID: objectID}
	}
	return obj, nil
}

func (r *FakeRegistry) OpenContentStream(ctx context.Context, objectID string) (io.ReadCloser, error) {
	obj, err := r.get(objectID)
	if err != nil {
		return nil, err
	}
	if obj.OpenErr != nil {
		return nil, obj.OpenErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.open.Add(1)
	r.opened.Add(1)
	return newFakeStream(obj, func() { r.open.Add(-1) }), nil
}

func (r *FakeRegistry) ExpectedDigest(ctx context.Context, objectID, alg string) (string, bool, error) {
	obj, err := r.get(objectID)
	if err != nil {
		return "", false, err
	}
	if obj.DigestErr != nil {
		return "", false, obj.DigestErr
	}
	return obj.Expected, obj.Expected != "", nil
}

func (r *FakeRegistry) ForEachObject(ctx context.Context, fn func(objectID string) error) error {
	r.mutex.RLock()
	ids := make([]string, 0, len(r.objects))
	for id := range r.objects {
		ids = append(ids, id)
	}
	r.mutex.RUnlock()
	sort.Strings(ids)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(id); err != nil {
			return err
		}
	}
	return nil
}

type fakeStream struct {
	head    io.Reader
	obj     *FakeObject
	closed  chan struct{}
	once    sync.Once
	onClose func()
}

func newFakeStream(obj *FakeObject, onClose func()) *fakeStream {
	half := len(obj.Content) / 2
	s := &fakeStream{
		obj:     obj,
		closed:  make(chan struct{}),
		onClose: onClose,
	}
	if obj.ReadErr != nil || obj.Block {
		s.head = strings.NewReader(obj.Content[:half])
	} else {
		s.head = strings.NewReader(obj.Content)
	}
	return s
}

func (s *fakeStream) Read(p []byte) (int, error) {
	select {
	case <-s.closed:
		return 0, s.closedErr()
	default:
	}
	n, err := s.head.Read(p)
	if err != io.EOF {
		return n, err
	}
	switch {
	case s.obj.ReadErr != nil:
		return n, s.obj.ReadErr
	case s.obj.Block:
		if n > 0 {
			return n, nil
		}
		<-s.closed
		return 0, s.closedErr()
	}
	return n, io.EOF
}

func (s *fakeStream) closedErr() error {
	if s.obj.EOFOnClose {
		return io.EOF
	}
	return ErrStreamClosed
}

func (s *fakeStream) Close() error {
	s.once.Do(func() {
		close(s.closed)
		s.onClose()
	})
	return nil
}
