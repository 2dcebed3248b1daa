package archive

import (
	"fmt"

	"github.com/hpcvis/vizcore/internal/scalar"
	"github.com/hpcvis/vizcore/internal/shm"
	"go.uber.org/zap"
)

// Loader turns record bodies back into live arrays and objects. One loader
// handles one archive; it is single-threaded, but completion callbacks of
// requested references may arrive from any thread.
type Loader struct {
	log     *zap.Logger
	store   *shm.Store
	objs    ObjectSystem
	fetcher Fetcher

	// Strong references to arrays materialized by this loader, held until
	// ReleaseArrays.
	owned []shm.AnyArray
}

// NewLoader wires a loader to the array store, the object system, and the
// fetcher supplying missing blobs.
func NewLoader(log *zap.Logger, store *shm.Store, objs ObjectSystem, fetcher Fetcher) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{log: log.Named("archive"), store: store, objs: objs, fetcher: fetcher}
}

func (l *Loader) localArrayName(archiveName string) string {
	if !l.fetcher.RenameObjects() {
		return archiveName
	}
	if t := l.fetcher.TranslateArrayName(archiveName); t != "" {
		return t
	}
	local := l.store.ArrayName()
	l.fetcher.RegisterArrayNameTranslation(archiveName, local)
	return local
}

func (l *Loader) localObjectName(archiveName string) string {
	if !l.fetcher.RenameObjects() {
		return archiveName
	}
	if t := l.fetcher.TranslateObjectName(archiveName); t != "" {
		return t
	}
	local := l.objs.NewName()
	l.fetcher.RegisterObjectNameTranslation(archiveName, local)
	return local
}

// LoadArrayBlob materializes one array record and returns its local name.
func (l *Loader) LoadArrayBlob(archiveName string, body []byte) (string, error) {
	ab, err := parseArrayBody(body)
	if err != nil {
		return "", err
	}
	local := l.localArrayName(archiveName)
	arr, err := materializeArray(l.store, local, ab)
	if err != nil {
		return "", err
	}
	l.owned = append(l.owned, arr)
	return local, nil
}

// LoadObjectBlob reconstructs one object record. The returned object may
// still be incomplete while referenced pieces are in flight.
func (l *Loader) LoadObjectBlob(archiveName string, body []byte) (Object, error) {
	local := l.localObjectName(archiveName)
	if obj, ok := l.objs.Lookup(local); ok {
		return obj, nil
	}

	or := &ObjectReader{rbuf: rbuf{b: body}, loader: l}
	tag := or.I32("type tag")
	if or.err != nil {
		return nil, or.err
	}
	obj, err := l.objs.CreateEmpty(tag, local)
	if err != nil {
		return nil, err
	}
	or.owner = obj

	// Guard reference: keeps the counter above zero until the whole body
	// is parsed, so synchronously satisfied fetches cannot fire the
	// completion hook early.
	obj.UnresolvedReference()
	err = obj.LoadFrom(or)
	if err == nil {
		err = or.Err()
	}
	obj.ReferenceResolved()
	if err != nil {
		return nil, fmt.Errorf("load object %q: %w", archiveName, err)
	}
	return obj, nil
}

func (l *Loader) resolveArray(owner Object, archiveName string, tag scalar.Type, bind func(shm.AnyArray) error) {
	tryLocal := func(local string) bool {
		arr, ok := l.store.FindAndRefAny(local)
		if !ok {
			return false
		}
		if err := bind(arr); err != nil {
			l.log.Warn("array reference rejected",
				zap.String("array", local), zap.Error(err))
		}
		return true
	}

	if l.fetcher.RenameObjects() {
		if local := l.fetcher.TranslateArrayName(archiveName); local != "" && tryLocal(local) {
			return
		}
	} else if tryLocal(archiveName) {
		return
	}

	owner.UnresolvedReference()
	l.fetcher.RequestArray(archiveName, tag, func(localName string) {
		if !tryLocal(localName) {
			l.log.Warn("fetched array vanished", zap.String("array", localName))
		}
		owner.ReferenceResolved()
	})
}

func (l *Loader) resolveObject(owner Object, archiveName string, bind func(Object) error) {
	tryLocal := func(local string) bool {
		obj, ok := l.objs.Lookup(local)
		if !ok {
			return false
		}
		if err := bind(obj); err != nil {
			l.log.Warn("object reference rejected",
				zap.String("object", local), zap.Error(err))
		}
		return true
	}

	if l.fetcher.RenameObjects() {
		if local := l.fetcher.TranslateObjectName(archiveName); local != "" && tryLocal(local) {
			return
		}
	} else if tryLocal(archiveName) {
		return
	}

	owner.UnresolvedReference()
	l.fetcher.RequestObject(archiveName, func(obj Object) {
		if err := bind(obj); err != nil {
			l.log.Warn("object reference rejected",
				zap.String("object", obj.Name()), zap.Error(err))
		}
		owner.ReferenceResolved()
	})
}

// ReleaseArrays drops the loader's strong references to the arrays it
// materialized. Arrays still referenced by loaded objects survive.
func (l *Loader) ReleaseArrays() {
	for _, arr := range l.owned {
		arr.Unref()
	}
	l.owned = nil
}
