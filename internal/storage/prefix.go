package storage

// Keyspaces of the wallet database. Every store owns one namespace of a
// single underlying DB.
var (
	NSAddresses = []byte("addr/")
	NSMultisig  = []byte("multisig/")
	NSSessions  = []byte("sessions/")
	NSSent      = []byte("sent/")
	NSCells     = []byte("cells/")
	NSCosigners = []byte("cosigners/")
)

// PrefixDB is a namespace within another DB. Keys passed in and handed to
// ForEach callbacks are relative to the namespace.
type PrefixDB struct {
	inner  DB
	prefix []byte
}

// NewPrefixDB returns the namespace prefix of inner. Nesting a PrefixDB
// inside another is flattened onto the root DB.
func NewPrefixDB(inner DB, prefix []byte) *PrefixDB {
	if outer, ok := inner.(*PrefixDB); ok {
		return &PrefixDB{inner: outer.inner, prefix: join(outer.prefix, prefix)}
	}
	return &PrefixDB{inner: inner, prefix: join(nil, prefix)}
}

func join(prefix, key []byte) []byte {
	out := make([]byte, 0, len(prefix)+len(key))
	return append(append(out, prefix...), key...)
}

func (p *PrefixDB) Get(key []byte) ([]byte, error) {
	return p.inner.Get(join(p.prefix, key))
}

func (p *PrefixDB) Put(key, value []byte) error {
	return p.inner.Put(join(p.prefix, key), value)
}

func (p *PrefixDB) Delete(key []byte) error {
	return p.inner.Delete(join(p.prefix, key))
}

func (p *PrefixDB) Has(key []byte) (bool, error) {
	return p.inner.Has(join(p.prefix, key))
}

// ForEach iterates the keys under prefix within the namespace.
func (p *PrefixDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	return p.inner.ForEach(join(p.prefix, prefix), func(key, value []byte) error {
		return fn(key[len(p.prefix):], value)
	})
}

// DeleteAll drops the whole namespace in one batch.
func (p *PrefixDB) DeleteAll() error {
	batch := NewWriteBatch(p.inner)
	err := p.inner.ForEach(p.prefix, func(key, _ []byte) error {
		return batch.Delete(key)
	})
	if err != nil {
		return err
	}
	return batch.Commit()
}

// Close is a no-op; the root DB owns the lifecycle.
func (p *PrefixDB) Close() error {
	return nil
}

// NewBatch returns a batch on the root DB with keys moved into the
// namespace.
func (p *PrefixDB) NewBatch() Batch {
	return &prefixBatch{inner: NewWriteBatch(p.inner), prefix: p.prefix}
}

type prefixBatch struct {
	inner  Batch
	prefix []byte
}

func (pb *prefixBatch) Put(key, value []byte) error {
	return pb.inner.Put(join(pb.prefix, key), value)
}

func (pb *prefixBatch) Delete(key []byte) error {
	return pb.inner.Delete(join(pb.prefix, key))
}

func (pb *prefixBatch) Commit() error {
	return pb.inner.Commit()
}
