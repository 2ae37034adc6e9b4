package variation

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/carbocation/pfx"
	"go.etcd.io/bbolt"
)

var (
	bucketHeader = []byte("header")
	bucketPages  = []byte("pages")
	keyHeader    = []byte("header")
)

// BoltPageFile keeps pages in a bbolt database: one nested bucket per field
// path under "pages", keyed by the big-endian first row of each page.
type BoltPageFile struct {
	db *bbolt.DB
}

var _ PageFile = (*BoltPageFile)(nil)

// OpenBoltPageFile opens or creates a bbolt page file at path.
func OpenBoltPageFile(path string) (*BoltPageFile, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, pfx.Err(err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketHeader); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketPages); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, pfx.Err(err)
	}

	return &BoltPageFile{db: db}, nil
}

// OpenBolt opens a Paged store backed by a bbolt file.
func OpenBolt(path string, optFns ...func(o *PagedOptions)) (*Paged, error) {
	if err := prepareOpen(path, pagedOptions(optFns).Mode); err != nil {
		return nil, pfx.Err(err)
	}
	pf, err := OpenBoltPageFile(path)
	if err != nil {
		return nil, pfx.Err(err)
	}
	p, err := NewPaged(pf, optFns...)
	if err != nil {
		pf.Close()
		return nil, pfx.Err(err)
	}
	return p, nil
}

func (b *BoltPageFile) Close() error {
	return b.db.Close()
}

func (b *BoltPageFile) ReadHeader() (*PagedHeader, error) {
	var h *PagedHeader
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketHeader).Get(keyHeader)
		if data == nil {
			return nil
		}
		h = &PagedHeader{}
		return json.Unmarshal(data, h)
	})
	if err != nil {
		return nil, pfx.Err(err)
	}
	if h != nil {
		if h.Fields == nil {
			h.Fields = map[string]*PagedField{}
		}
		if h.Metadata == nil {
			h.Metadata = Metadata{}
		}
	}
	return h, nil
}

func rowKey(row int) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(row))
	return k
}

func decodeBoltPage(path string, k, v []byte) (Page, error) {
	count, n := binary.Uvarint(v)
	if n <= 0 {
		return Page{}, fmt.Errorf("Corrupt page header for %s at row %d", path, binary.BigEndian.Uint64(k))
	}
	data := make([]byte, len(v)-n)
	copy(data, v[n:])
	return Page{Path: path, RowStart: int(binary.BigEndian.Uint64(k)), RowCount: int(count), Data: data}, nil
}

func (b *BoltPageFile) ReadPages(path string, start, end int) ([]Page, error) {
	var pages []Page
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketPages).Bucket([]byte(path))
		if bucket == nil {
			return nil
		}
		c := bucket.Cursor()

		// The page holding row start begins at or before it.
		k, v := c.Seek(rowKey(start))
		if k == nil {
			k, v = c.Last()
		} else if int(binary.BigEndian.Uint64(k)) > start {
			if pk, pv := c.Prev(); pk != nil {
				k, v = pk, pv
			} else {
				k, v = c.First()
			}
		}

		for ; k != nil; k, v = c.Next() {
			pg, err := decodeBoltPage(path, k, v)
			if err != nil {
				return err
			}
			if pg.RowStart >= end {
				break
			}
			if pg.RowStart+pg.RowCount > start {
				pages = append(pages, pg)
			}
		}
		return nil
	})
	if err != nil {
		return nil, pfx.Err(err)
	}
	return pages, nil
}

func (b *BoltPageFile) Commit(h *PagedHeader, pages []Page, dropped []string) error {
	header, err := json.Marshal(h)
	if err != nil {
		return pfx.Err(err)
	}

	err = b.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket(bucketPages)
		for _, path := range dropped {
			if root.Bucket([]byte(path)) == nil {
				continue
			}
			if err := root.DeleteBucket([]byte(path)); err != nil {
				return err
			}
		}
		for _, pg := range pages {
			bucket, err := root.CreateBucketIfNotExists([]byte(pg.Path))
			if err != nil {
				return err
			}
			v := binary.AppendUvarint(make([]byte, 0, len(pg.Data)+binary.MaxVarintLen64), uint64(pg.RowCount))
			v = append(v, pg.Data...)
			if err := bucket.Put(rowKey(pg.RowStart), v); err != nil {
				return err
			}
		}
		return tx.Bucket(bucketHeader).Put(keyHeader, header)
	})
	if err != nil {
		return pfx.Err(err)
	}
	return nil
}
