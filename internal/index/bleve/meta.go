package bleve

import (
	"encoding/json"
	"strconv"

	"go.etcd.io/bbolt"
)

const (
	bucketMirror = "mirror"
	bucketDocs   = "docs"

	keyVersion = "catalog_version"
)

// docMeta is what the mirror last indexed for one record.
type docMeta struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Source      string `json:"source"`
}

func encodeJSON(v any) ([]byte, error) {
	return json.Marshal(v)
}

func decodeJSON(data []byte, target any) error {
	return json.Unmarshal(data, target)
}

func (x *Index) ensureBuckets() error {
	return x.meta.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(bucketMirror)); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists([]byte(bucketDocs))
		return err
	})
}

// BuiltVersion is the catalog version the mirror was last synced to, or 0.
func (x *Index) BuiltVersion() (int64, error) {
	var ver int64
	err := x.meta.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket([]byte(bucketMirror)).Get([]byte(keyVersion))
		if raw == nil {
			return nil
		}
		v, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return err
		}
		ver = v
		return nil
	})
	return ver, err
}

func (x *Index) loadDocs() (map[string]docMeta, error) {
	out := map[string]docMeta{}
	err := x.meta.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketDocs)).ForEach(func(k, v []byte) error {
			var m docMeta
			if err := decodeJSON(v, &m); err != nil {
				return err
			}
			out[string(k)] = m
			return nil
		})
	})
	return out, err
}

func (x *Index) saveDocs(put map[string]docMeta, del []string, version int64) error {
	return x.meta.Update(func(tx *bbolt.Tx) error {
		docs := tx.Bucket([]byte(bucketDocs))
		for _, id := range del {
			if err := docs.Delete([]byte(id)); err != nil {
				return err
			}
		}
		for id, m := range put {
			buf, err := encodeJSON(m)
			if err != nil {
				return err
			}
			if err := docs.Put([]byte(id), buf); err != nil {
				return err
			}
		}
		return tx.Bucket([]byte(bucketMirror)).Put([]byte(keyVersion), []byte(strconv.FormatInt(version, 10)))
	})
}
