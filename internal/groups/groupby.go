package groups

import (
	"fmt"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/cespare/xxhash/v2"
	"github.com/paveg/whenthen/internal/errors"
	"github.com/paveg/whenthen/internal/series"
)

const keySeparator = "\x1f"

// ByKeys partitions rows by the values of the key columns. Groups are
// ordered by the first row in which their key appears; null is a key value
// of its own.
func ByKeys(keys ...*series.Column) (*Partition, error) {
	height, err := keyHeight("GroupBy", keys)
	if err != nil {
		return nil, err
	}

	type slot struct {
		key   string
		group int
	}
	index := make(map[uint64][]slot)
	var members []*roaring.Bitmap

	var sb strings.Builder
	for row := 0; row < height; row++ {
		key := buildGroupKey(&sb, keys, row)
		h := xxhash.Sum64String(key)

		group := -1
		for _, s := range index[h] {
			if s.key == key {
				group = s.group
				break
			}
		}
		if group < 0 {
			group = len(members)
			members = append(members, roaring.New())
			index[h] = append(index[h], slot{key: key, group: group})
		}
		members[group].Add(uint32(row))
	}

	return New(height, members), nil
}

// HashPartition splits the rows into n partitions by the hash of their key,
// so that all rows sharing a key land in the same partition. Rows keep their
// relative order inside a partition.
func HashPartition(n int, keys ...*series.Column) ([][]int, error) {
	if n <= 0 {
		return nil, errors.NewInvalidInputError("HashPartition", fmt.Sprintf("partition count must be positive, got %d", n))
	}
	height, err := keyHeight("HashPartition", keys)
	if err != nil {
		return nil, err
	}

	parts := make([][]int, n)
	var sb strings.Builder
	for row := 0; row < height; row++ {
		h := xxhash.Sum64String(buildGroupKey(&sb, keys, row))
		p := int(h % uint64(n))
		parts[p] = append(parts[p], row)
	}
	return parts, nil
}

func keyHeight(op string, keys []*series.Column) (int, error) {
	if len(keys) == 0 {
		return 0, errors.NewInvalidInputError(op, "at least one key column is required")
	}
	height := keys[0].Len()
	for _, k := range keys[1:] {
		if k.Len() != height {
			return 0, errors.NewInvalidInputError(op,
				fmt.Sprintf("key column %s has %d rows, expected %d", k.Name(), k.Len(), height))
		}
	}
	return height, nil
}

// buildGroupKey encodes the key values of one row. Nulls and values are
// tagged so a null never collides with a value that prints as "null".
func buildGroupKey(sb *strings.Builder, keys []*series.Column, row int) string {
	sb.Reset()
	for i, k := range keys {
		if i > 0 {
			sb.WriteString(keySeparator)
		}
		if k.IsNull(row) {
			sb.WriteByte(0)
			continue
		}
		sb.WriteByte(1)
		sb.WriteString(k.GetAsString(row))
	}
	return sb.String()
}
