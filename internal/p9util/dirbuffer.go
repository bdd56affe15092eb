package p9util

import (
	"fmt"

	"github.com/lionkov/go9p/p"
	"github.com/peripherialabs/peribus/internal/linuxerr"
)

// DirBuffer packs directory entries for 9P directory reads. It is
// filled when the directory is opened and read back in protocol-sized
// pieces.
//
// From read(5): «For directories, read returns an integral number of
// directory entries exactly as in stat (see stat(5)). The read request
// message must have offset equal to zero or the value of offset in the
// previous read on the directory, plus the number of bytes returned in
// the previous read.» So valid read offsets are exactly the entry
// boundaries, and a read never returns a truncated entry.
type DirBuffer struct {
	packed []byte
	ends   []int
}

func (b *DirBuffer) Reset() {
	b.packed = nil
	b.ends = nil
}

func (b *DirBuffer) Write(dir *p.Dir) {
	b.packed = append(b.packed, p.PackDir(dir, false)...)
	b.ends = append(b.ends, len(b.packed))
}

// boundary returns the index in ends of the entry ending at off, or -1.
func (b *DirBuffer) boundary(off int) int {
	lo, hi := 0, len(b.ends)
	for lo < hi {
		mid := (lo + hi) / 2
		if b.ends[mid] < off {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(b.ends) && b.ends[lo] == off {
		return lo
	}
	return -1
}

func (b *DirBuffer) Read(dst []byte, offset int) (int, error) {
	if offset == len(b.packed) {
		return 0, nil
	}
	start := -1
	if offset == 0 {
		start = 0
	} else if i := b.boundary(offset); i >= 0 {
		start = i + 1
	}
	if start < 0 {
		return 0, fmt.Errorf("%d is not a dir entry offset: %w", offset, linuxerr.EINVAL)
	}
	// Find the last whole entry that fits in dst.
	end := offset
	for i := start; i < len(b.ends); i++ {
		if b.ends[i]-offset > len(dst) {
			break
		}
		end = b.ends[i]
	}
	if end == offset && start < len(b.ends) {
		// Not even one entry fits; per read(5) return zero bytes.
		return 0, nil
	}
	return copy(dst, b.packed[offset:end]), nil
}
