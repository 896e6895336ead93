// Package pxe fetches the kernel image from the boot server, the way the
// first stage fetched us.
package pxe

import "github.com/srikwit/chocolate-milk/defs"

type Fetch_i interface {
	Download(name string) ([]uint8, defs.Err_t)
}

// in-memory fetcher for rehearsals and tests
type Memfetch_t struct {
	Files map[string][]uint8
}

func (mf *Memfetch_t) Download(name string) ([]uint8, defs.Err_t) {
	buf, ok := mf.Files[name]
	if !ok {
		return nil, -defs.ENOENT
	}
	return buf, 0
}
