package util

func Min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func Rounddown(v int, b int) int {
	return v - (v % b)
}

func Roundup(v int, b int) int {
	return Rounddown(v+b-1, b)
}

// little-endian field read out of a byte image
func Readn(a []uint8, n int, off int) int {
	var ret int
	switch n {
	case 8, 4, 2, 1:
		for i := n - 1; i >= 0; i-- {
			ret = ret<<8 | int(a[off+i])
		}
	default:
		panic("no")
	}
	return ret
}
