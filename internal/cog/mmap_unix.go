//go:build unix

package cog

import "syscall"

// mmapFile backs FileSource's memory-mapped read path (spec.md §4.1's
// ByteSource contract) with a read-only, copy-on-write private mapping.
// The fd can be closed once the mapping is established.
func mmapFile(fd uintptr, size int) ([]byte, error) {
	return syscall.Mmap(int(fd), 0, size, syscall.PROT_READ, syscall.MAP_PRIVATE)
}

// munmapFile tears down a mapping mmapFile produced.
func munmapFile(data []byte) error {
	return syscall.Munmap(data)
}
