//go:build !unix

package cog

// mmapFile has no portable implementation outside unix build tags;
// FileSource falls back to ordinary buffered reads when this returns an
// error (see bytesource.go).
func mmapFile(fd uintptr, size int) ([]byte, error) {
	return nil, errRuntime("memory mapping is not supported on this platform")
}

// munmapFile is a no-op where mmapFile never produced a real mapping.
func munmapFile(data []byte) error {
	return nil
}
