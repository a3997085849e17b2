// Command cpucheck-shared builds the CPU check as a C shared library:
//
//	go build -buildmode=c-shared -o libcpucheck.so ./cmd/cpucheck-shared
package main

/*
#include <stdlib.h>
*/
import "C"

import (
	"git.uuxo.net/uuxo/ffmpeg-gate/internal/cpucheck"
	"git.uuxo.net/uuxo/ffmpeg-gate/internal/cpufeatures"
)

//export isCpuSupported
func isCpuSupported() C.int {
	if cpucheck.IsCPUSupported() {
		return 1
	}
	return 0
}

// cpuAssetsDir returns the asset directory for abi, or for the host ABI
// when abi is NULL or empty.  The caller frees the result with free().
//
//export cpuAssetsDir
func cpuAssetsDir(abi *C.char) *C.char {
	name := ""
	if abi != nil {
		name = C.GoString(abi)
	}
	if name == "" {
		name = cpucheck.HostABI(cpufeatures.Detect())
	}
	return C.CString(cpucheck.AssetsDir(name))
}

func main() {}
