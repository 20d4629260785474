/*
Copyright 2018 Gravitational, Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package utils

import (
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/gravitational/nodestrap/lib/defaults"

	"github.com/gravitational/trace"
)

// MkdirAll creates directory dir with all parents
func MkdirAll(dir string, mode os.FileMode) error {
	if err := os.MkdirAll(dir, mode); err != nil {
		return trace.ConvertSystemError(err)
	}
	return nil
}

// WriteFileAtomic writes data to the file at path with the given permissions.
// Readers observe either the previous contents or the complete new contents
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	return trace.Wrap(CopyFileAtomic(path, perm, func(f *os.File) error {
		_, err := f.Write(data)
		return trace.ConvertSystemError(err)
	}))
}

// CopyFileAtomic writes the output of fn to a temporary file next to path
// and renames it into place on success. Parent directories are created
// as needed
func CopyFileAtomic(path string, perm os.FileMode, fn func(*os.File) error) (err error) {
	dir := filepath.Dir(path)
	if err := MkdirAll(dir, defaults.SharedDirMask); err != nil {
		return trace.Wrap(err)
	}
	f, err := ioutil.TempFile(dir, "."+filepath.Base(path)+".")
	if err != nil {
		return trace.ConvertSystemError(err)
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(f.Name())
		}
	}()
	if err = fn(f); err != nil {
		return trace.Wrap(err)
	}
	if err = f.Sync(); err != nil {
		return trace.ConvertSystemError(err)
	}
	if err = f.Close(); err != nil {
		return trace.ConvertSystemError(err)
	}
	if err = os.Chmod(f.Name(), perm); err != nil {
		return trace.ConvertSystemError(err)
	}
	if err = os.Rename(f.Name(), path); err != nil {
		return trace.ConvertSystemError(err)
	}
	return nil
}

// FileExists checks whether the file at path exists
func FileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err != nil {
		err = trace.ConvertSystemError(err)
		if trace.IsNotFound(err) {
			return false, nil
		}
		return false, trace.Wrap(err)
	}
	return true, nil
}
