// Copyright 2025 Antfly, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sentiment

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
)

// IndexFilename is served for GET /.
const IndexFilename = "index.html"

// handleIndex serves the landing page.
func (sn *SentimentNode) handleIndex(w http.ResponseWriter, r *http.Request) {
	sn.serveStatic(w, r, IndexFilename)
}

// handleStatic serves a file below the static directory. Directories and
// paths escaping the directory are 404s.
func (sn *SentimentNode) handleStatic(w http.ResponseWriter, r *http.Request) {
	sn.serveStatic(w, r, r.PathValue("path"))
}

func (sn *SentimentNode) serveStatic(w http.ResponseWriter, r *http.Request, name string) {
	if sn.static == nil || !fs.ValidPath(name) {
		http.NotFound(w, r)
		return
	}
	info, err := fs.Stat(sn.static, name)
	if err != nil || info.IsDir() {
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			sn.logger.Sugar().Warnf("Stat %s: %v", name, err)
		}
		http.NotFound(w, r)
		return
	}
	http.ServeFileFS(w, r, sn.static, name)
}

func staticFS(dir string) fs.FS {
	if dir == "" {
		return nil
	}
	return os.DirFS(dir)
}
