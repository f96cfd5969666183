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
	"net/http"
)

// Version information - set at build time via ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// handleHealthz returns 200 if the service is running (liveness check)
func (sn *SentimentNode) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthStatus{Status: "ok"})
}

// handleReadyz returns 200 once a model is serving predictions
func (sn *SentimentNode) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if sn.predictor == nil {
		writeJSON(w, http.StatusServiceUnavailable, ReadyStatus{Status: "not_ready"})
		return
	}
	info := modelInfo(sn.predictor.Info())
	writeJSON(w, http.StatusOK, ReadyStatus{Status: "ready", Model: &info})
}
