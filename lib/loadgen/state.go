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

package loadgen

import (
	"regexp"
	"strconv"
)

// State is the traffic generator state carried between iterations
type State struct {
	// Iteration is the run counter
	Iteration int64
	// ProductIDs caches the product IDs seen in the last listing
	ProductIDs []int64
	// Stats counts the actions taken
	Stats Stats
}

// Stats counts the actions taken by the traffic generator
type Stats struct {
	// Refreshes counts product ID cache refreshes
	Refreshes int
	// Reads counts read requests
	Reads int
	// Creates counts create requests
	Creates int
	// Updates counts update requests
	Updates int
	// Deletes counts delete requests
	Deletes int
	// Errors counts failed requests
	Errors int
}

// Writes returns the number of write requests
func (r Stats) Writes() int {
	return r.Creates + r.Updates + r.Deletes
}

// withoutProduct returns a copy of the state with id removed from the cache
func (r State) withoutProduct(id int64) State {
	ids := make([]int64, 0, len(r.ProductIDs))
	for _, cached := range r.ProductIDs {
		if cached != id {
			ids = append(ids, cached)
		}
	}
	r.ProductIDs = ids
	return r
}

var productIDPattern = regexp.MustCompile(`"id"\s*:\s*(\d+)`)

// ExtractProductIDs returns the distinct product IDs found in a listing body
// in order of appearance. Bodies without IDs yield an empty list
func ExtractProductIDs(body []byte) []int64 {
	ids := []int64{}
	seen := make(map[int64]bool)
	for _, match := range productIDPattern.FindAllSubmatch(body, -1) {
		id, err := strconv.ParseInt(string(match[1]), 10, 64)
		if err != nil || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}
