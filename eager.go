// Copyright (c) 2025-present deep.rent GmbH (https://deep.rent)
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

package sprout

import (
	"github.com/sprout-di/sprout/internal/ssmap"
	"github.com/sprout-di/sprout/internal/typeid"
)

// EagerlyInjectAll constructs every binding and multibinding inj provides,
// up front, instead of waiting for each to be requested by a Get call —
// spec.md §6's eager-injection escape hatch, useful for surfacing a
// construction failure at startup rather than on a request path. It
// returns the first error encountered; everything already constructed
// before that point remains constructed and will still be torn down by
// Close in the usual reverse order.
func (inj *Injector) EagerlyInjectAll() error {
	var firstErr error
	inj.graph.All(func(id typeid.ID, _ ssmap.NodeIterator[typeid.ID, *nodeRecord]) bool {
		rs := newResolveState()
		if _, err := resolveValue(inj, rs, id); err != nil && firstErr == nil {
			firstErr = err
		}
		return true
	})
	if firstErr != nil {
		return firstErr
	}
	for _, rec := range inj.multi {
		constructMultibinding(inj, rec)
		if rec.err != nil {
			return rec.err
		}
	}
	return nil
}
