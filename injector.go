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
	"log/slog"
	"sync"

	"github.com/sprout-di/sprout/internal/arena"
	"github.com/sprout-di/sprout/internal/ssmap"
	"github.com/sprout-di/sprout/internal/typeid"
	"github.com/sprout-di/sprout/log"
)

// Injector is the lazy-construction engine described by spec.md §4.5: one
// singleton per provided (or multibound) type, constructed no earlier than
// its first Get, destroyed in the exact reverse of construction order when
// Close is called. Two Injectors built from the same NormalizedComponent
// never share a constructed value — each owns its own graph of
// nodeRecords and its own Arena.
type Injector struct {
	graph    *ssmap.Graph[typeid.ID, *nodeRecord]
	arena    *arena.Arena
	multi    map[typeid.ID]*multibindRecord
	provided map[typeid.ID]bool
	log      *slog.Logger

	closeOnce sync.Once
}

// Option configures NewInjector/NewInjectorFromNormalized, following the
// functional-options pattern used throughout this module (see log.Option).
type Option func(*injectorConfig)

type injectorConfig struct {
	logger *slog.Logger
}

// WithLogger attaches a logger the injector uses for construction and
// teardown tracing. The DI core is silent by default.
func WithLogger(logger *slog.Logger) Option {
	return func(c *injectorConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func resolveOptions(opts []Option) *injectorConfig {
	c := &injectorConfig{logger: log.Silent()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// NewInjector normalizes c and builds a self-contained Injector from it: c
// must not have any outstanding requirement, since there is no extra
// component to satisfy one (spec.md §7's InjectorWithRequirements). Use
// NewInjectorFromNormalized to build an injector that combines an
// already-normalized component with one supplied at construction time.
func NewInjector(c Component, opts ...Option) (*Injector, error) {
	n, err := Normalize(c)
	if err != nil {
		return nil, err
	}
	if len(n.required) > 0 {
		return nil, &BuildError{Code: InjectorWithRequirements, Types: n.required, Msg: "component has unresolved requirements; use NewInjectorFromNormalized with an extra component"}
	}
	return newInjectorFrom(n, opts)
}

// NewInjectorFromNormalized builds an Injector from an already-normalized
// component plus an extra Component supplying (at least) whatever n still
// requires. A concrete type bound by both n and extra (even identically),
// or an interface bound to different implementations by the two, is a
// Class B fatal error (spec.md §7's ConflictingExtraBinding, spec.md §8 scenario
// S6): unlike N3's same-normalization duplicate check, this is only
// detectable once the two are actually merged at injector-construction
// time, so it is delivered as a RuntimeError rather than a returned
// BuildError — recovered back into a plain error at this function's own
// boundary so callers do not need a recover() of their own for the common
// case.
func NewInjectorFromNormalized(n *NormalizedComponent, extra Component, opts ...Option) (inj *Injector, err error) {
	defer func() {
		if r := recover(); r != nil {
			if re, ok := r.(*RuntimeError); ok {
				inj, err = nil, re
				return
			}
			panic(r)
		}
	}()

	extraNorm, nerr := Normalize(extra)
	if nerr != nil {
		return nil, nerr
	}

	provided, stillRequired, multibind := mergeBookkeeping(n, extraNorm)
	if len(stillRequired) > 0 {
		return nil, &BuildError{Code: TypesNotProvidedByInjector, Types: stillRequired, Msg: "extra component does not satisfy every remaining requirement"}
	}

	return newInjectorFromParts(n, extraNorm, provided, multibind, opts)
}

// mergeBookkeeping reconciles n's and extra's provided sets, interface
// aliases and multibindings, panicking with a ConflictingExtraBinding
// RuntimeError if both provide the same concrete type (keys alone are
// compared, so two identical bindings for it are rejected too) or bind the
// same interface to different implementations — the two normalized
// components were compiled independently, so the only point at
// which this can be noticed is here. Unlike the old all-in-one merge, it
// does not itself assemble a combined node list: newInjectorFromParts
// builds the injector's graph directly from n and extra via
// ssmap.Graph.WithAdded instead, so the two components' already-compiled
// node/alias specs are reused rather than flattened and rebuilt from
// scratch.
func mergeBookkeeping(n, extra *NormalizedComponent) (provided map[typeid.ID]bool, required []typeid.ID, multibind map[typeid.ID][]*bindingEntry) {
	provided = make(map[typeid.ID]bool, len(n.nodes)+len(extra.nodes))
	for _, spec := range n.nodes {
		provided[spec.Key] = true
	}
	for _, spec := range extra.nodes {
		if provided[spec.Key] {
			panic(fail(ConflictingExtraBinding, "extra component disagrees with the normalized component", spec.Key))
		}
		provided[spec.Key] = true
	}

	aliases := make(map[typeid.ID]typeid.ID, len(n.aliases)+len(extra.aliases))
	for iid, cid := range n.aliases {
		aliases[iid] = cid
	}
	for iid, cid := range extra.aliases {
		if existing, ok := aliases[iid]; ok && existing != cid {
			panic(fail(ConflictingExtraBinding, "extra component binds an interface differently than the normalized component", iid))
		}
		aliases[iid] = cid
	}

	multibind = make(map[typeid.ID][]*bindingEntry, len(n.multibind)+len(extra.multibind))
	for id, entries := range n.multibind {
		multibind[id] = append(multibind[id], entries...)
	}
	for id, entries := range extra.multibind {
		multibind[id] = append(multibind[id], entries...)
	}

	required = make([]typeid.ID, 0)
	for _, id := range n.required {
		if !provided[id] {
			required = append(required, id)
		}
	}
	return provided, required, multibind
}

// nodeSpecs builds the graph node specs (one component's concrete bindings
// plus its interface aliases sharing their target's node) and multibinding
// records for a single normalized component — shared by newInjectorFrom's
// self-contained case and newInjectorFromParts' merge case.
func nodeSpecs(n *NormalizedComponent) ([]ssmap.NodeSpec[typeid.ID, *nodeRecord], map[typeid.ID]*multibindRecord) {
	records := make(map[typeid.ID]*nodeRecord, len(n.nodes))
	specs := make([]ssmap.NodeSpec[typeid.ID, *nodeRecord], 0, len(n.nodes)+len(n.aliases))
	for _, nodeSpec := range n.nodes {
		rec := &nodeRecord{entry: nodeSpec.Value}
		records[nodeSpec.Key] = rec
		specs = append(specs, ssmap.NodeSpec[typeid.ID, *nodeRecord]{Key: nodeSpec.Key, Value: rec, Deps: nodeSpec.Deps})
	}
	for iid, tid := range n.aliases {
		rec, ok := records[tid]
		if !ok {
			continue
		}
		specs = append(specs, ssmap.NodeSpec[typeid.ID, *nodeRecord]{Key: iid, Value: rec})
	}

	multi := make(map[typeid.ID]*multibindRecord, len(n.multibind))
	for id, entries := range n.multibind {
		multi[id] = &multibindRecord{entries: entries}
	}
	return specs, multi
}

func newInjectorFrom(n *NormalizedComponent, opts []Option) (*Injector, error) {
	cfg := resolveOptions(opts)
	specs, multi := nodeSpecs(n)

	inj := &Injector{
		graph:    ssmap.Build(specs),
		arena:    arena.New(len(specs)),
		multi:    multi,
		provided: n.provided,
		log:      cfg.logger,
	}
	inj.log.Debug("injector constructed", "nodes", len(specs), "multibindings", len(multi))
	return inj, nil
}

// newInjectorFromParts builds the merged injector's graph by growing base's
// already-built graph with added's node specs via ssmap.Graph.WithAdded,
// rather than flattening both components' nodes into one slice and
// rebuilding a graph from scratch (see mergeBookkeeping).
func newInjectorFromParts(base, added *NormalizedComponent, provided map[typeid.ID]bool, multibind map[typeid.ID][]*bindingEntry, opts []Option) (*Injector, error) {
	cfg := resolveOptions(opts)
	baseSpecs, _ := nodeSpecs(base)
	addedSpecs, _ := nodeSpecs(added)

	multi := make(map[typeid.ID]*multibindRecord, len(multibind))
	for id, entries := range multibind {
		multi[id] = &multibindRecord{entries: entries}
	}

	total := len(baseSpecs) + len(addedSpecs)
	inj := &Injector{
		graph:    ssmap.Build(baseSpecs).WithAdded(addedSpecs),
		arena:    arena.New(total),
		multi:    multi,
		provided: provided,
		log:      cfg.logger,
	}
	inj.log.Debug("injector constructed", "nodes", total, "multibindings", len(multi))
	return inj, nil
}

// Close runs every registered destructor in the exact reverse of
// construction order (spec.md §8 invariant 5) and releases the injector's
// arena. Close is idempotent; calling it more than once is a no-op after
// the first call.
func (inj *Injector) Close() {
	inj.closeOnce.Do(func() {
		inj.arena.Close()
		inj.log.Debug("injector closed")
	})
}

// Get resolves T, constructing it (and its not-yet-constructed
// dependencies) on the first call for this injector. Later calls for the
// same T on the same injector return the same value.
func Get[T any](inj *Injector) (T, error) {
	return getWithState[T](inj, newResolveState())
}

// MustGet resolves T, panicking if resolution fails — for call sites that
// would just immediately propagate the error anyway.
func MustGet[T any](inj *Injector) T {
	v, err := Get[T](inj)
	if err != nil {
		panic(err)
	}
	return v
}

// UnsafeGet resolves T without requiring that T be a statically known
// provided type of inj — spec.md §6's escape hatch for generic code that
// only knows T at run time. It returns nil if T is not actually bound, and
// also if resolving it fails for any other reason (the error is dropped).
func UnsafeGet[T any](inj *Injector) *T {
	v, err := Get[T](inj)
	if err != nil {
		return nil
	}
	return &v
}

func getWithState[T any](inj *Injector, rs *resolveState) (T, error) {
	var zero T
	id := typeid.Of[T]()
	v, err := resolveValue(inj, rs, id)
	if err != nil {
		return zero, err
	}
	out, ok := v.Interface().(T)
	if !ok {
		return zero, fail(UnboundType, "resolved value does not implement the requested type", id)
	}
	return out, nil
}
