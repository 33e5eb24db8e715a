// Package mainloop owns the build driver that chains the configuration
// tree, registry, validator, wiring parser, active-stream model, dependency
// resolver, and routing planner into one execution plan, and the top-level
// state machine that decides when to attempt a (re)build.
package mainloop

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inivation/caer-mainloop/internal/configtree"
	"github.com/inivation/caer-mainloop/internal/depgraph"
	"github.com/inivation/caer-mainloop/internal/registry"
	"github.com/inivation/caer-mainloop/internal/routing"
	"github.com/inivation/caer-mainloop/internal/streams"
	"github.com/inivation/caer-mainloop/internal/validator"
	"github.com/inivation/caer-mainloop/internal/wiring"
	buildErrors "github.com/inivation/caer-mainloop/pkg/errors"
	"github.com/inivation/caer-mainloop/pkg/tracing"
	"github.com/inivation/caer-mainloop/pkg/types"
)

// reservedNodeName is the one root child never treated as a module
// definition: process-level state lives under it.
const reservedNodeName = "caer"

// moduleNode is one module's raw attributes as read off the tree, before
// registry loading and wiring resolution.
type moduleNode struct {
	name             string
	id               int16
	library          string
	moduleInputText  string
	moduleOutputText string
}

// Build runs the full pipeline once, in order, over the current state of
// tree and the module search path modulesPath: collect module nodes, load
// their descriptors, validate them, resolve wiring, derive active streams,
// order the dependency graph, and plan routing slots. Any failure tears
// down by simply discarding the partially built state: Go's garbage
// collector reclaims it, so releasing partial state on a late failure is
// inherent rather than something this function must do by hand.
func Build(ctx context.Context, tree *configtree.Tree, modulesPath string, tracer *tracing.Manager, logger *logrus.Logger) (plan *types.ExecutionPlan, err error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	start := time.Now()

	span := tracer.StartBuild(ctx)
	defer func() { span.End(err) }()

	var nodes []moduleNode
	var descriptors map[string]*types.ModuleDescriptor
	var instances map[int16]*types.ModuleInstance
	var active map[types.StreamKey]*types.ActiveStream
	var order []int16
	var slotCount int

	err = span.Component("configtree_read", func(context.Context) error {
		nodes, err = collectModuleNodes(tree)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = span.Component("registry_load", func(context.Context) error {
		descriptors, err = loadDescriptors(nodes, modulesPath, logger)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = span.Component("descriptor_validate", func(context.Context) error {
		for _, n := range nodes {
			if err := validator.ValidateDescriptor(n.name, descriptors[n.name]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = span.Component("wiring_resolve", func(context.Context) error {
		modules := make([]wiring.ModuleInput, 0, len(nodes))
		for _, n := range nodes {
			modules = append(modules, wiring.ModuleInput{
				ID:               n.id,
				Name:             n.name,
				Descriptor:       descriptors[n.name],
				ModuleInputText:  n.moduleInputText,
				ModuleOutputText: n.moduleOutputText,
			})
		}
		instances, err = wiring.Resolve(modules)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = span.Component("streams_derive", func(context.Context) error {
		active, err = streams.Derive(instances)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = span.Component("depgraph_order", func(context.Context) error {
		// Order also rewrites each active stream's Users/Taps into this
		// same execution order in place, which routing_plan below relies on.
		order, err = depgraph.Order(instances, active)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = span.Component("routing_plan", func(context.Context) error {
		slotCount, err = routing.Plan(order, instances, active)
		return err
	})
	if err != nil {
		return nil, err
	}

	plan = &types.ExecutionPlan{
		Order:         order,
		Modules:       instances,
		ActiveStreams: active,
		SlotCount:     slotCount,
		BuiltAt:       start,
		BuildDuration: time.Since(start),
	}
	span.SetAttributes(len(instances), len(active), slotCount)

	logger.WithFields(logrus.Fields{
		"modules":    len(instances),
		"streams":    len(active),
		"slot_count": slotCount,
		"duration":   plan.BuildDuration,
	}).Info("build succeeded")

	return plan, nil
}

// collectModuleNodes reads every root child except "caer" as a module
// definition, converting a node missing a required attribute into a build
// error rather than letting configtree's usage-error panic escape: a
// malformed module definition is a configuration mistake, not a programmer
// bug.
func collectModuleNodes(tree *configtree.Tree) ([]moduleNode, error) {
	var nodes []moduleNode
	for _, child := range tree.Root().Children() {
		if child.Name() == reservedNodeName {
			continue
		}
		n, err := readModuleNode(child)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func readModuleNode(node *configtree.Node) (moduleNode, error) {
	if !node.HasAttribute("moduleId") {
		return moduleNode{}, buildErrors.New(buildErrors.CodeDescriptorInvalid, "mainloop", "collectModuleNodes",
			fmt.Sprintf("node %s is missing required attribute moduleId", node.Path()))
	}
	if !node.HasAttribute("moduleLibrary") {
		return moduleNode{}, buildErrors.New(buildErrors.CodeDescriptorInvalid, "mainloop", "collectModuleNodes",
			fmt.Sprintf("node %s is missing required attribute moduleLibrary", node.Path()))
	}

	n := moduleNode{
		name:    node.Name(),
		id:      int16(node.GetAttribute("moduleId", configtree.TypeInt16).(int16)),
		library: node.GetAttribute("moduleLibrary", configtree.TypeString).(string),
	}
	if node.HasAttribute("moduleInput") {
		n.moduleInputText = node.GetAttribute("moduleInput", configtree.TypeString).(string)
	}
	if node.HasAttribute("moduleOutput") {
		n.moduleOutputText = node.GetAttribute("moduleOutput", configtree.TypeString).(string)
	}
	return n, nil
}

func loadDescriptors(nodes []moduleNode, modulesPath string, logger *logrus.Logger) (map[string]*types.ModuleDescriptor, error) {
	reg := registry.New(registry.Config{ModulesPath: modulesPath}, logger)

	libraries := make([]string, len(nodes))
	for i, n := range nodes {
		libraries[i] = n.library
	}

	results := reg.LoadAll(libraries)
	descriptors := make(map[string]*types.ModuleDescriptor, len(nodes))
	for i, res := range results {
		if res.Err != nil {
			return nil, buildErrors.New(buildErrors.CodePluginLoadFailed, "mainloop", "loadDescriptors",
				fmt.Sprintf("module %q: %v", nodes[i].name, res.Err)).Wrap(res.Err)
		}
		descriptors[nodes[i].name] = res.Descriptor
	}
	return descriptors, nil
}
