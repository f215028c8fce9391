// Copyright 2024 The CurveBS Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package main

import (
	"context"
	"fmt"
	"io/ioutil"

	"gopkg.in/yaml.v2"

	"github.com/opencurve/curvebs-client/proto"
)

// topologyFile is the on-disk shape of a small cluster topology: which
// chunk server currently leads each copyset, adapted from the teacher's
// own deploy/cmd YAML cluster-topology config.
type topologyFile struct {
	Copysets []topologyCopyset `yaml:"copysets"`
}

type topologyCopyset struct {
	LogicalPoolID uint32 `yaml:"logical_pool_id"`
	CopysetID     uint32 `yaml:"copyset_id"`
	LeaderID      uint32 `yaml:"leader_id"`
	Endpoint      string `yaml:"endpoint"`
	HostIP        string `yaml:"host_ip"`
}

// staticTopologyResolver answers ResolveLeader purely from a YAML file
// loaded at startup; it never contacts a real metadata service, since
// that discovery layer is out of scope (spec §1/§6).
type staticTopologyResolver struct {
	leaders map[proto.CopysetKey]topologyCopyset
}

func loadTopology(path string) (*staticTopologyResolver, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tf topologyFile
	if err := yaml.Unmarshal(raw, &tf); err != nil {
		return nil, err
	}
	leaders := make(map[proto.CopysetKey]topologyCopyset, len(tf.Copysets))
	for _, cs := range tf.Copysets {
		key := proto.CopysetKey{LogicalPoolID: cs.LogicalPoolID, CopysetID: cs.CopysetID}
		leaders[key] = cs
	}
	return &staticTopologyResolver{leaders: leaders}, nil
}

func (r *staticTopologyResolver) ResolveLeader(ctx context.Context, key proto.CopysetKey) (proto.ChunkServerID, string, string, error) {
	cs, ok := r.leaders[key]
	if !ok {
		return 0, "", "", fmt.Errorf("topology: no known leader for %v", key)
	}
	return proto.ChunkServerID(cs.LeaderID), cs.Endpoint, cs.HostIP, nil
}
