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
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/opencurve/curvebs-client/proto"
	"github.com/opencurve/curvebs-client/sdk/chunkclient"
	"github.com/opencurve/curvebs-client/util/config"
	"github.com/opencurve/curvebs-client/util/log"
)

var (
	configFile   string
	topologyFlag string
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "curvebs-client-demo",
		Short: "smoke-test the chunk request engine against a fake chunk server",
	}
	c.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to a JSON config file (optional)")
	c.PersistentFlags().StringVar(&topologyFlag, "topology", "", "path to a YAML cluster topology file (optional, overrides the built-in fixed leader)")
	c.AddCommand(newSmokeCmd())
	return c
}

func newSmokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "smoke",
		Short: "issue a synthetic write then read against an in-process fake transport",
		RunE:  runSmoke,
	}
}

func runSmoke(cmd *cobra.Command, args []string) error {
	opt := chunkclient.DefaultFailureRequestOption()
	logDir := ""
	if configFile != "" {
		cfg, err := config.LoadConfigFile(configFile)
		if err != nil {
			return err
		}
		if err := cfg.Unmarshal(&opt); err != nil {
			return err
		}
		logDir = cfg.GetString("logDir")
	}

	if err := log.InitFileLog(logDir, "curvebs-client-demo", log.InfoLevel); err != nil {
		return err
	}

	var resolver chunkclient.LeaderResolver = fixedResolver{cs: 1, endpoint: "127.0.0.1:8200", hostIP: "127.0.0.1"}
	if topologyFlag != "" {
		tr, err := loadTopology(topologyFlag)
		if err != nil {
			return err
		}
		resolver = tr
	}
	transport := &echoTransport{}
	metrics := chunkclient.NewChunkMetrics(nil)

	engine, err := chunkclient.NewEngine(opt, resolver, transport, metrics)
	if err != nil {
		return err
	}
	io := engine.IOManager()

	id := proto.ChunkIdInfo{LogicalPoolID: 1, CopysetID: 1, ChunkID: 1}
	payload := []byte("curvebs-client smoke test payload")

	writeDone := make(chan *chunkclient.RequestClosure, 1)
	io.SubmitWrite(id, 1, 1, 1, payload, 0, uint64(len(payload)), nil, func(rc *chunkclient.RequestClosure) {
		writeDone <- rc
	})
	wrc := waitFor(writeDone)
	fmt.Printf("write: status=%v retries=%d\n", wrc.Status, wrc.RetryCount)

	buf := make([]byte, len(payload))
	readDone := make(chan *chunkclient.RequestClosure, 1)
	io.SubmitRead(id, 1, buf, 0, uint64(len(buf)), nil, func(rc *chunkclient.RequestClosure) {
		readDone <- rc
	})
	rrc := waitFor(readDone)
	fmt.Printf("read: status=%v retries=%d data=%q\n", rrc.Status, rrc.RetryCount, string(rrc.Request.ReadBuffer))

	return nil
}

func waitFor(ch <-chan *chunkclient.RequestClosure) *chunkclient.RequestClosure {
	select {
	case rc := <-ch:
		return rc
	case <-time.After(5 * time.Second):
		fmt.Fprintln(os.Stderr, "timed out waiting for the demo request to complete")
		os.Exit(1)
		return nil
	}
}

// fixedResolver is the smoke test's stand-in for the out-of-scope
// metadata-service discovery collaborator (spec §6).
type fixedResolver struct {
	cs       proto.ChunkServerID
	endpoint string
	hostIP   string
}

func (r fixedResolver) ResolveLeader(ctx context.Context, key proto.CopysetKey) (proto.ChunkServerID, string, string, error) {
	return r.cs, r.endpoint, r.hostIP, nil
}

// echoTransport is a minimal in-process ChunkServerTransport that always
// succeeds, echoing the write payload back on read, so the demo never
// needs a real chunk server listening on 127.0.0.1:8200.
type echoTransport struct {
	lastWrite []byte
}

func (t *echoTransport) Send(ctx context.Context, endpoint string, req *chunkclient.RequestContext) (*chunkclient.RPCResponse, error) {
	switch req.OpType {
	case proto.OpWrite:
		t.lastWrite = append([]byte(nil), req.WriteData...)
		return &chunkclient.RPCResponse{Status: proto.StatusSuccess}, nil
	case proto.OpRead:
		return &chunkclient.RPCResponse{Status: proto.StatusSuccess, ReadData: t.lastWrite}, nil
	default:
		return &chunkclient.RPCResponse{Status: proto.StatusSuccess}, nil
	}
}
