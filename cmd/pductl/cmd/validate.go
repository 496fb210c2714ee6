package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/strand-protocol/strand/pduendpoint/pkg/container"
	"github.com/strand-protocol/strand/pduendpoint/pkg/output"
)

// manifestNodeIDs is the smallest possible shape of a container manifest,
// used only to discover which node ids it declares. It reuses no exported
// type from pkg/container because that package keeps its manifest structs
// private — validation walks the same file with its own minimal decode and
// then hands the real path to container.New for the actual check.
type manifestNodeIDs struct {
	NodeID string `json:"nodeId"`
}

type validateResult struct {
	Path   string `json:"path"`
	Node   string `json:"node"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (r validateResult) Columns() []string { return []string{"MANIFEST", "NODE", "STATUS", "DETAIL"} }
func (r validateResult) Values() []string  { return []string{r.Path, r.Node, r.Status, r.Detail} }

var validateCmd = &cobra.Command{
	Use:   "validate <manifest-or-dir>...",
	Short: "Validate container manifests by opening, without starting, each node's endpoints",
	Long: `validate walks the given manifest files or directories (matching .json
files whose name contains "manifest" or "container"), and for every declared
node id in each manifest runs the real container Initialize/StopAll cycle
against it. Nothing is started and no SHM channel is created: Initialize opens
caches and comms, so no client connects to a remote endpoint, but opening a
UDP in/inout or TCP server comm binds its local socket, and a local address
already in use makes that node fail validation.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var paths []string
		for _, a := range args {
			found, err := discoverManifests(a)
			if err != nil {
				return err
			}
			paths = append(paths, found...)
		}

		var results []output.Row
		failed := false
		for _, p := range paths {
			for _, r := range validateManifest(p) {
				if r.Status != "ok" {
					failed = true
				}
				results = append(results, r)
			}
		}

		fmt.Fprint(cmd.OutOrStdout(), formatter.Format(results))
		if failed {
			return fmt.Errorf("one or more manifests failed validation")
		}
		return nil
	},
}

func discoverManifests(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	var out []string
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		name := strings.ToLower(d.Name())
		if !strings.HasSuffix(name, ".json") {
			return nil
		}
		if strings.Contains(name, "manifest") || strings.Contains(name, "container") {
			out = append(out, p)
		}
		return nil
	})
	return out, err
}

func validateManifest(path string) []validateResult {
	data, err := os.ReadFile(path)
	if err != nil {
		return []validateResult{{Path: path, Status: "error", Detail: err.Error()}}
	}
	var nodes []manifestNodeIDs
	if err := json.Unmarshal(data, &nodes); err != nil {
		return []validateResult{{Path: path, Status: "error", Detail: fmt.Sprintf("invalid manifest JSON: %v", err)}}
	}
	if len(nodes) == 0 {
		return []validateResult{{Path: path, Status: "error", Detail: "manifest declares no nodes"}}
	}

	seen := make(map[string]bool)
	var results []validateResult
	for _, n := range nodes {
		if n.NodeID == "" || seen[n.NodeID] {
			continue
		}
		seen[n.NodeID] = true
		c := container.New(n.NodeID, path)
		if err := c.Initialize(); err != nil {
			results = append(results, validateResult{Path: path, Node: n.NodeID, Status: "error", Detail: err.Error()})
			continue
		}
		c.StopAll()
		results = append(results, validateResult{Path: path, Node: n.NodeID, Status: "ok"})
	}
	return results
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
