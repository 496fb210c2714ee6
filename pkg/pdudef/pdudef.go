// Package pdudef loads the name<->channel_id mapping for every robot in a
// node from a JSON manifest, in either of the two shapes the tooling emits:
// the legacy inline reader/writer lists, or the compact paths+pdutypes_id
// form. Once loaded, a Definition is read-only and safe for concurrent use
// by multiple Endpoints and comms sharing ownership of it.
package pdudef

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/strand-protocol/strand/pduendpoint/pkg/pduerr"
)

// Def is one PDU's metadata: its wire type, original and display names, its
// channel id, its fixed payload size, and the access method it was declared
// under (e.g. a reader/writer designation from the legacy manifest form).
type Def struct {
	Type        string
	OriginalName string
	DisplayName string
	ChannelID   uint32
	PduSize     int
	MethodType  string
}

// Definition is the read-only robot_name -> original_name -> Def mapping
// loaded from a single manifest.
type Definition struct {
	byRobot map[string]map[string]Def
}

// legacyPduJSON is one entry in a legacy reader/writer list.
type legacyPduJSON struct {
	Type      string `json:"type"`
	OrgName   string `json:"org_name"`
	ChannelID uint32 `json:"channel_id"`
	PduSize   int    `json:"pdu_size"`
}

type legacyRobotJSON struct {
	Name           string          `json:"name"`
	ShmPduReaders  []legacyPduJSON `json:"shm_pdu_readers"`
	ShmPduWriters  []legacyPduJSON `json:"shm_pdu_writers"`
}

type legacyManifest struct {
	Robots []legacyRobotJSON `json:"robots"`
}

// compactPathEntry is one entry of the "paths" array: an id plus the file
// holding that id's PDU type list.
type compactPathEntry struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}

type compactRobotJSON struct {
	Name        string `json:"name"`
	PduTypesID  string `json:"pdutypes_id"`
}

type compactManifest struct {
	Paths  []compactPathEntry `json:"paths"`
	Robots []compactRobotJSON `json:"robots"`
}

type compactTypeEntry struct {
	ChannelID uint32 `json:"channel_id"`
	PduSize   int    `json:"pdu_size"`
	Name      string `json:"name"`
	Type      string `json:"type"`
}

// Load reads pdudefPath and parses either the legacy or the compact manifest
// shape, detected by the presence of a top-level "paths" array.
func Load(pdudefPath string) (*Definition, error) {
	data, err := os.ReadFile(pdudefPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, pduerr.Wrap(pduerr.FileNotFound, err, "pdudef: not found: %s", pdudefPath)
		}
		return nil, pduerr.Wrap(pduerr.IoError, err, "pdudef: read: %s", pdudefPath)
	}

	var probe struct {
		Paths json.RawMessage `json:"paths"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, pduerr.Wrap(pduerr.InvalidJSON, err, "pdudef: parse: %s", pdudefPath)
	}
	if probe.Paths != nil {
		return loadCompact(data, filepath.Dir(pdudefPath))
	}
	return loadLegacy(data)
}

func loadLegacy(data []byte) (*Definition, error) {
	var manifest legacyManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, pduerr.Wrap(pduerr.InvalidJSON, err, "pdudef: parse legacy manifest")
	}
	def := &Definition{byRobot: make(map[string]map[string]Def)}
	for _, robot := range manifest.Robots {
		robotDefs := make(map[string]Def)
		for _, p := range robot.ShmPduReaders {
			robotDefs[p.OrgName] = Def{Type: p.Type, OriginalName: p.OrgName, DisplayName: p.OrgName, ChannelID: p.ChannelID, PduSize: p.PduSize, MethodType: "reader"}
		}
		for _, p := range robot.ShmPduWriters {
			if _, exists := robotDefs[p.OrgName]; exists {
				continue
			}
			robotDefs[p.OrgName] = Def{Type: p.Type, OriginalName: p.OrgName, DisplayName: p.OrgName, ChannelID: p.ChannelID, PduSize: p.PduSize, MethodType: "writer"}
		}
		def.byRobot[robot.Name] = robotDefs
	}
	return def, nil
}

func loadCompact(data []byte, baseDir string) (*Definition, error) {
	var manifest compactManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, pduerr.Wrap(pduerr.InvalidJSON, err, "pdudef: parse compact manifest")
	}

	typesByID := make(map[string][]compactTypeEntry, len(manifest.Paths))
	for _, p := range manifest.Paths {
		path := p.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, pduerr.Wrap(pduerr.FileNotFound, err, "pdudef: type file not found: %s", path)
			}
			return nil, pduerr.Wrap(pduerr.IoError, err, "pdudef: read type file: %s", path)
		}
		var entries []compactTypeEntry
		if err := json.Unmarshal(raw, &entries); err != nil {
			return nil, pduerr.Wrap(pduerr.InvalidJSON, err, "pdudef: parse type file: %s", path)
		}
		typesByID[p.ID] = entries
	}

	def := &Definition{byRobot: make(map[string]map[string]Def)}
	for _, robot := range manifest.Robots {
		entries, ok := typesByID[robot.PduTypesID]
		if !ok {
			return nil, pduerr.New(pduerr.InvalidConfig, "pdudef: robot %q references unknown pdutypes_id %q", robot.Name, robot.PduTypesID)
		}
		robotDefs := make(map[string]Def, len(entries))
		for _, e := range entries {
			robotDefs[e.Name] = Def{Type: e.Type, OriginalName: e.Name, DisplayName: e.Name, ChannelID: e.ChannelID, PduSize: e.PduSize}
		}
		def.byRobot[robot.Name] = robotDefs
	}
	return def, nil
}

// ResolveByName resolves (robot, pdu original name) to its Def.
func (d *Definition) ResolveByName(robot, name string) (Def, bool) {
	robotDefs, ok := d.byRobot[robot]
	if !ok {
		return Def{}, false
	}
	def, ok := robotDefs[name]
	return def, ok
}

// ResolveByChannel resolves (robot, channel_id) to its Def by linear scan of
// that robot's definitions.
func (d *Definition) ResolveByChannel(robot string, channelID uint32) (Def, bool) {
	robotDefs, ok := d.byRobot[robot]
	if !ok {
		return Def{}, false
	}
	for _, def := range robotDefs {
		if def.ChannelID == channelID {
			return def, true
		}
	}
	return Def{}, false
}

// PduSize returns the declared size for (robot, name), or 0 if unknown.
func (d *Definition) PduSize(robot, name string) int {
	if def, ok := d.ResolveByName(robot, name); ok {
		return def.PduSize
	}
	return 0
}

// ChannelID returns the declared channel id for (robot, name), or -1 if
// unknown.
func (d *Definition) ChannelID(robot, name string) int64 {
	if def, ok := d.ResolveByName(robot, name); ok {
		return int64(def.ChannelID)
	}
	return -1
}
