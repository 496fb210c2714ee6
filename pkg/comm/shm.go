package comm

import (
	"encoding/json"
	"os"

	"github.com/strand-protocol/strand/pduendpoint/pkg/pduerr"
	"github.com/strand-protocol/strand/pduendpoint/pkg/pdudef"
	"github.com/strand-protocol/strand/pduendpoint/pkg/pdukey"
)

// ShmRuntime is the contract the host simulator runtime must satisfy for the
// SHM comm family. Everything past this interface — the actual shared-memory
// region layout, the native notification mechanism — is the host's concern;
// the core only needs to create channels, push/pull bytes through them, and
// either register a callback or poll for new data.
type ShmRuntime interface {
	// CreateChannel allocates (or looks up) the channel for (robot, pduName)
	// sized to hold at least size bytes, returning an opaque event id used by
	// every other method.
	CreateChannel(robot, pduName string, size int) (eventID uint64, err error)
	// Write pushes data into the channel named by eventID.
	Write(eventID uint64, data []byte) error
	// Read pulls the current contents of the channel named by eventID, if
	// any is available.
	Read(eventID uint64) (data []byte, ok bool, err error)
	// RegisterCallback asks the runtime to invoke cb from its own thread
	// whenever eventID's channel receives new data. Used by the callback
	// sub-variant only.
	RegisterCallback(eventID uint64, cb func(data []byte)) error
	// UnregisterCallback reverses RegisterCallback. The runtime may not
	// support this; ShmCallbackComm.Close still clears its own registry and
	// then reports the first UnregisterCallback error as IoError.
	UnregisterCallback(eventID uint64) error
}

type shmPduIOConfig struct {
	Name          string `json:"name"`
	NotifyOnRecv  bool   `json:"notify_on_recv"`
}

type shmRobotIOConfig struct {
	Name string           `json:"name"`
	Pdu  []shmPduIOConfig `json:"pdu"`
}

type shmIOConfig struct {
	Robots []shmRobotIOConfig `json:"robots"`
}

type shmConfig struct {
	Protocol  Protocol    `json:"protocol"`
	ImplType  string      `json:"impl_type"` // "callback" | "poll"
	AssetName string      `json:"asset_name,omitempty"`
	IO        shmIOConfig `json:"io"`
}

func loadShmConfig(configPath string) (shmConfig, error) {
	var cfg shmConfig
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, pduerr.Wrap(pduerr.FileNotFound, err, "shm: config not found: %s", configPath)
		}
		return cfg, pduerr.Wrap(pduerr.IoError, err, "shm: read config: %s", configPath)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, pduerr.Wrap(pduerr.InvalidJSON, err, "shm: parse config: %s", configPath)
	}
	if cfg.ImplType != "callback" && cfg.ImplType != "poll" {
		return cfg, pduerr.New(pduerr.InvalidConfig, "shm: impl_type must be \"callback\" or \"poll\", got %q", cfg.ImplType)
	}
	return cfg, nil
}

// shmChannel is one (robot, pdu name) binding resolved at CreatePduLChannels
// time: its resolved key, its runtime event id, and whether the pdu is
// marked notify_on_recv.
type shmChannel struct {
	key     pdukey.ResolvedKey
	eventID uint64
	notify  bool
}

// newSHMComm constructs the callback or poll SHM comm named by configPath's
// impl_type, bound to the runtime installed with SetShmRuntime at the time of
// the call (currentShmRuntime), since the comm itself carries no default:
// the host simulator is always an external collaborator.
func newSHMComm(configPath string) (Comm, error) {
	cfg, err := loadShmConfig(configPath)
	if err != nil {
		return nil, err
	}
	runtime := currentShmRuntime()
	if runtime == nil {
		return nil, pduerr.New(pduerr.NotRunning, "shm: no ShmRuntime registered, call SetShmRuntime first")
	}
	switch cfg.ImplType {
	case "callback":
		return &ShmCallbackComm{runtime: runtime}, nil
	case "poll":
		return &ShmPollComm{runtime: runtime}, nil
	default:
		return nil, pduerr.New(pduerr.InvalidConfig, "shm: impl_type %q", cfg.ImplType)
	}
}

// shmRuntimeSlot holds the process-wide ShmRuntime used by newSHMComm. The
// host process sets it once at startup with SetShmRuntime, before opening any
// SHM comm config.
var shmRuntimeSlot struct {
	runtime ShmRuntime
}

// SetShmRuntime installs the host simulator's ShmRuntime implementation.
// comm.New / comm.Open bind an SHM comm to whatever is installed at the time
// they construct it; a later SetShmRuntime does not affect comms already
// constructed.
func SetShmRuntime(r ShmRuntime) { shmRuntimeSlot.runtime = r }

func currentShmRuntime() ShmRuntime { return shmRuntimeSlot.runtime }

// resolveChannels walks cfg.IO.Robots and, for every declared pdu, resolves
// its size from def and asks runtime to create the backing channel. It is
// shared between the callback and poll comms' CreatePduLChannels.
func resolveChannels(cfg shmConfig, def *pdudef.Definition, runtime ShmRuntime) ([]shmChannel, error) {
	if def == nil {
		return nil, pduerr.New(pduerr.InvalidConfig, "shm: create_pdu_lchannels requires a pdu definition")
	}
	var channels []shmChannel
	for _, robot := range cfg.IO.Robots {
		for _, pdu := range robot.Pdu {
			d, ok := def.ResolveByName(robot.Name, pdu.Name)
			if !ok {
				return nil, pduerr.New(pduerr.InvalidPduKey, "shm: unresolved pdu %s/%s", robot.Name, pdu.Name)
			}
			eventID, err := runtime.CreateChannel(robot.Name, pdu.Name, d.PduSize)
			if err != nil {
				return nil, pduerr.Wrap(pduerr.IoError, err, "shm: create channel %s/%s", robot.Name, pdu.Name)
			}
			channels = append(channels, shmChannel{
				key:     pdukey.ResolvedKey{Robot: robot.Name, ChannelID: d.ChannelID},
				eventID: eventID,
				notify:  pdu.NotifyOnRecv,
			})
		}
	}
	return channels, nil
}

func findChannel(channels []shmChannel, key pdukey.ResolvedKey) (shmChannel, bool) {
	for _, ch := range channels {
		if ch.key == key {
			return ch, true
		}
	}
	return shmChannel{}, false
}
