// Package bitswarm ties together the DHT node, handshake engine, peer
// session manager and disk engine that make up the core of a BitTorrent
// client. Tracker clients, bencode decoding, .torrent/magnet parsing and
// CLI tooling are external collaborators consumed through the interfaces
// these packages expose.
package bitswarm

import (
	"io/ioutil"
	"os"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	yaml "gopkg.in/yaml.v1"
)

// Config bundles the tunables of every subsystem. Zero-value fields fall
// back to DefaultConfig's values when loaded from a missing or partial file.
type Config struct {
	Port uint16

	DataDir  string
	Database string

	Encryption struct {
		DisableOutgoing bool `yaml:"disable_outgoing"`
		ForceOutgoing   bool `yaml:"force_outgoing"`
		ForceIncoming   bool `yaml:"force_incoming"`
	}

	// Handshake engine (MODULE B).
	PeerHandshakeTimeout time.Duration `yaml:"peer_handshake_timeout"`
	PeerConnectTimeout   time.Duration `yaml:"peer_connect_timeout"`

	// Peer session manager (MODULE C).
	MaxPeerAccept           int           `yaml:"max_peer_accept"`
	MaxPeerDial             int           `yaml:"max_peer_dial"`
	HeartbeatSendInterval   time.Duration `yaml:"heartbeat_send_interval"`
	HeartbeatReceiveTimeout time.Duration `yaml:"heartbeat_receive_timeout"`
	PeerReadBufferSize      int           `yaml:"peer_read_buffer_size"`
	MaxPeers                int           `yaml:"max_peers"`

	// Disk engine (MODULE D).
	DiskWorkers        int `yaml:"disk_workers"`
	DiskSinkBufferSize int `yaml:"disk_sink_buffer_size"`
	MaxOpenFiles       int `yaml:"max_open_files"`

	// DHT node (MODULE E).
	DHTEnabled        bool          `yaml:"dht_enabled"`
	DHTAddress        string        `yaml:"dht_address"`
	DHTPort           uint16        `yaml:"dht_port"`
	DHTRouters        []string      `yaml:"dht_routers"`
	DHTBucketRefresh  time.Duration `yaml:"dht_bucket_refresh"`
	DHTBootstrapAlpha int           `yaml:"dht_bootstrap_alpha"`
	DHTBootstrapK     int           `yaml:"dht_bootstrap_k"`
	DHTBootstrapSkip  int           `yaml:"dht_bootstrap_skip"`
}

// DefaultConfig mirrors the teacher's DefaultConfig shape: a single literal
// with conservative values for every subsystem.
var DefaultConfig = Config{
	Port: 6881,

	DataDir:  "~/bitswarm/data",
	Database: "~/bitswarm/session.db",

	PeerHandshakeTimeout: 1500 * time.Millisecond,
	PeerConnectTimeout:   5 * time.Second,

	MaxPeerAccept:           200,
	MaxPeerDial:             80,
	HeartbeatSendInterval:   2 * time.Minute,
	HeartbeatReceiveTimeout: 4 * time.Minute,
	PeerReadBufferSize:      4096,
	MaxPeers:                500,

	DiskWorkers:        4,
	DiskSinkBufferSize: 256,
	MaxOpenFiles:       1024,

	DHTEnabled: true,
	DHTAddress: "0.0.0.0",
	DHTRouters: []string{
		"router.bittorrent.com:6881",
		"dht.transmissionbt.com:6881",
		"router.utorrent.com:6881",
	},
	DHTBucketRefresh:  6 * time.Second,
	DHTBootstrapAlpha: 3,
	DHTBootstrapK:     8,
	DHTBootstrapSkip:  5,
}

// LoadConfig reads a YAML config file, overlaying it onto DefaultConfig. A
// missing file is not an error; it just yields DefaultConfig.
func LoadConfig(filename string) (*Config, error) {
	c := DefaultConfig
	b, err := ioutil.ReadFile(filename)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err = yaml.Unmarshal(b, &c); err != nil {
			return nil, err
		}
	}
	if c.DataDir, err = expandHome(c.DataDir); err != nil {
		return nil, err
	}
	if c.Database, err = expandHome(c.Database); err != nil {
		return nil, err
	}
	return &c, nil
}

// expandHome resolves a leading "~" in path to the calling user's home
// directory, leaving path untouched otherwise.
func expandHome(path string) (string, error) {
	return homedir.Expand(path)
}
