package cluster

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/andydunstall/meshmaster/pkg/log"
)

// Directory contains the known publishers of each node in the cluster as seen
// by the local node.
//
// Remote peers are keyed by the address they're reached at, and each peers
// entry is replaced wholesale whenever that peer gossips its publishers. The
// local node is always present and reflects the local Registry.
//
// The directory is eventually consistent.
type Directory struct {
	localID   string
	localName string
	registry  *Registry

	peers map[string]*Peer

	// mu protects the above fields. It is only ever held for a single read or
	// update and never while performing I/O.
	mu sync.RWMutex

	metrics *DirectoryMetrics

	logger log.Logger
}

func NewDirectory(
	localID string,
	localName string,
	registry *Registry,
	logger log.Logger,
) *Directory {
	return &Directory{
		localID:   localID,
		localName: localName,
		registry:  registry,
		peers:     make(map[string]*Peer),
		metrics:   newDirectoryMetrics(),
		logger:    logger.WithSubsystem("cluster"),
	}
}

// LocalID returns the address of the local node.
func (d *Directory) LocalID() string {
	// localID is immutable so don't need a mutex.
	return d.localID
}

// LocalName returns the display name of the local node.
func (d *Directory) LocalName() string {
	return d.localName
}

// Name returns the display name of the peer with the given ID.
func (d *Directory) Name(id string) (string, bool) {
	if id == d.localID {
		return d.localName, true
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	peer, ok := d.peers[id]
	if !ok {
		return "", false
	}
	return peer.Name, true
}

// Merge replaces the known state of the peer with the given ID. The peers
// table is normalized to a sorted set of valid ports per topic.
//
// If the peer is already known with the same incarnation and a version at
// least as recent, the update is stale and discarded. Returns true if the
// update was applied.
func (d *Directory) Merge(
	id string,
	name string,
	publishers map[string][]int,
	version Version,
) bool {
	if id == d.localID {
		d.logger.Warn("merge: cannot update local node", zap.String("peer", id))
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	existing, ok := d.peers[id]
	if ok && isStale(existing.Version, version) {
		d.metrics.Merges.With(prometheus.Labels{"result": "stale"}).Inc()
		d.logger.Debug(
			"merge: discarding stale update",
			zap.String("peer", id),
			zap.Uint64("seq", version.Seq),
			zap.Uint64("known-seq", existing.Version.Seq),
		)
		return false
	}

	if !ok {
		d.metrics.Peers.Inc()
		d.logger.Info(
			"peer discovered",
			zap.String("peer", id),
			zap.String("name", name),
		)
	} else if existing.Name != name {
		d.logger.Info(
			"peer renamed",
			zap.String("peer", id),
			zap.String("old-name", existing.Name),
			zap.String("name", name),
		)
	}

	d.peers[id] = &Peer{
		ID:         id,
		Name:       name,
		Publishers: normalizeTable(publishers),
		Version:    version,
		UpdatedAt:  time.Now(),
	}
	d.metrics.Merges.With(prometheus.Labels{"result": "applied"}).Inc()
	return true
}

// Evict removes the peer with the given ID, including its display name.
// Returns false if the peer is unknown.
func (d *Directory) Evict(id string) bool {
	if id == d.localID {
		d.logger.Warn("evict: cannot evict local node", zap.String("peer", id))
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	peer, ok := d.peers[id]
	if !ok {
		return false
	}
	delete(d.peers, id)

	d.metrics.Peers.Dec()
	d.metrics.Evictions.Inc()

	d.logger.Info(
		"peer evicted",
		zap.String("peer", id),
		zap.String("name", peer.Name),
	)
	return true
}

// Resolve returns the known publishers of the topic across the cluster.
//
// Local publishers use host 'localhost', remote publishers use the display
// name of their node. Returns an empty list if the topic has no known
// publishers.
func (d *Directory) Resolve(topic string) []Locator {
	locators := []Locator{}
	for _, port := range d.registry.Ports(topic) {
		locators = append(locators, Locator{Host: LocalHost, Port: port})
	}

	d.mu.RLock()
	for _, peer := range d.peers {
		for _, port := range peer.Publishers[topic] {
			locators = append(locators, Locator{Host: peer.Name, Port: port})
		}
	}
	d.mu.RUnlock()

	sortLocators(locators)
	return locators
}

// Peer returns the known state of the peer with the given ID, or false if the
// peer is unknown.
func (d *Directory) Peer(id string) (*Peer, bool) {
	if id == d.localID {
		return d.LocalPeer(), true
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	peer, ok := d.peers[id]
	if !ok {
		return nil, false
	}
	return peer.Copy(), true
}

// LocalPeer returns the state of the local node.
func (d *Directory) LocalPeer() *Peer {
	return &Peer{
		ID:         d.localID,
		Name:       d.localName,
		Local:      true,
		Publishers: d.registry.Snapshot(),
		UpdatedAt:  time.Now(),
	}
}

// Peers returns the known state of every node, including the local node,
// sorted by ID.
func (d *Directory) Peers() []*Peer {
	peers := []*Peer{d.LocalPeer()}

	d.mu.RLock()
	for _, peer := range d.peers {
		peers = append(peers, peer.Copy())
	}
	d.mu.RUnlock()

	sort.Slice(peers, func(i, j int) bool {
		return peers[i].ID < peers[j].ID
	})
	return peers
}

// PeersMetadata returns the metadata of every known node.
func (d *Directory) PeersMetadata() []*PeerMetadata {
	peers := d.Peers()
	metadata := make([]*PeerMetadata, 0, len(peers))
	for _, peer := range peers {
		metadata = append(metadata, peer.Metadata())
	}
	return metadata
}

// Contains returns whether the remote peer with the given ID is known.
func (d *Directory) Contains(id string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	_, ok := d.peers[id]
	return ok
}

// PeerIDs returns the IDs of the known remote peers.
func (d *Directory) PeerIDs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ids := make([]string, 0, len(d.peers))
	for id := range d.peers {
		ids = append(ids, id)
	}
	return ids
}

func (d *Directory) Metrics() *DirectoryMetrics {
	return d.metrics
}

func isStale(known Version, update Version) bool {
	if known.Incarnation == "" || update.Incarnation != known.Incarnation {
		return false
	}
	return update.Seq <= known.Seq
}
