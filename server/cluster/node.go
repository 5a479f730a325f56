package cluster

import (
	"fmt"
	"net"
	"os"
	"sort"
	"strings"
	"time"
)

// LocalHost is the locator host used for publishers on the local node.
const LocalHost = "localhost"

const maxPort = 65535

// Locator identifies a process publishing a topic.
type Locator struct {
	// Host is the display name of the node running the publisher, or
	// 'localhost' if the publisher runs on the local node.
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Version orders the updates received from a peer.
//
// Incarnation identifies a single run of the peer process and Seq increases
// with every message the peer sends during that run. A zero Version is never
// considered stale.
type Version struct {
	Incarnation string `json:"incarnation,omitempty"`
	Seq         uint64 `json:"seq"`
}

// Peer contains the known state of a node in the cluster.
type Peer struct {
	// ID is the address the peer is reached at. This is the canonical peer
	// identity.
	//
	// The ID is immutable.
	ID string `json:"id"`

	// Name is the display name the peer announced for itself.
	Name string `json:"name"`

	// Local is true for the local node.
	Local bool `json:"local"`

	// Publishers maps each topic the peer publishes to the ports serving
	// it.
	Publishers map[string][]int `json:"publishers"`

	Version Version `json:"version"`

	UpdatedAt time.Time `json:"updated_at"`
}

func (p *Peer) Copy() *Peer {
	return &Peer{
		ID:         p.ID,
		Name:       p.Name,
		Local:      p.Local,
		Publishers: copyTable(p.Publishers),
		Version:    p.Version,
		UpdatedAt:  p.UpdatedAt,
	}
}

func (p *Peer) Metadata() *PeerMetadata {
	publishers := 0
	for _, ports := range p.Publishers {
		publishers += len(ports)
	}
	return &PeerMetadata{
		ID:         p.ID,
		Name:       p.Name,
		Local:      p.Local,
		Topics:     len(p.Publishers),
		Publishers: publishers,
		UpdatedAt:  p.UpdatedAt,
	}
}

// PeerMetadata contains metadata fields from Peer.
type PeerMetadata struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Local      bool      `json:"local"`
	Topics     int       `json:"topics"`
	Publishers int       `json:"publishers"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NodeName returns the name of the local node, which is the hosts fully
// qualified domain name with '.' replaced by '_'.
func NodeName() (string, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("hostname: %w", err)
	}
	return NameFromFQDN(fqdn(hostname)), nil
}

// NameFromFQDN converts a domain name into a node name, so the name can be
// used as a topic namespace.
func NameFromFQDN(fqdn string) string {
	return strings.ReplaceAll(strings.TrimSuffix(fqdn, "."), ".", "_")
}

// fqdn resolves the canonical name of the host, falling back to the hostname
// if it can't be resolved.
func fqdn(hostname string) string {
	if strings.Contains(hostname, ".") {
		return hostname
	}
	cname, err := net.LookupCNAME(hostname)
	if err != nil || cname == "" {
		return hostname
	}
	return strings.TrimSuffix(cname, ".")
}

func copyTable(table map[string][]int) map[string][]int {
	if table == nil {
		return nil
	}
	c := make(map[string][]int, len(table))
	for topic, ports := range table {
		c[topic] = append([]int(nil), ports...)
	}
	return c
}

// normalizeTable returns a copy of a table received from a peer as a set of
// valid ports per topic: duplicates and ports outside [0, 65535] are dropped,
// ports are sorted, and topics left without a port are removed.
func normalizeTable(table map[string][]int) map[string][]int {
	normalized := make(map[string][]int, len(table))
	for topic, ports := range table {
		set := make(map[int]struct{}, len(ports))
		for _, port := range ports {
			if port < 0 || port > maxPort {
				continue
			}
			set[port] = struct{}{}
		}
		if len(set) == 0 {
			continue
		}
		normalized[topic] = sortedPorts(set)
	}
	return normalized
}

func sortLocators(locators []Locator) {
	sort.Slice(locators, func(i, j int) bool {
		// Local publishers first.
		if (locators[i].Host == LocalHost) != (locators[j].Host == LocalHost) {
			return locators[i].Host == LocalHost
		}
		if locators[i].Host != locators[j].Host {
			return locators[i].Host < locators[j].Host
		}
		return locators[i].Port < locators[j].Port
	})
}
